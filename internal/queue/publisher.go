package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const sendRequestType = "plusserver.send_request"

// RabbitMQPublisher publishes send requests with publisher confirms, so a
// nil error means the broker has taken responsibility for the message.
type RabbitMQPublisher struct {
	client *RabbitMQ
	now    func() time.Time
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client, now: time.Now}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, queue string, msg SendRequest) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}

	publishing, err := newSendPublishing(msg, p.now())
	if err != nil {
		return err
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	confirmation, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, publishing)
	if err != nil {
		return fmt.Errorf("failed to publish request %s to %q: %w", msg.RequestID, queue, err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("waiting for broker confirm of request %s: %w", msg.RequestID, err)
	}
	if !acked {
		return fmt.Errorf("broker refused request %s on %q", msg.RequestID, queue)
	}

	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

// newSendPublishing validates msg and wraps it in a persistent AMQP message.
// The request id doubles as the AMQP message id.
func newSendPublishing(msg SendRequest, at time.Time) (amqp.Publishing, error) {
	if err := msg.Validate(); err != nil {
		return amqp.Publishing{}, fmt.Errorf("invalid send request: %w", err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal send request: %w", err)
	}

	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     at.UTC(),
		MessageId:     msg.RequestID,
		CorrelationId: msg.CorrelationID,
		Type:          sendRequestType,
		Body:          payload,
	}, nil
}
