package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const defaultRequeueDelay = 500 * time.Millisecond

// RabbitMQConsumer feeds send requests to a MessageHandler. Undecodable
// deliveries are dead-lettered; handler failures are requeued after a
// short pause.
type RabbitMQConsumer struct {
	client       *RabbitMQ
	prefetch     int
	requeueDelay time.Duration
	logger       *zap.Logger
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger) *RabbitMQConsumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQConsumer{
		client:       client,
		prefetch:     prefetch,
		requeueDelay: defaultRequeueDelay,
		logger:       logger,
	}
}

// Consume blocks until ctx is done, resubscribing with backoff whenever
// the channel drops.
func (c *RabbitMQConsumer) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	logger := c.logger.With(zap.String("queue", queue))
	wait := reconnectBackoff
	for {
		err := c.consumeOnce(ctx, queue, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			wait = reconnectBackoff
			continue
		}

		logger.Warn("consumer interrupted, resubscribing",
			zap.Error(err),
			zap.Duration("backoff", wait),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		wait = nextBackoff(wait)
	}
}

func (c *RabbitMQConsumer) consumeOnce(ctx context.Context, queue string, handler MessageHandler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch %d: %w", c.prefetch, err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel of %q closed", queue)
			}
			if err := c.handleDelivery(ctx, d, handler); err != nil {
				return err
			}
		}
	}
}

func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, d amqp.Delivery, handler MessageHandler) error {
	msg, err := decodeDelivery(d)
	if err != nil {
		c.logger.Warn("dead-lettering undecodable send request",
			zap.Error(err),
			zap.String("messageId", d.MessageId),
			zap.String("type", d.Type),
		)
		if rejectErr := d.Reject(false); rejectErr != nil {
			return fmt.Errorf("failed to reject delivery %q: %w", d.MessageId, rejectErr)
		}
		return nil
	}

	if err := handler(ctx, msg); err != nil {
		c.logger.Warn("send request handling failed, requeueing",
			zap.Error(err),
			zap.String("requestId", msg.RequestID),
			zap.Bool("redelivered", d.Redelivered),
		)
		c.pause(ctx)
		if nackErr := d.Nack(false, true); nackErr != nil {
			return fmt.Errorf("failed to requeue request %s: %w", msg.RequestID, nackErr)
		}
		return nil
	}

	if err := d.Ack(false); err != nil {
		return fmt.Errorf("failed to ack request %s: %w", msg.RequestID, err)
	}
	return nil
}

// pause keeps a failing dependency from turning requeues into a hot loop.
func (c *RabbitMQConsumer) pause(ctx context.Context) {
	if c.requeueDelay <= 0 {
		return
	}
	timer := time.NewTimer(c.requeueDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// decodeDelivery parses a send request. Identifiers missing from the body
// are taken from the AMQP message and correlation ids.
func decodeDelivery(d amqp.Delivery) (SendRequest, error) {
	if d.Type != "" && d.Type != sendRequestType {
		return SendRequest{}, fmt.Errorf("unexpected message type %q", d.Type)
	}

	var msg SendRequest
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		return SendRequest{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if strings.TrimSpace(msg.RequestID) == "" {
		msg.RequestID = d.MessageId
	}
	if msg.CorrelationID == "" {
		msg.CorrelationID = d.CorrelationId
	}
	if err := msg.Validate(); err != nil {
		return SendRequest{}, fmt.Errorf("validation failed: %w", err)
	}
	return msg, nil
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
