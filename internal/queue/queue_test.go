package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func TestQueueNames(t *testing.T) {
	work := WorkQueueNames()
	if len(work) != 1 || work[0] != "sms.send" {
		t.Fatalf("WorkQueueNames = %v, want [sms.send]", work)
	}

	dlq := DLQNames()
	if len(dlq) != 1 || dlq[0] != "dlq.sms.send" {
		t.Fatalf("DLQNames = %v, want [dlq.sms.send]", dlq)
	}

	if got := DLQName(SendQueue); got != "dlq.sms.send" {
		t.Fatalf("DLQName = %s, want dlq.sms.send", got)
	}
}

func TestWorkQueueArgs(t *testing.T) {
	args := workQueueArgs(SendQueue)
	if args["x-dead-letter-exchange"] != dlxExchangeName {
		t.Fatalf("x-dead-letter-exchange = %v, want %s", args["x-dead-letter-exchange"], dlxExchangeName)
	}
	if args["x-dead-letter-routing-key"] != SendQueue {
		t.Fatalf("x-dead-letter-routing-key = %v, want %s", args["x-dead-letter-routing-key"], SendQueue)
	}
}

func TestSendRequestValidate(t *testing.T) {
	msg := SendRequest{
		RequestID: "r1",
		Recipient: "+4917612345678",
		Body:      "hello",
	}
	if err := msg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*SendRequest)
	}{
		{name: "empty request id", mutate: func(m *SendRequest) { m.RequestID = "" }},
		{name: "empty recipient", mutate: func(m *SendRequest) { m.Recipient = " " }},
		{name: "empty body", mutate: func(m *SendRequest) { m.Body = "" }},
		{name: "negative max parts", mutate: func(m *SendRequest) { m.MaxParts = -2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current := msg
			tt.mutate(&current)
			if err := current.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDecodeDelivery(t *testing.T) {
	msg, err := decodeDelivery(amqp.Delivery{
		Type: sendRequestType,
		Body: []byte(`{"requestId":"r1","recipient":"0176","body":"hi","maxParts":2,"registeredDelivery":true}`),
	})
	if err != nil {
		t.Fatalf("decodeDelivery() error = %v", err)
	}
	if msg.RequestID != "r1" || msg.MaxParts != 2 || !msg.Registered() {
		t.Fatalf("decoded = %+v", msg)
	}

	fromHeaders, err := decodeDelivery(amqp.Delivery{
		MessageId:     "r-header",
		CorrelationId: "c-header",
		Body:          []byte(`{"recipient":"0176","body":"hi"}`),
	})
	if err != nil {
		t.Fatalf("decodeDelivery() with header ids error = %v", err)
	}
	if fromHeaders.RequestID != "r-header" || fromHeaders.CorrelationID != "c-header" {
		t.Fatalf("header fallback = %+v", fromHeaders)
	}
	if fromHeaders.RegisteredDelivery != nil || !fromHeaders.Registered() {
		t.Fatal("omitted registeredDelivery should default to tracked")
	}

	unregistered, err := decodeDelivery(amqp.Delivery{
		Body: []byte(`{"requestId":"r2","recipient":"0176","body":"hi","registeredDelivery":false}`),
	})
	if err != nil {
		t.Fatalf("decodeDelivery() unregistered error = %v", err)
	}
	if unregistered.Registered() {
		t.Fatal("explicit registeredDelivery=false should be kept")
	}

	invalid := []amqp.Delivery{
		{Body: []byte(`{`)},
		{Body: []byte(`{"requestId":"r1"}`)},
		{Type: "billing.invoice", Body: []byte(`{"requestId":"r1","recipient":"0176","body":"hi"}`)},
	}
	for _, d := range invalid {
		if _, err := decodeDelivery(d); err == nil {
			t.Fatalf("expected error for %s / %s", d.Type, d.Body)
		}
	}
}

func TestSendTopologyOrder(t *testing.T) {
	decls := sendTopology()
	if len(decls) != 2 {
		t.Fatalf("declarations = %d, want 2", len(decls))
	}

	dlq, work := decls[0], decls[1]
	if dlq.name != "dlq.sms.send" || dlq.bindingKey != SendQueue || dlq.args != nil {
		t.Fatalf("dlq declaration = %+v", dlq)
	}
	if work.name != SendQueue || work.bindingKey != "" {
		t.Fatalf("work declaration = %+v", work)
	}
	if work.args["x-dead-letter-routing-key"] != SendQueue {
		t.Fatalf("work queue args = %v", work.args)
	}
}

func TestNextBackoff(t *testing.T) {
	if got := nextBackoff(time.Second); got != 2*time.Second {
		t.Fatalf("nextBackoff(1s) = %s, want 2s", got)
	}
	if got := nextBackoff(20 * time.Second); got != maxBackoff {
		t.Fatalf("nextBackoff(20s) = %s, want %s", got, maxBackoff)
	}
}

func TestNewSendPublishing(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	msg := SendRequest{RequestID: "r1", CorrelationID: "c1", Recipient: "+4917612345678", Body: "hi"}

	publishing, err := newSendPublishing(msg, at)
	if err != nil {
		t.Fatalf("newSendPublishing() error = %v", err)
	}
	if publishing.MessageId != "r1" || publishing.CorrelationId != "c1" || publishing.Type != sendRequestType {
		t.Fatalf("publishing ids = %q/%q/%q", publishing.MessageId, publishing.CorrelationId, publishing.Type)
	}
	if publishing.DeliveryMode != amqp.Persistent {
		t.Fatalf("delivery mode = %d, want persistent", publishing.DeliveryMode)
	}
	if !publishing.Timestamp.Equal(at) || publishing.Timestamp.Location() != time.UTC {
		t.Fatalf("timestamp = %s, want %s in UTC", publishing.Timestamp, at)
	}

	roundTrip, err := decodeDelivery(amqp.Delivery{Type: publishing.Type, Body: publishing.Body})
	if err != nil {
		t.Fatalf("decodeDelivery(published body) error = %v", err)
	}
	if roundTrip != msg {
		t.Fatalf("decoded = %+v, want %+v", roundTrip, msg)
	}

	if _, err := newSendPublishing(SendRequest{RequestID: "r1"}, at); err == nil {
		t.Fatal("expected validation error")
	}
}

type fakeAcknowledger struct {
	acked    int
	nacked   int
	requeued bool
	rejected int
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.acked++
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	a.nacked++
	a.requeued = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	a.rejected++
	return nil
}

func TestHandleDelivery(t *testing.T) {
	validBody := []byte(`{"requestId":"r1","recipient":"0176","body":"hi"}`)

	tests := []struct {
		name       string
		body       []byte
		handlerErr error
		wantAck    int
		wantNack   int
		wantReject int
		wantCalled bool
	}{
		{name: "success acks", body: validBody, wantAck: 1, wantCalled: true},
		{name: "handler error requeues", body: validBody, handlerErr: errors.New("db down"), wantNack: 1, wantCalled: true},
		{name: "invalid json rejected", body: []byte(`nope`), wantReject: 1},
		{name: "invalid payload rejected", body: []byte(`{"requestId":"r1"}`), wantReject: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAcknowledger{}
			consumer := NewRabbitMQConsumer(nil, 1, zap.NewNop())
			consumer.requeueDelay = 0

			called := false
			var got SendRequest
			handler := func(ctx context.Context, msg SendRequest) error {
				called = true
				got = msg
				return tt.handlerErr
			}

			d := amqp.Delivery{
				Acknowledger:  ack,
				Body:          tt.body,
				CorrelationId: "cid-1",
			}
			if err := consumer.handleDelivery(context.Background(), d, handler); err != nil {
				t.Fatalf("handleDelivery() error = %v", err)
			}

			if called != tt.wantCalled {
				t.Fatalf("handler called = %v, want %v", called, tt.wantCalled)
			}
			if ack.acked != tt.wantAck || ack.nacked != tt.wantNack || ack.rejected != tt.wantReject {
				t.Fatalf("ack/nack/reject = %d/%d/%d, want %d/%d/%d",
					ack.acked, ack.nacked, ack.rejected, tt.wantAck, tt.wantNack, tt.wantReject)
			}
			if tt.wantNack > 0 && !ack.requeued {
				t.Fatal("nack should requeue")
			}
			if called && got.CorrelationID != "cid-1" {
				t.Fatalf("correlation id = %q, want header fallback cid-1", got.CorrelationID)
			}
		})
	}
}

func TestPublisherRequiresClient(t *testing.T) {
	var publisher *RabbitMQPublisher
	if err := publisher.Publish(context.Background(), SendQueue, SendRequest{}); err == nil {
		t.Fatal("expected error for nil publisher")
	}
	if err := publisher.Close(); err != nil {
		t.Fatalf("Close() on nil publisher error = %v", err)
	}
}
