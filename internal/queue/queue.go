package queue

import (
	"context"
	"fmt"
)

// Publisher publishes send requests to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg SendRequest) error
	Close() error
}

// MessageHandler handles a consumed send request. A returned error hands
// the delivery back to the broker.
type MessageHandler func(ctx context.Context, msg SendRequest) error

// Consumer consumes send requests from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

// SendQueue is the work queue read by the dispatch worker.
const SendQueue = "sms.send"

// DLQName returns the dead-letter queue name for a work queue, e.g. dlq.sms.send.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// WorkQueueNames returns all work queues declared by the topology.
func WorkQueueNames() []string {
	return []string{SendQueue}
}

// DLQNames returns the dead-letter queue of every work queue.
func DLQNames() []string {
	work := WorkQueueNames()
	queues := make([]string, 0, len(work))
	for _, name := range work {
		queues = append(queues, DLQName(name))
	}
	return queues
}
