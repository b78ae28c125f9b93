package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dlxExchangeName  = "sms.dlx"
	dialTimeout      = 15 * time.Second
	reconnectBackoff = time.Second
	maxBackoff       = 30 * time.Second
)

// RabbitMQ owns the broker connection shared by publisher and consumer.
// The send topology is declared once per connection.
type RabbitMQ struct {
	url string

	mu       sync.RWMutex
	conn     *amqp.Connection
	declared *amqp.Connection

	dialMu sync.Mutex
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	r := &RabbitMQ{url: url}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if _, err := r.connection(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.declared = nil
	r.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}

	return conn.Close()
}

// Ping reports whether the broker connection is open. It backs the
// readiness probe and does not reconnect.
func (r *RabbitMQ) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if conn := r.current(); conn == nil || conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection is closed")
	}
	return nil
}

func (r *RabbitMQ) current() *amqp.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conn
}

// channel opens a channel on a live connection, redialing once if the
// connection dies between the check and the open.
func (r *RabbitMQ) channel(ctx context.Context) (*amqp.Channel, error) {
	conn, err := r.connection(ctx)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		if conn, err = r.redial(ctx, conn); err != nil {
			return nil, err
		}
		if ch, err = conn.Channel(); err != nil {
			return nil, fmt.Errorf("failed to open rabbitmq channel after reconnect: %w", err)
		}
	}

	if err := r.ensureTopology(conn, ch); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return ch, nil
}

func (r *RabbitMQ) connection(ctx context.Context) (*amqp.Connection, error) {
	if conn := r.current(); conn != nil && !conn.IsClosed() {
		return conn, nil
	}
	return r.redial(ctx, nil)
}

// redial replaces a dead connection, backing off between attempts until
// ctx is done. Concurrent callers share the first successful dial.
func (r *RabbitMQ) redial(ctx context.Context, dead *amqp.Connection) (*amqp.Connection, error) {
	r.dialMu.Lock()
	defer r.dialMu.Unlock()

	if conn := r.current(); conn != nil && conn != dead && !conn.IsClosed() {
		return conn, nil
	}

	wait := reconnectBackoff
	for {
		conn, err := amqp.Dial(r.url)
		if err == nil {
			r.mu.Lock()
			old := r.conn
			r.conn = conn
			r.mu.Unlock()

			if old != nil && !old.IsClosed() {
				_ = old.Close()
			}
			return conn, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("rabbitmq reconnect canceled after %v: %w", err, ctx.Err())
		case <-time.After(wait):
		}

		wait = nextBackoff(wait)
	}
}

func (r *RabbitMQ) ensureTopology(conn *amqp.Connection, ch *amqp.Channel) error {
	r.mu.RLock()
	done := r.declared == conn
	r.mu.RUnlock()
	if done {
		return nil
	}

	if err := declareTopology(ch); err != nil {
		return err
	}

	r.mu.Lock()
	if r.conn == conn {
		r.declared = conn
	}
	r.mu.Unlock()
	return nil
}

func nextBackoff(wait time.Duration) time.Duration {
	wait *= 2
	if wait > maxBackoff {
		return maxBackoff
	}
	return wait
}

// queueDecl is one durable queue of the send topology, optionally bound
// to the dead-letter exchange.
type queueDecl struct {
	name       string
	args       amqp.Table
	bindingKey string
}

// sendTopology lists every queue in declaration order. A dead-letter queue
// precedes the work queue that routes into it.
func sendTopology() []queueDecl {
	work := WorkQueueNames()
	decls := make([]queueDecl, 0, 2*len(work))
	for _, name := range work {
		decls = append(decls,
			queueDecl{name: DLQName(name), bindingKey: name},
			queueDecl{name: name, args: workQueueArgs(name)},
		)
	}
	return decls
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchangeName, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %q: %w", dlxExchangeName, err)
	}

	for _, q := range sendTopology() {
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", q.name, err)
		}
		if q.bindingKey == "" {
			continue
		}
		if err := ch.QueueBind(q.name, q.bindingKey, dlxExchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %q to %q: %w", q.name, dlxExchangeName, err)
		}
	}

	return nil
}

// workQueueArgs dead-letters rejected messages to the queue's DLQ.
func workQueueArgs(queueName string) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    dlxExchangeName,
		"x-dead-letter-routing-key": queueName,
	}
}
