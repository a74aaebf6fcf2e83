package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpChannel is the part of *amqp.Channel the queue uses
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Queue moves mail delivery off the request path. Send only enqueues; a
// worker started with Run delivers through the wrapped transport.
type Queue struct {
	conn      *amqp.Connection
	channel   amqpChannel
	name      string
	transport Mailer
	logger    *slog.Logger

	mu     sync.Mutex
	closed bool
}

func DialQueue(url, name string, transport Mailer, logger *slog.Logger) (*Queue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q, err := newQueue(ch, name, transport, logger)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	q.conn = conn
	return q, nil
}

func newQueue(ch amqpChannel, name string, transport Mailer, logger *slog.Logger) (*Queue, error) {
	if _, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	return &Queue{channel: ch, name: name, transport: transport, logger: logger}, nil
}

// Send enqueues msg for the worker
func (q *Queue) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode email: %w", err)
	}

	err = q.channel.PublishWithContext(ctx,
		"",     // default exchange
		q.name, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue email to %s: %w", msg.To, err)
	}
	return nil
}

// Run consumes the queue until ctx is cancelled or the channel closes
func (q *Queue) Run(ctx context.Context) error {
	deliveries, err := q.channel.Consume(
		q.name,
		"",    // consumer
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", q.name, err)
	}

	q.logger.Info("Mail worker started", "queue", q.name)
	for {
		select {
		case <-ctx.Done():
			q.logger.Info("Mail worker stopped", "queue", q.name)
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			q.handle(ctx, d)
		}
	}
}

func (q *Queue) handle(ctx context.Context, d amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		q.logger.Error("Dropping malformed email payload", "message_id", d.MessageId, "error", err)
		d.Reject(false)
		return
	}

	if err := q.transport.Send(ctx, msg); err != nil {
		// One redelivery; a second failure is dropped and logged.
		requeue := !d.Redelivered
		q.logger.Error("Email delivery failed", "to", msg.To, "requeue", requeue, "error", err)
		d.Nack(false, requeue)
		return
	}
	d.Ack(false)
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true

	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
