package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultName is used when no queue name or key is configured.
const DefaultName = "dbot.clockins"

// AMQPQueue publishes to and consumes from a durable RabbitMQ queue.
type AMQPQueue struct {
	conn *amqp.Connection
	name string

	mu  sync.Mutex
	pub *amqp.Channel
}

// DialAMQP connects to the broker and declares the queue.
func DialAMQP(url, name string) (*AMQPQueue, error) {
	if name == "" {
		name = DefaultName
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	return &AMQPQueue{conn: conn, name: name, pub: ch}, nil
}

// Publish sends a persistent message to the queue via the default exchange.
func (q *AMQPQueue) Publish(ctx context.Context, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pub.PublishWithContext(ctx, "", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         msg.Type,
		Body:         msg.Body,
	})
}

// Consume opens a dedicated channel and streams deliveries. Messages must be
// settled with Message.Ack.
func (q *AMQPQueue) Consume(ctx context.Context) (<-chan Message, error) {
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if err := ch.Qos(50, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(q.name, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("queue consume: %w", err)
	}

	out := make(chan Message)
	go func() {
		defer close(out)
		defer func() { _ = ch.Close() }()
		for {
			select {
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				select {
				case out <- fromDelivery(d):
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close shuts the connection and all channels.
func (q *AMQPQueue) Close() error {
	if q == nil || q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

func fromDelivery(d amqp.Delivery) Message {
	return Message{
		Type: d.Type,
		Body: d.Body,
		ack: func(ok bool) error {
			if ok {
				return d.Ack(false)
			}
			// rejected messages are dropped to avoid redelivery loops
			return d.Nack(false, false)
		},
	}
}
