package notify

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpChannel is the part of *amqp.Channel the publisher uses.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQPublisher publishes persistent JSON messages to durable queues
// through the default exchange.
type RabbitMQPublisher struct {
	conn    *amqp.Connection
	channel amqpChannel
	now     func() time.Time
}

// DialRabbitMQ connects to the broker at url and opens a channel.
func DialRabbitMQ(url string) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	return &RabbitMQPublisher{conn: conn, channel: channel, now: time.Now}, nil
}

// Publish declares target and publishes body to it.
func (p *RabbitMQPublisher) Publish(ctx context.Context, target string, body []byte) error {
	// Declaring is idempotent for identical arguments
	if _, err := p.channel.QueueDeclare(target, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	err := p.channel.PublishWithContext(ctx, "", target, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    p.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Close closes the channel and the connection.
func (p *RabbitMQPublisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
