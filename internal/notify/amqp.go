package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// AMQPNotifier queues verification jobs for a separate mail worker.
type AMQPNotifier struct {
	conn         *amqp091.Connection
	channel      publisher
	closeChannel func() error
	exchangeName string
	queueName    string
	frontendURL  string
}

func NewAMQPNotifier(url, exchangeName, queueName, frontendURL string) (*AMQPNotifier, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	n := &AMQPNotifier{
		conn:         conn,
		channel:      channel,
		closeChannel: channel.Close,
		exchangeName: exchangeName,
		queueName:    queueName,
		frontendURL:  frontendURL,
	}

	if err := setup(channel, exchangeName, queueName); err != nil {
		n.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return n, nil
}

func setup(ch *amqp091.Channel, exchangeName, queueName string) error {
	// durable direct exchange, routing key is the queue name
	if err := ch.ExchangeDeclare(exchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queueName, queueName, exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

func (n *AMQPNotifier) SendVerificationEmail(ctx context.Context, email, token string) bool {
	if err := n.publish(ctx, email, token); err != nil {
		slog.ErrorContext(ctx, "Failed to queue verification email", "email", email, "error", err)
		return false
	}
	return true
}

func (n *AMQPNotifier) publish(ctx context.Context, email, token string) error {
	msg := NewVerificationMessage(email, VerificationLink(n.frontendURL, token))
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = n.channel.PublishWithContext(ctx, n.exchangeName, n.queueName, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    msg.RequestedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	slog.InfoContext(ctx, "Queued verification email",
		"email", email,
		"exchange", n.exchangeName,
		"queue", n.queueName)
	return nil
}

func (n *AMQPNotifier) Close() error {
	if n.closeChannel != nil {
		n.closeChannel()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
