package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// AMQPNotifier publishes events to a RabbitMQ fanout exchange.
type AMQPNotifier struct {
	exchange string
	ch       publisher
	closers  []func() error
}

// DialAMQP connects to url and declares a durable fanout exchange.
func DialAMQP(_ context.Context, url, exchange string) (*AMQPNotifier, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp091.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPNotifier{exchange: exchange, ch: ch, closers: []func() error{ch.Close, conn.Close}}, nil
}

// Notify publishes the event as a persistent JSON message.
func (n *AMQPNotifier) Notify(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Kind, err)
	}
	err = n.ch.PublishWithContext(ctx, n.exchange, string(event.Kind), false, false, amqp091.Publishing{
		DeliveryMode: amqp091.Persistent,
		ContentType:  "application/json",
		MessageId:    event.MessageID(),
		Type:         string(event.Kind),
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", event.Kind, err)
	}
	return nil
}

// Close closes the channel and connection.
func (n *AMQPNotifier) Close() error {
	var errs []error
	for _, c := range n.closers {
		if err := c(); err != nil && !errors.Is(err, amqp091.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
