// Package notify delivers human-readable order notifications to external
// channels. Delivery is best effort; callers log failures and move on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stockroom/internal/config"
)

// Kind classifies a notification.
type Kind string

const (
	KindOrderCreated   Kind = "order_created"
	KindOrderCompleted Kind = "order_completed"
	KindLowStock       Kind = "low_stock"
)

// Event is one message to deliver.
type Event struct {
	Kind       Kind      `json:"kind"`
	OrderID    int64     `json:"order_id,omitempty"`
	Text       string    `json:"text"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Key returns the partitioning key used by brokers.
func (e Event) Key() string {
	if e.OrderID == 0 {
		return string(e.Kind)
	}
	return strconv.FormatInt(e.OrderID, 10)
}

// MessageID identifies one delivery. Events of different kinds for the same
// order get distinct ids.
func (e Event) MessageID() string {
	return fmt.Sprintf("%s:%s:%d", e.Kind, e.Key(), e.OccurredAt.UnixNano())
}

// Notifier delivers events to one channel.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event Event) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, event Event) error { return f(ctx, event) }

// LogNotifier writes events to a zap logger. It stands in for the SMS
// channel in development.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a notifier logging through logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notify")}
}

// Notify logs the event at info level.
func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	n.logger.Info(event.Text,
		zap.String("kind", string(event.Kind)),
		zap.Int64("order_id", event.OrderID),
		zap.Time("occurred_at", event.OccurredAt),
	)
	return nil
}

// Fanout delivers each event to every channel concurrently and reports all
// channel failures joined together.
type Fanout struct {
	channels []Notifier
}

// NewFanout combines channels; nil entries are skipped.
func NewFanout(channels ...Notifier) *Fanout {
	f := &Fanout{}
	for _, ch := range channels {
		if ch != nil {
			f.channels = append(f.channels, ch)
		}
	}
	return f
}

// Len reports the number of channels.
func (f *Fanout) Len() int { return len(f.channels) }

// Notify delivers event to every channel. The group only waits for the
// deliveries; each failure is labelled with its channel and all are joined.
func (f *Fanout) Notify(ctx context.Context, event Event) error {
	var g errgroup.Group
	errs := make([]error, len(f.channels))
	for i, ch := range f.channels {
		g.Go(func() error {
			if err := ch.Notify(ctx, event); err != nil {
				errs[i] = fmt.Errorf("%T: %w", ch, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Open builds the channels named in cfg.Drivers. The returned close function
// releases broker connections.
func Open(ctx context.Context, cfg config.Notify, logger *zap.Logger) (*Fanout, func() error, error) {
	var (
		channels []Notifier
		closers  []func() error
	)
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	for _, driver := range cfg.Drivers {
		switch driver {
		case "none":
		case "log":
			channels = append(channels, NewLogNotifier(logger))
		case "kafka":
			kn := NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
			channels = append(channels, kn)
			closers = append(closers, kn.Close)
		case "amqp":
			an, err := DialAMQP(ctx, cfg.AMQPURL, cfg.AMQPExchange)
			if err != nil {
				_ = closeAll()
				return nil, nil, err
			}
			channels = append(channels, an)
			closers = append(closers, an.Close)
		default:
			_ = closeAll()
			return nil, nil, fmt.Errorf("unknown notification driver %q", driver)
		}
	}
	return NewFanout(channels...), closeAll, nil
}
