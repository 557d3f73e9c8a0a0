package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"stockroom/internal/notify"
	"stockroom/pkg/domain"
)

func orderCreatedText(order domain.Order) string {
	return fmt.Sprintf("New order: %s for $%s", order.Title, order.Price.StringFixed(2))
}

func orderCompletedText(order domain.Order) string {
	return fmt.Sprintf("Order completed: %s", order.Title)
}

func lowStockText(warnings []LowStockWarning) string {
	parts := make([]string, 0, len(warnings))
	for _, w := range warnings {
		parts = append(parts, fmt.Sprintf("%s (%d left)", w.Name, w.Quantity))
	}
	return "Low stock: " + strings.Join(parts, ", ")
}

type queuedEvent struct {
	ctx   context.Context
	event notify.Event
}

// startNotifications runs the single delivery goroutine. Events are
// delivered in the order they were queued.
func (s *Service) startNotifications() {
	s.notifyQueue = make(chan queuedEvent, s.notifyQueueSize)
	s.notifyWG.Add(1)
	go func() {
		defer s.notifyWG.Done()
		for q := range s.notifyQueue {
			s.deliver(q.ctx, q.event)
		}
	}()
}

// notify queues event after the data change committed and returns at once.
// A full queue or a closed service drops the event with a warning.
func (s *Service) notify(ctx context.Context, event notify.Event) {
	if s.notifier == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	s.notifyMu.RLock()
	defer s.notifyMu.RUnlock()
	if s.notifyClosed {
		s.dropped(event, "service closed")
		return
	}
	select {
	case s.notifyQueue <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}:
	default:
		s.dropped(event, "queue full")
	}
}

func (s *Service) dropped(event notify.Event, reason string) {
	s.logger.Warn("notification dropped",
		zap.String("kind", string(event.Kind)),
		zap.Int64("order_id", event.OrderID),
		zap.String("reason", reason),
	)
}

// deliver sends one event, bounded by the notification timeout. Failures
// are only logged.
func (s *Service) deliver(ctx context.Context, event notify.Event) {
	ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.Warn("notification failed",
			zap.String("kind", string(event.Kind)),
			zap.Int64("order_id", event.OrderID),
			zap.Error(err),
		)
	}
}

// Close stops accepting notifications and waits until the queued ones are
// delivered or ctx ends. It is safe to call more than once.
func (s *Service) Close(ctx context.Context) error {
	s.notifyMu.Lock()
	if !s.notifyClosed {
		s.notifyClosed = true
		if s.notifyQueue != nil {
			close(s.notifyQueue)
		}
	}
	s.notifyMu.Unlock()
	done := make(chan struct{})
	go func() {
		s.notifyWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
