package core

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"stockroom/pkg/domain"
)

// RetryPolicy bounds how often a conflicting transaction is rerun.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy allows five attempts with short jittered backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, InitialInterval: 5 * time.Millisecond, MaxInterval: 100 * time.Millisecond}
}

func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = def.InitialInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	return p
}

// runWithRetry reruns fn in a fresh transaction while commits fail with
// domain.ErrConflict. fn must not retain state across attempts. Any other
// error ends the loop immediately.
func (s *Service) runWithRetry(ctx context.Context, op string, fn func(tx domain.Transaction) error) (domain.Result, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retry.InitialInterval
	b.MaxInterval = s.retry.MaxInterval
	for attempt := 1; ; attempt++ {
		res, err := s.store.RunInTransaction(ctx, fn)
		if err == nil || !errors.Is(err, domain.ErrConflict) {
			return res, err
		}
		if attempt >= s.retry.MaxAttempts {
			return res, domain.ConflictError{Operation: op, Attempts: attempt}
		}
		wait := b.NextBackOff()
		if wait < 0 {
			wait = s.retry.MaxInterval
		}
		s.logger.Debug("transaction conflict, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return res, ctx.Err()
		case <-timer.C:
		}
	}
}
