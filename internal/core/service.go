// Package core implements the inventory store operations and the order
// engine on top of a transactional persistence backend.
package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	blobcore "stockroom/internal/infra/blob/core"
	"stockroom/internal/infra/persistence/memory"
	"stockroom/internal/notify"
	"stockroom/pkg/domain"
)

const (
	defaultOperationTimeout = 5 * time.Second
	defaultNotifyTimeout    = 3 * time.Second
	defaultNotifyQueueSize  = 64
)

// Service exposes the inventory and order operations. It is safe for
// concurrent use; isolation comes from the store's transactions.
type Service struct {
	store             domain.PersistentStore
	logger            *zap.Logger
	metrics           MetricsRecorder
	tracer            Tracer
	notifier          notify.Notifier
	notifyTimeout     time.Duration
	notifyQueueSize   int
	notifyQueue       chan queuedEvent
	notifyMu          sync.RWMutex
	notifyClosed      bool
	notifyWG          sync.WaitGroup
	blobs             blobcore.Store
	retry             RetryPolicy
	opTimeout         time.Duration
	lowStockThreshold int
	now               func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the per-operation metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the per-operation tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithNotifier sets the notification channel and the bound on each delivery.
func WithNotifier(notifier notify.Notifier, timeout time.Duration) Option {
	return func(s *Service) {
		s.notifier = notifier
		if timeout > 0 {
			s.notifyTimeout = timeout
		}
	}
}

// WithNotifyQueueSize bounds how many notifications may wait for delivery.
// Events beyond the bound are dropped and logged.
func WithNotifyQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.notifyQueueSize = n
		}
	}
}

// WithBlobStore sets where recognition artifacts and report archives go.
func WithBlobStore(store blobcore.Store) Option {
	return func(s *Service) { s.blobs = store }
}

// WithRetryPolicy sets the conflict retry budget.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(s *Service) { s.retry = policy.normalized() }
}

// WithOperationTimeout bounds every operation.
func WithOperationTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

// WithLowStockThreshold overrides the advisory threshold.
func WithLowStockThreshold(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.lowStockThreshold = n
		}
	}
}

// WithClock overrides the clock used for completion timestamps and notifications.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:             store,
		logger:            zap.NewNop(),
		metrics:           noopMetricsRecorder{},
		tracer:            noopTracer{},
		notifyTimeout:     defaultNotifyTimeout,
		notifyQueueSize:   defaultNotifyQueueSize,
		retry:             DefaultRetryPolicy(),
		opTimeout:         defaultOperationTimeout,
		lowStockThreshold: domain.LowStockThreshold,
		now:               func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("core")
	if s.notifier != nil {
		s.startNotifications()
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store with the default rules.
func NewInMemoryService(opts ...Option) *Service {
	return NewService(memory.NewStore(NewDefaultRulesEngine()), opts...)
}

// observe bounds fn by the operation timeout, records a span and a metric,
// and maps context failures onto UnavailableError.
func (s *Service) observe(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	err := classify(op, fn(ctx))
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, time.Since(started))
	if err != nil {
		s.logger.Log(levelFor(err), "operation failed",
			zap.String("operation", op),
			zap.String("code", string(domain.CodeOf(err))),
			zap.Error(err),
		)
	}
	return err
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var unavailable domain.UnavailableError
	if errors.As(err, &unavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.UnavailableError{Operation: op, Err: err}
	}
	return err
}

// Caller mistakes are routine; only backend trouble is logged as an error.
func levelFor(err error) zapcore.Level {
	switch domain.CodeOf(err) {
	case domain.CodeUnavailable, domain.CodeUnknown:
		return zapcore.ErrorLevel
	case domain.CodeConflict:
		return zapcore.WarnLevel
	default:
		return zapcore.DebugLevel
	}
}
