// Command stockroomd serves the inventory and order API over HTTP.
package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"stockroom/internal/adapters/httpapi"
	"stockroom/internal/config"
	"stockroom/internal/core"
	"stockroom/internal/infra/blob"
	"stockroom/internal/logging"
	"stockroom/internal/notify"
	"stockroom/internal/telemetry"
)

const shutdownGrace = 10 * time.Second

var (
	exitFunc              = os.Exit
	traceOutput io.Writer = os.Stderr
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "stockroomd: %v\n", err)
		exitFunc(2)
		return
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.Telemetry.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stockroomd: %v\n", err)
		exitFunc(2)
		return
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("stockroomd stopped", zap.Error(err))
		exitFunc(1)
	}
}

// app holds the wired HTTP handler and the resources to release on exit.
type app struct {
	handler http.Handler
	service *core.Service
	closers []func() error
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if ctx.Err() != nil {
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}

func build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	var tracer core.Tracer
	switch cfg.Telemetry.Tracing {
	case "json":
		tracer = core.NewJSONTracer(traceOutput)
	case "none":
	case "", "otel":
		tp, shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return shutdownTracing(sctx)
		})
		tracer = core.NewOTelTracer(tp)
	default:
		return nil, fmt.Errorf("unknown tracing backend %q", cfg.Telemetry.Tracing)
	}

	mux := http.NewServeMux()
	var metrics core.MetricsRecorder
	switch cfg.Telemetry.Metrics {
	case "prometheus":
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return nil, err
		}
		metrics = rec
		mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	case "expvar":
		metrics = core.NewExpvarMetricsRecorder("")
		mux.Handle("GET /debug/vars", expvar.Handler())
	case "", "none":
	default:
		return nil, fmt.Errorf("unknown metrics backend %q", cfg.Telemetry.Metrics)
	}

	store, closeStore, err := core.OpenPersistentStore(ctx, cfg.Storage, core.NewDefaultRulesEngine())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.closers = append(a.closers, closeStore)

	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	notifier, closeNotify, err := notify.Open(ctx, cfg.Notify, logger)
	if err != nil {
		return nil, fmt.Errorf("open notifications: %w", err)
	}
	a.closers = append(a.closers, closeNotify)

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithTracer(tracer),
		core.WithBlobStore(blobs),
		core.WithRetryPolicy(core.RetryPolicy{MaxAttempts: cfg.Service.TxMaxAttempts}),
		core.WithOperationTimeout(cfg.Service.OperationTimeout),
		core.WithLowStockThreshold(cfg.Service.LowStockThreshold),
	}
	if notifier.Len() > 0 {
		opts = append(opts,
			core.WithNotifier(notifier, cfg.Notify.Timeout),
			core.WithNotifyQueueSize(cfg.Notify.QueueSize),
		)
	}
	if metrics != nil {
		opts = append(opts, core.WithMetricsRecorder(metrics))
	}
	a.service = core.NewService(store, opts...)
	a.closers = append(a.closers, func() error {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return a.service.Close(sctx)
	})

	mux.Handle("/api/v1/", httpapi.NewHandler(a.service, logger))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	a.handler = mux

	logger.Info("stockroom configured",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("blob", string(blobs.Driver())),
		zap.Strings("notify", cfg.Notify.Drivers),
		zap.String("metrics", cfg.Telemetry.Metrics),
		zap.String("tracing", cfg.Telemetry.Tracing),
		zap.Bool("otlp", cfg.Telemetry.OTLPEndpoint != ""),
	)
	return a, nil
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		serveErr = errors.Join(serveErr, err)
	}
	return errors.Join(serveErr, a.close(sctx))
}
