package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/sdk/trace"

	"stockroom/internal/config"
)

func TestSetupTracingWithoutEndpointIsNoop(t *testing.T) {
	tp, shutdown, err := SetupTracing(context.Background(), config.Telemetry{ServiceName: "stockroom"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, ok := tp.(*trace.TracerProvider); ok {
		t.Fatalf("expected no-op provider without endpoint")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupTracingWithEndpoint(t *testing.T) {
	tp, shutdown, err := SetupTracing(context.Background(), config.Telemetry{ServiceName: "stockroom", OTLPEndpoint: "localhost:4318", OTLPInsecure: true})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, ok := tp.(*trace.TracerProvider); !ok {
		t.Fatalf("expected sdk provider, got %T", tp)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// nothing was exported so shutdown with a cancelled context returns promptly
	_ = shutdown(ctx)
}
