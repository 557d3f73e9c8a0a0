package core

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"stockroom/pkg/domain"
)

func TestEndToEndOrderLifecycle(t *testing.T) {
	svc := NewInMemoryService()
	ctx := context.Background()

	shrimp := mustUpsert(t, svc, "Shrimp", 10)
	items, err := svc.ListItems(ctx)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 1 || items[0].Quantity != 10 {
		t.Fatalf("expected one item with 10 units, got %+v", items)
	}

	ceviche := mustCreateOrder(t, svc, "Ceviche", "12.50", need(shrimp, 4))
	if ceviche.Status != domain.OrderProcessing {
		t.Fatalf("expected processing, got %s", ceviche.Status)
	}
	if got := quantityOf(t, svc, shrimp.ID); got != 10 {
		t.Fatalf("creating an order must not touch stock, got %d", got)
	}

	done, err := svc.CompleteOrder(ctx, ceviche.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !done.Success || done.AlreadyCompleted {
		t.Fatalf("unexpected completion %+v", done)
	}
	if got := quantityOf(t, svc, shrimp.ID); got != 6 {
		t.Fatalf("expected 6 shrimp left, got %d", got)
	}
	if statusOf(t, svc, ceviche.ID) != domain.OrderCompleted {
		t.Fatalf("expected completed status")
	}
	report, err := svc.Report(ctx)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !report.TotalSales.Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("expected total sales 12.50, got %s", report.TotalSales)
	}
}

func TestInsufficientStockReportsShortfallAndLeavesStateAlone(t *testing.T) {
	svc := NewInMemoryService()
	ctx := context.Background()
	rice := mustUpsert(t, svc, "Rice", 3)
	bowl := mustCreateOrder(t, svc, "Bowl", "5.00", need(rice, 5))

	_, err := svc.CompleteOrder(ctx, bowl.ID)
	var insufficient domain.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if want := []string{"Rice (needs 5, available 3)"}; !reflect.DeepEqual(insufficient.Lines(), want) {
		t.Fatalf("expected %v, got %v", want, insufficient.Lines())
	}
	if domain.CodeOf(err) != domain.CodeInsufficientStock {
		t.Fatalf("unexpected code %s", domain.CodeOf(err))
	}
	if got := quantityOf(t, svc, rice.ID); got != 3 {
		t.Fatalf("expected rice untouched, got %d", got)
	}
	if statusOf(t, svc, bowl.ID) != domain.OrderProcessing {
		t.Fatalf("expected order still processing")
	}

	if err := svc.CancelOrder(ctx, bowl.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	orders, err := svc.ListOrders(ctx, "")
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("expected cancelled order gone, got %+v", orders)
	}
	if got := quantityOf(t, svc, rice.ID); got != 3 {
		t.Fatalf("cancel must not touch stock, got %d", got)
	}
}

func TestCompletionReportsLowStock(t *testing.T) {
	svc := NewInMemoryService()
	flour := mustUpsert(t, svc, "Flour", 12)
	salt := mustUpsert(t, svc, "Salt", 50)
	order := mustCreateOrder(t, svc, "Bread", "3.00", need(flour, 5), need(salt, 1))

	done, err := svc.CompleteOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(done.LowStock) != 1 {
		t.Fatalf("expected one warning, got %+v", done.LowStock)
	}
	w := done.LowStock[0]
	if w.ItemID != flour.ID || w.Name != "Flour" || w.Quantity != 7 {
		t.Fatalf("unexpected warning %+v", w)
	}
}

func TestLowStockThresholdIsStrict(t *testing.T) {
	svc := NewInMemoryService()
	oil := mustUpsert(t, svc, "Oil", 15)
	order := mustCreateOrder(t, svc, "Fry", "2.00", need(oil, 5))
	done, err := svc.CompleteOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(done.LowStock) != 0 {
		t.Fatalf("10 remaining is not below the threshold, got %+v", done.LowStock)
	}
}

func TestLowStockThresholdOption(t *testing.T) {
	svc := NewInMemoryService(WithLowStockThreshold(50))
	oil := mustUpsert(t, svc, "Oil", 40)
	order := mustCreateOrder(t, svc, "Fry", "2.00", need(oil, 1))
	done, err := svc.CompleteOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(done.LowStock) != 1 {
		t.Fatalf("expected custom threshold to apply, got %+v", done.LowStock)
	}
}

func TestServiceOptionsIgnoreZeroValues(t *testing.T) {
	svc := NewInMemoryService(
		WithLogger(nil),
		WithMetricsRecorder(nil),
		WithTracer(nil),
		WithOperationTimeout(0),
		WithLowStockThreshold(-1),
		WithClock(nil),
		WithRetryPolicy(RetryPolicy{}),
	)
	if svc.opTimeout != defaultOperationTimeout {
		t.Fatalf("expected default timeout, got %s", svc.opTimeout)
	}
	if svc.lowStockThreshold != domain.LowStockThreshold {
		t.Fatalf("expected default threshold, got %d", svc.lowStockThreshold)
	}
	if svc.retry != DefaultRetryPolicy() {
		t.Fatalf("expected default retry policy, got %+v", svc.retry)
	}
	if svc.logger == nil || svc.metrics == nil || svc.tracer == nil || svc.now == nil {
		t.Fatalf("expected defaults for nil options")
	}
	if svc.store == nil {
		t.Fatalf("expected store")
	}
}
