package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"stockroom/pkg/domain"

	"github.com/shopspring/decimal"
)

func seedItem(t *testing.T, store *Store, name string, qty int) domain.InventoryItem {
	t.Helper()
	var created domain.InventoryItem
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateItem(domain.InventoryItem{Name: name, Quantity: qty})
		return err
	})
	if err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
	return created
}

func TestStoreRunInTransactionAndSnapshots(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, ok := tx.FindItem("missing"); ok {
			t.Fatalf("expected missing item lookup")
		}
		created, err := tx.CreateItem(domain.InventoryItem{Name: " Rice ", Quantity: 5})
		if err != nil {
			return err
		}
		if created.ID == "" {
			t.Fatalf("expected generated ID")
		}
		if created.Name != "Rice" || created.Key != "rice" {
			t.Fatalf("expected trimmed name and folded key, got %q/%q", created.Name, created.Key)
		}
		if created.Source != domain.ProvenanceManual {
			t.Fatalf("expected manual provenance default, got %s", created.Source)
		}
		if created.Version != 1 {
			t.Fatalf("expected version 1, got %d", created.Version)
		}
		if len(tx.Snapshot().ListItems()) != 1 {
			t.Fatalf("snapshot mismatch")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run transaction: %v", err)
	}
	if len(snapshotView(t, store).ListItems()) != 1 {
		t.Fatalf("expected persisted item")
	}
	snapshot := store.ExportState()
	store.ImportState(Snapshot{})
	if len(snapshotView(t, store).ListItems()) != 0 {
		t.Fatalf("expected cleared state")
	}
	store.ImportState(snapshot)
	if len(snapshotView(t, store).ListItems()) != 1 {
		t.Fatalf("expected restored state")
	}
}

func TestStoreRuleViolation(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockingRule{})
	store := NewStore(engine)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreateItem(domain.InventoryItem{Name: "Fail"})
		return e
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation error, got %v", err)
	}
	if len(snapshotView(t, store).ListItems()) != 0 {
		t.Fatalf("blocked transaction must not persist")
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block" }

func (blockingRule) Evaluate(context.Context, domain.RuleView, []domain.Change) (domain.Result, error) {
	return domain.Result{Violations: []domain.Violation{{Rule: "block", Severity: domain.SeverityBlock}}}, nil
}

func TestItemNamesAreUniqueIgnoringCase(t *testing.T) {
	store := NewStore(nil)
	seedItem(t, store, "Arroz", 1)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		found, ok := tx.FindItemByName("  ARROZ")
		if !ok || found.Name != "Arroz" {
			t.Fatalf("expected case-insensitive lookup, got %+v %v", found, ok)
		}
		_, err := tx.CreateItem(domain.InventoryItem{Name: "arroz"})
		return err
	})
	if err == nil {
		t.Fatalf("expected duplicate name error")
	}
	if len(snapshotView(t, store).ListItems()) != 1 {
		t.Fatalf("expected single item")
	}
}

func TestUpdateAndDeleteErrors(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var notFound domain.NotFoundError
		if _, err := tx.UpdateItem("missing", func(*domain.InventoryItem) error { return nil }); !errors.As(err, &notFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		if err := tx.DeleteItem("missing"); !errors.As(err, &notFound) {
			t.Fatalf("expected not found on delete, got %v", err)
		}
		if _, err := tx.UpdateOrder(42, func(*domain.Order) error { return nil }); !errors.As(err, &notFound) {
			t.Fatalf("expected order not found, got %v", err)
		}
		if err := tx.DeleteOrder(42); !errors.As(err, &notFound) {
			t.Fatalf("expected order not found on delete, got %v", err)
		}
		if _, err := tx.SetItemQuantity("missing", -1); domain.CodeOf(err) != domain.CodeInvalidArgument {
			t.Fatalf("expected invalid argument for negative quantity, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestOrderIDsAreSequentialAndNeverReused(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	create := func() domain.Order {
		var order domain.Order
		_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			order, err = tx.CreateOrder(domain.Order{Title: "Plate", Price: decimal.NewFromInt(10)})
			return err
		})
		if err != nil {
			t.Fatalf("create order: %v", err)
		}
		return order
	}
	first := create()
	second := create()
	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", first.ID, second.ID)
	}
	if first.Status != domain.OrderProcessing {
		t.Fatalf("expected processing default, got %s", first.Status)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error { return tx.DeleteOrder(second.ID) }); err != nil {
		t.Fatalf("delete order: %v", err)
	}
	if third := create(); third.ID != 3 {
		t.Fatalf("expected id 3 after delete, got %d", third.ID)
	}
	orders := snapshotView(t, store).ListOrders()
	if len(orders) != 2 || orders[0].ID != 3 || orders[1].ID != 1 {
		t.Fatalf("expected orders newest first, got %+v", orders)
	}
}

func TestConcurrentWriteToObservedItemConflicts(t *testing.T) {
	store := NewStore(nil)
	item := seedItem(t, store, "Rice", 10)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		current, ok := tx.FindItem(item.ID)
		if !ok {
			t.Fatalf("expected item")
		}
		// a competing writer commits between our read and our commit
		if _, err := store.RunInTransaction(ctx, func(inner domain.Transaction) error {
			_, err := inner.SetItemQuantity(item.ID, 2)
			return err
		}); err != nil {
			t.Fatalf("inner transaction: %v", err)
		}
		_, err := tx.SetItemQuantity(item.ID, current.Quantity-3)
		return err
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	got, _ := snapshotView(t, store).FindItem(item.ID)
	if got.Quantity != 2 {
		t.Fatalf("expected competing write to survive, got %d", got.Quantity)
	}
	if got.Version != 2 {
		t.Fatalf("expected version 2, got %d", got.Version)
	}
}

func TestUnrelatedWritesDoNotConflict(t *testing.T) {
	store := NewStore(nil)
	rice := seedItem(t, store, "Rice", 10)
	beans := seedItem(t, store, "Beans", 10)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.SetItemQuantity(rice.ID, 9); err != nil {
			return err
		}
		_, err := store.RunInTransaction(ctx, func(inner domain.Transaction) error {
			_, err := inner.SetItemQuantity(beans.ID, 1)
			return err
		})
		return err
	})
	if err != nil {
		t.Fatalf("expected disjoint transactions to commit, got %v", err)
	}
	r, _ := snapshotView(t, store).FindItem(rice.ID)
	b, _ := snapshotView(t, store).FindItem(beans.ID)
	if r.Quantity != 9 || b.Quantity != 1 {
		t.Fatalf("unexpected quantities rice=%d beans=%d", r.Quantity, b.Quantity)
	}
}

func TestConcurrentCreateOfSameNameConflicts(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, ok := tx.FindItemByName("Salt"); ok {
			t.Fatalf("expected no salt yet")
		}
		seedItem(t, store, "salt", 1)
		_, err := tx.CreateItem(domain.InventoryItem{Name: "Salt", Quantity: 4})
		return err
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(snapshotView(t, store).ListItems()) != 1 {
		t.Fatalf("expected exactly one salt item")
	}
}

func TestCommitHookFailureLeavesStateUnchanged(t *testing.T) {
	fail := false
	var persisted Snapshot
	store := NewStore(nil, WithCommitHook(func(_ context.Context, s Snapshot) error {
		if fail {
			return errors.New("disk full")
		}
		persisted = s
		return nil
	}))
	item := seedItem(t, store, "Rice", 10)
	if len(persisted.Items) != 1 {
		t.Fatalf("expected hook to receive committed state")
	}
	fail = true
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.SetItemQuantity(item.ID, 0)
		return err
	})
	if err == nil {
		t.Fatalf("expected hook error")
	}
	got, _ := snapshotView(t, store).FindItem(item.ID)
	if got.Quantity != 10 {
		t.Fatalf("expected unchanged quantity, got %d", got.Quantity)
	}
}

func TestReadOnlyTransactionSkipsHook(t *testing.T) {
	calls := 0
	store := NewStore(nil, WithCommitHook(func(context.Context, Snapshot) error {
		calls++
		return nil
	}))
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		tx.FindItem("anything")
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no hook call, got %d", calls)
	}
}

func TestCancelledContextAbortsCommit(t *testing.T) {
	store := NewStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateItem(domain.InventoryItem{Name: "Rice"})
		cancel()
		return err
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(snapshotView(t, store).ListItems()) != 0 {
		t.Fatalf("cancelled transaction must not persist")
	}
}

func TestViewAndOptions(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	store := NewStore(nil, WithNowFunc(func() time.Time { return fixed }), WithIDFunc(func() string { return "item-1" }))
	seedItem(t, store, "Rice", 3)
	err := store.View(context.Background(), func(view domain.TransactionView) error {
		item, ok := view.FindItem("item-1")
		if !ok {
			t.Fatalf("expected custom id")
		}
		if !item.CreatedAt.Equal(fixed) {
			t.Fatalf("expected fixed clock, got %v", item.CreatedAt)
		}
		if _, ok := view.FindOrder(1); ok {
			t.Fatalf("expected no orders")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func snapshotView(t testing.TB, store domain.PersistentStore) domain.TransactionView {
	t.Helper()
	var out domain.TransactionView
	if err := store.View(context.Background(), func(v domain.TransactionView) error {
		out = v
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	return out
}
