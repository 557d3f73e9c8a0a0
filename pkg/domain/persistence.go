package domain

import "context"

// Transaction exposes the operations a persistence implementation must
// support within an atomic scope. Every Find records the version it observed;
// the commit fails with ErrConflict if any observed record changed meanwhile.
type Transaction interface {
	Snapshot() TransactionView
	FindItem(id string) (InventoryItem, bool)
	FindItemByName(name string) (InventoryItem, bool)
	CreateItem(InventoryItem) (InventoryItem, error)
	UpdateItem(id string, mutator func(*InventoryItem) error) (InventoryItem, error)
	// SetItemQuantity writes an exact quantity computed by the caller from a
	// value previously read in the same transaction. Negative values are rejected.
	SetItemQuantity(id string, quantity int) (InventoryItem, error)
	DeleteItem(id string) error
	FindOrder(id int64) (Order, bool)
	CreateOrder(Order) (Order, error)
	UpdateOrder(id int64, mutator func(*Order) error) (Order, error)
	DeleteOrder(id int64) error
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	ListItems() []InventoryItem
	ListOrders() []Order
	FindItem(id string) (InventoryItem, bool)
	FindOrder(id int64) (Order, bool)
}

// PersistentStore is a minimal abstraction over durable backends. Reads go
// through View so that callers always see one consistent snapshot.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
}
