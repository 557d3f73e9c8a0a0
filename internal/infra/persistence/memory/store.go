// Package memory provides an in-memory implementation of the persistence
// store used for tests, ephemeral environments and as the transactional
// engine behind the durable backends.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"stockroom/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// InventoryItem aliases domain.InventoryItem.
	InventoryItem = domain.InventoryItem
	// Order aliases domain.Order.
	Order = domain.Order
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	items  map[string]InventoryItem
	orders map[int64]Order
	// lastOrderID is the most recently assigned order id; ids are never reused.
	lastOrderID int64
	// catalog increments whenever an item is created or deleted so that name
	// lookups conflict with concurrent inserts of the same name.
	catalog uint64
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Items          map[string]InventoryItem `json:"items"`
	Orders         map[int64]Order          `json:"orders"`
	LastOrderID    int64                    `json:"last_order_id"`
	CatalogVersion uint64                   `json:"catalog_version"`
}

func newMemoryState() memoryState {
	return memoryState{
		items:  make(map[string]InventoryItem),
		orders: make(map[int64]Order),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.items {
		cloned.items[k] = v
	}
	for k, v := range s.orders {
		cloned.orders[k] = domain.CloneOrder(v)
	}
	cloned.lastOrderID = s.lastOrderID
	cloned.catalog = s.catalog
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Items:          make(map[string]InventoryItem, len(state.items)),
		Orders:         make(map[int64]Order, len(state.orders)),
		LastOrderID:    state.lastOrderID,
		CatalogVersion: state.catalog,
	}
	for k, v := range state.items {
		s.Items[k] = v
	}
	for k, v := range state.orders {
		s.Orders[k] = domain.CloneOrder(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Items {
		if v.Key == "" {
			v.Key = domain.NormalizeItemName(v.Name)
		}
		state.items[k] = v
	}
	for k, v := range s.Orders {
		state.orders[k] = domain.CloneOrder(v)
		if k > state.lastOrderID {
			state.lastOrderID = k
		}
	}
	if s.LastOrderID > state.lastOrderID {
		state.lastOrderID = s.LastOrderID
	}
	state.catalog = s.CatalogVersion
	return state
}

// CommitHook persists a candidate state before it becomes visible. A hook
// error aborts the commit and leaves the store unchanged.
type CommitHook func(ctx context.Context, snapshot Snapshot) error

// Option customises a Store.
type Option func(*Store)

// WithCommitHook installs a hook invoked under the write lock for every commit that changes state.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.hook = hook }
}

// WithNowFunc overrides the clock used to stamp records.
func WithNowFunc(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// WithIDFunc overrides inventory item id generation.
func WithIDFunc(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// Store is an in-memory transactional store. Transactions run against a
// private clone without holding locks; commit validates every version the
// transaction observed and fails with domain.ErrConflict if any changed.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	newID  func() string
	hook   CommitHook
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState returns a deep copy of the current state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the current state with the snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time

	itemReads    map[string]uint64
	orderReads   map[int64]uint64
	catalogRead  *uint64
	sequenceRead *int64

	dirtyItems    map[string]struct{}
	dirtyOrders   map[int64]struct{}
	catalogDirty  bool
	sequenceDirty bool
}

// RunInTransaction executes fn against a point-in-time clone and commits the
// result atomically. fn may be invoked concurrently with other transactions;
// callers that want automatic retry on domain.ErrConflict must rerun fn.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.RLock()
	tx := &transaction{
		store:       s,
		state:       s.state.clone(),
		now:         s.nowFn(),
		itemReads:   make(map[string]uint64),
		orderReads:  make(map[int64]uint64),
		dirtyItems:  make(map[string]struct{}),
		dirtyOrders: make(map[int64]struct{}),
	}
	s.mu.RUnlock()

	if err := fn(tx); err != nil {
		return Result{}, err
	}
	return s.commit(ctx, tx)
}

func (s *Store) commit(ctx context.Context, tx *transaction) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := s.validate(tx); err != nil {
		return Result{}, err
	}
	if !tx.dirty() {
		return Result{}, nil
	}

	candidate := s.state.clone()
	for id := range tx.dirtyItems {
		if item, ok := tx.state.items[id]; ok {
			candidate.items[id] = item
		} else {
			delete(candidate.items, id)
		}
	}
	for id := range tx.dirtyOrders {
		if order, ok := tx.state.orders[id]; ok {
			candidate.orders[id] = domain.CloneOrder(order)
		} else {
			delete(candidate.orders, id)
		}
	}
	if tx.catalogDirty {
		candidate.catalog++
	}
	if tx.sequenceDirty {
		candidate.lastOrderID = tx.state.lastOrderID
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, newTransactionView(&candidate), tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.hook != nil {
		if err := s.hook(ctx, snapshotFromMemoryState(candidate)); err != nil {
			return result, domain.UnavailableError{Operation: "commit", Err: err}
		}
	}
	s.state = candidate
	return result, nil
}

func (s *Store) validate(tx *transaction) error {
	for id, seen := range tx.itemReads {
		if s.state.items[id].Version != seen {
			return fmt.Errorf("%w: item %s changed", domain.ErrConflict, id)
		}
	}
	for id, seen := range tx.orderReads {
		if s.state.orders[id].Version != seen {
			return fmt.Errorf("%w: order %d changed", domain.ErrConflict, id)
		}
	}
	if tx.catalogRead != nil && *tx.catalogRead != s.state.catalog {
		return fmt.Errorf("%w: inventory catalog changed", domain.ErrConflict)
	}
	if tx.sequenceRead != nil && *tx.sequenceRead != s.state.lastOrderID {
		return fmt.Errorf("%w: order sequence advanced", domain.ErrConflict)
	}
	return nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) dirty() bool {
	return len(tx.dirtyItems) > 0 || len(tx.dirtyOrders) > 0 || tx.catalogDirty || tx.sequenceDirty
}

// observe* record the version seen the first time a record is touched. Own
// writes never precede the first observation, so the recorded value is the
// version at transaction start.
func (tx *transaction) observeItem(id string) uint64 {
	if v, ok := tx.itemReads[id]; ok {
		return v
	}
	v := tx.state.items[id].Version
	tx.itemReads[id] = v
	return v
}

func (tx *transaction) observeOrder(id int64) uint64 {
	if v, ok := tx.orderReads[id]; ok {
		return v
	}
	v := tx.state.orders[id].Version
	tx.orderReads[id] = v
	return v
}

func (tx *transaction) observeCatalog() {
	if tx.catalogRead == nil {
		v := tx.state.catalog
		tx.catalogRead = &v
	}
}

func (tx *transaction) observeSequence() {
	if tx.sequenceRead == nil {
		v := tx.state.lastOrderID
		tx.sequenceRead = &v
	}
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state. Reads
// through the view are not validated at commit.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindItem retrieves an item by id and records its version in the read set.
func (tx *transaction) FindItem(id string) (InventoryItem, bool) {
	tx.observeItem(id)
	item, ok := tx.state.items[id]
	return item, ok
}

// FindItemByName resolves an item by normalized name.
func (tx *transaction) FindItemByName(name string) (InventoryItem, bool) {
	key := domain.NormalizeItemName(name)
	tx.observeCatalog()
	for id, item := range tx.state.items {
		if item.Key == key {
			tx.observeItem(id)
			return item, true
		}
	}
	return InventoryItem{}, false
}

func (tx *transaction) keyTaken(key, exceptID string) (string, bool) {
	for id, item := range tx.state.items {
		if id != exceptID && item.Key == key {
			return id, true
		}
	}
	return "", false
}

// CreateItem stores a new inventory item within the transaction.
func (tx *transaction) CreateItem(item InventoryItem) (InventoryItem, error) {
	if item.ID == "" {
		item.ID = tx.store.newID()
	}
	base := tx.observeItem(item.ID)
	if _, exists := tx.state.items[item.ID]; exists {
		return InventoryItem{}, fmt.Errorf("inventory item %q already exists", item.ID)
	}
	item.Name = strings.TrimSpace(item.Name)
	item.Key = domain.NormalizeItemName(item.Name)
	if item.Key == "" {
		return InventoryItem{}, domain.InvalidArgument("name", "must not be empty")
	}
	tx.observeCatalog()
	if other, taken := tx.keyTaken(item.Key, item.ID); taken {
		return InventoryItem{}, domain.InvalidArgument("name", fmt.Sprintf("%q is already used by item %s", item.Name, other))
	}
	if item.Source == "" {
		item.Source = domain.ProvenanceManual
	}
	item.CreatedAt = tx.now
	item.UpdatedAt = tx.now
	item.Version = base + 1
	tx.state.items[item.ID] = item
	tx.dirtyItems[item.ID] = struct{}{}
	tx.catalogDirty = true
	tx.recordChange(Change{Entity: domain.EntityItem, Action: domain.ActionCreate, After: item})
	return item, nil
}

// UpdateItem mutates an inventory item using the provided mutator function.
func (tx *transaction) UpdateItem(id string, mutator func(*InventoryItem) error) (InventoryItem, error) {
	base := tx.observeItem(id)
	current, ok := tx.state.items[id]
	if !ok {
		return InventoryItem{}, domain.NotFoundError{Entity: domain.EntityItem, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return InventoryItem{}, err
	}
	current.ID = id
	current.Name = strings.TrimSpace(current.Name)
	current.Key = domain.NormalizeItemName(current.Name)
	if current.Key == "" {
		return InventoryItem{}, domain.InvalidArgument("name", "must not be empty")
	}
	if current.Key != before.Key {
		tx.observeCatalog()
		if other, taken := tx.keyTaken(current.Key, id); taken {
			return InventoryItem{}, domain.InvalidArgument("name", fmt.Sprintf("%q is already used by item %s", current.Name, other))
		}
		tx.catalogDirty = true
	}
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	current.Version = base + 1
	tx.state.items[id] = current
	tx.dirtyItems[id] = struct{}{}
	tx.recordChange(Change{Entity: domain.EntityItem, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// SetItemQuantity writes an exact quantity for an item.
func (tx *transaction) SetItemQuantity(id string, quantity int) (InventoryItem, error) {
	if quantity < 0 {
		return InventoryItem{}, domain.InvalidArgument("quantity", fmt.Sprintf("must not be negative, got %d", quantity))
	}
	return tx.UpdateItem(id, func(item *InventoryItem) error {
		item.Quantity = quantity
		return nil
	})
}

// DeleteItem removes an inventory item from the transaction state.
func (tx *transaction) DeleteItem(id string) error {
	tx.observeItem(id)
	current, ok := tx.state.items[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityItem, ID: id}
	}
	delete(tx.state.items, id)
	tx.dirtyItems[id] = struct{}{}
	tx.catalogDirty = true
	tx.recordChange(Change{Entity: domain.EntityItem, Action: domain.ActionDelete, Before: current})
	return nil
}

// FindOrder retrieves an order by id and records its version in the read set.
func (tx *transaction) FindOrder(id int64) (Order, bool) {
	tx.observeOrder(id)
	order, ok := tx.state.orders[id]
	if !ok {
		return Order{}, false
	}
	return domain.CloneOrder(order), true
}

// CreateOrder assigns the next order id and stores the order.
func (tx *transaction) CreateOrder(order Order) (Order, error) {
	tx.observeSequence()
	tx.state.lastOrderID++
	tx.sequenceDirty = true
	order.ID = tx.state.lastOrderID
	base := tx.observeOrder(order.ID)
	if order.Status == "" {
		order.Status = domain.OrderProcessing
	}
	order.CreatedAt = tx.now
	order.Version = base + 1
	order = domain.CloneOrder(order)
	tx.state.orders[order.ID] = order
	tx.dirtyOrders[order.ID] = struct{}{}
	tx.recordChange(Change{Entity: domain.EntityOrder, Action: domain.ActionCreate, After: domain.CloneOrder(order)})
	return domain.CloneOrder(order), nil
}

// UpdateOrder mutates an order using the provided mutator function.
func (tx *transaction) UpdateOrder(id int64, mutator func(*Order) error) (Order, error) {
	base := tx.observeOrder(id)
	current, ok := tx.state.orders[id]
	if !ok {
		return Order{}, domain.OrderNotFound(id)
	}
	before := domain.CloneOrder(current)
	current = domain.CloneOrder(current)
	if err := mutator(&current); err != nil {
		return Order{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.Version = base + 1
	tx.state.orders[id] = current
	tx.dirtyOrders[id] = struct{}{}
	tx.recordChange(Change{Entity: domain.EntityOrder, Action: domain.ActionUpdate, Before: before, After: domain.CloneOrder(current)})
	return domain.CloneOrder(current), nil
}

// DeleteOrder removes an order from the transaction state.
func (tx *transaction) DeleteOrder(id int64) error {
	tx.observeOrder(id)
	current, ok := tx.state.orders[id]
	if !ok {
		return domain.OrderNotFound(id)
	}
	delete(tx.state.orders, id)
	tx.dirtyOrders[id] = struct{}{}
	tx.recordChange(Change{Entity: domain.EntityOrder, Action: domain.ActionDelete, Before: domain.CloneOrder(current)})
	return nil
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) transactionView {
	return transactionView{state: state}
}

// ListItems returns all items ordered by normalized name.
func (v transactionView) ListItems() []InventoryItem {
	return sortedItems(v.state.items)
}

// ListOrders returns all orders, most recent first.
func (v transactionView) ListOrders() []Order {
	return sortedOrders(v.state.orders)
}

// FindItem retrieves an item by id from the snapshot.
func (v transactionView) FindItem(id string) (InventoryItem, bool) {
	item, ok := v.state.items[id]
	return item, ok
}

// FindOrder retrieves an order by id from the snapshot.
func (v transactionView) FindOrder(id int64) (Order, bool) {
	order, ok := v.state.orders[id]
	if !ok {
		return Order{}, false
	}
	return domain.CloneOrder(order), true
}

func sortedItems(items map[string]InventoryItem) []InventoryItem {
	out := make([]InventoryItem, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortedOrders(orders map[int64]Order) []Order {
	out := make([]Order, 0, len(orders))
	for _, order := range orders {
		out = append(out, domain.CloneOrder(order))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}
