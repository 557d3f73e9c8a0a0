// Package domain defines the inventory and order entities together with the
// persistence and rule contracts shared by every storage backend.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

// EntityType identifies the record kind referenced by changes, violations and errors.
type EntityType string

const (
	// EntityItem identifies inventory item records.
	EntityItem EntityType = "inventory_item"
	// EntityOrder identifies order records.
	EntityOrder EntityType = "order"
	// EntityReportArchive identifies archived report documents in blob storage.
	EntityReportArchive EntityType = "report_archive"
)

// LowStockThreshold is the quantity below which completed orders report an advisory warning.
const LowStockThreshold = 10

// Provenance records how an inventory item entered the system.
type Provenance string

const (
	// ProvenanceManual marks items registered by hand.
	ProvenanceManual Provenance = "manual"
	// ProvenanceImage marks items registered from image recognition.
	ProvenanceImage Provenance = "image"
)

// Valid reports whether p is a known provenance tag.
func (p Provenance) Valid() bool {
	return p == ProvenanceManual || p == ProvenanceImage
}

// OrderStatus enumerates the order lifecycle states.
type OrderStatus string

const (
	// OrderProcessing is the initial state of every order.
	OrderProcessing OrderStatus = "processing"
	// OrderCompleted is terminal; completed orders are immutable.
	OrderCompleted OrderStatus = "completed"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	return s == OrderProcessing || s == OrderCompleted
}

// InventoryItem is a stock record. Key holds the normalized name and is unique
// among stored items.
type InventoryItem struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Key             string     `json:"key"`
	Quantity        int        `json:"quantity"`
	Source          Provenance `json:"source"`
	LastAnalysisKey string     `json:"last_analysis_key,omitempty"`
	Version         uint64     `json:"version"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Ingredient references an inventory item consumed by an order. Name is the
// item's display name captured when the order was created.
type Ingredient struct {
	ItemID   string `json:"item_id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Order is a sale that consumes inventory once completed.
type Order struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Ingredients []Ingredient    `json:"ingredients"`
	Status      OrderStatus     `json:"status"`
	Version     uint64          `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Completed reports whether the order reached its terminal state.
func (o Order) Completed() bool { return o.Status == OrderCompleted }

// CloneOrder returns a deep copy of o.
func CloneOrder(o Order) Order {
	cp := o
	cp.Ingredients = append([]Ingredient(nil), o.Ingredients...)
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}

// NormalizeItemName trims and case-folds an item name so that "Arroz" and
// "arroz " resolve to the same key.
func NormalizeItemName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// Action enumerates the mutations captured in a transaction change log.
type Action string

const (
	// ActionCreate indicates a record was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates a record was updated.
	ActionUpdate Action = "update"
	// ActionDelete indicates a record was deleted.
	ActionDelete Action = "delete"
)

// Change describes a mutation applied within a transaction. Before and After
// hold InventoryItem or Order values depending on Entity.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}
