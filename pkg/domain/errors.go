package domain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Code is a machine-readable error classification.
type Code string

const (
	CodeUnknown           Code = "UNKNOWN"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeNotFound          Code = "NOT_FOUND"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeInvalidState      Code = "INVALID_STATE"
	CodeConflict          Code = "CONFLICT"
	CodeUnavailable       Code = "UNAVAILABLE"
)

// ErrConflict is returned by stores when a transaction's read set changed
// before it could commit. Nothing from the transaction has been applied.
var ErrConflict = errors.New("transaction conflict")

// FieldViolation names one rejected input field.
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// InvalidArgumentError reports caller data that failed validation.
type InvalidArgumentError struct {
	Violations []FieldViolation
}

func (e InvalidArgumentError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Reason)
	}
	return "invalid argument: " + strings.Join(parts, "; ")
}

// InvalidArgument builds an InvalidArgumentError for a single field.
func InvalidArgument(field, reason string) InvalidArgumentError {
	return InvalidArgumentError{Violations: []FieldViolation{{Field: field, Reason: reason}}}
}

// NotFoundError is returned when a referenced record does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// OrderNotFound builds a NotFoundError for an order id.
func OrderNotFound(id int64) NotFoundError {
	return NotFoundError{Entity: EntityOrder, ID: strconv.FormatInt(id, 10)}
}

// Shortfall describes one ingredient that lacks stock.
type Shortfall struct {
	ItemID    string `json:"item_id"`
	Name      string `json:"name"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

func (s Shortfall) String() string {
	return fmt.Sprintf("%s (needs %d, available %d)", s.Name, s.Required, s.Available)
}

// InsufficientStockError lists every ingredient short for an order.
type InsufficientStockError struct {
	OrderID    int64
	Shortfalls []Shortfall
}

func (e InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for order %d: %s", e.OrderID, strings.Join(e.Lines(), ", "))
}

// Lines renders each shortfall as "name (needs N, available M)".
func (e InsufficientStockError) Lines() []string {
	out := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		out = append(out, s.String())
	}
	return out
}

// InvalidStateError is returned when an operation is not legal for the record's current state.
type InvalidStateError struct {
	Entity    EntityType
	ID        string
	State     string
	Operation string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in state %s", e.Operation, e.Entity, e.ID, e.State)
}

// ConflictError is returned once the retry budget for a contended transaction is spent.
type ConflictError struct {
	Operation string
	Attempts  int
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s: gave up after %d conflicting attempts", e.Operation, e.Attempts)
}

// Unwrap lets errors.Is(err, ErrConflict) match exhausted retries.
func (e ConflictError) Unwrap() error { return ErrConflict }

// UnavailableError reports an unreachable or slow backing store. The
// operation made no partial mutation but may be retried.
type UnavailableError struct {
	Operation string
	Err       error
}

func (e UnavailableError) Error() string {
	if e.Timeout() {
		return fmt.Sprintf("%s: timed out: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("%s: backend unavailable: %v", e.Operation, e.Err)
}

func (e UnavailableError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline expiry.
func (e UnavailableError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// CodeOf classifies err. Unclassified errors report CodeUnknown.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var (
		invalid      InvalidArgumentError
		notFound     NotFoundError
		insufficient InsufficientStockError
		state        InvalidStateError
		conflict     ConflictError
		unavailable  UnavailableError
		blocked      RuleViolationError
	)
	switch {
	case errors.As(err, &invalid):
		return CodeInvalidArgument
	case errors.As(err, &notFound):
		return CodeNotFound
	case errors.As(err, &insufficient):
		return CodeInsufficientStock
	case errors.As(err, &state), errors.As(err, &blocked):
		return CodeInvalidState
	case errors.As(err, &conflict), errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.As(err, &unavailable), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return CodeUnavailable
	default:
		return CodeUnknown
	}
}
