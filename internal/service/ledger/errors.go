package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrValidation        = errors.New("invalid goods issue")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("concurrent update conflict")
	ErrStorage           = errors.New("storage failure")
)

// ValidationError reports a malformed or empty request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports recipe or product ids that do not resolve.
type NotFoundError struct {
	Kind string
	IDs  []string
}

func (e *NotFoundError) Error() string {
	if len(e.IDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Kind, e.IDs[0])
	}
	return fmt.Sprintf("%ss not found: %s", e.Kind, strings.Join(e.IDs, ", "))
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Shortfall describes one line that stock cannot fund.
type Shortfall struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName,omitempty"`
	Unit        string          `json:"unit,omitempty"`
	Requested   decimal.Decimal `json:"requested"`
	Available   decimal.Decimal `json:"available"`
}

// Missing is the amount stock falls short by.
func (s Shortfall) Missing() decimal.Decimal {
	return s.Requested.Sub(s.Available)
}

// InsufficientStockError lists every line of a request that cannot be funded.
type InsufficientStockError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("%s (requested %s, available %s)", s.ProductID, s.Requested, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// ConcurrencyConflictError reports that the atomic apply lost a race against
// another writer. Re-submitting re-validates against fresh state.
type ConcurrencyConflictError struct {
	Err error
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("goods issue conflicted with a concurrent update: %v", e.Err)
}

func (e *ConcurrencyConflictError) Unwrap() error { return e.Err }

func (e *ConcurrencyConflictError) Is(target error) bool { return target == ErrConflict }

// StorageError wraps a data-store failure. Nothing was applied.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// IsRetryable reports whether re-submitting the same request may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrStorage)
}
