// Package repository declares the storage ports used by the stock ledger and
// the sentinel errors every store implementation reports through them.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/pantry/internal/domain/models"
)

var (
	// ErrNotFound is returned when a product, recipe or issue id does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock is returned by a conditional decrement that would
	// drive a balance negative. Nothing is changed.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConflict marks a transaction aborted by a concurrent writer. The
	// caller may retry from fresh state.
	ErrConflict = errors.New("write conflict")
)

// ProductStore reads the product catalog.
type ProductStore interface {
	GetProduct(ctx context.Context, id string) (models.Product, error)
	// GetProducts returns the products found among ids keyed by id. Missing
	// ids are simply absent from the map.
	GetProducts(ctx context.Context, ids []string) (map[string]models.Product, error)
	// ListProducts returns every product ordered by name.
	ListProducts(ctx context.Context) ([]models.Product, error)
	UpsertProduct(ctx context.Context, product models.Product) error
}

// RecipeStore reads the recipe catalog.
type RecipeStore interface {
	GetRecipe(ctx context.Context, id string) (models.Recipe, error)
	ListRecipes(ctx context.Context) ([]models.Recipe, error)
	UpsertRecipe(ctx context.Context, recipe models.Recipe) error
}

// IssueFilter narrows an issue record listing. Zero values mean unbounded.
type IssueFilter struct {
	Since time.Time
	Until time.Time
	Limit int
}

// IssueStore reads the append-only issue record trail.
type IssueStore interface {
	GetIssue(ctx context.Context, id string) (models.IssueRecord, error)
	// ListIssues returns records newest first.
	ListIssues(ctx context.Context, filter IssueFilter) ([]models.IssueRecord, error)
}

// ReportStore persists generated usage reports.
type ReportStore interface {
	SaveUsageReport(ctx context.Context, report models.UsageReport) error
}

// Tx is the set of mutations allowed inside an atomic unit of work.
type Tx interface {
	// DecrementIfSufficient subtracts amount from the product balance only
	// when the balance covers it. It returns the product as it was before the
	// call; on ErrInsufficientStock the returned product carries the current
	// balance.
	DecrementIfSufficient(ctx context.Context, productID string, amount decimal.Decimal) (models.Product, error)
	CreateIssueRecord(ctx context.Context, record models.IssueRecord) error
}

// Transactor runs fn atomically: every mutation made through tx becomes
// visible together when fn returns nil, and none does otherwise.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Store is the full surface a backing database provides.
type Store interface {
	ProductStore
	RecipeStore
	IssueStore
	ReportStore
	Transactor
	Close(ctx context.Context) error
}
