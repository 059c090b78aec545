// Package memory provides an in-process Store. Transactions run one at a time
// against a private copy of the state, which replaces the live state only when
// the transaction function succeeds.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/pantry/internal/domain/models"
	"github.com/mamadbah2/pantry/internal/repository"
)

var _ repository.Store = (*Store)(nil)

type state struct {
	products map[string]models.Product
	recipes  map[string]models.Recipe
	issues   []models.IssueRecord
	reports  []models.UsageReport
}

func newState() state {
	return state{
		products: map[string]models.Product{},
		recipes:  map[string]models.Recipe{},
	}
}

// clone copies everything a transaction may touch. Issue records and reports
// are immutable once written, so their slices are copied shallowly.
func (s state) clone() state {
	cp := state{
		products: make(map[string]models.Product, len(s.products)),
		recipes:  s.recipes,
		issues:   slices.Clone(s.issues),
		reports:  s.reports,
	}
	for id, p := range s.products {
		cp.products[id] = p
	}
	return cp
}

// Store keeps products, recipes and issue records in memory.
type Store struct {
	mu    sync.RWMutex
	state state
	nowFn func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{state: newState(), nowFn: func() time.Time { return time.Now().UTC() }}
}

// GetProduct implements repository.ProductStore.
func (s *Store) GetProduct(ctx context.Context, id string) (models.Product, error) {
	if err := ctx.Err(); err != nil {
		return models.Product{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.products[id]
	if !ok {
		return models.Product{}, fmt.Errorf("product %s: %w", id, repository.ErrNotFound)
	}
	return p, nil
}

// GetProducts implements repository.ProductStore.
func (s *Store) GetProducts(ctx context.Context, ids []string) (map[string]models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.state.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// ListProducts implements repository.ProductStore.
func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Product, 0, len(s.state.products))
	for _, p := range s.state.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// UpsertProduct implements repository.ProductStore.
func (s *Store) UpsertProduct(ctx context.Context, product models.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if product.ID == "" {
		return fmt.Errorf("product id must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	product.UpdatedAt = s.nowFn()
	s.state.products[product.ID] = product
	return nil
}

// GetRecipe implements repository.RecipeStore.
func (s *Store) GetRecipe(ctx context.Context, id string) (models.Recipe, error) {
	if err := ctx.Err(); err != nil {
		return models.Recipe{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.recipes[id]
	if !ok {
		return models.Recipe{}, fmt.Errorf("recipe %s: %w", id, repository.ErrNotFound)
	}
	return cloneRecipe(r), nil
}

// ListRecipes implements repository.RecipeStore.
func (s *Store) ListRecipes(ctx context.Context) ([]models.Recipe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Recipe, 0, len(s.state.recipes))
	for _, r := range s.state.recipes {
		out = append(out, cloneRecipe(r))
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// UpsertRecipe implements repository.RecipeStore.
func (s *Store) UpsertRecipe(ctx context.Context, recipe models.Recipe) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if recipe.ID == "" {
		return fmt.Errorf("recipe id must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	recipes := make(map[string]models.Recipe, len(s.state.recipes)+1)
	for id, r := range s.state.recipes {
		recipes[id] = r
	}
	recipes[recipe.ID] = cloneRecipe(recipe)
	s.state.recipes = recipes
	return nil
}

// GetIssue implements repository.IssueStore.
func (s *Store) GetIssue(ctx context.Context, id string) (models.IssueRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.IssueRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.state.issues {
		if rec.ID == id {
			return cloneIssue(rec), nil
		}
	}
	return models.IssueRecord{}, fmt.Errorf("issue %s: %w", id, repository.ErrNotFound)
}

// ListIssues implements repository.IssueStore.
func (s *Store) ListIssues(ctx context.Context, filter repository.IssueFilter) ([]models.IssueRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.IssueRecord, 0)
	for i := len(s.state.issues) - 1; i >= 0; i-- {
		rec := s.state.issues[i]
		if !filter.Since.IsZero() && rec.CreatedAt.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && !rec.CreatedAt.Before(filter.Until) {
			continue
		}
		out = append(out, cloneIssue(rec))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// SaveUsageReport implements repository.ReportStore.
func (s *Store) SaveUsageReport(ctx context.Context, report models.UsageReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.reports = append(slices.Clone(s.state.reports), report)
	return nil
}

// UsageReports returns the saved usage reports in insertion order.
func (s *Store) UsageReports() []models.UsageReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.reports)
}

// RunInTx implements repository.Transactor.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &transaction{state: s.state.clone(), now: s.nowFn()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.state = tx.state
	return nil
}

// Close implements repository.Store.
func (s *Store) Close(context.Context) error { return nil }

type transaction struct {
	state state
	now   time.Time
}

func (tx *transaction) DecrementIfSufficient(ctx context.Context, productID string, amount decimal.Decimal) (models.Product, error) {
	if err := ctx.Err(); err != nil {
		return models.Product{}, err
	}
	p, ok := tx.state.products[productID]
	if !ok {
		return models.Product{}, fmt.Errorf("product %s: %w", productID, repository.ErrNotFound)
	}
	if !p.Covers(amount) {
		return p, fmt.Errorf("product %s: %w", productID, repository.ErrInsufficientStock)
	}
	updated := p
	updated.Quantity = p.Quantity.Sub(amount)
	updated.UpdatedAt = tx.now
	tx.state.products[productID] = updated
	return p, nil
}

func (tx *transaction) CreateIssueRecord(ctx context.Context, record models.IssueRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, existing := range tx.state.issues {
		if existing.ID == record.ID {
			return fmt.Errorf("issue %s already exists", record.ID)
		}
	}
	tx.state.issues = append(tx.state.issues, cloneIssue(record))
	return nil
}

func cloneRecipe(r models.Recipe) models.Recipe {
	r.Ingredients = slices.Clone(r.Ingredients)
	return r
}

func cloneIssue(r models.IssueRecord) models.IssueRecord {
	r.Lines = slices.Clone(r.Lines)
	return r
}
