// Package ledger is the stock ledger and goods-issue engine. It turns manual
// issues and cook requests into deductions, checks them against stock and
// applies them together with their issue record in one atomic unit of work.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/pantry/internal/domain/models"
	"github.com/mamadbah2/pantry/internal/repository"
)

const defaultTimeout = 10 * time.Second

// Store is the storage surface the ledger needs.
type Store interface {
	repository.ProductStore
	repository.RecipeStore
	repository.IssueStore
	repository.Transactor
}

// Observer is notified after an issue has been committed.
type Observer interface {
	IssueApplied(ctx context.Context, record models.IssueRecord)
}

// Recorder receives the outcome of every submitted request.
type Recorder interface {
	ObserveIssue(source models.IssueSourceKind, outcome string, elapsed time.Duration)
}

// Engine is what callers of the ledger depend on.
type Engine interface {
	SubmitGoodsIssue(ctx context.Context, req models.GoodsIssueRequest) (models.IssueRecord, error)
	SubmitCookRequest(ctx context.Context, req models.CookRequest) (models.IssueRecord, error)
	PreviewCook(ctx context.Context, recipeID string, portions decimal.Decimal) (models.CookPreview, error)
	GetIssue(ctx context.Context, id string) (models.IssueRecord, error)
	ListIssues(ctx context.Context, filter repository.IssueFilter) ([]models.IssueRecord, error)
}

// Option customises a Service.
type Option func(*Service)

// WithObserver registers a post-commit observer. Observers run in
// registration order.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithRecorder registers a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithTimeout bounds every request. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock replaces the time source used for issue timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service implements Engine.
type Service struct {
	store     Store
	observers []Observer
	recorder  Recorder
	logger    *zap.Logger
	timeout   time.Duration
	now       func() time.Time
	newID     func() string
}

// NewService wires a ledger on top of store.
func NewService(store Store, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:   store,
		logger:  logger,
		timeout: defaultTimeout,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitGoodsIssue deducts a manually entered set of items.
func (s *Service) SubmitGoodsIssue(ctx context.Context, req models.GoodsIssueRequest) (models.IssueRecord, error) {
	started := time.Now()

	plan, err := normalizeManual(req)
	if err != nil {
		return s.finish(models.SourceManual, started, models.IssueRecord{}, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	record, err := s.execute(ctx, plan)
	return s.finish(models.SourceManual, started, record, err)
}

// SubmitCookRequest deducts the ingredients of a recipe scaled to the
// requested portions.
func (s *Service) SubmitCookRequest(ctx context.Context, req models.CookRequest) (models.IssueRecord, error) {
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	plan, err := s.normalizeCook(ctx, req)
	if err != nil {
		return s.finish(models.SourceRecipe, started, models.IssueRecord{}, err)
	}

	record, err := s.execute(ctx, plan)
	return s.finish(models.SourceRecipe, started, record, err)
}

func (s *Service) execute(ctx context.Context, plan issuePlan) (models.IssueRecord, error) {
	if err := s.checkSufficiency(ctx, plan.items); err != nil {
		return models.IssueRecord{}, err
	}

	record, err := s.apply(ctx, plan)
	if err != nil {
		return models.IssueRecord{}, err
	}

	for _, o := range s.observers {
		o.IssueApplied(context.WithoutCancel(ctx), record)
	}
	return record, nil
}

func (s *Service) finish(source models.IssueSourceKind, started time.Time, record models.IssueRecord, err error) (models.IssueRecord, error) {
	outcome := Outcome(err)
	if s.recorder != nil {
		s.recorder.ObserveIssue(source, outcome, time.Since(started))
	}

	switch {
	case err == nil:
		s.logger.Info("goods issue applied",
			zap.String("issue_id", record.ID),
			zap.String("source", string(source)),
			zap.String("recipe_id", record.Source.RecipeID),
			zap.Int("lines", len(record.Lines)))
	case errors.Is(err, ErrStorage):
		s.logger.Error("goods issue failed", zap.String("source", string(source)), zap.Error(err))
	default:
		s.logger.Warn("goods issue rejected",
			zap.String("source", string(source)),
			zap.String("reason", outcome),
			zap.Error(err))
	}

	return record, err
}

// PreviewCook reports, per ingredient, how much a cook request would take and
// whether current stock covers it. Nothing is mutated.
func (s *Service) PreviewCook(ctx context.Context, recipeID string, portions decimal.Decimal) (models.CookPreview, error) {
	recipeID, err := validateCookInput(recipeID, portions)
	if err != nil {
		return models.CookPreview{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	recipe, err := s.loadRecipe(ctx, recipeID)
	if err != nil {
		return models.CookPreview{}, err
	}

	lines, items, err := cookRequirements(recipe, portions)
	if err != nil {
		return models.CookPreview{}, err
	}
	required := make(map[string]decimal.Decimal, len(items))
	for _, item := range items {
		required[item.ProductID] = item.Quantity
	}

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.store.GetProducts(ctx, ids)
	if err != nil {
		return models.CookPreview{}, classify("load products", err)
	}

	preview := models.CookPreview{
		RecipeID:   recipe.ID,
		RecipeName: recipe.Name,
		Portions:   portions,
		Lines:      make([]models.PreviewLine, 0, len(lines)),
		Sufficient: len(required) > 0,
	}
	for _, line := range lines {
		product, ok := products[line.ProductID]
		pl := models.PreviewLine{
			ProductID:     line.ProductID,
			ProductName:   product.Name,
			Unit:          line.Unit,
			PerPortion:    line.PerPortion,
			TotalRequired: line.Total,
			Available:     product.Quantity,
			Missing:       !ok,
		}
		// A product listed twice is judged on its combined requirement, the
		// same amount a cook request would deduct.
		pl.Sufficient = ok && product.Covers(required[line.ProductID])
		if !pl.Sufficient {
			preview.Sufficient = false
		}
		preview.Lines = append(preview.Lines, pl)
	}

	return preview, nil
}

// GetIssue returns one issue record.
func (s *Service) GetIssue(ctx context.Context, id string) (models.IssueRecord, error) {
	record, err := s.store.GetIssue(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return models.IssueRecord{}, &NotFoundError{Kind: "issue", IDs: []string{id}}
	}
	if err != nil {
		return models.IssueRecord{}, classify("load issue", err)
	}
	return record, nil
}

// ListIssues returns issue records newest first.
func (s *Service) ListIssues(ctx context.Context, filter repository.IssueFilter) ([]models.IssueRecord, error) {
	records, err := s.store.ListIssues(ctx, filter)
	if err != nil {
		return nil, classify("list issues", err)
	}
	return records, nil
}

// timestamp is truncated to the millisecond precision stores keep.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// Outcome labels err for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "storage"
	}
}
