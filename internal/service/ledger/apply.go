package ledger

import (
	"context"
	"errors"

	"github.com/mamadbah2/pantry/internal/domain/models"
	"github.com/mamadbah2/pantry/internal/repository"
)

// checkSufficiency is the advisory pre-check. It reads outside the atomic
// scope, so it only produces early error messages; apply re-checks every line.
func (s *Service) checkSufficiency(ctx context.Context, items []models.IssueItem) error {
	products, err := s.store.GetProducts(ctx, productIDs(items))
	if err != nil {
		return classify("load products", err)
	}

	var missing []string
	var shortfalls []Shortfall
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			missing = append(missing, item.ProductID)
			continue
		}
		if !product.Covers(item.Quantity) {
			shortfalls = append(shortfalls, shortfallOf(product, item))
		}
	}

	if len(missing) > 0 {
		return &NotFoundError{Kind: "product", IDs: missing}
	}
	if len(shortfalls) > 0 {
		return &InsufficientStockError{Shortfalls: shortfalls}
	}
	return nil
}

// apply decrements every line and writes the issue record in one transaction.
// A line the store refuses to fund aborts the whole transaction; the
// remaining lines are still attempted so the error lists every shortfall.
func (s *Service) apply(ctx context.Context, plan issuePlan) (models.IssueRecord, error) {
	var record models.IssueRecord

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		lines := make([]models.IssueLine, 0, len(plan.items))
		var missing []string
		var shortfalls []Shortfall

		for _, item := range plan.items {
			before, err := tx.DecrementIfSufficient(ctx, item.ProductID, item.Quantity)
			switch {
			case errors.Is(err, repository.ErrInsufficientStock):
				shortfalls = append(shortfalls, shortfallOf(before, item))
				continue
			case errors.Is(err, repository.ErrNotFound):
				missing = append(missing, item.ProductID)
				continue
			case err != nil:
				return err
			}

			lines = append(lines, models.IssueLine{
				ProductID:   item.ProductID,
				ProductName: before.Name,
				Quantity:    item.Quantity,
				Unit:        before.Unit,
			})
		}

		if len(missing) > 0 {
			return &NotFoundError{Kind: "product", IDs: missing}
		}
		if len(shortfalls) > 0 {
			return &InsufficientStockError{Shortfalls: shortfalls}
		}

		record = models.IssueRecord{
			ID:          s.newID(),
			CreatedAt:   s.timestamp(),
			Description: plan.description,
			Reference:   plan.reference,
			Source:      plan.source,
			Lines:       lines,
		}
		return tx.CreateIssueRecord(ctx, record)
	})
	if err != nil {
		return models.IssueRecord{}, classify("apply goods issue", err)
	}

	return record, nil
}

func shortfallOf(product models.Product, item models.IssueItem) Shortfall {
	return Shortfall{
		ProductID:   item.ProductID,
		ProductName: product.Name,
		Unit:        product.Unit,
		Requested:   item.Quantity,
		Available:   product.Quantity,
	}
}

func productIDs(items []models.IssueItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

// classify passes ledger errors through and turns store failures into
// ConcurrencyConflictError or StorageError.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrStorage):
		return err
	case errors.Is(err, repository.ErrConflict):
		return &ConcurrencyConflictError{Err: err}
	default:
		return &StorageError{Op: op, Err: err}
	}
}
