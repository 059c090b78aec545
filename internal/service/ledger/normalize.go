package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/pantry/internal/domain/models"
	"github.com/mamadbah2/pantry/internal/repository"
)

// issuePlan is a request reduced to its canonical deductions plus the
// provenance that ends up on the issue record.
type issuePlan struct {
	items       []models.IssueItem
	description string
	reference   string
	source      models.IssueSource
}

func normalizeManual(req models.GoodsIssueRequest) (issuePlan, error) {
	items := make([]models.IssueItem, 0, len(req.Items))
	for _, item := range req.Items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" || !item.Quantity.IsPositive() {
			continue
		}
		items = append(items, models.IssueItem{ProductID: id, Quantity: item.Quantity})
	}

	items = mergeItems(items)
	if len(items) == 0 {
		return issuePlan{}, &ValidationError{Field: "items", Reason: "at least one item with a positive quantity is required"}
	}
	if err := checkPrecision("items", items); err != nil {
		return issuePlan{}, err
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		return issuePlan{}, &ValidationError{Field: "description", Reason: "must not be empty"}
	}

	return issuePlan{
		items:       items,
		description: description,
		reference:   strings.TrimSpace(req.Reference),
		source:      models.IssueSource{Kind: models.SourceManual},
	}, nil
}

// maxDigits is the coefficient size a Decimal128 holds exactly; minExponent
// is its smallest exponent.
const (
	maxDigits   = 34
	minExponent = -6176
)

// representable reports whether d can be stored without rounding.
func representable(d decimal.Decimal) bool {
	if d.Exponent() < minExponent {
		return false
	}
	return len(new(big.Int).Abs(d.Coefficient()).String()) <= maxDigits
}

// checkPrecision rejects quantities a store would have to round.
func checkPrecision(field string, items []models.IssueItem) error {
	for _, item := range items {
		if !representable(item.Quantity) {
			return &ValidationError{
				Field:  field,
				Reason: fmt.Sprintf("quantity %s for %q has more than %d significant digits", item.Quantity, item.ProductID, maxDigits),
			}
		}
	}
	return nil
}

// validateCookInput returns the recipe id callers must use from here on.
func validateCookInput(recipeID string, portions decimal.Decimal) (string, error) {
	recipeID = strings.TrimSpace(recipeID)
	if recipeID == "" {
		return "", &ValidationError{Field: "recipeId", Reason: "must not be empty"}
	}
	if !portions.IsPositive() {
		return "", &ValidationError{Field: "portions", Reason: "must be greater than zero"}
	}
	if !representable(portions) {
		return "", &ValidationError{Field: "portions", Reason: fmt.Sprintf("has more than %d significant digits", maxDigits)}
	}
	return recipeID, nil
}

// cookRequirements expands recipe for portions into the deductions a cook
// would apply. Previews and cook requests both call it.
func cookRequirements(recipe models.Recipe, portions decimal.Decimal) ([]ExpansionLine, []models.IssueItem, error) {
	lines := Expand(recipe, portions)
	items := Requirements(lines)
	if err := checkPrecision("portions", items); err != nil {
		return nil, nil, err
	}
	return lines, items, nil
}

func (s *Service) normalizeCook(ctx context.Context, req models.CookRequest) (issuePlan, error) {
	recipeID, err := validateCookInput(req.RecipeID, req.Portions)
	if err != nil {
		return issuePlan{}, err
	}

	recipe, err := s.loadRecipe(ctx, recipeID)
	if err != nil {
		return issuePlan{}, err
	}

	_, items, err := cookRequirements(recipe, req.Portions)
	if err != nil {
		return issuePlan{}, err
	}
	if len(items) == 0 {
		return issuePlan{}, &ValidationError{Field: "recipeId", Reason: fmt.Sprintf("recipe %q has nothing to deduct", recipe.ID)}
	}

	portions := req.Portions
	return issuePlan{
		items:       items,
		description: cookDescription(recipe, portions),
		reference:   strings.TrimSpace(req.Reference),
		source: models.IssueSource{
			Kind:       models.SourceRecipe,
			RecipeID:   recipe.ID,
			RecipeName: recipe.Name,
			Portions:   &portions,
		},
	}, nil
}

func (s *Service) loadRecipe(ctx context.Context, id string) (models.Recipe, error) {
	recipe, err := s.store.GetRecipe(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Recipe{}, &NotFoundError{Kind: "recipe", IDs: []string{id}}
	}
	if err != nil {
		return models.Recipe{}, classify("load recipe", err)
	}
	return recipe, nil
}

func cookDescription(recipe models.Recipe, portions decimal.Decimal) string {
	name := recipe.Name
	if name == "" {
		name = recipe.ID
	}
	unit := "portions"
	if portions.Equal(decimal.NewFromInt(1)) {
		unit = "portion"
	}
	return fmt.Sprintf("Cooked %s %s of %s", portions.String(), unit, name)
}
