package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/mamadbah2/pantry/internal/domain/models"
)

// ExpansionLine is one recipe ingredient scaled to a portion count.
type ExpansionLine struct {
	ProductID  string
	Unit       string
	PerPortion decimal.Decimal
	Total      decimal.Decimal
}

// Expand scales every ingredient of recipe by portions, keeping the recipe's
// line order. It is pure: cook requests and previews both go through it.
func Expand(recipe models.Recipe, portions decimal.Decimal) []ExpansionLine {
	lines := make([]ExpansionLine, 0, len(recipe.Ingredients))
	for _, ing := range recipe.Ingredients {
		lines = append(lines, ExpansionLine{
			ProductID:  ing.ProductID,
			Unit:       ing.Unit,
			PerPortion: ing.QuantityPerPortion,
			Total:      ing.QuantityPerPortion.Mul(portions),
		})
	}
	return lines
}

// Requirements collapses expansion lines into one positive deduction per
// product, in order of first appearance.
func Requirements(lines []ExpansionLine) []models.IssueItem {
	items := make([]models.IssueItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, models.IssueItem{ProductID: line.ProductID, Quantity: line.Total})
	}
	return mergeItems(items)
}

// mergeItems sums duplicate product ids and drops non-positive totals.
func mergeItems(items []models.IssueItem) []models.IssueItem {
	index := make(map[string]int, len(items))
	merged := make([]models.IssueItem, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity = merged[i].Quantity.Add(item.Quantity)
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}

	out := merged[:0]
	for _, item := range merged {
		if item.Quantity.IsPositive() {
			out = append(out, item)
		}
	}
	return out
}
