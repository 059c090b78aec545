package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// IssueSourceKind tells how the lines of an issue were produced.
type IssueSourceKind string

const (
	SourceManual IssueSourceKind = "manual"
	SourceRecipe IssueSourceKind = "recipe"
)

// IssueSource is the provenance of an issue record.
type IssueSource struct {
	Kind       IssueSourceKind  `json:"kind"`
	RecipeID   string           `json:"recipeId,omitempty"`
	RecipeName string           `json:"recipeName,omitempty"`
	Portions   *decimal.Decimal `json:"portions,omitempty"`
}

// IssueItem is one requested deduction.
type IssueItem struct {
	ProductID string          `json:"productId"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// GoodsIssueRequest is a manual goods issue as entered by an operator.
type GoodsIssueRequest struct {
	Items       []IssueItem `json:"items"`
	Description string      `json:"description"`
	Reference   string      `json:"reference,omitempty"`
}

// CookRequest asks for the ingredients of Portions portions of a recipe to be issued.
type CookRequest struct {
	RecipeID  string          `json:"recipeId"`
	Portions  decimal.Decimal `json:"portions"`
	Reference string          `json:"reference,omitempty"`
}

// IssueLine is one deduction that was actually applied.
type IssueLine struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
}

// IssueRecord is the immutable receipt of a completed goods issue.
type IssueRecord struct {
	ID          string      `json:"id"`
	CreatedAt   time.Time   `json:"createdAt"`
	Description string      `json:"description"`
	Reference   string      `json:"reference,omitempty"`
	Source      IssueSource `json:"source"`
	Lines       []IssueLine `json:"lines"`
}

// TotalFor sums the quantity issued for productID across all lines.
func (r IssueRecord) TotalFor(productID string) decimal.Decimal {
	total := decimal.Zero
	for _, line := range r.Lines {
		if line.ProductID == productID {
			total = total.Add(line.Quantity)
		}
	}
	return total
}
