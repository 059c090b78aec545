package models

import "github.com/shopspring/decimal"

// PreviewLine compares one ingredient's requirement with current stock.
type PreviewLine struct {
	ProductID     string          `json:"productId"`
	ProductName   string          `json:"productName,omitempty"`
	Unit          string          `json:"unit"`
	PerPortion    decimal.Decimal `json:"perPortion"`
	TotalRequired decimal.Decimal `json:"totalRequired"`
	Available     decimal.Decimal `json:"available"`
	Sufficient    bool            `json:"sufficient"`
	Missing       bool            `json:"missing,omitempty"`
}

// CookPreview is the read-only outcome of previewing a cook request.
type CookPreview struct {
	RecipeID   string          `json:"recipeId"`
	RecipeName string          `json:"recipeName"`
	Portions   decimal.Decimal `json:"portions"`
	Lines      []PreviewLine   `json:"lines"`
	Sufficient bool            `json:"sufficient"`
}
