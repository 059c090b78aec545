package models

import "github.com/shopspring/decimal"

// Recipe is a menu item whose ingredients are consumed when it is cooked.
type Recipe struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Ingredients []IngredientLine `json:"ingredients"`
}

// IngredientLine is the amount of one product used per cooked portion.
// Unit is informational and expected to match the product's unit.
type IngredientLine struct {
	ProductID          string          `json:"productId"`
	QuantityPerPortion decimal.Decimal `json:"quantityPerPortion"`
	Unit               string          `json:"unit"`
}
