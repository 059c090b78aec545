package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a stocked item. Quantity is the on-hand balance expressed in Unit
// and never goes negative through a goods issue.
type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Unit      string          `json:"unit"`
	Quantity  decimal.Decimal `json:"quantity"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Covers reports whether the on-hand balance can fund amount.
func (p Product) Covers(amount decimal.Decimal) bool {
	return p.Quantity.GreaterThanOrEqual(amount)
}
