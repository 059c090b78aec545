package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UsageReport aggregates the stock issued during one day.
type UsageReport struct {
	Date       time.Time   `json:"date"`
	IssueCount int         `json:"issueCount"`
	CookCount  int         `json:"cookCount"`
	Lines      []UsageLine `json:"lines"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// UsageLine is the total issued for one product.
type UsageLine struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName,omitempty"`
	Unit        string          `json:"unit"`
	Quantity    decimal.Decimal `json:"quantity"`
}
