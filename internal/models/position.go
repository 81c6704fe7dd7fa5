package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position represents the persisted aggregate holding for one symbol.
// PurchasePrice is the weighted-average cost per share across all buys,
// and TotalCost tracks NumberShares * PurchasePrice.
type Position struct {
	ID            int             `json:"id"`
	Symbol        string          `json:"symbol"`
	NumberShares  int64           `json:"number_shares"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
