package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade sides as they appear in published events.
const (
	TradeSideBuy  = "BUY"
	TradeSideSell = "SELL"
)

// TradeEvent is published to Kafka after a buy or sell commits.
type TradeEvent struct {
	EventType string          `json:"event_type"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Shares    int64           `json:"shares"`
	Price     decimal.Decimal `json:"price"`
	Total     decimal.Decimal `json:"total"`
	Timestamp time.Time       `json:"timestamp"`
}
