package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a point-in-time market quote for one symbol.
type Quote struct {
	Symbol           string          `json:"symbol"`
	Price            decimal.Decimal `json:"price"`
	Volume           int64           `json:"volume"`
	LatestTradingDay time.Time       `json:"latest_trading_day"`
}

// DailyBar is one day of historical price data.
type DailyBar struct {
	Date   string          `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// StockDetail combines a current quote with company info and recent history.
type StockDetail struct {
	Symbol           string          `json:"symbol"`
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	Sector           string          `json:"sector,omitempty"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	HistoricalPrices []DailyBar      `json:"historical_prices"`
}
