package portfolio

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tmorris/brokerage-service/internal/models"
)

// PriceSource resolves a current price for one symbol, typically through
// the quote price cache.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// PositionStore is the persisted aggregate position ledger. Both mutations
// run inside a storage transaction; an error means nothing was persisted.
type PositionStore interface {
	GetAllPositions() ([]*models.Position, error)
	ExecuteBuy(symbol string, shares int64, price decimal.Decimal) (*models.Position, error)
	ExecuteSell(symbol string, shares int64) (*models.Position, error)
}

// EventPublisher publishes trade events after a buy or sell commits.
type EventPublisher interface {
	PublishTradeExecuted(ctx context.Context, event models.TradeEvent) error
}

// Holding is an in-memory position in one stock symbol.
type Holding struct {
	Shares   int64
	BuyPrice decimal.Decimal
}

// Manager owns one portfolio's holdings, cash account, and valuation
// logic. All mutation is serialized through an internal lock so concurrent
// buys, sells, and withdrawals cannot drive the cash balance negative.
type Manager struct {
	mu           sync.Mutex
	holdings     map[string]Holding
	cash         decimal.Decimal
	originalCash decimal.Decimal

	prices    PriceSource
	store     PositionStore
	publisher EventPublisher
	logger    *zap.Logger
}

// New creates an empty portfolio. publisher may be nil, in which case no
// trade events are emitted.
func New(prices PriceSource, store PositionStore, publisher EventPublisher, logger *zap.Logger) *Manager {
	return &Manager{
		holdings:  make(map[string]Holding),
		prices:    prices,
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Hydrate loads holdings from the position store so the in-memory view
// agrees with the persisted ledger.
func (m *Manager) Hydrate() error {
	positions, err := m.store.GetAllPositions()
	if err != nil {
		return fmt.Errorf("hydrate portfolio: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.holdings = make(map[string]Holding, len(positions))
	for _, p := range positions {
		m.holdings[p.Symbol] = Holding{Shares: p.NumberShares, BuyPrice: p.PurchasePrice}
	}
	return nil
}

// Deposit adds amount to both the cash balance and the original cash
// balance; deposits raise the baseline for percent-change comparisons.
func (m *Manager) Deposit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.cash = m.cash.Add(amount)
	m.originalCash = m.originalCash.Add(amount)
	m.logger.Info("cash deposited",
		zap.String("amount", amount.String()),
		zap.String("balance", m.cash.String()),
	)
	return nil
}

// Withdraw removes amount from the cash balance. The original cash
// balance is unaffected.
func (m *Manager) Withdraw(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if amount.GreaterThan(m.cash) {
		return fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, m.cash, amount)
	}
	m.cash = m.cash.Sub(amount)
	m.logger.Info("cash withdrawn",
		zap.String("amount", amount.String()),
		zap.String("balance", m.cash.String()),
	)
	return nil
}

// CashBalance returns the current available cash.
func (m *Manager) CashBalance() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cash
}

// TradeResult reports an executed buy or sell.
type TradeResult struct {
	Symbol      string          `json:"symbol"`
	Shares      int64           `json:"shares"`
	Price       decimal.Decimal `json:"price"`
	Total       decimal.Decimal `json:"total"`
	CashBalance decimal.Decimal `json:"cash_balance"`
}

// Buy purchases shares of symbol at the current market price. Validation
// and the cash check happen before the position store is touched; a store
// failure leaves cash and holdings unchanged.
func (m *Manager) Buy(ctx context.Context, symbol string, shares int64) (*TradeResult, error) {
	if shares <= 0 {
		return nil, ErrInvalidShares
	}
	symbol = strings.ToUpper(symbol)

	m.mu.Lock()
	defer m.mu.Unlock()

	price, err := m.prices.GetPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}

	cost := price.Mul(decimal.NewFromInt(shares))
	if cost.GreaterThan(m.cash) {
		return nil, fmt.Errorf("%w: cost %s exceeds balance %s", ErrInsufficientFunds, cost, m.cash)
	}

	pos, err := m.store.ExecuteBuy(symbol, shares, price)
	if err != nil {
		return nil, fmt.Errorf("buy %s: %w", symbol, err)
	}

	m.cash = m.cash.Sub(cost)
	m.holdings[symbol] = Holding{Shares: pos.NumberShares, BuyPrice: pos.PurchasePrice}

	m.logger.Info("bought stock",
		zap.String("symbol", symbol),
		zap.Int64("shares", shares),
		zap.String("price", price.String()),
		zap.String("total_cost", cost.String()),
	)
	m.publishTrade(ctx, models.TradeSideBuy, symbol, shares, price, cost)

	return &TradeResult{Symbol: symbol, Shares: shares, Price: price, Total: cost, CashBalance: m.cash}, nil
}

// Sell disposes shares of symbol at the current market price, depositing
// the proceeds. The holding is removed when its share count reaches zero.
func (m *Manager) Sell(ctx context.Context, symbol string, shares int64) (*TradeResult, error) {
	if shares <= 0 {
		return nil, ErrInvalidShares
	}
	symbol = strings.ToUpper(symbol)

	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.holdings[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotOwned, symbol)
	}
	if h.Shares < shares {
		return nil, fmt.Errorf("%w: have %d shares of %s, requested %d", ErrInsufficientShares, h.Shares, symbol, shares)
	}

	price, err := m.prices.GetPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}
	proceeds := price.Mul(decimal.NewFromInt(shares))

	pos, err := m.store.ExecuteSell(symbol, shares)
	if err != nil {
		return nil, fmt.Errorf("sell %s: %w", symbol, err)
	}

	m.cash = m.cash.Add(proceeds)
	if pos == nil {
		delete(m.holdings, symbol)
	} else {
		m.holdings[symbol] = Holding{Shares: pos.NumberShares, BuyPrice: pos.PurchasePrice}
	}

	m.logger.Info("sold stock",
		zap.String("symbol", symbol),
		zap.Int64("shares", shares),
		zap.String("price", price.String()),
		zap.String("proceeds", proceeds.String()),
	)
	m.publishTrade(ctx, models.TradeSideSell, symbol, shares, price, proceeds)

	return &TradeResult{Symbol: symbol, Shares: shares, Price: price, Total: proceeds, CashBalance: m.cash}, nil
}

func (m *Manager) publishTrade(ctx context.Context, side, symbol string, shares int64, price, total decimal.Decimal) {
	if m.publisher == nil {
		return
	}
	event := models.TradeEvent{
		EventType: "TRADE_EXECUTED",
		Symbol:    symbol,
		Side:      side,
		Shares:    shares,
		Price:     price,
		Total:     total,
		Timestamp: time.Now(),
	}
	if err := m.publisher.PublishTradeExecuted(ctx, event); err != nil {
		// Event delivery is best effort and never fails the trade.
		m.logger.Warn("failed to publish trade event",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
	}
}

// HoldingView is one row of the portfolio summary. When the price fetch
// for the symbol fails, PriceUnavailable is set and the price-derived
// fields are zero.
type HoldingView struct {
	Symbol           string          `json:"symbol"`
	Shares           int64           `json:"shares"`
	BuyPrice         decimal.Decimal `json:"buy_price"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	PercentChange    decimal.Decimal `json:"percent_change"`
	TotalValue       decimal.Decimal `json:"total_value"`
	PriceUnavailable bool            `json:"price_unavailable,omitempty"`
}

// View returns a per-holding summary ordered by symbol. A quote failure
// for one symbol marks that entry unavailable instead of failing the
// whole view. Monetary fields are rounded to two decimals.
func (m *Manager) View(ctx context.Context) []HoldingView {
	m.mu.Lock()
	defer m.mu.Unlock()

	views := make([]HoldingView, 0, len(m.holdings))
	for _, symbol := range m.sortedSymbols() {
		h := m.holdings[symbol]
		view := HoldingView{Symbol: symbol, Shares: h.Shares, BuyPrice: h.BuyPrice.Round(2)}

		price, err := m.prices.GetPrice(ctx, symbol)
		if err != nil {
			m.logger.Warn("price unavailable for holding",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			view.PriceUnavailable = true
			views = append(views, view)
			continue
		}

		change := price.Sub(h.BuyPrice).Div(h.BuyPrice).Mul(decimal.NewFromInt(100))
		view.CurrentPrice = price.Round(2)
		view.PercentChange = change.Round(2)
		view.TotalValue = price.Mul(decimal.NewFromInt(h.Shares)).Round(2)
		views = append(views, view)
	}
	return views
}

// Valuation is the aggregate portfolio value including cash.
type Valuation struct {
	CurrentTotalValue  decimal.Decimal `json:"current_total_value"`
	OriginalTotalValue decimal.Decimal `json:"original_total_value"`
	PercentChange      decimal.Decimal `json:"percent_change"`
}

// Value computes the aggregate valuation. A holding whose price fetch
// fails contributes zero to the current value (logged, not failed); the
// original value uses only stored buy prices and is unaffected. Percent
// change is zero when the original total is not positive.
func (m *Manager) Value(ctx context.Context) Valuation {
	m.mu.Lock()
	defer m.mu.Unlock()

	original := m.originalCash
	current := m.cash
	for _, symbol := range m.sortedSymbols() {
		h := m.holdings[symbol]
		shares := decimal.NewFromInt(h.Shares)
		original = original.Add(h.BuyPrice.Mul(shares))

		price, err := m.prices.GetPrice(ctx, symbol)
		if err != nil {
			m.logger.Warn("skipping holding in valuation, price unavailable",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			continue
		}
		current = current.Add(price.Mul(shares))
	}

	change := decimal.Zero
	if original.IsPositive() {
		change = current.Sub(original).Div(original).Mul(decimal.NewFromInt(100))
	}

	return Valuation{
		CurrentTotalValue:  current.Round(2),
		OriginalTotalValue: original.Round(2),
		PercentChange:      change.Round(2),
	}
}

// sortedSymbols returns holding symbols in a stable order. Callers must
// hold the lock.
func (m *Manager) sortedSymbols() []string {
	symbols := make([]string, 0, len(m.holdings))
	for s := range m.holdings {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}
