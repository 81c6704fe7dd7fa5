package quote

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tmorris/brokerage-service/internal/models"
)

// Fetcher fetches a current quote for one symbol.
type Fetcher interface {
	GetQuote(ctx context.Context, symbol string) (models.Quote, error)
}

type cachedPrice struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

// PriceCache is a per-process, time-bounded cache of last-fetched prices.
// Expiry is checked lazily on access; there is no background eviction.
// A failed refresh propagates the fetch error rather than serving
// expired data.
type PriceCache struct {
	mu      sync.Mutex
	entries map[string]cachedPrice

	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewPriceCache creates a cache that refreshes entries older than ttl.
func NewPriceCache(fetcher Fetcher, ttl time.Duration, logger *zap.Logger) *PriceCache {
	return &PriceCache{
		entries: make(map[string]cachedPrice),
		fetcher: fetcher,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}
}

// GetPrice returns the cached price for symbol when the entry is younger
// than the TTL, otherwise fetches a fresh quote and caches it.
func (c *PriceCache) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(symbol)

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[symbol]; ok && c.now().Before(entry.fetchedAt.Add(c.ttl)) {
		return entry.price, nil
	}

	q, err := c.fetcher.GetQuote(ctx, symbol)
	if err != nil {
		return decimal.Decimal{}, err
	}

	c.entries[symbol] = cachedPrice{price: q.Price, fetchedAt: c.now()}
	c.logger.Debug("quote cache refreshed",
		zap.String("symbol", symbol),
		zap.String("price", q.Price.String()),
	)
	return q.Price, nil
}

// SetClock overrides the cache's time source. Tests use it to control
// TTL expiry.
func (c *PriceCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
