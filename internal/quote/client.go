package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tmorris/brokerage-service/internal/httputil"
	"github.com/tmorris/brokerage-service/internal/models"
)

// Client fetches quotes from the Alpha Vantage HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	retry      httputil.RetryConfig
	logger     *zap.Logger
}

// NewClient creates an Alpha Vantage client with a bounded request timeout.
func NewClient(baseURL, apiKey string, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		retry:      httputil.DefaultRetry,
		logger:     logger,
	}
}

// GetQuote returns the current quote for symbol. It fails with ErrNotFound
// when the response lacks a price field.
func (c *Client) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	symbol = strings.ToUpper(symbol)

	var payload struct {
		GlobalQuote map[string]string `json:"Global Quote"`
	}
	if err := c.getJSON(ctx, "GLOBAL_QUOTE", symbol, &payload); err != nil {
		return models.Quote{}, err
	}

	priceStr, ok := payload.GlobalQuote["05. price"]
	if !ok || priceStr == "" {
		return models.Quote{}, fmt.Errorf("%w: no price data for %q", ErrNotFound, symbol)
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return models.Quote{}, fmt.Errorf("parse price for %s: %w", symbol, err)
	}

	q := models.Quote{Symbol: symbol, Price: price}
	if v, err := strconv.ParseInt(payload.GlobalQuote["06. volume"], 10, 64); err == nil {
		q.Volume = v
	}
	if d, err := time.Parse("2006-01-02", payload.GlobalQuote["07. latest trading day"]); err == nil {
		q.LatestTradingDay = d
	}
	return q, nil
}

// LookupStock returns the current price plus company info and the last
// seven daily bars for symbol.
func (c *Client) LookupStock(ctx context.Context, symbol string) (models.StockDetail, error) {
	symbol = strings.ToUpper(symbol)

	q, err := c.GetQuote(ctx, symbol)
	if err != nil {
		return models.StockDetail{}, err
	}

	var overview struct {
		Name        string `json:"Name"`
		Description string `json:"Description"`
		Sector      string `json:"Sector"`
	}
	if err := c.getJSON(ctx, "OVERVIEW", symbol, &overview); err != nil {
		return models.StockDetail{}, err
	}
	if overview.Name == "" {
		return models.StockDetail{}, fmt.Errorf("%w: no company info for %q", ErrNotFound, symbol)
	}

	var history struct {
		TimeSeries map[string]map[string]string `json:"Time Series (Daily)"`
	}
	if err := c.getJSON(ctx, "TIME_SERIES_DAILY_ADJUSTED", symbol, &history); err != nil {
		return models.StockDetail{}, err
	}

	dates := make([]string, 0, len(history.TimeSeries))
	for date := range history.TimeSeries {
		dates = append(dates, date)
	}
	// Most recent first, capped at seven days. Lexicographic order matches
	// chronological order for YYYY-MM-DD strings.
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	if len(dates) > 7 {
		dates = dates[:7]
	}

	bars := make([]models.DailyBar, 0, len(dates))
	for _, date := range dates {
		daily := history.TimeSeries[date]
		bar := models.DailyBar{Date: date}
		bar.Open, _ = decimal.NewFromString(daily["1. open"])
		bar.High, _ = decimal.NewFromString(daily["2. high"])
		bar.Low, _ = decimal.NewFromString(daily["3. low"])
		bar.Close, _ = decimal.NewFromString(daily["4. close"])
		bar.Volume, _ = strconv.ParseInt(daily["6. volume"], 10, 64)
		bars = append(bars, bar)
	}

	return models.StockDetail{
		Symbol:           symbol,
		Name:             overview.Name,
		Description:      overview.Description,
		Sector:           overview.Sector,
		CurrentPrice:     q.Price,
		HistoricalPrices: bars,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, function, symbol string, out interface{}) error {
	resp, err := httputil.Do(ctx, c.httpClient, c.retry, c.logger, func() (*http.Request, error) {
		u := fmt.Sprintf("%s?function=%s&symbol=%s&apikey=%s",
			c.baseURL, function, url.QueryEscape(symbol), url.QueryEscape(c.apiKey))
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	})
	if err != nil {
		return fmt.Errorf("fetch %s for %s: %w", function, symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s for %s: unexpected status %d", function, symbol, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response for %s: %w", function, symbol, err)
	}
	return nil
}
