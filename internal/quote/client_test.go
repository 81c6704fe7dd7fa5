package quote

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		function := r.URL.Query().Get("function")
		body, ok := responses[function]
		if !ok {
			t.Errorf("unexpected function %q", function)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
}

func TestClientGetQuote(t *testing.T) {
	t.Run("parses a valid global quote", func(t *testing.T) {
		srv := newTestServer(t, map[string]string{
			"GLOBAL_QUOTE": `{"Global Quote": {
				"01. symbol": "AAPL",
				"05. price": "170.2500",
				"06. volume": "52389034",
				"07. latest trading day": "2025-08-29"
			}}`,
		})
		defer srv.Close()

		client := NewClient(srv.URL, "test-key", zap.NewNop())
		q, err := client.GetQuote(context.Background(), "aapl")
		require.NoError(t, err)

		assert.Equal(t, "AAPL", q.Symbol)
		assert.True(t, decimal.NewFromFloat(170.25).Equal(q.Price))
		assert.Equal(t, int64(52389034), q.Volume)
		assert.Equal(t, "2025-08-29", q.LatestTradingDay.Format("2006-01-02"))
	})

	t.Run("missing price field returns ErrNotFound", func(t *testing.T) {
		srv := newTestServer(t, map[string]string{
			"GLOBAL_QUOTE": `{"Global Quote": {}}`,
		})
		defer srv.Close()

		client := NewClient(srv.URL, "test-key", zap.NewNop())
		_, err := client.GetQuote(context.Background(), "NOPE")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("empty body returns ErrNotFound", func(t *testing.T) {
		srv := newTestServer(t, map[string]string{
			"GLOBAL_QUOTE": `{}`,
		})
		defer srv.Close()

		client := NewClient(srv.URL, "test-key", zap.NewNop())
		_, err := client.GetQuote(context.Background(), "NOPE")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unparseable price is an error", func(t *testing.T) {
		srv := newTestServer(t, map[string]string{
			"GLOBAL_QUOTE": `{"Global Quote": {"05. price": "not-a-number"}}`,
		})
		defer srv.Close()

		client := NewClient(srv.URL, "test-key", zap.NewNop())
		_, err := client.GetQuote(context.Background(), "AAPL")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse price")
	})
}

func TestClientLookupStock(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"GLOBAL_QUOTE": `{"Global Quote": {"05. price": "170.25", "06. volume": "100", "07. latest trading day": "2025-08-29"}}`,
		"OVERVIEW":     `{"Name": "Apple Inc", "Description": "Designs consumer electronics", "Sector": "Technology"}`,
		"TIME_SERIES_DAILY_ADJUSTED": `{"Time Series (Daily)": {
			"2025-08-29": {"1. open": "169.0", "2. high": "171.0", "3. low": "168.5", "4. close": "170.25", "6. volume": "100"},
			"2025-08-28": {"1. open": "168.0", "2. high": "169.5", "3. low": "167.0", "4. close": "169.0", "6. volume": "90"}
		}}`,
	})
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", zap.NewNop())
	detail, err := client.LookupStock(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", detail.Symbol)
	assert.Equal(t, "Apple Inc", detail.Name)
	assert.Equal(t, "Technology", detail.Sector)
	assert.True(t, decimal.NewFromFloat(170.25).Equal(detail.CurrentPrice))
	require.Len(t, detail.HistoricalPrices, 2)
	assert.Equal(t, "2025-08-29", detail.HistoricalPrices[0].Date)
	assert.Equal(t, "2025-08-28", detail.HistoricalPrices[1].Date)

	t.Run("missing company info returns ErrNotFound", func(t *testing.T) {
		srv2 := newTestServer(t, map[string]string{
			"GLOBAL_QUOTE": `{"Global Quote": {"05. price": "170.25"}}`,
			"OVERVIEW":     `{}`,
		})
		defer srv2.Close()

		client2 := NewClient(srv2.URL, "test-key", zap.NewNop())
		_, err := client2.LookupStock(context.Background(), "AAPL")
		require.ErrorIs(t, err, ErrNotFound)
	})
}
