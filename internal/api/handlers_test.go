package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tmorris/brokerage-service/internal/database"
	"github.com/tmorris/brokerage-service/internal/models"
	"github.com/tmorris/brokerage-service/internal/portfolio"
	"github.com/tmorris/brokerage-service/internal/quote"
	"github.com/tmorris/brokerage-service/internal/session"
)

type fakeUsers struct {
	passwords map[string]string
}

func (f *fakeUsers) CreateUser(username, password string) (*models.User, error) {
	if _, ok := f.passwords[username]; ok {
		return nil, fmt.Errorf("%w: %s", database.ErrUserExists, username)
	}
	f.passwords[username] = password
	return &models.User{Username: username}, nil
}

func (f *fakeUsers) CheckPassword(username, password string) error {
	if stored, ok := f.passwords[username]; !ok || stored != password {
		return database.ErrInvalidCredentials
	}
	return nil
}

func (f *fakeUsers) UpdatePassword(username, newPassword string) error {
	if _, ok := f.passwords[username]; !ok {
		return database.ErrUserNotFound
	}
	f.passwords[username] = newPassword
	return nil
}

func (f *fakeUsers) ResetUsers() error {
	f.passwords = make(map[string]string)
	return nil
}

// fakeLedger backs both the portfolio manager and the reset endpoint.
type fakeLedger struct {
	positions map[string]*models.Position
}

func (s *fakeLedger) GetAllPositions() ([]*models.Position, error) {
	out := make([]*models.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeLedger) ExecuteBuy(symbol string, shares int64, price decimal.Decimal) (*models.Position, error) {
	cost := price.Mul(decimal.NewFromInt(shares))
	if p, ok := s.positions[symbol]; ok {
		p.NumberShares += shares
		p.TotalCost = p.TotalCost.Add(cost)
		p.PurchasePrice = p.TotalCost.Div(decimal.NewFromInt(p.NumberShares))
		return p, nil
	}
	p := &models.Position{Symbol: symbol, NumberShares: shares, PurchasePrice: price, TotalCost: cost}
	s.positions[symbol] = p
	return p, nil
}

func (s *fakeLedger) ExecuteSell(symbol string, shares int64) (*models.Position, error) {
	p, ok := s.positions[symbol]
	if !ok {
		return nil, database.ErrPositionNotFound
	}
	p.NumberShares -= shares
	if p.NumberShares == 0 {
		delete(s.positions, symbol)
		return nil, nil
	}
	p.TotalCost = p.PurchasePrice.Mul(decimal.NewFromInt(p.NumberShares))
	return p, nil
}

func (s *fakeLedger) ResetPositions() error {
	s.positions = make(map[string]*models.Position)
	return nil
}

type fakePrices struct {
	prices map[string]decimal.Decimal
}

func (f *fakePrices) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	price, ok := f.prices[symbol]
	if !ok {
		return decimal.Decimal{}, errors.New("no price")
	}
	return price, nil
}

type fakeLookup struct {
	details map[string]models.StockDetail
}

func (f *fakeLookup) LookupStock(ctx context.Context, symbol string) (models.StockDetail, error) {
	detail, ok := f.details[symbol]
	if !ok {
		return models.StockDetail{}, fmt.Errorf("%w: %s", quote.ErrNotFound, symbol)
	}
	return detail, nil
}

type testServer struct {
	router   http.Handler
	users    *fakeUsers
	sessions session.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	users := &fakeUsers{passwords: map[string]string{"alice": "s3cret"}}
	ledger := &fakeLedger{positions: make(map[string]*models.Position)}
	prices := &fakePrices{prices: map[string]decimal.Decimal{
		"AAPL": decimal.NewFromFloat(170.0),
		"MSFT": decimal.NewFromFloat(320.0),
	}}
	lookup := &fakeLookup{details: map[string]models.StockDetail{
		"AAPL": {Symbol: "AAPL", Name: "Apple Inc", CurrentPrice: decimal.NewFromFloat(170.0)},
	}}
	sessions := session.NewMemoryStore(time.Hour)

	pf := portfolio.New(prices, ledger, nil, zap.NewNop())
	handler := NewHandler(users, ledger, sessions, pf, lookup, zap.NewNop())

	return &testServer{
		router:   SetupRoutes(handler),
		users:    users,
		sessions: sessions,
	}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) login(t *testing.T) string {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/api/v1/login", "", map[string]string{
		"username": "alice",
		"password": "s3cret",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["session_token"])
	return resp["session_token"]
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	ts := newTestServer(t)

	t.Run("rejects missing token", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/v1/view-portfolio", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects bogus token", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/v1/view-portfolio", "not-a-session", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("accepts a logged-in session", func(t *testing.T) {
		token := ts.login(t)
		rec := ts.do(t, http.MethodGet, "/api/v1/view-portfolio", token, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("accepts the session cookie", func(t *testing.T) {
		token := ts.login(t)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/view-portfolio", nil)
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
		rec := httptest.NewRecorder()
		ts.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("logout invalidates the token", func(t *testing.T) {
		token := ts.login(t)
		rec := ts.do(t, http.MethodPost, "/api/v1/logout", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = ts.do(t, http.MethodGet, "/api/v1/view-portfolio", token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestUserRoutes(t *testing.T) {
	t.Run("create user", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPut, "/api/v1/create-user", "", map[string]string{
			"username": "bob", "password": "hunter2",
		})
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("create user requires both fields", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPut, "/api/v1/create-user", "", map[string]string{"username": "bob"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("duplicate username is a 400", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPut, "/api/v1/create-user", "", map[string]string{
			"username": "alice", "password": "x",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("login with wrong password is a 401", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/api/v1/login", "", map[string]string{
			"username": "alice", "password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("change password requires auth and takes effect", func(t *testing.T) {
		ts := newTestServer(t)
		token := ts.login(t)

		rec := ts.do(t, http.MethodPost, "/api/v1/change-password", token, map[string]string{
			"new_password": "newpass",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "newpass", ts.users.passwords["alice"])
	})
}

func TestCashRoutes(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)

	t.Run("deposit", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/deposit-cash", token, map[string]float64{"amount": 1000})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "1000", fmt.Sprint(decodeBody(t, rec)["new_balance"]))
	})

	t.Run("negative deposit is a 400", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/deposit-cash", token, map[string]float64{"amount": -5})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("withdraw", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/withdraw-cash", token, map[string]float64{"amount": 300})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "700", fmt.Sprint(decodeBody(t, rec)["new_balance"]))
	})

	t.Run("overdraft is a 400", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/withdraw-cash", token, map[string]float64{"amount": 5000})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTradeRoutes(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/deposit-cash", token, map[string]float64{"amount": 1000})
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("buy", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/buy-stock", token, map[string]interface{}{
			"symbol": "AAPL", "shares": 5,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		assert.Equal(t, "850", fmt.Sprint(body["total_cost"]))
		assert.Equal(t, "150", fmt.Sprint(body["remaining_balance"]))
	})

	t.Run("buy beyond balance is a 400", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/buy-stock", token, map[string]interface{}{
			"symbol": "MSFT", "shares": 100,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("view portfolio shows the holding", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/v1/view-portfolio", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		holdings := body["holdings"].([]interface{})
		require.Len(t, holdings, 1)
		first := holdings[0].(map[string]interface{})
		assert.Equal(t, "AAPL", first["symbol"])
		assert.Equal(t, float64(5), first["shares"])
	})

	t.Run("sell unowned symbol is a 400", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/sell-stock", token, map[string]interface{}{
			"symbol": "MSFT", "shares": 1,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("sell round trip restores the balance", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/sell-stock", token, map[string]interface{}{
			"symbol": "AAPL", "shares": 5,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		assert.Equal(t, "1000", fmt.Sprint(body["new_balance"]))
	})

	t.Run("missing fields are a 400", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/buy-stock", token, map[string]interface{}{"symbol": "AAPL"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLookupStock(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)

	t.Run("known symbol", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/v1/lookup-stock/AAPL", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		stock := body["stock"].(map[string]interface{})
		assert.Equal(t, "Apple Inc", stock["name"])
	})

	t.Run("unknown symbol is a 400", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/v1/lookup-stock/NOPE", token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
