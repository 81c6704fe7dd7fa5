package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tmorris/brokerage-service/internal/database"
	"github.com/tmorris/brokerage-service/internal/models"
	"github.com/tmorris/brokerage-service/internal/portfolio"
	"github.com/tmorris/brokerage-service/internal/quote"
	"github.com/tmorris/brokerage-service/internal/session"
)

// UserStore is the account repository consumed by the handlers.
type UserStore interface {
	CreateUser(username, password string) (*models.User, error)
	CheckPassword(username, password string) error
	UpdatePassword(username, newPassword string) error
	ResetUsers() error
}

// PositionResetter truncates the persisted position ledger.
type PositionResetter interface {
	ResetPositions() error
}

// StockLookup resolves full stock details from the market-data API.
type StockLookup interface {
	LookupStock(ctx context.Context, symbol string) (models.StockDetail, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	users     UserStore
	positions PositionResetter
	sessions  session.Store
	portfolio *portfolio.Manager
	lookup    StockLookup
	logger    *zap.Logger
}

// NewHandler creates a new Handler
func NewHandler(users UserStore, positions PositionResetter, sessions session.Store, pf *portfolio.Manager, lookup StockLookup, logger *zap.Logger) *Handler {
	return &Handler{
		users:     users,
		positions: positions,
		sessions:  sessions,
		portfolio: pf,
		lookup:    lookup,
		logger:    logger,
	}
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Service is running",
	})
}

// CreateUser handles PUT /api/v1/create-user
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	if _, err := h.users.CreateUser(req.Username, req.Password); err != nil {
		if errors.Is(err, database.ErrUserExists) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("user creation failed", zap.String("username", req.Username), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "An internal error occurred while creating user")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("User '%s' created successfully", req.Username),
	})
}

// Login handles POST /api/v1/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	if err := h.users.CheckPassword(req.Username, req.Password); err != nil {
		if errors.Is(err, database.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		h.logger.Error("login failed", zap.String("username", req.Username), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "An internal error occurred during login")
		return
	}

	token, err := h.sessions.Create(r.Context(), req.Username)
	if err != nil {
		h.logger.Error("session creation failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "An internal error occurred during login")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
	})
	respondJSON(w, http.StatusOK, map[string]string{
		"status":        "success",
		"message":       fmt.Sprintf("User '%s' logged in successfully", req.Username),
		"session_token": token,
	})
}

// Logout handles POST /api/v1/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		if err := h.sessions.Delete(r.Context(), token); err != nil {
			h.logger.Warn("failed to delete session", zap.Error(err))
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "User logged out successfully",
	})
}

// ChangePassword handles POST /api/v1/change-password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewPassword == "" {
		respondError(w, http.StatusBadRequest, "New password is required")
		return
	}

	username := usernameFromContext(r.Context())
	if err := h.users.UpdatePassword(username, req.NewPassword); err != nil {
		h.logger.Error("password change failed", zap.String("username", username), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "An internal error occurred while changing password")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Password changed successfully",
	})
}

// ResetUsers handles DELETE /api/v1/reset-users
func (h *Handler) ResetUsers(w http.ResponseWriter, r *http.Request) {
	if err := h.users.ResetUsers(); err != nil {
		h.logger.Error("users reset failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "An internal error occurred while deleting users")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Users cleared successfully",
	})
}

// ResetStocks handles DELETE /api/v1/reset-stocks
func (h *Handler) ResetStocks(w http.ResponseWriter, r *http.Request) {
	if err := h.positions.ResetPositions(); err != nil {
		h.logger.Error("positions reset failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "An internal error occurred while deleting stocks")
		return
	}
	// Keep the in-memory holdings in sync with the emptied ledger.
	if err := h.portfolio.Hydrate(); err != nil {
		h.logger.Error("portfolio rehydration failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "An internal error occurred while deleting stocks")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Stocks cleared successfully",
	})
}

// LookupStock handles GET /api/v1/lookup-stock/{symbol}
func (h *Handler) LookupStock(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	detail, err := h.lookup.LookupStock(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, quote.ErrNotFound) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("stock lookup failed", zap.String("symbol", symbol), zap.Error(err))
		respondError(w, http.StatusBadGateway, "An internal error occurred while looking up the stock")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"stock":  detail,
	})
}

// DepositCash handles POST /api/v1/deposit-cash
func (h *Handler) DepositCash(w http.ResponseWriter, r *http.Request) {
	amount, ok := decodeAmount(w, r)
	if !ok {
		return
	}

	if err := h.portfolio.Deposit(amount); err != nil {
		h.respondPortfolioError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "success",
		"message":     fmt.Sprintf("Successfully deposited $%s", amount.Round(2)),
		"new_balance": h.portfolio.CashBalance().Round(2),
	})
}

// WithdrawCash handles POST /api/v1/withdraw-cash
func (h *Handler) WithdrawCash(w http.ResponseWriter, r *http.Request) {
	amount, ok := decodeAmount(w, r)
	if !ok {
		return
	}

	if err := h.portfolio.Withdraw(amount); err != nil {
		h.respondPortfolioError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "success",
		"message":     fmt.Sprintf("Successfully withdrew $%s", amount.Round(2)),
		"new_balance": h.portfolio.CashBalance().Round(2),
	})
}

// BuyStock handles POST /api/v1/buy-stock
func (h *Handler) BuyStock(w http.ResponseWriter, r *http.Request) {
	symbol, shares, ok := decodeTrade(w, r)
	if !ok {
		return
	}

	result, err := h.portfolio.Buy(r.Context(), symbol, shares)
	if err != nil {
		h.respondPortfolioError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "success",
		"message":           fmt.Sprintf("Successfully bought %d shares of %s at $%s per share", result.Shares, result.Symbol, result.Price.Round(2)),
		"total_cost":        result.Total.Round(2),
		"remaining_balance": result.CashBalance.Round(2),
	})
}

// SellStock handles POST /api/v1/sell-stock
func (h *Handler) SellStock(w http.ResponseWriter, r *http.Request) {
	symbol, shares, ok := decodeTrade(w, r)
	if !ok {
		return
	}

	result, err := h.portfolio.Sell(r.Context(), symbol, shares)
	if err != nil {
		h.respondPortfolioError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "success",
		"message":        fmt.Sprintf("Successfully sold %d shares of %s at $%s per share", result.Shares, result.Symbol, result.Price.Round(2)),
		"total_proceeds": result.Total.Round(2),
		"new_balance":    result.CashBalance.Round(2),
	})
}

// ViewPortfolio handles GET /api/v1/view-portfolio
func (h *Handler) ViewPortfolio(w http.ResponseWriter, r *http.Request) {
	holdings := h.portfolio.View(r.Context())
	valuation := h.portfolio.Value(r.Context())

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "success",
		"holdings":        holdings,
		"portfolio_value": valuation,
		"cash_balance":    h.portfolio.CashBalance().Round(2),
	})
}

func (h *Handler) respondPortfolioError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, portfolio.ErrInvalidAmount),
		errors.Is(err, portfolio.ErrInvalidShares),
		errors.Is(err, portfolio.ErrInsufficientFunds),
		errors.Is(err, portfolio.ErrNotOwned),
		errors.Is(err, portfolio.ErrInsufficientShares):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, portfolio.ErrQuoteUnavailable):
		respondError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error("portfolio operation failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "An internal error occurred")
	}
}

func decodeAmount(w http.ResponseWriter, r *http.Request) (decimal.Decimal, bool) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return decimal.Decimal{}, false
	}
	return req.Amount, true
}

func decodeTrade(w http.ResponseWriter, r *http.Request) (string, int64, bool) {
	var req struct {
		Symbol string `json:"symbol"`
		Shares int64  `json:"shares"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return "", 0, false
	}
	if req.Symbol == "" || req.Shares == 0 {
		respondError(w, http.StatusBadRequest, "Symbol and shares are required")
		return "", 0, false
	}
	return req.Symbol, req.Shares, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"status":  "error",
		"message": message,
	})
}
