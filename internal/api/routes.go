package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// User management
	api.HandleFunc("/create-user", handler.CreateUser).Methods("PUT")
	api.HandleFunc("/login", handler.Login).Methods("POST")
	api.HandleFunc("/reset-users", handler.ResetUsers).Methods("DELETE")
	api.HandleFunc("/reset-stocks", handler.ResetStocks).Methods("DELETE")

	// Authenticated routes
	auth := api.NewRoute().Subrouter()
	auth.Use(handler.RequireAuth)
	auth.HandleFunc("/logout", handler.Logout).Methods("POST")
	auth.HandleFunc("/change-password", handler.ChangePassword).Methods("POST")
	auth.HandleFunc("/lookup-stock/{symbol}", handler.LookupStock).Methods("GET")
	auth.HandleFunc("/deposit-cash", handler.DepositCash).Methods("POST")
	auth.HandleFunc("/withdraw-cash", handler.WithdrawCash).Methods("POST")
	auth.HandleFunc("/buy-stock", handler.BuyStock).Methods("POST")
	auth.HandleFunc("/sell-stock", handler.SellStock).Methods("POST")
	auth.HandleFunc("/view-portfolio", handler.ViewPortfolio).Methods("GET")

	return r
}
