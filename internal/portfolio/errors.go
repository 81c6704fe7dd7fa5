package portfolio

import "errors"

var (
	// ErrInvalidAmount rejects non-positive cash amounts.
	ErrInvalidAmount = errors.New("amount must be a positive number")

	// ErrInvalidShares rejects non-positive share counts.
	ErrInvalidShares = errors.New("shares must be a positive number")

	// ErrInsufficientFunds rejects a withdrawal or purchase exceeding the
	// available cash balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotOwned rejects a sell for a symbol with no holding.
	ErrNotOwned = errors.New("symbol not held in portfolio")

	// ErrInsufficientShares rejects a sell exceeding the held share count.
	ErrInsufficientShares = errors.New("not enough shares to sell")

	// ErrQuoteUnavailable wraps any upstream quote failure.
	ErrQuoteUnavailable = errors.New("quote unavailable")
)
