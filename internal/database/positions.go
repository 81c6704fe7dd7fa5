package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tmorris/brokerage-service/internal/models"
)

// ErrPositionNotFound indicates no row exists for the requested symbol.
var ErrPositionNotFound = errors.New("position not found")

// ErrNotEnoughShares indicates a sell exceeds the persisted share count.
var ErrNotEnoughShares = errors.New("not enough shares")

// GetPositionBySymbol retrieves a single position by symbol
func (db *DB) GetPositionBySymbol(symbol string) (*models.Position, error) {
	query := `
		SELECT id, symbol, number_shares, purchase_price, total_cost, created_at, updated_at
		FROM positions
		WHERE symbol = $1
	`
	return scanPosition(db.conn.QueryRow(query, symbol))
}

// GetAllPositions retrieves all positions ordered by symbol
func (db *DB) GetAllPositions() ([]*models.Position, error) {
	query := `
		SELECT id, symbol, number_shares, purchase_price, total_cost, created_at, updated_at
		FROM positions
		ORDER BY symbol
	`
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		var p models.Position
		if err := rows.Scan(&p.ID, &p.Symbol, &p.NumberShares, &p.PurchasePrice, &p.TotalCost, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate positions: %w", err)
	}
	return positions, nil
}

// ExecuteBuy merges a purchase into the position for symbol inside a
// single transaction. An existing row gets a weighted-average purchase
// price; otherwise a new row is inserted. Any failure rolls back.
func (db *DB) ExecuteBuy(symbol string, shares int64, price decimal.Decimal) (*models.Position, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	cost := price.Mul(decimal.NewFromInt(shares))
	now := time.Now()

	existing, err := scanPosition(tx.QueryRow(`
		SELECT id, symbol, number_shares, purchase_price, total_cost, created_at, updated_at
		FROM positions
		WHERE symbol = $1
		FOR UPDATE
	`, symbol))

	var p *models.Position
	switch {
	case err == nil:
		newShares := existing.NumberShares + shares
		newTotal := existing.TotalCost.Add(cost)
		newAvg := newTotal.Div(decimal.NewFromInt(newShares))

		_, err = tx.Exec(`
			UPDATE positions
			SET number_shares = $2, purchase_price = $3, total_cost = $4, updated_at = $5
			WHERE symbol = $1
		`, symbol, newShares, newAvg, newTotal, now)
		if err != nil {
			return nil, fmt.Errorf("failed to update position: %w", err)
		}

		existing.NumberShares = newShares
		existing.PurchasePrice = newAvg
		existing.TotalCost = newTotal
		existing.UpdatedAt = now
		p = existing

	case errors.Is(err, ErrPositionNotFound):
		p = &models.Position{
			Symbol:        symbol,
			NumberShares:  shares,
			PurchasePrice: price,
			TotalCost:     cost,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		err = tx.QueryRow(`
			INSERT INTO positions (symbol, number_shares, purchase_price, total_cost, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, p.Symbol, p.NumberShares, p.PurchasePrice, p.TotalCost, now, now).Scan(&p.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert position: %w", err)
		}

	default:
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit buy: %w", err)
	}
	return p, nil
}

// ExecuteSell decrements the position for symbol inside a single
// transaction, keeping purchase_price fixed and reducing total_cost
// proportionally. The row is deleted when shares reach exactly zero.
// Returns nil when the position was removed.
func (db *DB) ExecuteSell(symbol string, shares int64) (*models.Position, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanPosition(tx.QueryRow(`
		SELECT id, symbol, number_shares, purchase_price, total_cost, created_at, updated_at
		FROM positions
		WHERE symbol = $1
		FOR UPDATE
	`, symbol))
	if err != nil {
		return nil, err
	}

	if existing.NumberShares < shares {
		return nil, fmt.Errorf("%w: have %d, want to sell %d", ErrNotEnoughShares, existing.NumberShares, shares)
	}

	remaining := existing.NumberShares - shares
	if remaining == 0 {
		if _, err := tx.Exec(`DELETE FROM positions WHERE symbol = $1`, symbol); err != nil {
			return nil, fmt.Errorf("failed to delete position: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit sell: %w", err)
		}
		return nil, nil
	}

	now := time.Now()
	newTotal := existing.PurchasePrice.Mul(decimal.NewFromInt(remaining))
	_, err = tx.Exec(`
		UPDATE positions
		SET number_shares = $2, total_cost = $3, updated_at = $4
		WHERE symbol = $1
	`, symbol, remaining, newTotal, now)
	if err != nil {
		return nil, fmt.Errorf("failed to update position: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit sell: %w", err)
	}

	existing.NumberShares = remaining
	existing.TotalCost = newTotal
	existing.UpdatedAt = now
	return existing, nil
}

// ResetPositions removes every position row
func (db *DB) ResetPositions() error {
	if _, err := db.conn.Exec(`TRUNCATE TABLE positions RESTART IDENTITY`); err != nil {
		return fmt.Errorf("failed to reset positions: %w", err)
	}
	return nil
}

func scanPosition(row *sql.Row) (*models.Position, error) {
	var p models.Position
	err := row.Scan(&p.ID, &p.Symbol, &p.NumberShares, &p.PurchasePrice, &p.TotalCost, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrPositionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan position: %w", err)
	}
	return &p, nil
}
