package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/tmorris/brokerage-service/internal/models"
)

// ErrUserNotFound indicates no account exists for the username.
var ErrUserNotFound = errors.New("user not found")

// ErrUserExists indicates the username is already taken.
var ErrUserExists = errors.New("user already exists")

// ErrInvalidCredentials indicates a failed password check.
var ErrInvalidCredentials = errors.New("invalid username or password")

// CreateUser registers a new account with a bcrypt-hashed password
func (db *DB) CreateUser(username, password string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &models.User{Username: username, PasswordHash: string(hash), CreatedAt: time.Now()}
	err = db.conn.QueryRow(`
		INSERT INTO users (username, password_hash, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, u.Username, u.PasswordHash, u.CreatedAt).Scan(&u.ID)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return nil, fmt.Errorf("%w: %s", ErrUserExists, username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(username string) (*models.User, error) {
	var u models.User
	err := db.conn.QueryRow(`
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// CheckPassword verifies the password for username
func (db *DB) CheckPassword(username, password string) error {
	u, err := db.GetUserByUsername(username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// UpdatePassword replaces the stored hash for username
func (db *DB) UpdatePassword(username, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	res, err := db.conn.Exec(`UPDATE users SET password_hash = $2 WHERE username = $1`, username, string(hash))
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	return nil
}

// ResetUsers removes every user row
func (db *DB) ResetUsers() error {
	if _, err := db.conn.Exec(`TRUNCATE TABLE users RESTART IDENTITY`); err != nil {
		return fmt.Errorf("failed to reset users: %w", err)
	}
	return nil
}
