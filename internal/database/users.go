package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// User is an operator-console account. Roles: admin, operator, viewer.
type User struct {
	UID          string    `json:"uid"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// ErrNotFound is returned for lookups with no matching row.
var ErrNotFound = errors.New("not found")

// GetUserByUsername returns the user with the given username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := db.Pool.QueryRow(ctx,
		`SELECT uid, username, password_hash, role, created_at FROM users WHERE username = $1`,
		username).Scan(&u.UID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
