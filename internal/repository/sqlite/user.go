package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/agenticbook/docschat/internal/apperror"
	"github.com/agenticbook/docschat/internal/model"
	"github.com/agenticbook/docschat/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// CreateUser inserts a new user. The repository generates the ID and the
// creation timestamp; the email is lowercased before insert.
//
// A duplicate email surfaces as apperror.ErrConflict. The message is
// deliberately generic — the HTTP layer must never say "email taken",
// and keeping the detail out of the error here means no layer above can
// leak it by accident.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = time.Now().UTC()
	user.IsActive = true

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, is_active, created_at)
		 VALUES (?, ?, ?, ?, 1, ?)`,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("Registration failed. Please try again or sign in.")
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}

	return nil
}

// GetUserByEmail retrieves a user by email, case-insensitively.
// Returns apperror.ErrNotFound when no such user exists.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var u model.User
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, is_active, created_at
		 FROM users WHERE email = ? COLLATE NOCASE`,
		email,
	).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}

	return &u, nil
}

// GetUserByID retrieves a user by internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, is_active, created_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}

	return &u, nil
}

// isUniqueViolation detects a UNIQUE constraint failure. modernc.org/
// sqlite returns constraint errors as plain errors whose text carries the
// SQLite message, so string matching is the portable check.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
