package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/agenticbook/docschat/internal/apperror"
	"github.com/agenticbook/docschat/internal/model"
	"github.com/agenticbook/docschat/internal/repository"
)

// compile-time check that *DB implements repository.RefreshTokenRepository
var _ repository.RefreshTokenRepository = (*DB)(nil)

// CreateRefreshToken stores a refresh-token fingerprint. Only the hash
// ever reaches this layer — the raw token stays with the caller.
func (db *DB) CreateRefreshToken(ctx context.Context, token *model.RefreshToken) error {
	token.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token_hash, user_id, expires_at, created_at)
		 VALUES (?, ?, ?, ?)`,
		token.TokenHash,
		token.UserID,
		token.ExpiresAt,
		token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting refresh token: %w", err)
	}

	return nil
}

// GetByHash looks up a refresh-token record by its fingerprint.
// Returns apperror.ErrNotFound for unknown (or already rotated) tokens.
func (db *DB) GetByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	var t model.RefreshToken
	err := db.conn.QueryRowContext(ctx,
		`SELECT token_hash, user_id, expires_at, created_at
		 FROM refresh_tokens WHERE token_hash = ?`,
		tokenHash,
	).Scan(&t.TokenHash, &t.UserID, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("refresh token", "")
		}
		return nil, fmt.Errorf("sqlite: getting refresh token: %w", err)
	}

	return &t, nil
}

// DeleteByHash removes a refresh-token record and reports whether a row
// was actually deleted.
//
// ROTATION RACE:
// token_hash is the primary key, so at most one row exists per
// fingerprint and the DELETE is atomic. When the same token is replayed
// concurrently, both callers issue the DELETE but only one observes
// RowsAffected == 1 — that caller wins the rotation; the loser gets
// (false, nil) and must treat the token as already spent.
func (db *DB) DeleteByHash(ctx context.Context, tokenHash string) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE token_hash = ?`, tokenHash,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: deleting refresh token: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: reading rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteAllForUser revokes every session of a user at once (logout).
func (db *DB) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = ?`, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting refresh tokens for user %s: %w", userID, err)
	}
	return nil
}

// DeleteExpired sweeps records whose expiry has passed. Run
// opportunistically before refresh; callers treat failures as
// non-critical.
func (db *DB) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < ?`, now,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: sweeping expired refresh tokens: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: reading rows affected: %w", err)
	}
	return n, nil
}
