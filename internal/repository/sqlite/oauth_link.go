package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/agenticbook/docschat/internal/apperror"
	"github.com/agenticbook/docschat/internal/model"
	"github.com/agenticbook/docschat/internal/repository"
)

// compile-time check that *DB implements repository.OAuthLinkRepository
var _ repository.OAuthLinkRepository = (*DB)(nil)

// CreateLink inserts an identity-provider link. The UNIQUE (provider,
// provider_user_id) constraint guarantees one provider account can only
// ever belong to one local user; a violation surfaces as a conflict.
func (db *DB) CreateLink(ctx context.Context, link *model.OAuthLink) error {
	link.ID = xid.New().String()
	link.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO oauth_accounts (id, user_id, provider, provider_user_id, email, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		link.ID,
		link.UserID,
		link.Provider,
		link.ProviderUserID,
		link.Email,
		link.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("provider account already linked")
		}
		return fmt.Errorf("sqlite: inserting oauth link: %w", err)
	}

	return nil
}

// GetLinkByProviderSubject looks up a link by its unique (provider, subject)
// pair. Returns apperror.ErrNotFound when the provider account has never
// been linked.
func (db *DB) GetLinkByProviderSubject(ctx context.Context, provider, providerUserID string) (*model.OAuthLink, error) {
	var l model.OAuthLink
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, provider, provider_user_id, email, created_at
		 FROM oauth_accounts WHERE provider = ? AND provider_user_id = ?`,
		provider, providerUserID,
	).Scan(&l.ID, &l.UserID, &l.Provider, &l.ProviderUserID, &l.Email, &l.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("oauth link", provider+":"+providerUserID)
		}
		return nil, fmt.Errorf("sqlite: getting oauth link: %w", err)
	}

	return &l, nil
}

// ProvidersForUser lists the provider names linked to a user, used to
// build the auth_methods field of the profile.
func (db *DB) ProvidersForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT provider FROM oauth_accounts WHERE user_id = ? ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing providers for user %s: %w", userID, err)
	}
	defer rows.Close()

	var providers []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("sqlite: scanning provider: %w", err)
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating providers: %w", err)
	}

	return providers, nil
}
