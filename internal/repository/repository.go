// Package repository declares the storage contracts consumed by the
// service layer. The sqlite subpackage implements them; tests substitute
// in-memory fakes.
//
// All interfaces are implemented by one sqlite.DB value, so method names
// carry the record they act on (CreateUser, CreateLink, ...) rather than
// relying on the receiver for disambiguation.
package repository

import (
	"context"
	"time"

	"github.com/agenticbook/docschat/internal/model"
)

// UserRepository persists user accounts.
//
// Email lookups are case-insensitive; implementations store emails
// lowercased and enforce uniqueness. CreateUser must fail with an error
// wrapping apperror.ErrConflict on a duplicate email so the service can
// keep the conflict message generic.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// OAuthLinkRepository persists identity-provider account links.
// (provider, provider_user_id) is unique across all users.
type OAuthLinkRepository interface {
	CreateLink(ctx context.Context, link *model.OAuthLink) error
	GetLinkByProviderSubject(ctx context.Context, provider, providerUserID string) (*model.OAuthLink, error)
	ProvidersForUser(ctx context.Context, userID string) ([]string, error)
}

// RefreshTokenRepository persists refresh-token fingerprints.
//
// DeleteByHash reports whether a row was actually removed — rotation uses
// this as a compare-and-delete: of two concurrent replays of the same
// token, only the one whose delete removed the row mints a new pair.
type RefreshTokenRepository interface {
	CreateRefreshToken(ctx context.Context, token *model.RefreshToken) error
	GetByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	DeleteByHash(ctx context.Context, tokenHash string) (bool, error)
	DeleteAllForUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ChatHistoryRepository persists chat exchanges. Writes are best-effort
// from the caller's perspective — the chat handler logs and swallows
// failures.
type ChatHistoryRepository interface {
	AddMessage(ctx context.Context, msg *model.ChatMessage) error
	ListBySession(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
}
