package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenticbook/docschat/internal/apperror"
	"github.com/agenticbook/docschat/internal/model"
)

// newTestDB opens a throwaway in-memory database with the full schema.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB, email string) *model.User {
	t.Helper()

	u := &model.User{Email: email, Name: "Test User", PasswordHash: "$2a$04$fakehash"}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

// =========================================================================
// USER REPOSITORY TESTS
// =========================================================================

func TestCreateUser_AssignsIDAndDefaults(t *testing.T) {
	db := newTestDB(t)

	u := createTestUser(t, db, "alice@example.com")

	assert.NotEmpty(t, u.ID)
	assert.True(t, u.IsActive)
	assert.False(t, u.CreatedAt.IsZero())
}

func TestCreateUser_LowercasesEmail(t *testing.T) {
	db := newTestDB(t)

	u := &model.User{Email: "  Alice@Example.COM ", Name: "Alice"}
	require.NoError(t, db.CreateUser(context.Background(), u))
	assert.Equal(t, "alice@example.com", u.Email)

	got, err := db.GetUserByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)
}

func TestCreateUser_DuplicateEmailIsConflict(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "alice@example.com")

	err := db.CreateUser(context.Background(), &model.User{Email: "alice@example.com", Name: "Clone"})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestCreateUser_DuplicateEmailCaseInsensitive(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "alice@example.com")

	// COLLATE NOCASE backstops callers that forget to normalize
	err := db.CreateUser(context.Background(), &model.User{Email: "ALICE@EXAMPLE.COM", Name: "Clone"})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestGetUserByEmail_CaseInsensitive(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "alice@example.com")

	got, err := db.GetUserByEmail(context.Background(), "ALICE@example.COM")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestGetUserByEmail_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestGetUserByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestGetUserByID_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "alice@example.com")

	got, err := db.GetUserByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
	assert.Equal(t, u.Name, got.Name)
	assert.Equal(t, u.PasswordHash, got.PasswordHash)
	assert.True(t, got.IsActive)
}

// =========================================================================
// OAUTH LINK REPOSITORY TESTS
// =========================================================================

func TestCreateLink_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "alice@example.com")

	link := &model.OAuthLink{
		UserID:         u.ID,
		Provider:       "google",
		ProviderUserID: "google-sub-1",
		Email:          "alice@example.com",
	}
	require.NoError(t, db.CreateLink(context.Background(), link))
	assert.NotEmpty(t, link.ID)

	got, err := db.GetLinkByProviderSubject(context.Background(), "google", "google-sub-1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.UserID)
	assert.Equal(t, "google", got.Provider)
}

func TestCreateLink_DuplicateProviderSubject(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")

	require.NoError(t, db.CreateLink(context.Background(), &model.OAuthLink{
		UserID: alice.ID, Provider: "google", ProviderUserID: "google-sub-1",
	}))

	// One provider account can never belong to two local users
	err := db.CreateLink(context.Background(), &model.OAuthLink{
		UserID: bob.ID, Provider: "google", ProviderUserID: "google-sub-1",
	})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestGetLinkByProviderSubject_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetLinkByProviderSubject(context.Background(), "google", "never-linked")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestProvidersForUser(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "alice@example.com")

	providers, err := db.ProvidersForUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Empty(t, providers)

	require.NoError(t, db.CreateLink(context.Background(), &model.OAuthLink{
		UserID: u.ID, Provider: "google", ProviderUserID: "google-sub-1",
	}))

	providers, err = db.ProvidersForUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"google"}, providers)
}

// =========================================================================
// REFRESH TOKEN REPOSITORY TESTS
// =========================================================================

func createTestToken(t *testing.T, db *DB, userID, hash string, expiresAt time.Time) {
	t.Helper()
	require.NoError(t, db.CreateRefreshToken(context.Background(), &model.RefreshToken{
		TokenHash: hash,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}))
}

func TestRefreshToken_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "alice@example.com")
	expiry := time.Now().Add(time.Hour).UTC()
	createTestToken(t, db, u.ID, "hash-1", expiry)

	got, err := db.GetByHash(context.Background(), "hash-1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.UserID)
	assert.WithinDuration(t, expiry, got.ExpiresAt, time.Second)
}

func TestGetByHash_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByHash(context.Background(), "unknown-hash")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDeleteByHash_CompareAndDelete(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "alice@example.com")
	createTestToken(t, db, u.ID, "hash-1", time.Now().Add(time.Hour))

	// First delete observes the row
	deleted, err := db.DeleteByHash(context.Background(), "hash-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	// Second delete of the same hash must report false — this is what
	// makes rotation single-use under replay
	deleted, err = db.DeleteByHash(context.Background(), "hash-1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDeleteAllForUser(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")
	createTestToken(t, db, alice.ID, "alice-1", time.Now().Add(time.Hour))
	createTestToken(t, db, alice.ID, "alice-2", time.Now().Add(time.Hour))
	createTestToken(t, db, bob.ID, "bob-1", time.Now().Add(time.Hour))

	require.NoError(t, db.DeleteAllForUser(context.Background(), alice.ID))

	_, err := db.GetByHash(context.Background(), "alice-1")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = db.GetByHash(context.Background(), "alice-2")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	// Bob's session survives Alice's logout
	_, err = db.GetByHash(context.Background(), "bob-1")
	assert.NoError(t, err)
}

func TestDeleteExpired(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "alice@example.com")
	createTestToken(t, db, u.ID, "expired-1", time.Now().Add(-time.Hour))
	createTestToken(t, db, u.ID, "expired-2", time.Now().Add(-time.Minute))
	createTestToken(t, db, u.ID, "live-1", time.Now().Add(time.Hour))

	n, err := db.DeleteExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = db.GetByHash(context.Background(), "live-1")
	assert.NoError(t, err)
}

// =========================================================================
// CHAT HISTORY REPOSITORY TESTS
// =========================================================================

func TestChatHistory_RoundTrip(t *testing.T) {
	db := newTestDB(t)

	msg := &model.ChatMessage{
		SessionID:   "sess-1",
		UserMessage: "How do I install?",
		BotResponse: "Run the installer.",
	}
	require.NoError(t, db.AddMessage(context.Background(), msg))
	assert.NotEmpty(t, msg.ID)

	msgs, err := db.ListBySession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "How do I install?", msgs[0].UserMessage)
	assert.Equal(t, "Run the installer.", msgs[0].BotResponse)
}

func TestChatHistory_OldestFirstAndScoped(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.AddMessage(ctx, &model.ChatMessage{SessionID: "sess-1", UserMessage: "first", BotResponse: "a"}))
	require.NoError(t, db.AddMessage(ctx, &model.ChatMessage{SessionID: "sess-1", UserMessage: "second", BotResponse: "b"}))
	require.NoError(t, db.AddMessage(ctx, &model.ChatMessage{SessionID: "sess-2", UserMessage: "other", BotResponse: "c"}))

	msgs, err := db.ListBySession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].UserMessage)
	assert.Equal(t, "second", msgs[1].UserMessage)
}

func TestChatHistory_UnknownSessionIsEmpty(t *testing.T) {
	db := newTestDB(t)

	msgs, err := db.ListBySession(context.Background(), "never-used")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
