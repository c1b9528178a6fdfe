package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionFixture(t *testing.T) (*SessionManager, *memStore, *time.Time) {
	t.Helper()

	store := newMemStore()
	cfg := Config{
		Secret:     []byte("test-secret"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}

	clock := time.Now().UTC()
	nowFn := func() time.Time { return clock }
	codec := NewTokenCodec(cfg.Secret).WithClock(nowFn)
	manager := NewSessionManager(store, codec, cfg).WithClock(nowFn)

	require.NoError(t, store.CreateUser(context.Background(), User{
		ID:          "user-1",
		TenantID:    "tenant-1",
		Email:       "founder@acme.test",
		Role:        RoleFounder,
		AccountType: AccountTypeBrand,
	}))

	return manager, store, &clock
}

func TestSessionManager_CreateAndRefresh(t *testing.T) {
	manager, _, _ := newSessionFixture(t)
	ctx := context.Background()

	tokens, err := manager.CreateSession(ctx, testIdentity, SessionMeta{UserAgent: "go-test", IP: "10.0.0.1"})
	require.NoError(t, err)
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.Equal(t, int64(900), tokens.ExpiresIn)

	rotated, err := manager.Refresh(ctx, tokens.RefreshToken, SessionMeta{})
	require.NoError(t, err)
	assert.NotEmpty(t, rotated.AccessToken)
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)
}

func TestSessionManager_RotationInvalidatesOldToken(t *testing.T) {
	manager, _, _ := newSessionFixture(t)
	ctx := context.Background()

	tokens, err := manager.CreateSession(ctx, testIdentity, SessionMeta{})
	require.NoError(t, err)

	_, err = manager.Refresh(ctx, tokens.RefreshToken, SessionMeta{})
	require.NoError(t, err)

	// Replaying the rotated-out token must fail.
	_, err = manager.Refresh(ctx, tokens.RefreshToken, SessionMeta{})
	assert.ErrorIs(t, err, ErrSessionRevoked)
}

func TestSessionManager_RefreshUnknownToken(t *testing.T) {
	manager, _, _ := newSessionFixture(t)

	_, err := manager.Refresh(context.Background(), "never-issued", SessionMeta{})
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSessionManager_RefreshExpiredSession(t *testing.T) {
	manager, _, clock := newSessionFixture(t)
	ctx := context.Background()

	tokens, err := manager.CreateSession(ctx, testIdentity, SessionMeta{})
	require.NoError(t, err)

	*clock = clock.Add(8 * 24 * time.Hour)
	_, err = manager.Refresh(ctx, tokens.RefreshToken, SessionMeta{})
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestSessionManager_RevokeThenRefresh(t *testing.T) {
	manager, _, _ := newSessionFixture(t)
	ctx := context.Background()

	tokens, err := manager.CreateSession(ctx, testIdentity, SessionMeta{})
	require.NoError(t, err)

	require.NoError(t, manager.Revoke(ctx, tokens.RefreshToken))
	_, err = manager.Refresh(ctx, tokens.RefreshToken, SessionMeta{})
	assert.ErrorIs(t, err, ErrSessionRevoked)

	// Revoke is idempotent, including for unknown tokens.
	require.NoError(t, manager.Revoke(ctx, tokens.RefreshToken))
	require.NoError(t, manager.Revoke(ctx, "never-issued"))
}

func TestSessionManager_RefreshResolvesIdentityFresh(t *testing.T) {
	manager, store, _ := newSessionFixture(t)
	ctx := context.Background()

	tokens, err := manager.CreateSession(ctx, testIdentity, SessionMeta{})
	require.NoError(t, err)

	// Demote the user between refreshes; the next access token must carry
	// the new role, not the one cached in the old token.
	store.mu.Lock()
	user := store.users["user-1"]
	user.Role = RoleViewer
	store.users["user-1"] = user
	store.mu.Unlock()

	rotated, err := manager.Refresh(ctx, tokens.RefreshToken, SessionMeta{})
	require.NoError(t, err)

	identity, err := manager.codec.Verify(rotated.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, identity.Role)
}

func TestSessionManager_NeverPersistsRawToken(t *testing.T) {
	manager, store, _ := newSessionFixture(t)
	ctx := context.Background()

	tokens, err := manager.CreateSession(ctx, testIdentity, SessionMeta{UserAgent: "go-test", IP: "10.0.0.1"})
	require.NoError(t, err)

	records := store.sessionRecords()
	require.Len(t, records, 1)
	record := records[0]
	assert.NotContains(t, record.TokenHash, tokens.RefreshToken)
	assert.NotEqual(t, tokens.RefreshToken, record.TokenHash)
	assert.Equal(t, hashToken(tokens.RefreshToken), record.TokenHash)
	assert.Equal(t, "tenant-1", record.TenantID)
	assert.Equal(t, "go-test", record.UserAgent)
	assert.Equal(t, "10.0.0.1", record.IP)
}

func TestSessionManager_RotationLinksSuccessor(t *testing.T) {
	manager, store, _ := newSessionFixture(t)
	ctx := context.Background()

	tokens, err := manager.CreateSession(ctx, testIdentity, SessionMeta{})
	require.NoError(t, err)
	rotated, err := manager.Refresh(ctx, tokens.RefreshToken, SessionMeta{})
	require.NoError(t, err)

	var old, next RefreshSession
	for _, record := range store.sessionRecords() {
		switch record.TokenHash {
		case hashToken(tokens.RefreshToken):
			old = record
		case hashToken(rotated.RefreshToken):
			next = record
		}
	}

	require.NotNil(t, old.RevokedAt)
	assert.Equal(t, next.ID, old.ReplacedBy)
	assert.Nil(t, next.RevokedAt)
	assert.False(t, strings.Contains(next.TokenHash, rotated.RefreshToken))
}
