package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionManager issues short-lived access tokens paired with long-lived
// opaque refresh tokens. Refresh rotates on use: the presented token is
// revoked, a successor is linked, and a fresh pair is returned, which limits
// the replay window after refresh-token theft.
type SessionManager struct {
	store Store
	codec *TokenCodec
	cfg   Config
	now   func() time.Time
}

func NewSessionManager(store Store, codec *TokenCodec, cfg Config) *SessionManager {
	return &SessionManager{
		store: store,
		codec: codec,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (m *SessionManager) WithClock(now func() time.Time) *SessionManager {
	m.now = now
	return m
}

// CreateSession mints an access token embedding the identity and persists a
// new refresh session keyed by the hash of a freshly generated opaque token.
// The raw refresh token is returned to the caller and never stored.
func (m *SessionManager) CreateSession(ctx context.Context, identity Identity, meta SessionMeta) (Tokens, error) {
	raw, err := newOpaqueToken()
	if err != nil {
		return Tokens{}, fmt.Errorf("generate refresh token: %w", err)
	}

	session, err := m.newSessionRecord(identity, raw, meta)
	if err != nil {
		return Tokens{}, err
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return Tokens{}, err
	}

	return m.tokensFor(identity, raw)
}

// Refresh validates the presented refresh token against its stored hash,
// re-resolves the identity fresh from the user record, and rotates the
// session.
func (m *SessionManager) Refresh(ctx context.Context, rawRefreshToken string, meta SessionMeta) (Tokens, error) {
	session, err := m.lookup(ctx, rawRefreshToken)
	if err != nil {
		return Tokens{}, err
	}

	user, err := m.store.UserByID(ctx, session.UserID)
	if err != nil {
		return Tokens{}, err
	}
	identity := user.Identity()

	raw, err := newOpaqueToken()
	if err != nil {
		return Tokens{}, fmt.Errorf("generate rotated refresh token: %w", err)
	}
	next, err := m.newSessionRecord(identity, raw, meta)
	if err != nil {
		return Tokens{}, err
	}
	if err := m.store.RotateSession(ctx, session.ID, next, m.now()); err != nil {
		return Tokens{}, err
	}

	return m.tokensFor(identity, raw)
}

// Revoke marks the matching session revoked. Unknown tokens are treated as
// already logged out.
func (m *SessionManager) Revoke(ctx context.Context, rawRefreshToken string) error {
	return m.store.RevokeSessionByTokenHash(ctx, hashToken(rawRefreshToken), m.now())
}

func (m *SessionManager) lookup(ctx context.Context, rawRefreshToken string) (RefreshSession, error) {
	session, err := m.store.SessionByTokenHash(ctx, hashToken(rawRefreshToken))
	if err != nil {
		return RefreshSession{}, err
	}
	if session.RevokedAt != nil {
		return RefreshSession{}, ErrSessionRevoked
	}
	if m.now().After(session.ExpiresAt) {
		return RefreshSession{}, ErrSessionExpired
	}
	return session, nil
}

func (m *SessionManager) newSessionRecord(identity Identity, rawToken string, meta SessionMeta) (RefreshSession, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return RefreshSession{}, fmt.Errorf("generate session id: %w", err)
	}

	now := m.now()
	return RefreshSession{
		ID:        id.String(),
		TenantID:  identity.TenantID,
		UserID:    identity.UserID,
		TokenHash: hashToken(rawToken),
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.cfg.RefreshTTL),
	}, nil
}

func (m *SessionManager) tokensFor(identity Identity, rawRefreshToken string) (Tokens, error) {
	access, err := m.codec.Sign(identity, m.cfg.AccessTTL)
	if err != nil {
		return Tokens{}, err
	}

	return Tokens{
		AccessToken:  access,
		RefreshToken: rawRefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(m.cfg.AccessTTL.Seconds()),
	}, nil
}
