package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Store is the contract this core needs from the external data store: keyed
// lookup, insert, and update on account credential fields, refresh sessions
// by token hash, and ephemeral tokens by token hash and purpose. Any store
// offering these operations suffices; the Postgres implementation lives in
// Repository.
type Store interface {
	CreateTenant(ctx context.Context, tenant Tenant) error
	CreateUser(ctx context.Context, user User) error

	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)

	// SaveLoginFailure persists the attempt counter and optional lockout
	// window after a failed password verification.
	SaveLoginFailure(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error
	// SaveLoginSuccess resets the counter, clears any lockout, and records
	// the login timestamp.
	SaveLoginSuccess(ctx context.Context, userID string, at time.Time) error
	// ClearLockout lazily resets an elapsed lockout window.
	ClearLockout(ctx context.Context, userID string) error

	SetPasswordHash(ctx context.Context, userID, hash string) error
	MarkEmailVerified(ctx context.Context, userID string, at time.Time) error

	CreateSession(ctx context.Context, session RefreshSession) error
	SessionByTokenHash(ctx context.Context, tokenHash string) (RefreshSession, error)
	// RevokeSessionByTokenHash is idempotent; unknown hashes are not an error.
	RevokeSessionByTokenHash(ctx context.Context, tokenHash string, at time.Time) error
	// RotateSession revokes the old session, links its successor, and inserts
	// the replacement in one atomic step. Returns ErrSessionRevoked if the
	// old session was already revoked by a concurrent rotation.
	RotateSession(ctx context.Context, oldSessionID string, next RefreshSession, at time.Time) error

	CreateEphemeralToken(ctx context.Context, purpose EphemeralPurpose, token EphemeralToken) error
	EphemeralTokenByHash(ctx context.Context, purpose EphemeralPurpose, tokenHash string) (EphemeralToken, error)
	// ConsumeEphemeralToken flips used_at exactly once; reports false when the
	// record was already consumed.
	ConsumeEphemeralToken(ctx context.Context, purpose EphemeralPurpose, tokenHash string, at time.Time) (bool, error)
}

// newOpaqueToken returns a high-entropy hex token for refresh and ephemeral
// credentials. The raw value goes to the caller; only its hash is stored.
func newOpaqueToken() (string, error) {
	b := make([]byte, 48)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
