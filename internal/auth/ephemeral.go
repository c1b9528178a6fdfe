package auth

import (
	"context"
	"fmt"
	"time"
)

// EphemeralTokens issues and redeems single-use opaque tokens for the
// password-reset and email-verification flows. Only the token hash is
// persisted; consumed and expired records are kept, never honored again, and
// never deleted.
type EphemeralTokens struct {
	store Store
	cfg   Config
	now   func() time.Time
}

func NewEphemeralTokens(store Store, cfg Config) *EphemeralTokens {
	return &EphemeralTokens{
		store: store,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (e *EphemeralTokens) WithClock(now func() time.Time) *EphemeralTokens {
	e.now = now
	return e
}

// Issue stores the hash of a fresh opaque token with a purpose-scoped expiry
// and returns the raw token for out-of-band delivery. Earlier unused tokens
// for the same user stay valid; each is independently hash-keyed.
func (e *EphemeralTokens) Issue(ctx context.Context, purpose EphemeralPurpose, userID, tenantID string) (string, error) {
	raw, err := newOpaqueToken()
	if err != nil {
		return "", fmt.Errorf("generate %s token: %w", purpose, err)
	}

	now := e.now()
	record := EphemeralToken{
		TokenHash: hashToken(raw),
		UserID:    userID,
		TenantID:  tenantID,
		ExpiresAt: now.Add(e.cfg.ephemeralTTL(purpose)),
		CreatedAt: now,
	}
	if err := e.store.CreateEphemeralToken(ctx, purpose, record); err != nil {
		return "", err
	}

	return raw, nil
}

// Redeem consumes a raw token exactly once and returns the user it was issued
// for. Failure kinds: ErrEphemeralInvalid (no matching record),
// ErrEphemeralUsed, ErrEphemeralExpired. The caller performs the follow-up
// state change (new password hash, verified email) as a separate step.
func (e *EphemeralTokens) Redeem(ctx context.Context, purpose EphemeralPurpose, rawToken string) (string, error) {
	record, err := e.store.EphemeralTokenByHash(ctx, purpose, hashToken(rawToken))
	if err != nil {
		return "", err
	}
	if record.UsedAt != nil {
		return "", ErrEphemeralUsed
	}

	now := e.now()
	if !record.ExpiresAt.After(now) {
		return "", ErrEphemeralExpired
	}

	consumed, err := e.store.ConsumeEphemeralToken(ctx, purpose, record.TokenHash, now)
	if err != nil {
		return "", err
	}
	if !consumed {
		// Lost the race against a concurrent redeem.
		return "", ErrEphemeralUsed
	}

	return record.UserID, nil
}
