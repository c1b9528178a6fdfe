package auth

import (
	"errors"
	"time"
)

// Expected failure kinds. Every one of these is recovered at the HTTP
// boundary into a stable machine-readable code; none escapes unmapped.
var (
	ErrNotConfigured = errors.New("signing secret not configured")

	ErrTokenMalformed = errors.New("access token malformed")
	ErrTokenSignature = errors.New("access token signature invalid")
	ErrTokenExpired   = errors.New("access token expired")

	ErrNoSession      = errors.New("refresh session not found")
	ErrSessionRevoked = errors.New("refresh session revoked")
	ErrSessionExpired = errors.New("refresh session expired")

	ErrAccountNotFound      = errors.New("account not found")
	ErrPasswordAuthDisabled = errors.New("password auth not enabled")
	ErrEmailTaken           = errors.New("email already registered")

	ErrEphemeralInvalid = errors.New("ephemeral token invalid")
	ErrEphemeralUsed    = errors.New("ephemeral token already used")
	ErrEphemeralExpired = errors.New("ephemeral token expired")
)

// ErrAccountLocked reports an active lockout window. Remaining wait time is
// deliberately revealed to the caller.
type ErrAccountLocked struct {
	Until time.Time
}

func (e ErrAccountLocked) Error() string {
	return "account temporarily locked"
}

func (e ErrAccountLocked) RetryAfter(now time.Time) time.Duration {
	remaining := e.Until.Sub(now)
	if remaining < time.Second {
		remaining = time.Second
	}
	return remaining
}

// ErrCredentialsRejected reports a failed password verification and the
// attempt budget left before lockout. AttemptsRemaining is exposed on the Go
// API only; the HTTP boundary collapses it into a uniform invalid_credentials
// response that does not distinguish wrong password from unknown account.
type ErrCredentialsRejected struct {
	AttemptsRemaining int
}

func (e ErrCredentialsRejected) Error() string {
	return "invalid credentials"
}
