package auth

import (
	"context"
	"time"
)

// LockoutGuard verifies submitted passwords and maintains the per-account
// failed-attempt counter and lockout window. It is the only writer of those
// credential fields. Concurrent failures can race on the counter
// (last-write-wins); the counter deters brute force, it is not an exact
// account.
type LockoutGuard struct {
	store  Store
	hasher Hasher
	cfg    Config
	now    func() time.Time
}

func NewLockoutGuard(store Store, hasher Hasher, cfg Config) *LockoutGuard {
	return &LockoutGuard{
		store:  store,
		hasher: hasher,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (g *LockoutGuard) WithClock(now func() time.Time) *LockoutGuard {
	g.now = now
	return g
}

// AttemptLogin checks the attempt budget and verifies the password.
// Failure kinds:
//   - ErrAccountLocked while a lockout window is active, regardless of
//     password correctness; no attempt is consumed.
//   - ErrAccountNotFound when no account matches the email.
//   - ErrPasswordAuthDisabled when the account has no password hash; not
//     counted as a failed attempt.
//   - ErrCredentialsRejected with the remaining attempt budget, or
//     ErrAccountLocked once the budget is exhausted.
func (g *LockoutGuard) AttemptLogin(ctx context.Context, email, password string) (User, error) {
	user, err := g.store.UserByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}

	now := g.now()
	if user.LockedUntil != nil {
		if now.Before(*user.LockedUntil) {
			return User{}, ErrAccountLocked{Until: user.LockedUntil.UTC()}
		}
		// Lock elapsed: lazy reset, no background sweep.
		if err := g.store.ClearLockout(ctx, user.ID); err != nil {
			return User{}, err
		}
		user.LockedUntil = nil
		user.FailedLoginAttempts = 0
	}

	if user.PasswordHash == "" {
		return User{}, ErrPasswordAuthDisabled
	}

	if !g.hasher.Verify(password, user.PasswordHash) {
		failed := user.FailedLoginAttempts + 1
		if failed >= g.cfg.MaxFailedAttempts {
			until := now.Add(g.cfg.LockoutDuration)
			if err := g.store.SaveLoginFailure(ctx, user.ID, failed, &until); err != nil {
				return User{}, err
			}
			return User{}, ErrAccountLocked{Until: until}
		}
		if err := g.store.SaveLoginFailure(ctx, user.ID, failed, nil); err != nil {
			return User{}, err
		}
		return User{}, ErrCredentialsRejected{AttemptsRemaining: g.cfg.MaxFailedAttempts - failed}
	}

	if err := g.store.SaveLoginSuccess(ctx, user.ID, now); err != nil {
		return User{}, err
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	lastLogin := now
	user.LastLoginAt = &lastLogin

	return user, nil
}
