package auth

import "time"

const (
	defaultAccessTTL       = 15 * time.Minute
	defaultRefreshTTL      = 7 * 24 * time.Hour
	defaultMaxAttempts     = 5
	defaultLockWindow      = 15 * time.Minute
	defaultResetTTL        = time.Hour
	defaultVerificationTTL = 24 * time.Hour
)

// Config is the process-wide auth configuration, loaded once at boot and
// injected into constructors. It is read-only after construction so tests can
// supply distinct secrets and thresholds per case.
type Config struct {
	Secret []byte

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	MaxFailedAttempts int
	LockoutDuration   time.Duration

	PasswordResetTTL     time.Duration
	EmailVerificationTTL time.Duration

	BcryptCost int

	// Production controls Secure cookie flags and whether raw ephemeral
	// tokens are ever echoed back in API responses.
	Production bool
}

// Validate reports a fatal misconfiguration. A missing signing secret is the
// only condition that must stop the process at boot.
func (c Config) Validate() error {
	if len(c.Secret) == 0 {
		return ErrNotConfigured
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.AccessTTL <= 0 {
		c.AccessTTL = defaultAccessTTL
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = defaultRefreshTTL
	}
	if c.MaxFailedAttempts <= 0 {
		c.MaxFailedAttempts = defaultMaxAttempts
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = defaultLockWindow
	}
	if c.PasswordResetTTL <= 0 {
		c.PasswordResetTTL = defaultResetTTL
	}
	if c.EmailVerificationTTL <= 0 {
		c.EmailVerificationTTL = defaultVerificationTTL
	}
	return c
}

func (c Config) ephemeralTTL(purpose EphemeralPurpose) time.Duration {
	if purpose == PurposeEmailVerification {
		return c.EmailVerificationTTL
	}
	return c.PasswordResetTTL
}
