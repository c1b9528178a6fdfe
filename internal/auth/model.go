package auth

import "time"

type Role string

const (
	RoleFounder    Role = "founder"
	RoleBrandAdmin Role = "brand_admin"
	RoleMember     Role = "member"
	RoleViewer     Role = "viewer"
)

// ParseRole maps a wire string onto the closed role set.
func ParseRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleFounder, RoleBrandAdmin, RoleMember, RoleViewer:
		return Role(value), true
	default:
		return "", false
	}
}

type AccountType string

const (
	AccountTypeBrand      AccountType = "brand"
	AccountTypeIndividual AccountType = "individual"
)

// Identity is the resolved tuple a verified request acts as. It is embedded
// inside access tokens and re-resolved from storage on login and refresh.
type Identity struct {
	TenantID    string      `json:"tenant_id"`
	UserID      string      `json:"user_id"`
	Role        Role        `json:"role"`
	AccountType AccountType `json:"account_type,omitempty"`
}

type Tenant struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// User carries the credential fields the lockout guard mutates alongside the
// identity fields cached into access tokens. An empty PasswordHash means
// password authentication is not enabled for the account.
type User struct {
	ID                  string
	TenantID            string
	Email               string
	PasswordHash        string
	Role                Role
	AccountType         AccountType
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	EmailVerifiedAt     *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (u User) Identity() Identity {
	return Identity{
		TenantID:    u.TenantID,
		UserID:      u.ID,
		Role:        u.Role,
		AccountType: u.AccountType,
	}
}

// RefreshSession is the server-side record behind an opaque refresh token.
// Only the sha256 hash of the raw token is ever persisted.
type RefreshSession struct {
	ID         string
	TenantID   string
	UserID     string
	TokenHash  string
	UserAgent  string
	IP         string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy string
}

type EphemeralPurpose string

const (
	PurposePasswordReset     EphemeralPurpose = "password_reset"
	PurposeEmailVerification EphemeralPurpose = "email_verification"
)

// EphemeralToken is the persisted half of a single-use opaque token.
// Records transition unused -> used exactly once and are never deleted.
type EphemeralToken struct {
	TokenHash string
	UserID    string
	TenantID  string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// SessionMeta is request metadata recorded on refresh sessions.
type SessionMeta struct {
	UserAgent string
	IP        string
}
