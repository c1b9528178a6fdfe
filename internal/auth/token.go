package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// accessClaims is the signed payload of an access token. The identity fields
// are required; a token missing any of them is rejected as malformed.
type accessClaims struct {
	TenantID    string `json:"tenant_id"`
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	AccountType string `json:"account_type,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 access tokens. Verification is pure:
// no I/O, no store lookups, deterministic given the secret and the clock.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

func NewTokenCodec(secret []byte) *TokenCodec {
	return &TokenCodec{
		secret: secret,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the codec clock. Intended for tests.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	c.now = now
	return c
}

func (c *TokenCodec) Sign(identity Identity, ttl time.Duration) (string, error) {
	if len(c.secret) == 0 {
		return "", ErrNotConfigured
	}

	now := c.now()
	claims := accessClaims{
		TenantID:    identity.TenantID,
		UserID:      identity.UserID,
		Role:        string(identity.Role),
		AccountType: string(identity.AccountType),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", err
	}

	return signed, nil
}

func (c *TokenCodec) Verify(raw string) (Identity, error) {
	if len(c.secret) == 0 {
		return Identity{}, ErrNotConfigured
	}
	if strings.Count(raw, ".") != 2 {
		return Identity{}, ErrTokenMalformed
	}

	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Identity{}, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Identity{}, ErrTokenSignature
		default:
			return Identity{}, ErrTokenMalformed
		}
	}
	if !token.Valid {
		return Identity{}, ErrTokenSignature
	}

	role, ok := ParseRole(claims.Role)
	if !ok || claims.TenantID == "" || claims.UserID == "" {
		return Identity{}, ErrTokenMalformed
	}

	return Identity{
		TenantID:    claims.TenantID,
		UserID:      claims.UserID,
		Role:        role,
		AccountType: AccountType(claims.AccountType),
	}, nil
}
