package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type contextKey struct{}

var identityKey contextKey

// IdentityFromContext returns the identity published by Authenticate.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// Authenticate resolves the caller identity from either an Authorization
// bearer header or the access-token cookie. The header form wins when both
// are present (non-browser clients); any codec failure is rejected with a
// machine-readable 401, never passed through silently.
func Authenticate(codec *TokenCodec, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			raw = cookieValue(r, accessCookieName)
		}
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "missing authorization token")
			return
		}

		identity, err := codec.Verify(raw)
		if err != nil {
			writeTokenError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole gates a handler on the closed role set; a resolved identity
// outside the allowed set is rejected with 403.
func RequireRole(next http.Handler, allowed ...Role) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "missing authenticated identity")
			return
		}

		for _, role := range allowed {
			if identity.Role == role {
				next.ServeHTTP(w, r)
				return
			}
		}

		writeError(w, http.StatusForbidden, "role_forbidden", "role is not permitted")
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	return strings.TrimSpace(parts[1]), true
}

func writeTokenError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "token_expired", "access token expired")
	case errors.Is(err, ErrTokenSignature):
		writeError(w, http.StatusUnauthorized, "token_invalid_signature", "access token signature invalid")
	case errors.Is(err, ErrNotConfigured):
		writeError(w, http.StatusInternalServerError, "not_configured", "service is not configured")
	default:
		writeError(w, http.StatusUnauthorized, "token_malformed", "access token malformed")
	}
}
