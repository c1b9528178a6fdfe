package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityEcho(t *testing.T, want Identity) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, want, identity)
		w.WriteHeader(http.StatusOK)
	})
}

func responseCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["code"]
}

func TestAuthenticate_BearerHeader(t *testing.T) {
	codec := NewTokenCodec([]byte("test-secret"))
	raw, err := codec.Sign(testIdentity, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()

	Authenticate(codec, identityEcho(t, testIdentity)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticate_Cookie(t *testing.T) {
	codec := NewTokenCodec([]byte("test-secret"))
	raw, err := codec.Sign(testIdentity, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: accessCookieName, Value: raw})
	rec := httptest.NewRecorder()

	Authenticate(codec, identityEcho(t, testIdentity)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticate_HeaderTakesPrecedence(t *testing.T) {
	codec := NewTokenCodec([]byte("test-secret"))
	good, err := codec.Sign(testIdentity, time.Hour)
	require.NoError(t, err)
	bad, err := NewTokenCodec([]byte("other-secret")).Sign(testIdentity, time.Hour)
	require.NoError(t, err)

	// A bad header token must fail even when a valid cookie is present.
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+bad)
	req.AddCookie(&http.Cookie{Name: accessCookieName, Value: good})
	rec := httptest.NewRecorder()

	Authenticate(codec, identityEcho(t, testIdentity)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token_invalid_signature", responseCode(t, rec))
}

func TestAuthenticate_MissingCredentials(t *testing.T) {
	codec := NewTokenCodec([]byte("test-secret"))

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rec := httptest.NewRecorder()

	Authenticate(codec, identityEcho(t, testIdentity)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", responseCode(t, rec))
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	now := time.Now().UTC()
	clock := now
	codec := NewTokenCodec([]byte("test-secret")).WithClock(func() time.Time { return clock })

	raw, err := codec.Sign(testIdentity, time.Second)
	require.NoError(t, err)
	clock = now.Add(2 * time.Second)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()

	Authenticate(codec, identityEcho(t, testIdentity)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token_expired", responseCode(t, rec))
}

func TestAuthenticate_GarbageToken(t *testing.T) {
	codec := NewTokenCodec([]byte("test-secret"))

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()

	Authenticate(codec, identityEcho(t, testIdentity)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token_malformed", responseCode(t, rec))
}

func TestRequireRole(t *testing.T) {
	codec := NewTokenCodec([]byte("test-secret"))

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	cases := []struct {
		name    string
		role    Role
		allowed []Role
		status  int
	}{
		{"founder allowed", RoleFounder, []Role{RoleFounder, RoleBrandAdmin}, http.StatusOK},
		{"brand admin allowed", RoleBrandAdmin, []Role{RoleFounder, RoleBrandAdmin}, http.StatusOK},
		{"member forbidden", RoleMember, []Role{RoleFounder, RoleBrandAdmin}, http.StatusForbidden},
		{"viewer forbidden", RoleViewer, []Role{RoleFounder, RoleBrandAdmin}, http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			identity := testIdentity
			identity.Role = tc.role
			raw, err := codec.Sign(identity, time.Hour)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodGet, "/account/users", nil)
			req.Header.Set("Authorization", "Bearer "+raw)
			rec := httptest.NewRecorder()

			Authenticate(codec, RequireRole(ok, tc.allowed...)).ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusForbidden {
				assert.Equal(t, "role_forbidden", responseCode(t, rec))
			}
		})
	}
}

func TestRequireRole_WithoutAuthenticate(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/account/users", nil)

	RequireRole(http.NotFoundHandler(), RoleFounder).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
