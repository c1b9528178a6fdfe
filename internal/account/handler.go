package account

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"

	"tenantgate/internal/auth"
)

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Me returns the profile of the authenticated identity.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "missing authenticated identity")
		return
	}

	profile, err := h.repo.ProfileByID(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "account no longer exists")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load profile")
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// ListUsers returns every account in the caller's tenant. Route is gated to
// founder and brand_admin.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "missing authenticated identity")
		return
	}

	profiles, err := h.repo.ListByTenant(r.Context(), identity.TenantID)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": profiles})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "error": message})
}
