package auth

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const (
	maxJSONBodyBytes  = 1 << 20
	minPasswordLength = 8
	maxPasswordLength = 200

	accessCookieName  = "access_token"
	refreshCookieName = "refresh_token"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	TenantName string `json:"tenant_name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type confirmEmailRequest struct {
	Token string `json:"token"`
}

type sessionResponse struct {
	Tokens
	Identity Identity `json:"identity"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.TenantName = strings.TrimSpace(body.TenantName)
	if body.TenantName == "" || len(body.TenantName) > 120 {
		writeError(w, http.StatusBadRequest, "invalid_request", "tenant name is invalid")
		return
	}
	if !validEmail(body.Email) {
		writeError(w, http.StatusBadRequest, "invalid_request", "email format is invalid")
		return
	}
	if !validPassword(body.Password) {
		writeError(w, http.StatusBadRequest, "invalid_request", "password format is invalid")
		return
	}

	tokens, identity, err := h.service.Register(r.Context(), body.TenantName, body.Email, body.Password, requestMeta(r))
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.setAuthCookies(w, tokens)
	writeJSON(w, http.StatusCreated, sessionResponse{Tokens: tokens, Identity: identity})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if !validEmail(body.Email) {
		writeError(w, http.StatusBadRequest, "invalid_request", "email format is invalid")
		return
	}
	if !validPassword(body.Password) {
		writeError(w, http.StatusBadRequest, "invalid_request", "password format is invalid")
		return
	}

	tokens, identity, err := h.service.Login(r.Context(), body.Email, body.Password, requestMeta(r))
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.setAuthCookies(w, tokens)
	writeJSON(w, http.StatusOK, sessionResponse{Tokens: tokens, Identity: identity})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	raw := strings.TrimSpace(body.RefreshToken)
	if raw == "" {
		raw = cookieValue(r, refreshCookieName)
	}

	tokens, err := h.service.Refresh(r.Context(), raw, requestMeta(r))
	if err != nil {
		h.clearAuthCookies(w)
		h.writeAuthError(w, err)
		return
	}

	h.setAuthCookies(w, tokens)
	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	raw := strings.TrimSpace(body.RefreshToken)
	if raw == "" {
		raw = cookieValue(r, refreshCookieName)
	}

	if err := h.service.Logout(r.Context(), raw); err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.clearAuthCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// ForgotPassword responds identically whether or not the account exists.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body forgotPasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if !validEmail(body.Email) {
		writeError(w, http.StatusBadRequest, "invalid_request", "email format is invalid")
		return
	}

	if err := h.service.ForgotPassword(r.Context(), body.Email); err != nil {
		h.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if strings.TrimSpace(body.Token) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}
	if !validPassword(body.NewPassword) {
		writeError(w, http.StatusBadRequest, "invalid_request", "password format is invalid")
		return
	}

	if err := h.service.ResetPassword(r.Context(), body.Token, body.NewPassword); err != nil {
		h.writeAuthError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RequestEmailVerification(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "missing authenticated identity")
		return
	}

	if err := h.service.RequestEmailVerification(r.Context(), identity); err != nil {
		h.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	var body confirmEmailRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if strings.TrimSpace(body.Token) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}

	if err := h.service.ConfirmEmail(r.Context(), body.Token); err != nil {
		h.writeAuthError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeAuthError maps the closed error set onto stable machine-readable codes.
// Unknown account, disabled password auth, and wrong password all collapse
// into one invalid_credentials response; lockout deliberately reveals the
// remaining wait.
func (h *Handler) writeAuthError(w http.ResponseWriter, err error) {
	var locked ErrAccountLocked
	var rejected ErrCredentialsRejected

	switch {
	case errors.As(err, &locked):
		retryAfter := int(locked.RetryAfter(time.Now().UTC()).Seconds())
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeError(w, http.StatusLocked, "account_locked", "account temporarily locked")
	case errors.As(err, &rejected),
		errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrPasswordAuthDisabled):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
	case errors.Is(err, ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", "email already registered")
	case errors.Is(err, ErrNoSession):
		writeError(w, http.StatusUnauthorized, "no_session", "refresh session not found")
	case errors.Is(err, ErrSessionRevoked):
		writeError(w, http.StatusUnauthorized, "session_revoked", "refresh session revoked")
	case errors.Is(err, ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, "session_expired", "refresh session expired")
	case errors.Is(err, ErrEphemeralInvalid):
		writeError(w, http.StatusUnauthorized, "token_invalid", "token is invalid")
	case errors.Is(err, ErrEphemeralUsed):
		writeError(w, http.StatusUnauthorized, "token_used", "token was already used")
	case errors.Is(err, ErrEphemeralExpired):
		writeError(w, http.StatusUnauthorized, "token_expired", "token expired")
	case errors.Is(err, ErrNotConfigured):
		writeError(w, http.StatusInternalServerError, "not_configured", "service is not configured")
	default:
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "internal_error", "request failed")
	}
}

func (h *Handler) setAuthCookies(w http.ResponseWriter, tokens Tokens) {
	cfg := h.service.Config()
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    tokens.AccessToken,
		Path:     "/",
		MaxAge:   int(cfg.AccessTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Production,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    tokens.RefreshToken,
		Path:     "/auth",
		MaxAge:   int(cfg.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Production,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearAuthCookies(w http.ResponseWriter) {
	cfg := h.service.Config()
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Production,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Production,
		SameSite: http.SameSiteLaxMode,
	})
}

func requestMeta(r *http.Request) SessionMeta {
	return SessionMeta{
		UserAgent: r.UserAgent(),
		IP:        clientIP(r),
	}
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	// An empty body is fine: the cookie path sends no JSON.
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return false
	}

	return true
}

func validEmail(email string) bool {
	email = strings.TrimSpace(email)
	return len(email) <= 254 && emailRegex.MatchString(email)
}

func validPassword(password string) bool {
	return len(password) >= minPasswordLength && len(password) <= maxPasswordLength
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "error": message})
}
