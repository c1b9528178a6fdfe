package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository is the Postgres-backed Store. Row-level atomicity (conditional
// updates keyed on primary lookups) is the only concurrency guard; there is
// no application-level locking.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

type CleanupResult struct {
	DeletedRefreshSessions int64 `json:"deleted_refresh_sessions"`
	DeletedIPLimits        int64 `json:"deleted_ip_limits"`
}

func (r *Repository) CreateTenant(ctx context.Context, tenant Tenant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, created_at)
		VALUES ($1, $2, $3)
	`, tenant.ID, tenant.Name, tenant.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}

	return nil
}

func (r *Repository) CreateUser(ctx context.Context, user User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, tenant_id, email, password_hash, role, account_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, user.ID, user.TenantID, user.Email, user.PasswordHash, string(user.Role), string(user.AccountType), user.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

const userColumns = `
	id, tenant_id, email, password_hash, role, account_type,
	failed_login_attempts, locked_until, last_login_at, email_verified_at,
	created_at, updated_at
`

func (r *Repository) UserByEmail(ctx context.Context, email string) (User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1
	`, email))
}

func (r *Repository) UserByID(ctx context.Context, id string) (User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id))
}

func (r *Repository) scanUser(row *sql.Row) (User, error) {
	var user User
	var role, accountType string
	var lockedUntil, lastLoginAt, emailVerifiedAt sql.NullTime
	err := row.Scan(
		&user.ID, &user.TenantID, &user.Email, &user.PasswordHash, &role, &accountType,
		&user.FailedLoginAttempts, &lockedUntil, &lastLoginAt, &emailVerifiedAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrAccountNotFound
		}
		return User{}, fmt.Errorf("query user: %w", err)
	}

	user.Role = Role(role)
	user.AccountType = AccountType(accountType)
	user.LockedUntil = nullTimePtr(lockedUntil)
	user.LastLoginAt = nullTimePtr(lastLoginAt)
	user.EmailVerifiedAt = nullTimePtr(emailVerifiedAt)

	return user, nil
}

func (r *Repository) SaveLoginFailure(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	var lockedValue any
	if lockedUntil != nil {
		lockedValue = lockedUntil.UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = $2, locked_until = $3, updated_at = NOW()
		WHERE id = $1
	`, userID, failedAttempts, lockedValue)
	if err != nil {
		return fmt.Errorf("save login failure: %w", err)
	}

	return nil
}

func (r *Repository) SaveLoginSuccess(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL, last_login_at = $2, updated_at = NOW()
		WHERE id = $1
	`, userID, at.UTC())
	if err != nil {
		return fmt.Errorf("save login success: %w", err)
	}

	return nil
}

func (r *Repository) ClearLockout(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("clear lockout: %w", err)
	}

	return nil
}

func (r *Repository) SetPasswordHash(ctx context.Context, userID, hash string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $2, failed_login_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`, userID, hash)
	if err != nil {
		return fmt.Errorf("set password hash: %w", err)
	}

	return nil
}

func (r *Repository) MarkEmailVerified(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET email_verified_at = COALESCE(email_verified_at, $2), updated_at = NOW()
		WHERE id = $1
	`, userID, at.UTC())
	if err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}

	return nil
}

func (r *Repository) CreateSession(ctx context.Context, session RefreshSession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_refresh_sessions (id, tenant_id, user_id, token_hash, user_agent, ip, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, session.ID, session.TenantID, session.UserID, session.TokenHash,
		session.UserAgent, session.IP, session.IssuedAt.UTC(), session.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert refresh session: %w", err)
	}

	return nil
}

func (r *Repository) SessionByTokenHash(ctx context.Context, tokenHash string) (RefreshSession, error) {
	var session RefreshSession
	var userAgent, ip, replacedBy sql.NullString
	var revokedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, user_id, token_hash, user_agent, ip, issued_at, expires_at, revoked_at, replaced_by
		FROM auth_refresh_sessions
		WHERE token_hash = $1
	`, tokenHash).Scan(
		&session.ID, &session.TenantID, &session.UserID, &session.TokenHash,
		&userAgent, &ip, &session.IssuedAt, &session.ExpiresAt, &revokedAt, &replacedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RefreshSession{}, ErrNoSession
		}
		return RefreshSession{}, fmt.Errorf("query refresh session: %w", err)
	}

	session.UserAgent = userAgent.String
	session.IP = ip.String
	session.ReplacedBy = replacedBy.String
	session.RevokedAt = nullTimePtr(revokedAt)

	return session, nil
}

func (r *Repository) RevokeSessionByTokenHash(ctx context.Context, tokenHash string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE auth_refresh_sessions
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE token_hash = $1
	`, tokenHash, at.UTC())
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}

	return nil
}

func (r *Repository) RotateSession(ctx context.Context, oldSessionID string, next RefreshSession, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session rotation tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE auth_refresh_sessions
		SET revoked_at = $2, replaced_by = $3
		WHERE id = $1 AND revoked_at IS NULL
	`, oldSessionID, at.UTC(), next.ID)
	if err != nil {
		return fmt.Errorf("revoke rotated session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session rotation rows affected: %w", err)
	}
	if affected == 0 {
		// A concurrent rotation or an explicit revoke won; treat the
		// presented token as replayed.
		return ErrSessionRevoked
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO auth_refresh_sessions (id, tenant_id, user_id, token_hash, user_agent, ip, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, next.ID, next.TenantID, next.UserID, next.TokenHash,
		next.UserAgent, next.IP, next.IssuedAt.UTC(), next.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert rotated session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session rotation tx: %w", err)
	}

	return nil
}

func ephemeralTable(purpose EphemeralPurpose) string {
	if purpose == PurposeEmailVerification {
		return "auth_email_verification_tokens"
	}
	return "auth_password_reset_tokens"
}

func (r *Repository) CreateEphemeralToken(ctx context.Context, purpose EphemeralPurpose, token EphemeralToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO `+ephemeralTable(purpose)+` (token_hash, user_id, tenant_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, token.TokenHash, token.UserID, token.TenantID, token.ExpiresAt.UTC(), token.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert %s token: %w", purpose, err)
	}

	return nil
}

func (r *Repository) EphemeralTokenByHash(ctx context.Context, purpose EphemeralPurpose, tokenHash string) (EphemeralToken, error) {
	var token EphemeralToken
	var usedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT token_hash, user_id, tenant_id, expires_at, used_at, created_at
		FROM `+ephemeralTable(purpose)+`
		WHERE token_hash = $1
	`, tokenHash).Scan(&token.TokenHash, &token.UserID, &token.TenantID, &token.ExpiresAt, &usedAt, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return EphemeralToken{}, ErrEphemeralInvalid
		}
		return EphemeralToken{}, fmt.Errorf("query %s token: %w", purpose, err)
	}

	token.UsedAt = nullTimePtr(usedAt)

	return token, nil
}

func (r *Repository) ConsumeEphemeralToken(ctx context.Context, purpose EphemeralPurpose, tokenHash string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE `+ephemeralTable(purpose)+`
		SET used_at = $2
		WHERE token_hash = $1 AND used_at IS NULL
	`, tokenHash, at.UTC())
	if err != nil {
		return false, fmt.Errorf("consume %s token: %w", purpose, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume %s token rows affected: %w", purpose, err)
	}

	return affected > 0, nil
}

// AllowLoginIP applies a fixed-window per-IP budget on the credential
// endpoints, tracked in the store so it holds across instances.
func (r *Repository) AllowLoginIP(ctx context.Context, ip string, maxHits int, window time.Duration, now time.Time) (bool, time.Duration, error) {
	threshold := now.UTC().Add(-window)

	var hits int
	var windowStartedAt time.Time
	err := r.db.QueryRowContext(ctx, `
		WITH upsert AS (
			INSERT INTO auth_login_ip_limits (ip, window_started_at, hits, updated_at)
			VALUES ($1, $2, 1, $2)
			ON CONFLICT (ip) DO UPDATE
			SET
				hits = CASE
					WHEN auth_login_ip_limits.window_started_at <= $3 THEN 1
					ELSE auth_login_ip_limits.hits + 1
				END,
				window_started_at = CASE
					WHEN auth_login_ip_limits.window_started_at <= $3 THEN $2
					ELSE auth_login_ip_limits.window_started_at
				END,
				updated_at = $2
			RETURNING hits, window_started_at
		)
		SELECT hits, window_started_at FROM upsert
	`, ip, now.UTC(), threshold).Scan(&hits, &windowStartedAt)
	if err != nil {
		return false, 0, fmt.Errorf("upsert login ip rate limit: %w", err)
	}

	if hits <= maxHits {
		return true, 0, nil
	}

	retryAfter := windowStartedAt.Add(window).Sub(now.UTC())
	if retryAfter < time.Second {
		retryAfter = time.Second
	}

	return false, retryAfter, nil
}

// CleanupStaleAuthData batch-deletes expired or long-revoked refresh sessions
// and stale IP-limit rows. Ephemeral token records are exempt: they are kept
// for audit and replay detection.
func (r *Repository) CleanupStaleAuthData(ctx context.Context, refreshRetention time.Duration, batchSize int) (CleanupResult, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	if refreshRetention <= 0 {
		refreshRetention = 14 * 24 * time.Hour
	}

	cutoff := time.Now().UTC().Add(-refreshRetention)

	deletedSessions, err := r.deleteStaleSessions(ctx, cutoff, batchSize)
	if err != nil {
		return CleanupResult{}, err
	}

	deletedIPLimits, err := r.deleteStaleIPLimits(ctx, cutoff, batchSize)
	if err != nil {
		return CleanupResult{}, err
	}

	return CleanupResult{
		DeletedRefreshSessions: deletedSessions,
		DeletedIPLimits:        deletedIPLimits,
	}, nil
}

func (r *Repository) deleteStaleSessions(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM auth_refresh_sessions
			WHERE expires_at < NOW() OR (revoked_at IS NOT NULL AND revoked_at < $1)
			ORDER BY issued_at ASC
			LIMIT $2
		)
		DELETE FROM auth_refresh_sessions s
		USING stale
		WHERE s.id = stale.id
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale refresh sessions: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale refresh sessions rows affected: %w", err)
	}

	return affected, nil
}

func (r *Repository) deleteStaleIPLimits(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT ip
			FROM auth_login_ip_limits
			WHERE updated_at < $1
			ORDER BY updated_at ASC
			LIMIT $2
		)
		DELETE FROM auth_login_ip_limits t
		USING stale
		WHERE t.ip = stale.ip
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale login ip limits: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale login ip limits rows affected: %w", err)
	}

	return affected, nil
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}

func isUniqueViolation(err error) bool {
	// pgx surfaces SQLSTATE 23505 in the error text through database/sql.
	return err != nil && strings.Contains(err.Error(), "23505")
}
