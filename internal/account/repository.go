package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Profile is the read-only account view the identity endpoints return.
// Credential fields never leave the auth package.
type Profile struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenant_id"`
	Email           string     `json:"email"`
	Role            string     `json:"role"`
	AccountType     string     `json:"account_type"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var ErrNotFound = errors.New("account not found")

func (r *Repository) ProfileByID(ctx context.Context, id string) (Profile, error) {
	var p Profile
	var emailVerifiedAt, lastLoginAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, email, role, account_type, email_verified_at, last_login_at, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&p.ID, &p.TenantID, &p.Email, &p.Role, &p.AccountType, &emailVerifiedAt, &lastLoginAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("query profile: %w", err)
	}

	p.EmailVerifiedAt = nullTimePtr(emailVerifiedAt)
	p.LastLoginAt = nullTimePtr(lastLoginAt)

	return p, nil
}

func (r *Repository) ListByTenant(ctx context.Context, tenantID string) ([]Profile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, email, role, account_type, email_verified_at, last_login_at, created_at
		FROM users
		WHERE tenant_id = $1
		ORDER BY created_at ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query tenant users: %w", err)
	}
	defer rows.Close()

	profiles := make([]Profile, 0)
	for rows.Next() {
		var p Profile
		var emailVerifiedAt, lastLoginAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Email, &p.Role, &p.AccountType, &emailVerifiedAt, &lastLoginAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant user: %w", err)
		}
		p.EmailVerifiedAt = nullTimePtr(emailVerifiedAt)
		p.LastLoginAt = nullTimePtr(lastLoginAt)
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenant users: %w", err)
	}

	return profiles, nil
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}
