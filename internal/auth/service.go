package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tenantgate/internal/mail"
)

// Service wires the guard, session manager, and ephemeral token service into
// the account-facing auth flows. Outbound delivery is a collaborator; without
// a real integration the mailer logs raw tokens for operator retrieval.
type Service struct {
	store     Store
	cfg       Config
	codec     *TokenCodec
	hasher    Hasher
	guard     *LockoutGuard
	sessions  *SessionManager
	ephemeral *EphemeralTokens
	mailer    mail.Mailer
}

func NewService(store Store, cfg Config, mailer mail.Mailer) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	codec := NewTokenCodec(cfg.Secret)
	hasher := NewHasher(cfg.BcryptCost)

	return &Service{
		store:     store,
		cfg:       cfg,
		codec:     codec,
		hasher:    hasher,
		guard:     NewLockoutGuard(store, hasher, cfg),
		sessions:  NewSessionManager(store, codec, cfg),
		ephemeral: NewEphemeralTokens(store, cfg),
		mailer:    mailer,
	}, nil
}

// Codec exposes the token codec for the request authenticator middleware.
func (s *Service) Codec() *TokenCodec {
	return s.codec
}

func (s *Service) Config() Config {
	return s.cfg
}

// Register creates a tenant with its founder account, starts a session, and
// issues an email-verification token.
func (s *Service) Register(ctx context.Context, tenantName, email, password string, meta SessionMeta) (Tokens, Identity, error) {
	email = normalizeEmail(email)

	tenantID, err := uuid.NewV7()
	if err != nil {
		return Tokens{}, Identity{}, fmt.Errorf("generate tenant id: %w", err)
	}
	userID, err := uuid.NewV7()
	if err != nil {
		return Tokens{}, Identity{}, fmt.Errorf("generate user id: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return Tokens{}, Identity{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	tenant := Tenant{ID: tenantID.String(), Name: tenantName, CreatedAt: now}
	user := User{
		ID:           userID.String(),
		TenantID:     tenant.ID,
		Email:        email,
		PasswordHash: hash,
		Role:         RoleFounder,
		AccountType:  AccountTypeBrand,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateTenant(ctx, tenant); err != nil {
		return Tokens{}, Identity{}, err
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return Tokens{}, Identity{}, err
	}

	identity := user.Identity()
	tokens, err := s.sessions.CreateSession(ctx, identity, meta)
	if err != nil {
		return Tokens{}, Identity{}, err
	}

	if err := s.sendEmailVerification(ctx, user); err != nil {
		return Tokens{}, Identity{}, err
	}

	return tokens, identity, nil
}

// Login runs the lockout guard and, on success, mints a fresh session.
func (s *Service) Login(ctx context.Context, email, password string, meta SessionMeta) (Tokens, Identity, error) {
	user, err := s.guard.AttemptLogin(ctx, normalizeEmail(email), password)
	if err != nil {
		return Tokens{}, Identity{}, err
	}

	identity := user.Identity()
	tokens, err := s.sessions.CreateSession(ctx, identity, meta)
	if err != nil {
		return Tokens{}, Identity{}, err
	}

	return tokens, identity, nil
}

func (s *Service) Refresh(ctx context.Context, rawRefreshToken string, meta SessionMeta) (Tokens, error) {
	rawRefreshToken = strings.TrimSpace(rawRefreshToken)
	if rawRefreshToken == "" {
		return Tokens{}, ErrNoSession
	}
	return s.sessions.Refresh(ctx, rawRefreshToken, meta)
}

func (s *Service) Logout(ctx context.Context, rawRefreshToken string) error {
	rawRefreshToken = strings.TrimSpace(rawRefreshToken)
	if rawRefreshToken == "" {
		return nil
	}
	return s.sessions.Revoke(ctx, rawRefreshToken)
}

// ForgotPassword issues a reset token when the account exists and hands it to
// the mailer. It returns nil either way: the public entry point must not
// reveal account existence.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.store.UserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil
		}
		return err
	}

	raw, err := s.ephemeral.Issue(ctx, PurposePasswordReset, user.ID, user.TenantID)
	if err != nil {
		return err
	}

	return s.mailer.SendPasswordReset(ctx, user.Email, raw)
}

// ResetPassword redeems a reset token, stores the new password hash, and
// clears the lockout state for the account.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	userID, err := s.ephemeral.Redeem(ctx, PurposePasswordReset, strings.TrimSpace(rawToken))
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return s.store.SetPasswordHash(ctx, userID, hash)
}

// RequestEmailVerification issues a fresh verification token for the
// authenticated account.
func (s *Service) RequestEmailVerification(ctx context.Context, identity Identity) error {
	user, err := s.store.UserByID(ctx, identity.UserID)
	if err != nil {
		return err
	}
	return s.sendEmailVerification(ctx, user)
}

// ConfirmEmail redeems a verification token and marks the account verified.
func (s *Service) ConfirmEmail(ctx context.Context, rawToken string) error {
	userID, err := s.ephemeral.Redeem(ctx, PurposeEmailVerification, strings.TrimSpace(rawToken))
	if err != nil {
		return err
	}
	return s.store.MarkEmailVerified(ctx, userID, time.Now().UTC())
}

func (s *Service) sendEmailVerification(ctx context.Context, user User) error {
	raw, err := s.ephemeral.Issue(ctx, PurposeEmailVerification, user.ID, user.TenantID)
	if err != nil {
		return err
	}
	return s.mailer.SendEmailVerification(ctx, user.Email, raw)
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
