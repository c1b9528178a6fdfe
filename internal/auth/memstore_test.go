package auth

import (
	"context"
	"sync"
	"time"
)

// memStore is an in-memory Store used across the package tests so no
// database is needed to exercise the auth flows.
type memStore struct {
	mu        sync.Mutex
	tenants   map[string]Tenant
	users     map[string]User
	byEmail   map[string]string
	sessions  map[string]RefreshSession // keyed by token hash
	ephemeral map[EphemeralPurpose]map[string]EphemeralToken
}

func newMemStore() *memStore {
	return &memStore{
		tenants: make(map[string]Tenant),
		users:   make(map[string]User),
		byEmail: make(map[string]string),
		sessions: make(map[string]RefreshSession),
		ephemeral: map[EphemeralPurpose]map[string]EphemeralToken{
			PurposePasswordReset:     make(map[string]EphemeralToken),
			PurposeEmailVerification: make(map[string]EphemeralToken),
		},
	}
}

func (s *memStore) CreateTenant(ctx context.Context, tenant Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[tenant.ID] = tenant
	return nil
}

func (s *memStore) CreateUser(ctx context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[user.Email]; exists {
		return ErrEmailTaken
	}
	s.users[user.ID] = user
	s.byEmail[user.Email] = user.ID
	return nil
}

func (s *memStore) UserByEmail(ctx context.Context, email string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return User{}, ErrAccountNotFound
	}
	return s.users[id], nil
}

func (s *memStore) UserByID(ctx context.Context, id string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return User{}, ErrAccountNotFound
	}
	return user, nil
}

func (s *memStore) SaveLoginFailure(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[userID]
	user.FailedLoginAttempts = failedAttempts
	user.LockedUntil = lockedUntil
	s.users[userID] = user
	return nil
}

func (s *memStore) SaveLoginSuccess(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[userID]
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &at
	s.users[userID] = user
	return nil
}

func (s *memStore) ClearLockout(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[userID]
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	s.users[userID] = user
	return nil
}

func (s *memStore) SetPasswordHash(ctx context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[userID]
	user.PasswordHash = hash
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	s.users[userID] = user
	return nil
}

func (s *memStore) MarkEmailVerified(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[userID]
	if user.EmailVerifiedAt == nil {
		user.EmailVerifiedAt = &at
	}
	s.users[userID] = user
	return nil
}

func (s *memStore) CreateSession(ctx context.Context, session RefreshSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.TokenHash] = session
	return nil
}

func (s *memStore) SessionByTokenHash(ctx context.Context, tokenHash string) (RefreshSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[tokenHash]
	if !ok {
		return RefreshSession{}, ErrNoSession
	}
	return session, nil
}

func (s *memStore) RevokeSessionByTokenHash(ctx context.Context, tokenHash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[tokenHash]
	if !ok || session.RevokedAt != nil {
		return nil
	}
	session.RevokedAt = &at
	s.sessions[tokenHash] = session
	return nil
}

func (s *memStore) RotateSession(ctx context.Context, oldSessionID string, next RefreshSession, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, session := range s.sessions {
		if session.ID != oldSessionID {
			continue
		}
		if session.RevokedAt != nil {
			return ErrSessionRevoked
		}
		session.RevokedAt = &at
		session.ReplacedBy = next.ID
		s.sessions[hash] = session
		s.sessions[next.TokenHash] = next
		return nil
	}

	return ErrSessionRevoked
}

func (s *memStore) CreateEphemeralToken(ctx context.Context, purpose EphemeralPurpose, token EphemeralToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ephemeral[purpose][token.TokenHash] = token
	return nil
}

func (s *memStore) EphemeralTokenByHash(ctx context.Context, purpose EphemeralPurpose, tokenHash string) (EphemeralToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.ephemeral[purpose][tokenHash]
	if !ok {
		return EphemeralToken{}, ErrEphemeralInvalid
	}
	return token, nil
}

func (s *memStore) ConsumeEphemeralToken(ctx context.Context, purpose EphemeralPurpose, tokenHash string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.ephemeral[purpose][tokenHash]
	if !ok || token.UsedAt != nil {
		return false, nil
	}
	token.UsedAt = &at
	s.ephemeral[purpose][tokenHash] = token
	return true, nil
}

func (s *memStore) sessionRecords() []RefreshSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]RefreshSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		records = append(records, session)
	}
	return records
}

func (s *memStore) ephemeralRecords(purpose EphemeralPurpose) []EphemeralToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]EphemeralToken, 0, len(s.ephemeral[purpose]))
	for _, token := range s.ephemeral[purpose] {
		records = append(records, token)
	}
	return records
}

var _ Store = (*memStore)(nil)
