package mail

import (
	"context"

	"tenantgate/internal/observability"
)

// Mailer delivers ephemeral tokens out of band. Real delivery lives outside
// this service; implementations receive the raw token and the destination
// address.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, rawToken string) error
	SendEmailVerification(ctx context.Context, email, rawToken string) error
}

// LogMailer records tokens on the structured log for operator retrieval. It
// is the default when no outbound mail integration is configured.
type LogMailer struct {
	logger *observability.Logger
}

func NewLogMailer(logger *observability.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, email, rawToken string) error {
	m.logger.Info("password_reset_token_issued", map[string]any{
		"email": email,
		"token": rawToken,
	})
	return nil
}

func (m *LogMailer) SendEmailVerification(ctx context.Context, email, rawToken string) error {
	m.logger.Info("email_verification_token_issued", map[string]any{
		"email": email,
		"token": rawToken,
	})
	return nil
}
