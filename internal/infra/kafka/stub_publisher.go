package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/resumekit/credential-service/internal/core/domain"
	"github.com/resumekit/credential-service/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, email string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("email", email),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishAccountRegistered logs credentials.account.registered events.
func (p *StubPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	payload := map[string]any{
		"email":         event.Email,
		"display_name":  event.DisplayName,
		"role":          event.Role,
		"registered_at": event.RegisteredAt,
		"source":        event.Source,
		"metadata":      event.Metadata,
	}
	p.logEvent("credentials.account.registered", event.Email, event.RegisteredAt, payload)
	return nil
}

// PublishPasswordChanged logs credentials.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	payload := map[string]any{
		"email":      event.Email,
		"changed_at": event.ChangedAt,
		"flow":       event.Flow,
		"store":      event.Store,
		"metadata":   event.Metadata,
	}
	p.logEvent("credentials.password.changed", event.Email, event.ChangedAt, payload)
	return nil
}

// PublishPasswordResetRequested logs credentials.password.reset_requested events.
func (p *StubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	payload := map[string]any{
		"request_id":         event.RequestID,
		"requested_at":       event.RequestedAt,
		"delivery":           event.Delivery,
		"masked_destination": event.MaskedDestination,
		"ip_address":         event.IPAddress,
		"expires_at":         event.ExpiresAt,
		"metadata":           event.Metadata,
	}
	p.logEvent("credentials.password.reset_requested", event.Email, event.RequestedAt, payload)
	return nil
}

// PublishOTPIssued logs credentials.otp.issued events.
func (p *StubPublisher) PublishOTPIssued(_ context.Context, event domain.OTPIssuedEvent) error {
	payload := map[string]any{
		"masked_destination": event.MaskedDestination,
		"issued_at":          event.IssuedAt,
		"expires_at":         event.ExpiresAt,
		"metadata":           event.Metadata,
	}
	p.logEvent("credentials.otp.issued", event.Email, event.IssuedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
