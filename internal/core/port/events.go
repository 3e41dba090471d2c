package port

import (
	"context"

	"github.com/resumekit/credential-service/internal/core/domain"
)

// EventPublisher publishes credential lifecycle events to the message bus.
// The email-delivery collaborator subscribes downstream; this subsystem never
// sends mail directly.
type EventPublisher interface {
	PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
	PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error
	PublishOTPIssued(ctx context.Context, event domain.OTPIssuedEvent) error
}
