package port

import (
	"context"

	"github.com/resumekit/credential-service/internal/core/domain"
)

// HostedAuth wraps the external identity service. Every call resolves to a
// (data, error) pair; a non-nil error means the operation did not take effect.
// Rejections the service reported in-band surface as *domain.HostedError;
// anything else is a transport or configuration failure.
type HostedAuth interface {
	SignUp(ctx context.Context, email, password string) (*domain.HostedSession, error)
	SignIn(ctx context.Context, email, password string) (*domain.HostedSession, error)
	SignOut(ctx context.Context) error
	// UpdatePassword changes the password of the currently held session's user.
	UpdatePassword(ctx context.Context, newPassword string) error
	SendPasswordResetEmail(ctx context.Context, email string) error
	// GetSession returns the currently held session, or (nil, nil) when none is
	// active or the held token has expired.
	GetSession(ctx context.Context) (*domain.HostedSession, error)
	// AdoptSession validates an access token delivered out of band (the emailed
	// recovery link) and installs it as the current session.
	AdoptSession(ctx context.Context, accessToken string) (*domain.HostedSession, error)
	// Subscribe registers a listener on the current-user stream. The returned
	// cancel func detaches the listener.
	Subscribe(buffer int) (<-chan domain.HostedUserChange, func())
}
