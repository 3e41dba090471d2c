package port

import (
	"context"
	"time"

	"github.com/resumekit/credential-service/internal/core/domain"
)

// OTPStore persists one-time codes keyed by email. Storing a new code for an
// email replaces any prior live code (last-issued-wins).
type OTPStore interface {
	Store(ctx context.Context, email, code string, ttl time.Duration) (*domain.OTPRecord, error)
	Fetch(ctx context.Context, email string) (*domain.OTPRecord, error)
	IncrementAttempts(ctx context.Context, email string) (int, error)
	// Delete removes the record, enforcing single-use semantics.
	Delete(ctx context.Context, email string) error
}

// VerifiedFlagStore records the per-email capability proving a successful OTP
// verification. The flag is single-use: it must be cleared once the gated
// password update completes or is abandoned.
type VerifiedFlagStore interface {
	Set(ctx context.Context, email string, ttl time.Duration) error
	IsSet(ctx context.Context, email string) (bool, error)
	Clear(ctx context.Context, email string) error
}
