package port

import (
	"context"
	"time"

	"github.com/resumekit/credential-service/internal/core/domain"
)

// ResetTokenStore persists local fallback reset tokens, looked up by the
// SHA-256 hash of the raw token.
type ResetTokenStore interface {
	Create(ctx context.Context, token domain.ResetToken, ttl time.Duration) error
	GetByHash(ctx context.Context, hash string) (*domain.ResetToken, error)
	// Consume atomically fetches and removes the token, enforcing single-use semantics.
	Consume(ctx context.Context, hash string) (*domain.ResetToken, error)
}
