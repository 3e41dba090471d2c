package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/resumekit/credential-service/internal/core/domain"
	"github.com/resumekit/credential-service/internal/core/port"
)

const defaultFlagPrefix = "reset_verified"

// VerifiedFlagRepository records short-lived "code verified" markers so the
// password update step can corroborate that verification actually happened.
type VerifiedFlagRepository struct {
	client *red.Client
	prefix string
}

// NewVerifiedFlagRepository constructs a repository with the provided Redis client and key prefix.
func NewVerifiedFlagRepository(client *red.Client, keyPrefix string) *VerifiedFlagRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultFlagPrefix
	}

	return &VerifiedFlagRepository{client: client, prefix: prefix}
}

// Set marks the email as verified for the supplied TTL.
func (r *VerifiedFlagRepository) Set(ctx context.Context, email string, ttl time.Duration) error {
	email = domain.NormalizeEmail(email)
	switch {
	case email == "":
		return errors.New("email is required")
	case ttl <= 0:
		return errors.New("ttl must be positive")
	}

	if err := r.client.Set(ctx, r.key(email), "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set verified flag: %w", err)
	}

	return nil
}

// IsSet reports whether an unexpired verified marker exists for the email.
func (r *VerifiedFlagRepository) IsSet(ctx context.Context, email string) (bool, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return false, errors.New("email is required")
	}

	count, err := r.client.Exists(ctx, r.key(email)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists verified flag: %w", err)
	}

	return count > 0, nil
}

// Clear removes the verified marker. Missing keys are not an error.
func (r *VerifiedFlagRepository) Clear(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return errors.New("email is required")
	}

	if err := r.client.Del(ctx, r.key(email)).Err(); err != nil {
		return fmt.Errorf("redis delete verified flag: %w", err)
	}

	return nil
}

func (r *VerifiedFlagRepository) key(email string) string {
	return fmt.Sprintf("%s:%s", r.prefix, email)
}

var _ port.VerifiedFlagStore = (*VerifiedFlagRepository)(nil)
