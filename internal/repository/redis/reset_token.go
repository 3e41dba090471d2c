package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/resumekit/credential-service/internal/core/domain"
	"github.com/resumekit/credential-service/internal/core/port"
	"github.com/resumekit/credential-service/internal/repository"
)

const defaultResetTokenPrefix = "reset_token"

// ResetTokenRepository stores fallback reset-link tokens keyed by token hash.
// Only the hash ever reaches Redis; the raw token travels in the emailed link.
type ResetTokenRepository struct {
	client *red.Client
	prefix string
}

// NewResetTokenRepository constructs a repository with the provided Redis client and key prefix.
func NewResetTokenRepository(client *red.Client, keyPrefix string) *ResetTokenRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultResetTokenPrefix
	}

	return &ResetTokenRepository{client: client, prefix: prefix}
}

// Create persists the token record with the supplied TTL.
func (r *ResetTokenRepository) Create(ctx context.Context, token domain.ResetToken, ttl time.Duration) error {
	switch {
	case strings.TrimSpace(token.TokenHash) == "":
		return errors.New("token hash is required")
	case ttl <= 0:
		return errors.New("ttl must be positive")
	}

	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal reset token: %w", err)
	}

	if err := r.client.Set(ctx, r.key(token.TokenHash), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set reset token: %w", err)
	}

	return nil
}

// GetByHash returns the token record for the hash, or repository.ErrNotFound.
func (r *ResetTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.ResetToken, error) {
	tokenHash = strings.TrimSpace(tokenHash)
	if tokenHash == "" {
		return nil, errors.New("token hash is required")
	}

	raw, err := r.client.Get(ctx, r.key(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get reset token: %w", err)
	}

	var token domain.ResetToken
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("unmarshal reset token: %w", err)
	}

	return &token, nil
}

// Consume atomically fetches and removes the token record, enforcing single use.
func (r *ResetTokenRepository) Consume(ctx context.Context, tokenHash string) (*domain.ResetToken, error) {
	tokenHash = strings.TrimSpace(tokenHash)
	if tokenHash == "" {
		return nil, errors.New("token hash is required")
	}

	raw, err := r.client.GetDel(ctx, r.key(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis getdel reset token: %w", err)
	}

	var token domain.ResetToken
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("unmarshal reset token: %w", err)
	}

	return &token, nil
}

func (r *ResetTokenRepository) key(tokenHash string) string {
	return fmt.Sprintf("%s:%s", r.prefix, tokenHash)
}

var _ port.ResetTokenStore = (*ResetTokenRepository)(nil)
