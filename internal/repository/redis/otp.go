package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/resumekit/credential-service/internal/core/domain"
	"github.com/resumekit/credential-service/internal/core/port"
	"github.com/resumekit/credential-service/internal/repository"
)

const (
	defaultOTPPrefix = "reset_otp"

	fieldCode      = "code"
	fieldCreatedAt = "created_at"
	fieldExpiresAt = "expires_at"
	fieldAttempts  = "attempts"
)

// OTPRepository persists password-recovery codes in Redis hashes, one hash
// per email so issuing a fresh code replaces whatever was pending.
type OTPRepository struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

// NewOTPRepository constructs a new OTP repository with the provided Redis client and key prefix.
func NewOTPRepository(client *red.Client, keyPrefix string) *OTPRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultOTPPrefix
	}

	return &OTPRepository{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// Store persists a recovery code for the email with the supplied TTL,
// replacing any code already pending for that address.
func (r *OTPRepository) Store(ctx context.Context, email, code string, ttl time.Duration) (*domain.OTPRecord, error) {
	email = domain.NormalizeEmail(email)
	code = strings.TrimSpace(code)

	switch {
	case email == "":
		return nil, errors.New("email is required")
	case code == "":
		return nil, errors.New("code is required")
	case ttl <= 0:
		return nil, errors.New("ttl must be positive")
	}

	now := r.now().UTC()
	expiresAt := now.Add(ttl)

	key := r.key(email)

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{
		fieldCode:      code,
		fieldCreatedAt: strconv.FormatInt(now.Unix(), 10),
		fieldExpiresAt: strconv.FormatInt(expiresAt.Unix(), 10),
		fieldAttempts:  "0",
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis store otp: %w", err)
	}

	return &domain.OTPRecord{
		Email:     email,
		Code:      code,
		Attempts:  0,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}, nil
}

// Fetch retrieves the pending recovery code for the email.
func (r *OTPRepository) Fetch(ctx context.Context, email string) (*domain.OTPRecord, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, errors.New("email is required")
	}

	values, err := r.client.HGetAll(ctx, r.key(email)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall otp: %w", err)
	}
	if len(values) == 0 {
		return nil, repository.ErrNotFound
	}

	code := strings.TrimSpace(values[fieldCode])
	if code == "" {
		return nil, repository.ErrNotFound
	}

	createdAt, err := parseUnix(values[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	expiresAt, err := parseUnix(values[fieldExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	attempts := 0
	if raw := values[fieldAttempts]; raw != "" {
		if v, convErr := strconv.Atoi(raw); convErr == nil {
			attempts = v
		}
	}

	return &domain.OTPRecord{
		Email:     email,
		Code:      code,
		Attempts:  attempts,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}

// IncrementAttempts increments the failed-attempt counter and returns the new value.
func (r *OTPRepository) IncrementAttempts(ctx context.Context, email string) (int, error) {
	if _, err := r.Fetch(ctx, email); err != nil {
		return 0, err
	}

	count, err := r.client.HIncrBy(ctx, r.key(domain.NormalizeEmail(email)), fieldAttempts, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hincrby otp attempts: %w", err)
	}

	return int(count), nil
}

// Delete removes the pending code, enforcing single-use semantics.
func (r *OTPRepository) Delete(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return errors.New("email is required")
	}

	deleted, err := r.client.Del(ctx, r.key(email)).Result()
	if err != nil {
		return fmt.Errorf("redis delete otp: %w", err)
	}
	if deleted == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// WithClock overrides the internal clock, used in tests.
func (r *OTPRepository) WithClock(clock func() time.Time) {
	if clock != nil {
		r.now = clock
	}
}

func (r *OTPRepository) key(email string) string {
	return fmt.Sprintf("%s:%s", r.prefix, email)
}

func parseUnix(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(v, 0).UTC(), nil
}

var _ port.OTPStore = (*OTPRepository)(nil)
