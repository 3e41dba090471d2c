package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/resumekit/credential-service/internal/core/domain"
	"github.com/resumekit/credential-service/internal/core/port"
	"github.com/resumekit/credential-service/internal/infra/logger"
	"github.com/resumekit/credential-service/internal/infra/security"
	"github.com/resumekit/credential-service/internal/repository"
)

const (
	defaultOTPLength      = 6
	defaultOTPTTL         = 10 * time.Minute
	defaultOTPMaxAttempts = 5
)

// OTPService issues and verifies one-time codes. It owns code lifecycle only;
// the verified-flag capability is the orchestrator's concern.
type OTPService struct {
	store       port.OTPStore
	codeLength  int
	ttl         time.Duration
	maxAttempts int
	logger      *zap.Logger
	now         func() time.Time
}

// NewOTPService constructs an OTPService.
func NewOTPService(store port.OTPStore, log *zap.Logger) *OTPService {
	return &OTPService{
		store:       store,
		codeLength:  defaultOTPLength,
		ttl:         defaultOTPTTL,
		maxAttempts: defaultOTPMaxAttempts,
		logger:      log,
		now:         time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *OTPService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithTTL overrides the code validity window.
func (s *OTPService) WithTTL(ttl time.Duration) {
	if ttl > 0 {
		s.ttl = ttl
	}
}

// WithCodeLength overrides the generated code length.
func (s *OTPService) WithCodeLength(length int) {
	if length > 0 {
		s.codeLength = length
	}
}

// WithMaxAttempts overrides the failed-attempt budget.
func (s *OTPService) WithMaxAttempts(max int) {
	if max > 0 {
		s.maxAttempts = max
	}
}

// TTL returns the configured code validity window.
func (s *OTPService) TTL() time.Duration {
	return s.ttl
}

// Issue generates a fresh code for the email, replacing any live one.
func (s *OTPService) Issue(ctx context.Context, email string) (*domain.OTPRecord, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: empty email", ErrInvalidCredential)
	}

	code, err := security.GenerateNumericCode(s.codeLength)
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}

	record, err := s.store.Store(ctx, email, code, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	s.logger.Info("otp issued",
		zap.String("email", logger.MaskEmail(email)),
		zap.Time("expires_at", record.ExpiresAt),
	)

	return record, nil
}

// Verify checks the supplied code against the live record for the email.
// A matching code is consumed; the expiry check runs before the comparison so
// a correct-but-stale code reports expiry, not mismatch. Mismatches burn one
// attempt, and exhausting the budget purges the record.
func (s *OTPService) Verify(ctx context.Context, email, code string) error {
	email = domain.NormalizeEmail(email)

	record, err := s.store.Fetch(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrExpiredOrInvalidToken
		}
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if record.IsExpired(s.now()) {
		s.purge(ctx, email)
		return ErrExpiredOrInvalidToken
	}

	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) != 1 {
		attempts, incErr := s.store.IncrementAttempts(ctx, email)
		if incErr != nil && !errors.Is(incErr, repository.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, incErr)
		}
		if attempts >= s.maxAttempts {
			s.purge(ctx, email)
			return ErrTooManyAttempts
		}
		return ErrCodeMismatch
	}

	// single use: a verified code can never be replayed
	if err := s.store.Delete(ctx, email); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	s.logger.Info("otp verified", zap.String("email", logger.MaskEmail(email)))
	return nil
}

// Clear drops any pending code for the email. Absent records are not an error.
func (s *OTPService) Clear(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if err := s.store.Delete(ctx, email); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *OTPService) purge(ctx context.Context, email string) {
	if err := s.store.Delete(ctx, email); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("failed to purge otp record",
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(err),
		)
	}
}
