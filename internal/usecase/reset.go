package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/resumekit/credential-service/internal/core/domain"
	"github.com/resumekit/credential-service/internal/core/port"
	"github.com/resumekit/credential-service/internal/infra/config"
	"github.com/resumekit/credential-service/internal/infra/logger"
	"github.com/resumekit/credential-service/internal/infra/security"
	"github.com/resumekit/credential-service/internal/repository"
)

const (
	resetTokenBytes = 32

	deliveryHostedEmail = "hosted_email"
	deliveryLocalLink   = "local_link"
	deliveryEmailCode   = "email_code"

	flowLink = "link"
	flowOTP  = "otp"
)

// ResetRequestResult describes the outcome of a reset-link request. The
// generic message is identical whether or not the account exists; Token is
// populated only by the local fallback and only surfaced in development mode.
type ResetRequestResult struct {
	Delivery  string
	Token     string
	ExpiresAt time.Time
}

// OTPRequestResult describes an issued recovery code. Code is surfaced to the
// caller in development mode only.
type OTPRequestResult struct {
	Code      string
	ExpiresAt time.Time
}

// PasswordResetService coordinates the two independent recovery flows: the
// emailed reset-link flow riding the hosted service's session-based recovery
// (with a local fallback token when the service is unreachable), and the
// OTP flow gating a password update behind a verified flag.
type PasswordResetService struct {
	hosted      port.HostedAuth
	credentials *CredentialService
	sessions    *SessionService
	otp         *OTPService
	flags       port.VerifiedFlagStore
	tokens      port.ResetTokenStore
	rateLimits  port.RateLimitStore
	events      port.EventPublisher
	validator   *security.PasswordValidator
	logger      *zap.Logger
	now         func() time.Time

	resendCooldown  time.Duration
	linkTokenTTL    time.Duration
	verifiedFlagTTL time.Duration
}

// NewPasswordResetService constructs the orchestrator.
func NewPasswordResetService(
	hosted port.HostedAuth,
	credentials *CredentialService,
	sessions *SessionService,
	otp *OTPService,
	flags port.VerifiedFlagStore,
	tokens port.ResetTokenStore,
	rateLimits port.RateLimitStore,
	events port.EventPublisher,
	recovery config.RecoverySettings,
	log *zap.Logger,
) *PasswordResetService {
	resendCooldown := recovery.ResendCooldown
	if resendCooldown <= 0 {
		resendCooldown = 45 * time.Second
	}
	linkTokenTTL := recovery.LinkTokenTTL
	if linkTokenTTL <= 0 {
		linkTokenTTL = 30 * time.Minute
	}
	verifiedFlagTTL := recovery.VerifiedFlagTTL
	if verifiedFlagTTL <= 0 {
		verifiedFlagTTL = 10 * time.Minute
	}

	return &PasswordResetService{
		hosted:          hosted,
		credentials:     credentials,
		sessions:        sessions,
		otp:             otp,
		flags:           flags,
		tokens:          tokens,
		rateLimits:      rateLimits,
		events:          events,
		validator:       security.DefaultPasswordValidator(),
		logger:          log,
		now:             time.Now,
		resendCooldown:  resendCooldown,
		linkTokenTTL:    linkTokenTTL,
		verifiedFlagTTL: verifiedFlagTTL,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *PasswordResetService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// RequestReset starts the emailed reset-link flow. The hosted service sends
// the link when reachable; in-band rejections (unknown account, throttling)
// still report generic success so account existence never leaks. When the
// service is unreachable the local fallback issues its own single-use token
// for locally registered accounts, again behind the same generic success.
func (s *PasswordResetService) RequestReset(ctx context.Context, email, ip string) (*ResetRequestResult, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: empty email", ErrInvalidCredential)
	}

	err := s.hosted.SendPasswordResetEmail(ctx, email)
	if err == nil {
		s.publishResetRequested(ctx, email, ip, deliveryHostedEmail, s.now().UTC().Add(s.linkTokenTTL))
		return &ResetRequestResult{Delivery: deliveryHostedEmail}, nil
	}

	var hostedErr *domain.HostedError
	if errors.As(err, &hostedErr) {
		// the service saw and rejected the request; hide the reason
		s.logger.Info("hosted reset request rejected",
			zap.String("email", logger.MaskEmail(email)),
			zap.Int("status", hostedErr.Status),
			zap.String("code", hostedErr.Code),
		)
		return &ResetRequestResult{Delivery: deliveryHostedEmail}, nil
	}

	s.logger.Warn("hosted service unreachable, trying local fallback",
		zap.String("email", logger.MaskEmail(email)),
		zap.Error(err),
	)

	return s.requestLocalReset(ctx, email, ip)
}

func (s *PasswordResetService) requestLocalReset(ctx context.Context, email, ip string) (*ResetRequestResult, error) {
	exists, err := s.credentials.Exists(ctx, email)
	if err != nil {
		return nil, err
	}
	if !exists {
		// same generic success as every other path
		return &ResetRequestResult{Delivery: deliveryLocalLink}, nil
	}

	raw, err := security.GenerateSecureToken(resetTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate reset token: %w", err)
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.linkTokenTTL)
	token := domain.ResetToken{
		ID:        uuid.NewString(),
		Email:     email,
		TokenHash: security.HashToken(raw),
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}

	if err := s.tokens.Create(ctx, token, s.linkTokenTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	s.publishResetRequested(ctx, email, ip, deliveryLocalLink, expiresAt)

	return &ResetRequestResult{
		Delivery:  deliveryLocalLink,
		Token:     raw,
		ExpiresAt: expiresAt,
	}, nil
}

// CompleteReset finishes the hosted link flow. The emailed link lands the user
// with a recovery access token; adopting it establishes the recovery session
// the password update requires. On success the recovery session is promoted to
// a normal logged-in session.
func (s *PasswordResetService) CompleteReset(ctx context.Context, accessToken, newPassword string) (*domain.Session, error) {
	if err := s.validator.Validate(newPassword); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	if accessToken != "" {
		if _, err := s.hosted.AdoptSession(ctx, accessToken); err != nil {
			var hostedErr *domain.HostedError
			if errors.As(err, &hostedErr) {
				return nil, ErrExpiredOrInvalidLink
			}
			return nil, fmt.Errorf("%w: %v", ErrHostedService, err)
		}
	}

	session, err := s.hosted.GetSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHostedService, err)
	}
	if session == nil {
		return nil, ErrExpiredOrInvalidLink
	}

	if err := s.hosted.UpdatePassword(ctx, newPassword); err != nil {
		var hostedErr *domain.HostedError
		if errors.As(err, &hostedErr) {
			if hostedErr.Status == 401 || hostedErr.Status == 403 {
				return nil, ErrExpiredOrInvalidLink
			}
			return nil, fmt.Errorf("%w: %s", ErrHostedService, hostedErr.Message)
		}
		return nil, fmt.Errorf("%w: %v", ErrHostedService, err)
	}

	promoted, err := s.sessions.SetCurrentUser(ctx, session.Email, session.DisplayName, session.Role)
	if err != nil {
		return nil, err
	}

	s.publishPasswordChanged(ctx, session.Email, flowLink, "hosted")

	return promoted, nil
}

// CompleteResetWithToken finishes the local fallback link flow. The raw token
// from the emailed link is hashed, looked up, and consumed in one step; a
// replayed or stale token fails with ErrExpiredOrInvalidLink.
func (s *PasswordResetService) CompleteResetWithToken(ctx context.Context, rawToken, newPassword string) (*domain.Session, error) {
	if rawToken == "" {
		return nil, ErrExpiredOrInvalidLink
	}
	if err := s.validator.Validate(newPassword); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	token, err := s.tokens.Consume(ctx, security.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExpiredOrInvalidLink
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if token.IsExpired(s.now()) {
		return nil, ErrExpiredOrInvalidLink
	}

	account, err := s.credentials.Lookup(ctx, token.Email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrExpiredOrInvalidLink
		}
		return nil, err
	}

	if err := s.credentials.UpdatePassword(ctx, token.Email, newPassword); err != nil {
		return nil, err
	}

	promoted, err := s.sessions.SetCurrentUser(ctx, account.Email, account.DisplayName, account.Role)
	if err != nil {
		return nil, err
	}

	s.publishPasswordChanged(ctx, account.Email, flowLink, "local")

	return promoted, nil
}

// RequestOTP issues a recovery code for the email, subject to the resend
// cooldown. Issuing replaces any pending code.
func (s *PasswordResetService) RequestOTP(ctx context.Context, email string) (*OTPRequestResult, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: empty email", ErrInvalidCredential)
	}

	now := s.now().UTC()

	if s.rateLimits != nil {
		if err := s.rateLimits.TrimWindow(ctx, email, s.resendCooldown, now); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		count, err := s.rateLimits.CountAttempts(ctx, email, s.resendCooldown, now)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if count > 0 {
			retryAfter := s.resendCooldown
			if oldest, found, oldestErr := s.rateLimits.OldestAttempt(ctx, email, s.resendCooldown, now); oldestErr == nil && found {
				retryAfter = oldest.Add(s.resendCooldown).Sub(now)
				if retryAfter < 0 {
					retryAfter = 0
				}
			}
			return nil, &CooldownError{RetryAfter: retryAfter}
		}
	}

	record, err := s.otp.Issue(ctx, email)
	if err != nil {
		return nil, err
	}

	if s.rateLimits != nil {
		if err := s.rateLimits.RecordAttempt(ctx, email, now); err != nil {
			s.logger.Warn("failed to record otp resend attempt",
				zap.String("email", logger.MaskEmail(email)),
				zap.Error(err),
			)
		}
	}

	if s.events != nil {
		event := domain.OTPIssuedEvent{
			EventID:           uuid.NewString(),
			Email:             email,
			MaskedDestination: logger.MaskEmail(email),
			IssuedAt:          record.CreatedAt,
			ExpiresAt:         record.ExpiresAt,
		}
		if err := s.events.PublishOTPIssued(ctx, event); err != nil {
			s.logger.Warn("failed to publish otp issued event",
				zap.String("email", logger.MaskEmail(email)),
				zap.Error(err),
			)
		}
	}

	return &OTPRequestResult{Code: record.Code, ExpiresAt: record.ExpiresAt}, nil
}

// VerifyOTP checks the code and, on success, sets the single-use verified
// flag that gates the password-update step.
func (s *PasswordResetService) VerifyOTP(ctx context.Context, email, code string) error {
	email = domain.NormalizeEmail(email)

	if err := s.otp.Verify(ctx, email, code); err != nil {
		return err
	}

	if err := s.flags.Set(ctx, email, s.verifiedFlagTTL); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return nil
}

// UpdatePassword is the OTP flow's gated update. It fails closed with
// ErrVerificationRequired unless the verified flag is provably set for the
// email; a flag-store failure counts as unverified. The flag and any pending
// code are cleared on success (single use).
func (s *PasswordResetService) UpdatePassword(ctx context.Context, email, newPassword string) error {
	email = domain.NormalizeEmail(email)

	verified, err := s.flags.IsSet(ctx, email)
	if err != nil {
		s.logger.Warn("verified flag check failed, failing closed",
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(err),
		)
		return ErrVerificationRequired
	}
	if !verified {
		return ErrVerificationRequired
	}

	if err := s.validator.Validate(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	store, err := s.applyPasswordUpdate(ctx, email, newPassword)
	if err != nil {
		return err
	}

	if err := s.flags.Clear(ctx, email); err != nil {
		s.logger.Warn("failed to clear verified flag",
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(err),
		)
	}
	s.clearPendingOTP(ctx, email)

	s.publishPasswordChanged(ctx, email, flowOTP, store)

	return nil
}

// applyPasswordUpdate routes the write to the account's system of record:
// the local store when the account is registered there, otherwise the hosted
// service through its current session.
func (s *PasswordResetService) applyPasswordUpdate(ctx context.Context, email, newPassword string) (string, error) {
	exists, err := s.credentials.Exists(ctx, email)
	if err != nil {
		return "", err
	}
	if exists {
		if err := s.credentials.UpdatePassword(ctx, email, newPassword); err != nil {
			return "", err
		}
		return "local", nil
	}

	session, err := s.hosted.GetSession(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHostedService, err)
	}
	if session == nil || domain.NormalizeEmail(session.Email) != email {
		return "", ErrAccountNotFound
	}

	if err := s.hosted.UpdatePassword(ctx, newPassword); err != nil {
		var hostedErr *domain.HostedError
		if errors.As(err, &hostedErr) {
			return "", fmt.Errorf("%w: %s", ErrHostedService, hostedErr.Message)
		}
		return "", fmt.Errorf("%w: %v", ErrHostedService, err)
	}

	return "hosted", nil
}

// ClearVerification abandons a pending OTP verification, dropping the flag
// and any live code.
func (s *PasswordResetService) ClearVerification(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)

	if err := s.flags.Clear(ctx, email); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	s.clearPendingOTP(ctx, email)
	return nil
}

func (s *PasswordResetService) clearPendingOTP(ctx context.Context, email string) {
	if err := s.otp.Clear(ctx, email); err != nil {
		s.logger.Warn("failed to clear pending otp",
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(err),
		)
	}
}

func (s *PasswordResetService) publishResetRequested(ctx context.Context, email, ip, delivery string, expiresAt time.Time) {
	if s.events == nil {
		return
	}

	var ipPtr *string
	if ip != "" {
		masked := logger.MaskIP(ip)
		ipPtr = &masked
	}

	event := domain.PasswordResetRequestedEvent{
		EventID:           uuid.NewString(),
		RequestID:         uuid.NewString(),
		Email:             email,
		MaskedDestination: logger.MaskEmail(email),
		RequestedAt:       s.now().UTC(),
		ExpiresAt:         expiresAt,
		Delivery:          delivery,
		IPAddress:         ipPtr,
	}
	if err := s.events.PublishPasswordResetRequested(ctx, event); err != nil {
		s.logger.Warn("failed to publish reset requested event",
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(err),
		)
	}
}

func (s *PasswordResetService) publishPasswordChanged(ctx context.Context, email, flow, store string) {
	if s.events == nil {
		return
	}

	event := domain.PasswordChangedEvent{
		EventID:   uuid.NewString(),
		Email:     email,
		ChangedAt: s.now().UTC(),
		Flow:      flow,
		Store:     store,
	}
	if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
		s.logger.Warn("failed to publish password changed event",
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(err),
		)
	}
}
