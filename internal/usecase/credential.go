package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/resumekit/credential-service/internal/core/domain"
	"github.com/resumekit/credential-service/internal/core/port"
	"github.com/resumekit/credential-service/internal/infra/logger"
	"github.com/resumekit/credential-service/internal/infra/security"
	"github.com/resumekit/credential-service/internal/repository"
)

// KeyRegisteredUsers is the blob holding the local fallback account collection.
const KeyRegisteredUsers = "registeredUsers"

const passwordAlgoArgon2id = "argon2id"

// CredentialService owns the local fallback Credential Store: registration,
// authentication, and password changes against the durable account blob.
type CredentialService struct {
	blobs     port.BlobStore
	events    port.EventPublisher
	validator *security.PasswordValidator
	logger    *zap.Logger
	now       func() time.Time
}

// NewCredentialService constructs a CredentialService.
func NewCredentialService(blobs port.BlobStore, events port.EventPublisher, validator *security.PasswordValidator, log *zap.Logger) *CredentialService {
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}
	return &CredentialService{
		blobs:     blobs,
		events:    events,
		validator: validator,
		logger:    log,
		now:       time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *CredentialService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Register appends a new account. Returns false with ErrDuplicateAccount when
// the email is already registered; the existing account is left untouched.
// An empty display name is derived from the email local part.
func (s *CredentialService) Register(ctx context.Context, email, password, displayName string, role domain.Role) (bool, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return false, fmt.Errorf("%w: malformed email", ErrInvalidCredential)
	}
	if role == "" {
		role = domain.RoleUser
	}

	if err := s.validator.Validate(password); err != nil {
		return false, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = domain.DisplayNameFromEmail(email)
	}

	now := s.now().UTC()
	account := domain.Account{
		Email:             email,
		DisplayName:       displayName,
		PasswordHash:      hash,
		PasswordAlgo:      passwordAlgoArgon2id,
		Role:              role,
		RegisteredAt:      now,
		PasswordChangedAt: now,
	}

	var duplicate bool
	err = s.blobs.Update(ctx, KeyRegisteredUsers, func(current []byte) ([]byte, error) {
		collection := s.parseCollection(current)
		if !collection.Append(account) {
			duplicate = true
			return current, nil
		}
		return json.Marshal(collection)
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if duplicate {
		return false, ErrDuplicateAccount
	}

	if s.events != nil {
		event := domain.AccountRegisteredEvent{
			EventID:      uuid.NewString(),
			Email:        email,
			DisplayName:  displayName,
			Role:         role,
			RegisteredAt: now,
			Source:       "local",
		}
		if err := s.events.PublishAccountRegistered(ctx, event); err != nil {
			s.logger.Warn("failed to publish account registered event",
				zap.String("email", logger.MaskEmail(email)),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("account registered",
		zap.String("email", logger.MaskEmail(email)),
		zap.String("role", string(role)),
	)

	return true, nil
}

// Authenticate verifies the credential pair by exact email match. It returns
// ErrInvalidCredential both for unknown emails and wrong passwords.
func (s *CredentialService) Authenticate(ctx context.Context, email, password string) (*domain.Account, error) {
	account, err := s.find(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrInvalidCredential
		}
		return nil, err
	}

	ok, err := security.VerifyPassword(password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredential
	}

	return account, nil
}

// ChangePassword overwrites the stored password after checking the current
// one. The caller supplies the email of the active session.
func (s *CredentialService) ChangePassword(ctx context.Context, email, currentPassword, newPassword string) error {
	account, err := s.Authenticate(ctx, email, currentPassword)
	if err != nil {
		return err
	}

	if err := s.validator.Validate(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	if err := s.updatePassword(ctx, account.Email, newPassword); err != nil {
		return err
	}

	s.publishPasswordChanged(ctx, account.Email, "change")

	return nil
}

// UpdatePassword overwrites the stored password without a current-password
// check. Reserved for the reset orchestrator, which enforces its own
// preconditions before calling.
func (s *CredentialService) UpdatePassword(ctx context.Context, email, newPassword string) error {
	if err := s.validator.Validate(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}
	return s.updatePassword(ctx, email, newPassword)
}

// Exists reports whether a local account is registered for the email.
func (s *CredentialService) Exists(ctx context.Context, email string) (bool, error) {
	_, err := s.find(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Lookup returns the stored account for the email.
func (s *CredentialService) Lookup(ctx context.Context, email string) (*domain.Account, error) {
	return s.find(ctx, email)
}

// ListAccounts returns every registered account with password material blanked.
func (s *CredentialService) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	collection, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.Account, len(collection.Accounts))
	for i, account := range collection.Accounts {
		account.PasswordHash = ""
		accounts[i] = account
	}
	return accounts, nil
}

// RemoveAccount hard-deletes the account. Normal flows never call this; it
// backs the explicit admin action only.
func (s *CredentialService) RemoveAccount(ctx context.Context, email string) error {
	var removed bool
	err := s.blobs.Update(ctx, KeyRegisteredUsers, func(current []byte) ([]byte, error) {
		collection := s.parseCollection(current)
		removed = collection.Remove(email)
		if !removed {
			return current, nil
		}
		return json.Marshal(collection)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if !removed {
		return ErrAccountNotFound
	}

	s.logger.Info("account removed", zap.String("email", logger.MaskEmail(email)))
	return nil
}

func (s *CredentialService) updatePassword(ctx context.Context, email, newPassword string) error {
	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	var found bool
	err = s.blobs.Update(ctx, KeyRegisteredUsers, func(current []byte) ([]byte, error) {
		collection := s.parseCollection(current)
		account, ok := collection.Find(email)
		if !ok {
			return current, nil
		}
		found = true
		account.PasswordHash = hash
		account.PasswordAlgo = passwordAlgoArgon2id
		account.PasswordChangedAt = s.now().UTC()
		collection.Replace(account)
		return json.Marshal(collection)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if !found {
		return ErrAccountNotFound
	}

	return nil
}

func (s *CredentialService) find(ctx context.Context, email string) (*domain.Account, error) {
	collection, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	account, ok := collection.Find(email)
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &account, nil
}

func (s *CredentialService) load(ctx context.Context) (domain.AccountCollection, error) {
	payload, err := s.blobs.Get(ctx, KeyRegisteredUsers)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NewAccountCollection(), nil
		}
		return domain.AccountCollection{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return s.parseCollection(payload), nil
}

// parseCollection falls back to an empty collection when the blob is absent or
// unreadable; a corrupt store must not lock users out of registration.
func (s *CredentialService) parseCollection(payload []byte) domain.AccountCollection {
	if len(payload) == 0 {
		return domain.NewAccountCollection()
	}

	var collection domain.AccountCollection
	if err := json.Unmarshal(payload, &collection); err != nil {
		s.logger.Warn("account blob unreadable, starting from empty collection", zap.Error(err))
		return domain.NewAccountCollection()
	}
	if collection.SchemaVersion == 0 {
		collection.SchemaVersion = domain.AccountCollectionSchemaVersion
	}
	return collection
}

func (s *CredentialService) publishPasswordChanged(ctx context.Context, email, flow string) {
	if s.events == nil {
		return
	}

	event := domain.PasswordChangedEvent{
		EventID:   uuid.NewString(),
		Email:     email,
		ChangedAt: s.now().UTC(),
		Flow:      flow,
		Store:     "local",
	}
	if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
		s.logger.Warn("failed to publish password changed event",
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(err),
		)
	}
}
