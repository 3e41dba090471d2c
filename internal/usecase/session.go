package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/resumekit/credential-service/internal/core/domain"
	"github.com/resumekit/credential-service/internal/core/port"
	"github.com/resumekit/credential-service/internal/infra/logger"
	"github.com/resumekit/credential-service/internal/repository"
)

// Blob keys for session state.
const (
	KeyCurrentSession = "currentSession"
	KeyLoggedInUsers  = "loggedInUsers"
)

// SessionService owns the single active session and the logged-in-users
// roster. Login clears existing session state before authenticating, so a
// failed attempt always lands in the logged-out state.
type SessionService struct {
	blobs       port.BlobStore
	credentials *CredentialService
	logger      *zap.Logger
	now         func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(blobs port.BlobStore, credentials *CredentialService, log *zap.Logger) *SessionService {
	return &SessionService{
		blobs:       blobs,
		credentials: credentials,
		logger:      log,
		now:         time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *SessionService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Login establishes a session for the credential pair. Any existing session is
// cleared first regardless of the outcome, so failures leave the state logged
// out rather than on the previous identity.
func (s *SessionService) Login(ctx context.Context, email, password string) (*domain.Session, error) {
	if err := s.clearCurrent(ctx); err != nil {
		return nil, err
	}

	account, err := s.credentials.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	return s.establish(ctx, account.Email, account.DisplayName, account.Role)
}

// SetCurrentUser establishes a session directly, bypassing local
// authentication. Used when the hosted service vouched for the identity
// (hosted sign-in, post-reset promotion).
func (s *SessionService) SetCurrentUser(ctx context.Context, email, displayName string, role domain.Role) (*domain.Session, error) {
	if err := s.clearCurrent(ctx); err != nil {
		return nil, err
	}

	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: empty email", ErrInvalidCredential)
	}
	if displayName == "" {
		displayName = domain.DisplayNameFromEmail(email)
	}
	if role == "" {
		role = domain.RoleUser
	}

	return s.establish(ctx, email, displayName, role)
}

// Logout clears the active session and removes its identity from the roster.
// Logging out with no active session is a no-op.
func (s *SessionService) Logout(ctx context.Context) error {
	session, err := s.Current(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}

	if err := s.clearCurrent(ctx); err != nil {
		return err
	}
	if err := s.removeFromRoster(ctx, session.Email); err != nil {
		return err
	}

	s.logger.Info("session ended", zap.String("email", logger.MaskEmail(session.Email)))
	return nil
}

// LogoutUser removes the email from the roster. When it is also the active
// session's identity, the session is cleared too.
func (s *SessionService) LogoutUser(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)

	session, err := s.Current(ctx)
	if err != nil {
		return err
	}
	if session != nil && session.Email == email {
		if err := s.clearCurrent(ctx); err != nil {
			return err
		}
	}

	return s.removeFromRoster(ctx, email)
}

// Current returns the active session, or (nil, nil) when logged out.
func (s *SessionService) Current(ctx context.Context) (*domain.Session, error) {
	payload, err := s.blobs.Get(ctx, KeyCurrentSession)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	var session domain.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		// unreadable session state fails safe to logged out
		s.logger.Warn("session blob unreadable, clearing", zap.Error(err))
		if clearErr := s.clearCurrent(ctx); clearErr != nil {
			return nil, clearErr
		}
		return nil, nil
	}
	if session.Email == "" {
		return nil, nil
	}

	return &session, nil
}

// IsLoggedIn reports whether a session is active.
func (s *SessionService) IsLoggedIn(ctx context.Context) (bool, error) {
	session, err := s.Current(ctx)
	if err != nil {
		return false, err
	}
	return session != nil, nil
}

// CurrentRole returns the active session's role, defaulting to the
// unprivileged role when logged out.
func (s *SessionService) CurrentRole(ctx context.Context) (domain.Role, error) {
	session, err := s.Current(ctx)
	if err != nil {
		return domain.RoleUser, err
	}
	if session == nil {
		return domain.RoleUser, nil
	}
	return session.Role, nil
}

// IsAdmin reports whether the active session carries the admin role.
func (s *SessionService) IsAdmin(ctx context.Context) (bool, error) {
	role, err := s.CurrentRole(ctx)
	if err != nil {
		return false, err
	}
	return role == domain.RoleAdmin, nil
}

// Roster returns the logged-in-users roster.
func (s *SessionService) Roster(ctx context.Context) ([]domain.RosterEntry, error) {
	payload, err := s.blobs.Get(ctx, KeyLoggedInUsers)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	roster := s.parseRoster(payload)
	return roster.Entries, nil
}

func (s *SessionService) establish(ctx context.Context, email, displayName string, role domain.Role) (*domain.Session, error) {
	now := s.now().UTC()
	session := domain.Session{
		SchemaVersion: domain.SessionSchemaVersion,
		Email:         email,
		DisplayName:   displayName,
		Role:          role,
		LoggedInAt:    now,
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	if err := s.blobs.Set(ctx, KeyCurrentSession, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	err = s.blobs.Update(ctx, KeyLoggedInUsers, func(current []byte) ([]byte, error) {
		roster := s.parseRoster(current)
		roster.Upsert(domain.RosterEntry{
			Email:       email,
			DisplayName: displayName,
			Role:        role,
			LoggedInAt:  now,
		})
		return json.Marshal(roster)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	s.logger.Info("session established",
		zap.String("email", logger.MaskEmail(email)),
		zap.String("role", string(role)),
	)

	return &session, nil
}

func (s *SessionService) clearCurrent(ctx context.Context) error {
	if err := s.blobs.Delete(ctx, KeyCurrentSession); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *SessionService) removeFromRoster(ctx context.Context, email string) error {
	err := s.blobs.Update(ctx, KeyLoggedInUsers, func(current []byte) ([]byte, error) {
		roster := s.parseRoster(current)
		roster.Remove(email)
		return json.Marshal(roster)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *SessionService) parseRoster(payload []byte) domain.SessionRoster {
	if len(payload) == 0 {
		return domain.NewSessionRoster()
	}

	var roster domain.SessionRoster
	if err := json.Unmarshal(payload, &roster); err != nil {
		s.logger.Warn("roster blob unreadable, starting from empty roster", zap.Error(err))
		return domain.NewSessionRoster()
	}
	if roster.SchemaVersion == 0 {
		roster.SchemaVersion = domain.SessionSchemaVersion
	}
	return roster
}
