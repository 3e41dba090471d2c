package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/resumekit/credential-service/internal/core/domain"
	"github.com/resumekit/credential-service/internal/core/port"
)

// Decision is a gate verdict. Redirect is the path the caller should send the
// client to when Allowed is false; Overlay asks the client to keep the blocked
// page mounted underneath the sign-in surface so the user returns to it after
// authenticating.
type Decision struct {
	Allowed  bool   `json:"allowed"`
	Redirect string `json:"redirect,omitempty"`
	Overlay  bool   `json:"overlay,omitempty"`
}

// GuardService answers route-protection questions for the client shell:
// whether the visitor may see authenticated pages, admin pages, and the final
// step of the OTP recovery flow.
type GuardService struct {
	sessions *SessionService
	flags    port.VerifiedFlagStore
	logger   *zap.Logger
}

// NewGuardService constructs the gate layer.
func NewGuardService(sessions *SessionService, flags port.VerifiedFlagStore, log *zap.Logger) *GuardService {
	return &GuardService{
		sessions: sessions,
		flags:    flags,
		logger:   log,
	}
}

// AuthGate admits logged-in visitors. Anonymous visitors are sent to the
// sign-in surface with the blocked page kept underneath.
func (s *GuardService) AuthGate(ctx context.Context) (Decision, error) {
	loggedIn, err := s.sessions.IsLoggedIn(ctx)
	if err != nil {
		return Decision{}, err
	}
	if !loggedIn {
		return Decision{Redirect: "/signin", Overlay: true}, nil
	}
	return Decision{Allowed: true}, nil
}

// AdminGate admits admins only. Everyone else lands on the home page; an
// anonymous visitor still gets the sign-in overlay first.
func (s *GuardService) AdminGate(ctx context.Context) (Decision, error) {
	session, err := s.sessions.Current(ctx)
	if err != nil {
		return Decision{}, err
	}
	if session == nil {
		return Decision{Redirect: "/signin", Overlay: true}, nil
	}
	if !session.IsAdmin() {
		return Decision{Redirect: "/"}, nil
	}
	return Decision{Allowed: true}, nil
}

// ResetPasswordGate admits the final page of the OTP recovery flow. The
// inbound verified marker is never trusted on its own: the email must carry a
// live server-side verified flag too. A flag-store failure fails closed.
func (s *GuardService) ResetPasswordGate(ctx context.Context, email string, verifiedParam bool) (Decision, error) {
	denied := Decision{Redirect: "/forgot-password"}

	email = domain.NormalizeEmail(email)
	if email == "" || !verifiedParam {
		return denied, nil
	}

	verified, err := s.flags.IsSet(ctx, email)
	if err != nil {
		s.logger.Warn("verified flag check failed, denying reset page", zap.Error(err))
		return denied, nil
	}
	if !verified {
		return denied, nil
	}

	return Decision{Allowed: true}, nil
}
