package domain

import "time"

// ResetToken is a single-use capability granting one password change, issued by
// the local fallback reset flow and delivered as an emailed link. Only the
// SHA-256 hash of the raw token is persisted.
type ResetToken struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	TokenHash string    `json:"token_hash"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the token has elapsed its validity window.
func (t ResetToken) IsExpired(at time.Time) bool {
	return !t.ExpiresAt.After(at)
}

// HostedSession is the external identity service's view of the signed-in user,
// observed (never owned) by this subsystem.
type HostedSession struct {
	AccessToken  string
	RefreshToken string
	Email        string
	DisplayName  string
	Role         Role
	ExpiresAt    time.Time
}

// IsExpired reports whether the hosted session token has elapsed. A zero
// expiry means the service did not communicate one and the session is trusted.
func (s HostedSession) IsExpired(at time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !s.ExpiresAt.After(at)
}

// HostedError is an error the hosted auth service reported in-band: the call
// reached the service and was rejected. Transport and configuration failures
// are wrapped plain errors, never HostedError.
type HostedError struct {
	Status  int
	Code    string
	Message string
}

func (e *HostedError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return "hosted auth service rejected the request"
}

// HostedUserChange is emitted on the current-user stream when the hosted
// session is established or cleared.
type HostedUserChange struct {
	Event   string
	Session *HostedSession
	At      time.Time
}

const (
	HostedUserSignedIn  = "signed_in"
	HostedUserSignedOut = "signed_out"
)
