package domain

import "time"

// OTPRecord is a short-lived verification code bound to one email. Exactly one
// live record exists per email; a new issuance replaces the previous one.
type OTPRecord struct {
	Email     string
	Code      string
	Attempts  int
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the code can no longer be redeemed at the supplied moment.
func (r OTPRecord) IsExpired(at time.Time) bool {
	return !r.ExpiresAt.After(at)
}
