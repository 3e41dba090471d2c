package domain

import "time"

// AccountRegisteredEvent represents the payload for credentials.account.registered messages.
type AccountRegisteredEvent struct {
	EventID      string
	Email        string
	DisplayName  string
	Role         Role
	RegisteredAt time.Time
	Source       string
	Metadata     map[string]any
}

// PasswordChangedEvent represents the payload for credentials.password.changed messages.
type PasswordChangedEvent struct {
	EventID   string
	Email     string
	ChangedAt time.Time
	Flow      string
	Store     string
	Metadata  map[string]any
}

// PasswordResetRequestedEvent represents the payload for
// credentials.password.reset_requested messages. The email-delivery collaborator
// consumes these to send reset links.
type PasswordResetRequestedEvent struct {
	EventID           string
	RequestID         string
	Email             string
	MaskedDestination string
	RequestedAt       time.Time
	ExpiresAt         time.Time
	Delivery          string
	IPAddress         *string
	Metadata          map[string]any
}

// OTPIssuedEvent represents the payload for credentials.otp.issued messages.
// The email-delivery collaborator consumes these to send verification codes.
type OTPIssuedEvent struct {
	EventID           string
	Email             string
	MaskedDestination string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	Metadata          map[string]any
}
