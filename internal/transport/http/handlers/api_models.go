package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/resumekit/credential-service/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// RegisterRequest defines the payload for account registration.
type RegisterRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SessionSummary is the API view of the active session.
type SessionSummary struct {
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	LoggedInAt  time.Time `json:"logged_in_at"`
}

func newSessionSummary(session *domain.Session) SessionSummary {
	return SessionSummary{
		Email:       session.Email,
		DisplayName: session.DisplayName,
		Role:        string(session.Role),
		LoggedInAt:  session.LoggedInAt,
	}
}

// SessionResponse reports the current session state.
type SessionResponse struct {
	LoggedIn bool            `json:"logged_in"`
	Session  *SessionSummary `json:"session,omitempty"`
}

// LoginResponse describes the response for a successful login or registration.
type LoginResponse struct {
	Session SessionSummary `json:"session"`
	Source  string         `json:"source"`
}

// RosterEntryView is the API view of a logged-in-users roster entry.
type RosterEntryView struct {
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	LoggedInAt  time.Time `json:"logged_in_at"`
}

// RosterResponse lists the logged-in-users roster.
type RosterResponse struct {
	Users []RosterEntryView `json:"users"`
}

// AccountView is the admin view of a registered account (no password material).
type AccountView struct {
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	RegisteredAt time.Time `json:"registered_at"`
}

// AccountListResponse lists registered accounts for the admin console.
type AccountListResponse struct {
	Accounts []AccountView `json:"accounts"`
}

// PasswordChangeRequest defines the payload for an authenticated password change.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// ResetRequestRequest starts the emailed reset-link flow.
type ResetRequestRequest struct {
	Email string `json:"email" binding:"required"`
}

// ResetRequestResponse always carries the same generic message; DevToken is
// populated only in development mode when the local fallback issued a token.
type ResetRequestResponse struct {
	Message  string `json:"message"`
	DevToken string `json:"dev_token,omitempty"`
}

// ResetCompleteRequest finishes the hosted link flow. AccessToken is the
// recovery token carried by the emailed link; it may be empty when the hosted
// session was already adopted.
type ResetCompleteRequest struct {
	AccessToken string `json:"access_token"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ResetConfirmRequest finishes the local fallback link flow.
type ResetConfirmRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// OTPRequestRequest asks for a recovery code.
type OTPRequestRequest struct {
	Email string `json:"email" binding:"required"`
}

// OTPRequestResponse mirrors ResetRequestResponse for the code flow.
type OTPRequestResponse struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
	DevCode   string    `json:"dev_code,omitempty"`
}

// OTPVerifyRequest checks a recovery code.
type OTPVerifyRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

// OTPUpdatePasswordRequest is the gated password update of the code flow.
type OTPUpdatePasswordRequest struct {
	Email       string `json:"email" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// OTPAbandonRequest drops a pending verification.
type OTPAbandonRequest struct {
	Email string `json:"email" binding:"required"`
}

// GateResponse is the API view of a gate decision.
type GateResponse struct {
	Allowed  bool   `json:"allowed"`
	Redirect string `json:"redirect,omitempty"`
	Overlay  bool   `json:"overlay,omitempty"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports per-dependency readiness.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
