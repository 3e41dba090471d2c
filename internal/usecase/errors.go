package usecase

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

var (
	// ErrInvalidCredential indicates a wrong password or an unknown account.
	ErrInvalidCredential = errors.New("invalid email or password")
	// ErrDuplicateAccount indicates a registration collision on the email.
	ErrDuplicateAccount = errors.New("account already registered for this email")
	// ErrAccountNotFound indicates no account exists for the email in any system of record.
	ErrAccountNotFound = errors.New("account not found")
	// ErrExpiredOrInvalidToken indicates the OTP is absent, already used, or past its TTL.
	ErrExpiredOrInvalidToken = errors.New("code is expired or invalid")
	// ErrCodeMismatch indicates the supplied OTP does not match the live code.
	ErrCodeMismatch = errors.New("code does not match")
	// ErrTooManyAttempts indicates the OTP was purged after too many failed checks.
	ErrTooManyAttempts = errors.New("too many failed attempts, request a new code")
	// ErrVerificationRequired indicates a gated password update was attempted
	// without a live OTP verification.
	ErrVerificationRequired = errors.New("verification required before updating the password")
	// ErrExpiredOrInvalidLink indicates the reset link carried no usable recovery session or token.
	ErrExpiredOrInvalidLink = errors.New("reset link is expired or invalid")
	// ErrHostedService indicates the external identity service could not be reached.
	ErrHostedService = errors.New("hosted auth service unavailable")
	// ErrStorageUnavailable indicates the durable local store is inaccessible.
	ErrStorageUnavailable = errors.New("credential storage unavailable")
	// ErrWeakPassword wraps password policy violations.
	ErrWeakPassword = errors.New("password does not meet the policy")
)

// CooldownError reports that an OTP resend was requested inside the cooldown window.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("resend requested too soon, retry in %s", e.RetryAfter.Round(time.Second))
}

// RetryAfterSeconds renders the cooldown as whole seconds for the Retry-After header.
func (e *CooldownError) RetryAfterSeconds() string {
	seconds := int(math.Ceil(e.RetryAfter.Seconds()))
	if seconds < 0 {
		seconds = 0
	}
	return strconv.Itoa(seconds)
}
