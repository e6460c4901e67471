package kenmon

import (
	"errors"
	"fmt"
)

// Error codes returned across the public API. Every public operation
// returns either its result or an *AuthError carrying one of these codes.
const (
	// Dispatch errors
	ErrCodeProviderNotFound    = "provider-not-found"
	ErrCodePrepareNotSupported = "prepare-not-supported"

	// Session errors
	ErrCodeSessionNotFound = "session-not-found"
	ErrCodeInvalidSession  = "invalid-session"
	ErrCodeSessionExpired  = "session-expired"

	// User errors
	ErrCodeUserNotFound = "user-not-found"
	ErrCodeUserExists   = "user-already-exists"

	// OTP errors
	ErrCodeOTPNotFound      = "not-found"
	ErrCodeOTPExpired       = "expired"
	ErrCodeOTPInvalidCode   = "invalid-code"
	ErrCodeOTPAlreadyUsed   = "already-used"
	ErrCodeOTPEmailMismatch = "email-mismatch"

	// OAuth errors
	ErrCodeInvalidState        = "invalid-state"
	ErrCodeExpiredState        = "expired-state"
	ErrCodeOAuthInvalidCode    = "invalid-code"
	ErrCodeTokenExchangeFailed = "token-exchange-failed"
	ErrCodeProfileFetchFailed  = "profile-fetch-failed"

	// Catch-all for store/infrastructure failures surfaced to the caller
	ErrCodeInternal = "internal"
)

// AuthError is the typed failure returned by every public operation.
// Internal failures (JWT decoding, store round-trips) are wrapped into one
// of the taxonomy codes before crossing the API boundary.
type AuthError struct {
	Code    string
	Message string
	Err     error // underlying cause, if any
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// NewAuthError creates an AuthError with the given code and message
func NewAuthError(code, message string) *AuthError {
	return &AuthError{Code: code, Message: message}
}

// WrapAuthError creates an AuthError wrapping an underlying cause
func WrapAuthError(code, message string, err error) *AuthError {
	return &AuthError{Code: code, Message: message, Err: err}
}

// CodeOf returns the taxonomy code of err, or "" if err is not an AuthError
func CodeOf(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// Sentinel errors returned by store implementations. The core maps these
// into the AuthError taxonomy; applications implementing their own stores
// must return them for the corresponding conditions.
var (
	// ErrUserNotFound is returned by UserStore lookups for unknown users/identifiers
	ErrUserNotFound = errors.New("user not found")

	// ErrSessionNotFound is returned by SessionStore.GetSessionById for unknown ids
	ErrSessionNotFound = errors.New("session not found")

	// ErrOTPNotFound is returned by OTPStore.GetOTPById for unknown ids
	ErrOTPNotFound = errors.New("otp not found")

	// ErrOTPAlreadyUsed is returned by OTPStore.MarkOTPUsed when the used
	// latch was already set. This is the store-level half of the single-use
	// guarantee: the mark must be a conditional write.
	ErrOTPAlreadyUsed = errors.New("otp already used")
)
