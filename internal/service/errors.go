package service

import (
	"errors"
	"fmt"
)

// Per-target failure reasons recorded in publish results.
const (
	ReasonNotConnected  = "not_connected"
	ReasonRateLimited   = "rate_limited"
	ReasonTokenRefresh  = "token_refresh_failed"
	ReasonNotSupported  = "platform_not_supported"
	ReasonPublishFailed = "publish_failed"
)

// OAuth callback failure reasons surfaced via redirect query params.
const (
	OAuthReasonNoCode           = "no_code"
	OAuthReasonInvalidState     = "invalid_state"
	OAuthReasonConnectionFailed = "connection_failed"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrMaxRetriesExceeded = errors.New("MaxRetriesExceeded")
	ErrInvalidState       = errors.New("invalid oauth state")
	ErrNotConnected       = errors.New("platform not connected")
)

// ValidationError marks malformed or missing input; mapped to 400 and
// never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// TokenRefreshError means the provider rejected a refresh; the
// connection is marked error and the user must re-authorize.
type TokenRefreshError struct {
	Platform string
	Err      error
}

func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("token refresh failed for %s: %v", e.Platform, e.Err)
}

func (e *TokenRefreshError) Unwrap() error {
	return e.Err
}

// OAuthError is a failure in the authorize/callback handshake. Reason
// is one of the OAuthReason constants and is surfaced to the dashboard
// via a redirect query parameter.
type OAuthError struct {
	Reason string
	Err    error
}

func (e *OAuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("oauth error %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("oauth error %s", e.Reason)
}

func (e *OAuthError) Unwrap() error {
	return e.Err
}
