package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrBadRequest      = errors.New("bad request")
	ErrTooManyRequests = errors.New("too many requests")
)

// ErrorCode is the stable machine-readable identifier clients switch on.
type ErrorCode string

const (
	CodeValidationFailed    ErrorCode = "VALIDATION_FAILED"
	CodeWeakPassword        ErrorCode = "WEAK_PASSWORD"
	CodeMissingBusinessName ErrorCode = "MISSING_BUSINESS_NAME"
	CodeEmailExists         ErrorCode = "EMAIL_EXISTS"
	CodeInvalidCredentials  ErrorCode = "INVALID_CREDENTIALS"
	CodeEmailNotVerified    ErrorCode = "EMAIL_NOT_VERIFIED"
	CodeAccountDeactivated  ErrorCode = "ACCOUNT_DEACTIVATED"
	CodeOTPNotFound         ErrorCode = "OTP_NOT_FOUND"
	CodeOTPMismatch         ErrorCode = "OTP_MISMATCH"
	CodeOTPTooManyAttempts  ErrorCode = "OTP_TOO_MANY_ATTEMPTS"
	CodeOTPRateLimited      ErrorCode = "OTP_RATE_LIMITED"
	CodeInvalidToken        ErrorCode = "INVALID_TOKEN"
	CodeUserInactive        ErrorCode = "USER_INACTIVE"
	CodeWrongPassword       ErrorCode = "WRONG_CURRENT_PASSWORD"
	CodeSamePassword        ErrorCode = "SAME_PASSWORD"
)

// AuthError is an expected rejection with enough structure for a client to
// render a precise message. It unwraps to one of the sentinel categories above
// and compares equal (errors.Is) to any AuthError carrying the same Code.
type AuthError struct {
	Code              ErrorCode
	Message           string
	AttemptsRemaining int
	RetryAfter        time.Duration
	kind              error
}

func (e *AuthError) Error() string { return e.Message }

func (e *AuthError) Unwrap() error { return e.kind }

func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Code == e.Code
}

func newAuthError(code ErrorCode, kind error, msg string) *AuthError {
	return &AuthError{Code: code, Message: msg, kind: kind}
}

var (
	ErrWeakPassword        = newAuthError(CodeWeakPassword, ErrBadRequest, "password does not meet the minimum requirements")
	ErrMissingBusinessName = newAuthError(CodeMissingBusinessName, ErrBadRequest, "business name is required for business accounts")
	ErrEmailExists         = newAuthError(CodeEmailExists, ErrConflict, "an account with this email already exists")
	ErrInvalidCredentials  = newAuthError(CodeInvalidCredentials, ErrUnauthorized, "invalid email or password")
	ErrEmailNotVerified    = newAuthError(CodeEmailNotVerified, ErrForbidden, "email address has not been verified")
	ErrAccountDeactivated  = newAuthError(CodeAccountDeactivated, ErrForbidden, "account is deactivated")
	ErrOTPNotFound         = newAuthError(CodeOTPNotFound, ErrNotFound, "verification code is invalid or has expired")
	ErrOTPMismatch         = newAuthError(CodeOTPMismatch, ErrUnauthorized, "verification code is incorrect")
	ErrOTPTooManyAttempts  = newAuthError(CodeOTPTooManyAttempts, ErrForbidden, "too many incorrect attempts; request a new code")
	ErrOTPRateLimited      = newAuthError(CodeOTPRateLimited, ErrTooManyRequests, "a code was sent recently; wait before requesting another")
	ErrInvalidToken        = newAuthError(CodeInvalidToken, ErrUnauthorized, "token is invalid or expired")
	ErrUserInactive        = newAuthError(CodeUserInactive, ErrUnauthorized, "user is inactive")
	ErrWrongPassword       = newAuthError(CodeWrongPassword, ErrBadRequest, "current password is incorrect")
	ErrSamePassword        = newAuthError(CodeSamePassword, ErrBadRequest, "new password must differ from the current one")
)

// ValidationError reports malformed input rejected before any storage access.
func ValidationError(msg string) *AuthError {
	return newAuthError(CodeValidationFailed, ErrBadRequest, msg)
}

// WeakPassword returns ErrWeakPassword with a specific reason.
func WeakPassword(reason string) *AuthError {
	e := *ErrWeakPassword
	e.Message = reason
	return &e
}

// OTPMismatch returns ErrOTPMismatch carrying the attempts left before lockout.
func OTPMismatch(remaining int) *AuthError {
	e := *ErrOTPMismatch
	e.AttemptsRemaining = remaining
	e.Message = fmt.Sprintf("verification code is incorrect; %d attempt(s) remaining", remaining)
	return &e
}

// OTPRateLimited returns ErrOTPRateLimited carrying the remaining wait.
func OTPRateLimited(retryAfter time.Duration) *AuthError {
	e := *ErrOTPRateLimited
	e.RetryAfter = retryAfter
	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	e.Message = fmt.Sprintf("a code was sent recently; try again in %d second(s)", secs)
	return &e
}

// AsAuthError extracts the AuthError from err's chain, if any.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
