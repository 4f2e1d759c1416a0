package authservice

import (
	"errors"

	"github.com/MrEthical07/authflow"
)

var (
	ErrInvalidCredentials        = errors.New("invalid credentials")
	ErrInvalidCode               = errors.New("invalid verification code")
	ErrCodeReused                = errors.New("verification code already used")
	ErrChallengeInvalid          = errors.New("no pending verification")
	ErrChallengeExpired          = errors.New("verification expired")
	ErrChallengeAttemptsExceeded = errors.New("too many verification attempts")
	ErrUnauthorized              = errors.New("not authenticated")
	ErrTOTPNotProvisioned        = errors.New("totp not provisioned")
	ErrTOTPAlreadyEnabled        = errors.New("totp already enabled")
	ErrUnavailable               = errors.New("authentication service unavailable")
)

// Detail returns the user-facing text for err, the value clients show as
// the error detail. Unknown errors map to a generic text.
func Detail(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid username or password"
	case errors.Is(err, ErrInvalidCode), errors.Is(err, ErrCodeReused):
		return "Invalid verification code"
	case errors.Is(err, ErrChallengeExpired):
		return "Verification expired. Please sign in again."
	case errors.Is(err, ErrChallengeInvalid):
		return "No pending verification. Please sign in again."
	case errors.Is(err, ErrChallengeAttemptsExceeded):
		return "Too many attempts. Please sign in again."
	case errors.Is(err, ErrUnauthorized):
		return "Not authenticated"
	case errors.Is(err, ErrTOTPNotProvisioned):
		return "Two-factor authentication is not set up"
	case errors.Is(err, ErrTOTPAlreadyEnabled):
		return "Two-factor authentication is already enabled"
	default:
		return "Service unavailable"
	}
}

// IsRejection reports whether err is a decision of the service, as opposed
// to a failure to reach one.
func IsRejection(err error) bool {
	return err != nil && !errors.Is(err, ErrUnavailable) && Detail(err) != Detail(ErrUnavailable)
}

// AsAuthError converts a service error into what an authflow.Authenticator
// returns: rejections become *authflow.AuthError carrying Detail, anything
// else passes through as a transport fault.
func AsAuthError(op string, err error) error {
	if err == nil {
		return nil
	}
	if !IsRejection(err) {
		return err
	}
	return &authflow.AuthError{Op: op, Detail: Detail(err), Err: err}
}
