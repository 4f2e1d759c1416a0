package authflow

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidTransition is returned when an operation is called from a
	// state that does not allow it. No authenticator call is made.
	ErrInvalidTransition = errors.New("invalid flow transition")
	// ErrSuperseded is returned when the response of an authenticator call
	// arrived after the flow moved on (cancel, logout). The response was
	// discarded and the state was not touched.
	ErrSuperseded = errors.New("authentication response superseded")
	// ErrNotReady is returned by a zero or unbuilt Controller.
	ErrNotReady = errors.New("flow controller not initialized")
	// ErrAuthenticatorRequired is returned by Build without an authenticator.
	ErrAuthenticatorRequired = errors.New("authenticator required")
)

// Operation names carried by [AuthError].
const (
	OpLogin      = "login"
	OpVerifyTOTP = "verify_totp"
	OpLogout     = "logout"
)

// AuthError is returned by an [Authenticator] when the service rejected the
// request. Detail is the optional human-readable reason supplied by the
// service; when empty the controller falls back to a generic message.
type AuthError struct {
	Op     string
	Detail string
	Err    error
}

func (e *AuthError) Error() string {
	var b strings.Builder
	b.WriteString("authflow: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Detail != "":
		b.WriteString(e.Detail)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		b.WriteString("rejected")
	}
	return b.String()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// DetailOf returns the service-supplied detail of err, or "" when err is not
// an [AuthError] or carries none.
func DetailOf(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return strings.TrimSpace(authErr.Detail)
	}
	return ""
}

// IsRejection reports whether err is a service rejection as opposed to a
// transport fault.
func IsRejection(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
