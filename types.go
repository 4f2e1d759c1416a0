package authflow

import (
	"strconv"
	"time"
)

// FlowState is the tag of the single active state of a [Controller].
//
// A failed attempt is not a separate state: it is the nearest stable state
// (AwaitingCredentials or AwaitingSecondFactor) plus a non-nil [Failure].
type FlowState uint8

const (
	// StateAwaitingCredentials is the initial state. The view renders the
	// username/password form.
	StateAwaitingCredentials FlowState = iota
	// StateSubmitting means a Login call is in flight.
	StateSubmitting
	// StateAwaitingSecondFactor means the service asked for a TOTP code and
	// a [Challenge] is held.
	StateAwaitingSecondFactor
	// StateVerifyingSecondFactor means a VerifyTOTP call is in flight.
	StateVerifyingSecondFactor
	// StateAuthenticated is terminal for the flow. A [Session] is held.
	StateAuthenticated
)

func (s FlowState) String() string {
	switch s {
	case StateAwaitingCredentials:
		return "awaiting_credentials"
	case StateSubmitting:
		return "submitting"
	case StateAwaitingSecondFactor:
		return "awaiting_second_factor"
	case StateVerifyingSecondFactor:
		return "verifying_second_factor"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "flow_state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Busy reports whether an authentication call is outstanding in s.
func (s FlowState) Busy() bool {
	return s == StateSubmitting || s == StateVerifyingSecondFactor
}

// HoldsChallenge reports whether a [Challenge] must exist in s.
func (s FlowState) HoldsChallenge() bool {
	return s == StateAwaitingSecondFactor || s == StateVerifyingSecondFactor
}

// Credentials is the transient username/password pair of one attempt.
// It is never persisted; String redacts the password so it can be logged.
type Credentials struct {
	Username string
	Password string
}

// Empty reports whether both fields are blank.
func (c Credentials) Empty() bool {
	return c.Username == "" && c.Password == ""
}

func (c Credentials) String() string {
	if c.Password == "" {
		return "Credentials{Username:" + strconv.Quote(c.Username) + "}"
	}
	return "Credentials{Username:" + strconv.Quote(c.Username) + " Password:<redacted>}"
}

// GoString keeps %#v from printing the password.
func (c Credentials) GoString() string {
	return c.String()
}

// Challenge is the pending second-factor challenge returned by a Login call
// that requires TOTP.
type Challenge struct {
	UserID   string
	IssuedAt time.Time
}

// Principal is the authenticated user as reported by the service.
type Principal struct {
	ID                 string
	Username           string
	Role               string
	VerificationStatus bool
}

// Session is the authenticated context established on success.
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
	User        Principal
}

// LoginResult is what [Authenticator.Login] returns on success: either a
// TOTP requirement with the challenge user ID, or a session.
type LoginResult struct {
	RequireTOTP bool
	UserID      string
	Session     *Session
}

// FailureKind is one of the two error kinds the flow resolves into.
type FailureKind uint8

const (
	// CredentialRejected is a first-step (username/password) failure.
	CredentialRejected FailureKind = iota + 1
	// SecondFactorRejected is a second-step (TOTP) failure.
	SecondFactorRejected
)

func (k FailureKind) String() string {
	switch k {
	case CredentialRejected:
		return "credential_rejected"
	case SecondFactorRejected:
		return "second_factor_rejected"
	default:
		return "unknown"
	}
}

// FailureReason refines a [FailureKind].
type FailureReason uint8

const (
	// ReasonRejected means the service answered with a rejection.
	ReasonRejected FailureReason = iota + 1
	// ReasonUnavailable means the call failed below the service contract
	// (transport fault, cancelled context).
	ReasonUnavailable
	// ReasonTimedOut means the configured call timeout elapsed.
	ReasonTimedOut
	// ReasonIncomplete means required input was missing and no call was made.
	ReasonIncomplete
)

func (r FailureReason) String() string {
	switch r {
	case ReasonRejected:
		return "rejected"
	case ReasonUnavailable:
		return "unavailable"
	case ReasonTimedOut:
		return "timed_out"
	case ReasonIncomplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

// Failure describes the last failed attempt. Message is the user-facing
// text the view renders.
type Failure struct {
	Kind    FailureKind
	Reason  FailureReason
	Message string
}

// Snapshot is an immutable view of a [Controller] taken right after a
// transition. Version increases by one per transition, so a view receiving
// snapshots from several goroutines can drop stale ones.
type Snapshot struct {
	Version     uint64
	State       FlowState
	Credentials Credentials
	Challenge   *Challenge
	Session     *Session
	Failure     *Failure
	Destination string
}

// Busy reports whether the view should disable its triggers.
func (s Snapshot) Busy() bool {
	return s.State.Busy()
}

// Failed reports whether the last attempt failed.
func (s Snapshot) Failed() bool {
	return s.Failure != nil
}

// ErrorMessage returns the user-facing failure text, or "" when the last
// attempt did not fail.
func (s Snapshot) ErrorMessage() string {
	if s.Failure == nil {
		return ""
	}
	return s.Failure.Message
}
