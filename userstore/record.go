package userstore

import (
	"context"
	"errors"
)

// Roles known to the navigation rules.
const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
)

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicate is returned by Create when the ID or username is taken.
	ErrDuplicate = errors.New("user already exists")
)

// Record is one stored user.
type Record struct {
	ID                 string
	Username           string
	PasswordHash       string
	Role               string
	VerificationStatus bool
	TOTPSecret         string
	TOTPEnabled        bool
}

// Provider is the user storage the authentication service depends on.
type Provider interface {
	GetByUsername(ctx context.Context, username string) (Record, error)
	GetByID(ctx context.Context, id string) (Record, error)
	Create(ctx context.Context, r Record) error
	// SetTOTPSecret stores a provisioning secret and leaves TOTP disabled
	// until EnableTOTP.
	SetTOTPSecret(ctx context.Context, id, secret string) error
	EnableTOTP(ctx context.Context, id string) error
}
