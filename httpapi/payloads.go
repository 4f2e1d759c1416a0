package httpapi

import (
	"time"

	"github.com/MrEthical07/authflow"
)

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=150"`
	Password string `json:"password" validate:"required,max=1024"`
}

// VerifyRequest is the body of POST /api/auth/totp/verify.
type VerifyRequest struct {
	Code   string `json:"code" validate:"required,max=16"`
	UserID string `json:"user_id" validate:"required,max=128"`
}

// CodeRequest is the body of POST /api/auth/totp/confirm.
type CodeRequest struct {
	Code string `json:"code" validate:"required,max=16"`
}

// User is the wire form of a principal.
type User struct {
	ID                       string `json:"id"`
	Username                 string `json:"username"`
	Role                     string `json:"role"`
	ResumeVerificationStatus bool   `json:"resume_verification_status"`
}

// SessionResponse is returned when a session was established.
type SessionResponse struct {
	RequireTOTP bool      `json:"require_totp"`
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        User      `json:"user"`
}

// LoginResponse covers both login outcomes. UserID is set only when
// RequireTOTP is true; the session fields only when it is false.
type LoginResponse struct {
	RequireTOTP bool       `json:"require_totp"`
	UserID      string     `json:"user_id,omitempty"`
	AccessToken string     `json:"access_token,omitempty"`
	TokenType   string     `json:"token_type,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	User        *User      `json:"user,omitempty"`
}

// EnrollResponse carries the provisioning secret and otpauth URL.
type EnrollResponse struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauth_url"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

func userFromPrincipal(p authflow.Principal) User {
	return User{
		ID:                       p.ID,
		Username:                 p.Username,
		Role:                     p.Role,
		ResumeVerificationStatus: p.VerificationStatus,
	}
}

// PrincipalFromUser is the inverse of the wire mapping.
func PrincipalFromUser(u User) authflow.Principal {
	return authflow.Principal{
		ID:                 u.ID,
		Username:           u.Username,
		Role:               u.Role,
		VerificationStatus: u.ResumeVerificationStatus,
	}
}

func sessionResponse(s *authflow.Session) SessionResponse {
	return SessionResponse{
		AccessToken: s.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   s.ExpiresAt.UTC(),
		User:        userFromPrincipal(s.User),
	}
}

func loginResponse(result *authflow.LoginResult) LoginResponse {
	if result.RequireTOTP {
		return LoginResponse{RequireTOTP: true, UserID: result.UserID}
	}
	s := sessionResponse(result.Session)
	return LoginResponse{
		AccessToken: s.AccessToken,
		TokenType:   s.TokenType,
		ExpiresAt:   &s.ExpiresAt,
		User:        &s.User,
	}
}
