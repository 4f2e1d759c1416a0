package authservice

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authflow/userstore"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
)

// Enrollment is what a user needs to add the account to an authenticator app.
type Enrollment struct {
	Secret string
	URL    string
}

// EnrollTOTP generates and stores a new secret for userID. TOTP stays off
// until ConfirmTOTP proves the app produces matching codes.
func (s *Service) EnrollTOTP(ctx context.Context, userID string) (Enrollment, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			return Enrollment{}, ErrUnauthorized
		}
		return Enrollment{}, s.unavailable("user lookup", err)
	}
	if user.TOTPEnabled {
		return Enrollment{}, ErrTOTPAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.cfg.TOTP.Issuer,
		AccountName: user.Username,
		Period:      s.cfg.TOTP.Period,
		Digits:      s.digits(),
		Algorithm:   otp.AlgorithmSHA1,
		SecretSize:  20,
	})
	if err != nil {
		return Enrollment{}, err
	}
	if err := s.users.SetTOTPSecret(ctx, user.ID, key.Secret()); err != nil {
		return Enrollment{}, s.unavailable("totp secret save", err)
	}
	s.logger.Info("totp provisioned", zap.String("user_id", user.ID))
	return Enrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// ConfirmTOTP enables TOTP once code matches the provisioned secret.
func (s *Service) ConfirmTOTP(ctx context.Context, userID, code string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			return ErrUnauthorized
		}
		return s.unavailable("user lookup", err)
	}
	if user.TOTPEnabled {
		return ErrTOTPAlreadyEnabled
	}
	if user.TOTPSecret == "" {
		return ErrTOTPNotProvisioned
	}
	if !s.validateCode(strings.TrimSpace(code), user.TOTPSecret) {
		return ErrInvalidCode
	}
	if err := s.users.EnableTOTP(ctx, user.ID); err != nil {
		return s.unavailable("totp enable", err)
	}
	s.logger.Info("totp enabled", zap.String("user_id", user.ID))
	return nil
}

func (s *Service) validateCode(code, secret string) bool {
	if len(code) != s.cfg.TOTP.Digits {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, s.now().UTC(), totp.ValidateOpts{
		Period:    s.cfg.TOTP.Period,
		Skew:      s.cfg.TOTP.Skew,
		Digits:    s.digits(),
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func (s *Service) digits() otp.Digits {
	if s.cfg.TOTP.Digits == 8 {
		return otp.DigitsEight
	}
	return otp.DigitsSix
}
