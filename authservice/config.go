package authservice

import (
	"errors"
	"strings"
	"time"
)

// Config tunes the second-factor rules of the service.
type Config struct {
	// ChallengeTTL is how long a pending TOTP challenge stays valid.
	ChallengeTTL time.Duration
	// MaxChallengeAttempts wrong codes delete the pending challenge.
	MaxChallengeAttempts int
	TOTP                 TOTPConfig
	// RedisPrefix is prepended to every store key prefix.
	RedisPrefix string
}

// TOTPConfig holds the RFC 6238 parameters. Authenticator apps expect the
// defaults.
type TOTPConfig struct {
	Issuer string
	Period uint
	Skew   uint
	Digits int
}

// DefaultConfig returns the configuration the server starts with.
func DefaultConfig() Config {
	return Config{
		ChallengeTTL:         3 * time.Minute,
		MaxChallengeAttempts: 5,
		TOTP: TOTPConfig{
			Issuer: "HealthScan",
			Period: 30,
			Skew:   1,
			Digits: 6,
		},
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.ChallengeTTL <= 0 {
		return errors.New("ChallengeTTL must be > 0")
	}
	if c.MaxChallengeAttempts <= 0 {
		return errors.New("MaxChallengeAttempts must be > 0")
	}
	if strings.TrimSpace(c.TOTP.Issuer) == "" || strings.Contains(c.TOTP.Issuer, ":") {
		return errors.New("TOTP.Issuer must be set and must not contain ':'")
	}
	if c.TOTP.Period == 0 {
		return errors.New("TOTP.Period must be > 0")
	}
	if c.TOTP.Skew > 2 {
		return errors.New("TOTP.Skew must be <= 2")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP.Digits must be 6 or 8")
	}
	return nil
}

// codeWindow is how long an accepted code could still validate, which is
// how long its replay marker must live.
func (c TOTPConfig) codeWindow() time.Duration {
	return time.Duration(c.Period*(2*c.Skew+1)) * time.Second
}
