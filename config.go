package authflow

import (
	"errors"
	"strings"
	"time"
)

// Config holds the controller configuration. Build it from [DefaultConfig]
// and pass it to [Builder.WithConfig].
type Config struct {
	Timeouts TimeoutConfig
	Messages MessageConfig
	Landing  LandingConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
TIMEOUT CONFIG
====================================
*/

// TimeoutConfig bounds each authenticator call. Zero disables the bound
// and the call runs until the caller context ends.
type TimeoutConfig struct {
	Login      time.Duration
	VerifyTOTP time.Duration
	Logout     time.Duration
}

/*
====================================
MESSAGE CONFIG
====================================
*/

// MessageConfig holds the user-facing fallback texts used when the service
// does not supply a detail.
type MessageConfig struct {
	CredentialRejected    string
	SecondFactorRejected  string
	CredentialTimedOut    string
	SecondFactorTimedOut  string
	CredentialsIncomplete string
	CodeIncomplete        string
}

/*
====================================
LANDING CONFIG
====================================
*/

// LandingConfig names the destination handed to the view (and the optional
// [Navigator]) once the flow authenticates.
type LandingConfig struct {
	Path string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters and the call latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Timeouts: TimeoutConfig{
			Login:      15 * time.Second,
			VerifyTOTP: 15 * time.Second,
			Logout:     5 * time.Second,
		},
		Messages: MessageConfig{
			CredentialRejected:    "Invalid username or password. Please try again.",
			SecondFactorRejected:  "Invalid verification code. Please try again.",
			CredentialTimedOut:    "Sign-in timed out. Please try again.",
			SecondFactorTimedOut:  "Verification timed out. Please try again.",
			CredentialsIncomplete: "Username and password are required.",
			CodeIncomplete:        "Enter the verification code from your authenticator app.",
		},
		Landing: LandingConfig{
			Path: "/",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting in c.
func (c *Config) Validate() error {
	if c.Timeouts.Login < 0 || c.Timeouts.VerifyTOTP < 0 || c.Timeouts.Logout < 0 {
		return errors.New("timeouts must be >= 0")
	}

	if strings.TrimSpace(c.Messages.CredentialRejected) == "" {
		return errors.New("Messages.CredentialRejected must be set")
	}
	if strings.TrimSpace(c.Messages.SecondFactorRejected) == "" {
		return errors.New("Messages.SecondFactorRejected must be set")
	}
	if c.Messages.CredentialRejected == c.Messages.SecondFactorRejected {
		return errors.New("credential and second-factor messages must differ")
	}
	if strings.TrimSpace(c.Messages.CredentialTimedOut) == "" ||
		strings.TrimSpace(c.Messages.SecondFactorTimedOut) == "" {
		return errors.New("timed-out messages must be set")
	}
	if strings.TrimSpace(c.Messages.CredentialsIncomplete) == "" ||
		strings.TrimSpace(c.Messages.CodeIncomplete) == "" {
		return errors.New("incomplete-input messages must be set")
	}

	if !strings.HasPrefix(c.Landing.Path, "/") {
		return errors.New("Landing.Path must be an absolute path")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
