// Package config loads the settings of the authserver and healthscan-login
// binaries from the environment and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/authservice"
	"github.com/MrEthical07/authflow/token"
	"github.com/spf13/viper"
)

// Config holds both binaries' settings. Each binary reads only its part.
type Config struct {
	// Env is "development" or "production". Production refuses insecure
	// defaults.
	Env      string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	/* ==== SERVER ==== */

	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// RedisAddr empty starts an embedded miniredis (development only).
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	// DatabaseURL empty keeps users in memory.
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	SeedDemoUsers bool   `mapstructure:"SEED_DEMO_USERS"`

	JWTSigningKey    string        `mapstructure:"JWT_SIGNING_KEY"`
	JWTSigningMethod string        `mapstructure:"JWT_SIGNING_METHOD"`
	JWTIssuer        string        `mapstructure:"JWT_ISSUER"`
	JWTAudience      string        `mapstructure:"JWT_AUDIENCE"`
	AccessTTL        time.Duration `mapstructure:"ACCESS_TTL"`

	TOTPIssuer      string        `mapstructure:"TOTP_ISSUER"`
	MFAChallengeTTL time.Duration `mapstructure:"MFA_CHALLENGE_TTL"`
	MFAMaxAttempts  int           `mapstructure:"MFA_MAX_ATTEMPTS"`

	/* ==== CLIENT ==== */

	AuthServerURL string        `mapstructure:"AUTH_SERVER_URL"`
	LoginTimeout  time.Duration `mapstructure:"LOGIN_TIMEOUT"`
	VerifyTimeout time.Duration `mapstructure:"VERIFY_TIMEOUT"`
	// DeviceID keys the first-launch flag. Empty uses the hostname.
	DeviceID string `mapstructure:"DEVICE_ID"`
}

var defaults = map[string]any{
	"APP_ENV":            "development",
	"LOG_LEVEL":          "info",
	"HTTP_ADDR":          ":8000",
	"REDIS_ADDR":         "",
	"REDIS_PASSWORD":     "",
	"REDIS_DB":           0,
	"DATABASE_URL":       "",
	"SEED_DEMO_USERS":    true,
	"JWT_SIGNING_KEY":    "",
	"JWT_SIGNING_METHOD": string(token.MethodHS256),
	"JWT_ISSUER":         "healthscan-auth",
	"JWT_AUDIENCE":       "healthscan",
	"ACCESS_TTL":         "15m",
	"TOTP_ISSUER":        "HealthScan",
	"MFA_CHALLENGE_TTL":  "3m",
	"MFA_MAX_ATTEMPTS":   5,
	"AUTH_SERVER_URL":    "http://localhost:8000",
	"LOGIN_TIMEOUT":      "15s",
	"VERIFY_TIMEOUT":     "15s",
	"DEVICE_ID":          "",
}

// Load reads .env (if present) and then the environment. Env vars override
// .env.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file path. A missing file is ignored.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		_ = v.ReadInConfig()
	}
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Production() bool {
	return c.Env == "production"
}

// Validate checks settings shared by both binaries plus the production
// requirements of the server.
func (c *Config) Validate() error {
	if c.Env != "development" && c.Env != "production" {
		return fmt.Errorf("config: APP_ENV must be development or production, got %q", c.Env)
	}
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.AccessTTL <= 0 || c.MFAChallengeTTL <= 0 {
		return errors.New("config: ACCESS_TTL and MFA_CHALLENGE_TTL must be > 0")
	}
	if c.MFAMaxAttempts <= 0 {
		return errors.New("config: MFA_MAX_ATTEMPTS must be > 0")
	}
	if c.LoginTimeout <= 0 || c.VerifyTimeout <= 0 {
		return errors.New("config: LOGIN_TIMEOUT and VERIFY_TIMEOUT must be > 0")
	}
	switch token.SigningMethod(strings.ToLower(c.JWTSigningMethod)) {
	case token.MethodHS256, token.MethodEd25519:
	default:
		return fmt.Errorf("config: JWT_SIGNING_METHOD must be hs256 or ed25519, got %q", c.JWTSigningMethod)
	}
	if c.Production() {
		if c.JWTSigningKey == "" {
			return errors.New("config: JWT_SIGNING_KEY is required when APP_ENV=production")
		}
		if c.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR is required when APP_ENV=production")
		}
		if c.SeedDemoUsers {
			return errors.New("config: SEED_DEMO_USERS must not be true when APP_ENV=production")
		}
	}
	return nil
}

// Token returns the access token settings. key overrides JWTSigningKey,
// which lets the server pass a generated development key.
func (c *Config) Token(key []byte) token.Config {
	if key == nil {
		key = []byte(c.JWTSigningKey)
	}
	return token.Config{
		AccessTTL:     c.AccessTTL,
		SigningMethod: token.SigningMethod(strings.ToLower(c.JWTSigningMethod)),
		PrivateKey:    key,
		Issuer:        c.JWTIssuer,
		Audience:      c.JWTAudience,
	}
}

func (c *Config) AuthService() authservice.Config {
	cfg := authservice.DefaultConfig()
	cfg.ChallengeTTL = c.MFAChallengeTTL
	cfg.MaxChallengeAttempts = c.MFAMaxAttempts
	cfg.TOTP.Issuer = c.TOTPIssuer
	return cfg
}

// Flow returns the controller settings for the login client.
func (c *Config) Flow() authflow.Config {
	cfg := authflow.DefaultConfig()
	cfg.Timeouts.Login = c.LoginTimeout
	cfg.Timeouts.VerifyTOTP = c.VerifyTimeout
	return cfg
}
