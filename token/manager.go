package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the JWS algorithm of access tokens.
type SigningMethod string

const (
	// MethodHS256 signs with a shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
)

// ErrInvalidToken wraps every parse or validation failure.
var ErrInvalidToken = errors.New("invalid access token")

// Config defines the access token parameters.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	// PrivateKey is the HS256 secret, or a raw or PEM Ed25519 private key.
	PrivateKey []byte
	// PublicKey is a raw or PEM Ed25519 public key. Derived from PrivateKey
	// when empty.
	PublicKey []byte
	Issuer    string
	Audience  string
	Leeway    time.Duration
	KeyID     string
}

// Subject is who a token is issued to.
type Subject struct {
	UserID    string
	SessionID string
	Username  string
	Role      string
	Verified  bool
}

// Claims are the access token claims.
type Claims struct {
	UID      string `json:"uid"`
	SID      string `json:"sid"`
	Role     string `json:"role,omitempty"`
	Username string `json:"usr,omitempty"`
	Verified bool   `json:"ver,omitempty"`
	jwt.RegisteredClaims
}

// Manager issues and parses access tokens. It is safe for concurrent use.
type Manager struct {
	config    Config
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	now       func() time.Time
}

// NewManager validates cfg and resolves its keys.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("access TTL must be > 0")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("leeway must be within [0, 2m]")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{config: cfg, now: time.Now}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 secret must be at least 32 bytes")
		}
		m.method = jwt.SigningMethodHS256
		m.signKey = cfg.PrivateKey
		m.verifyKey = cfg.PrivateKey

	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.signKey = priv
			m.verifyKey = priv.Public()
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.verifyKey = pub
		}
		if m.verifyKey == nil {
			return nil, errors.New("ed25519 requires a private or public key")
		}

	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	return m, nil
}

// TTL returns the configured access token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.config.AccessTTL
}

// Issue signs an access token for s and returns it with its expiry.
func (m *Manager) Issue(s Subject) (string, time.Time, error) {
	if m.signKey == nil {
		return "", time.Time{}, errors.New("manager has no signing key")
	}

	now := m.now()
	expiresAt := now.Add(m.config.AccessTTL)

	claims := Claims{
		UID:      s.UserID,
		SID:      s.SessionID,
		Role:     s.Role,
		Username: s.Username,
		Verified: s.Verified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.UserID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	tok := jwt.NewWithClaims(m.method, claims)
	if m.config.KeyID != "" {
		tok.Header["kid"] = m.config.KeyID
	}

	signed, err := tok.SignedString(m.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies raw and returns its claims. All failures wrap
// [ErrInvalidToken].
func (m *Manager) Parse(raw string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	claims := &Claims{}
	tok, err := jwt.NewParser(options...).ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if m.config.KeyID != "" {
			if kid, _ := t.Header["kid"].(string); kid != m.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return m.verifyKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid || claims.UID == "" || claims.SID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return claims, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
