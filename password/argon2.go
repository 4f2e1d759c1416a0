package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
)

var (
	// ErrTooShort is returned by Hash for passwords under Config.MinLength bytes.
	ErrTooShort = errors.New("password too short")
	// ErrMalformedHash is returned when a stored hash is not a valid argon2id PHC string.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Config holds the Argon2id cost parameters.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// MinLength is the minimum password length in bytes accepted by Hash.
	MinLength int
}

// DefaultConfig returns the parameters used for new accounts.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
		MinLength:   8,
	}
}

// Hasher hashes and verifies passwords. It is safe for concurrent use.
type Hasher struct {
	config Config

	dummyOnce sync.Once
	dummy     string
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

// New validates cfg and returns a Hasher.
func New(cfg Config) (*Hasher, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &Hasher{config: cfg}, nil
}

// Hash returns the PHC encoding of password under a fresh random salt.
// Password bytes are used exactly as given, without Unicode normalization.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < h.config.MinLength {
		return "", fmt.Errorf("%w: need at least %d bytes", ErrTooShort, h.config.MinLength)
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, h.config.Time, h.config.Memory, h.config.Parallelism, h.config.KeyLength)

	return encodePHC(phc{
		memory:      h.config.Memory,
		time:        h.config.Time,
		parallelism: h.config.Parallelism,
		salt:        salt,
		key:         key,
	}), nil
}

// Verify reports whether password matches encoded. The comparison is constant time.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	p, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}

	key := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(key, p.key) == 1, nil
}

// VerifyDummy spends the same work as a real Verify against a hash that
// nothing matches. Login calls it for unknown usernames so response time
// does not reveal which usernames exist.
func (h *Hasher) VerifyDummy(password string) {
	h.dummyOnce.Do(func() {
		salt := make([]byte, h.config.SaltLength)
		_, _ = io.ReadFull(rand.Reader, salt)
		h.dummy = encodePHC(phc{
			memory:      h.config.Memory,
			time:        h.config.Time,
			parallelism: h.config.Parallelism,
			salt:        salt,
			key:         make([]byte, h.config.KeyLength),
		})
	})
	_, _ = h.Verify(password, h.dummy)
}

// NeedsRehash reports whether encoded was produced with weaker parameters
// than the Hasher's current ones.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	p, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}

	return h.config.Memory > p.memory ||
		h.config.Time > p.time ||
		h.config.Parallelism > p.parallelism ||
		h.config.KeyLength != uint32(len(p.key)), nil
}

func encodePHC(p phc) string {
	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		p.memory,
		p.time,
		p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key),
	)
}

func decodePHC(encoded string) (phc, error) {
	var p phc

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return p, fmt.Errorf("%w: expected 5 fields", ErrMalformedHash)
	}
	if parts[1] != algorithmID {
		return p, fmt.Errorf("%w: algorithm %q", ErrMalformedHash, parts[1])
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return p, fmt.Errorf("%w: version %q", ErrMalformedHash, parts[2])
	}

	if err := parseParams(parts[3], &p); err != nil {
		return p, err
	}

	var err error
	if p.salt, err = decodeB64(parts[4]); err != nil || len(p.salt) < int(minSaltLength) {
		return p, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if p.key, err = decodeB64(parts[5]); err != nil || len(p.key) == 0 {
		return p, fmt.Errorf("%w: key", ErrMalformedHash)
	}

	return p, nil
}

// decodeB64 accepts padded and unpadded standard base64.
func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

func parseParams(part string, p *phc) error {
	var seen uint8

	for _, pair := range strings.Split(part, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("%w: parameter %q", ErrMalformedHash, pair)
		}

		switch k {
		case "m":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n < uint64(minMemoryKB) {
				return fmt.Errorf("%w: memory", ErrMalformedHash)
			}
			p.memory = uint32(n)
			seen |= 1
		case "t":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n < uint64(minTimeCost) {
				return fmt.Errorf("%w: time", ErrMalformedHash)
			}
			p.time = uint32(n)
			seen |= 2
		case "p":
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil || n < uint64(minParallelism) {
				return fmt.Errorf("%w: parallelism", ErrMalformedHash)
			}
			p.parallelism = uint8(n)
			seen |= 4
		default:
			return fmt.Errorf("%w: unknown parameter %q", ErrMalformedHash, k)
		}
	}

	if seen != 7 {
		return fmt.Errorf("%w: missing parameters", ErrMalformedHash)
	}
	return nil
}

func validateConfig(cfg Config) error {
	switch {
	case cfg.Memory < minMemoryKB:
		return errors.New("password memory must be >= 8192 KB")
	case cfg.Time < minTimeCost:
		return errors.New("password time must be >= 1")
	case cfg.Parallelism < minParallelism:
		return errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return errors.New("password salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return errors.New("password key length must be >= 16")
	case cfg.MinLength < 1:
		return errors.New("password minimum length must be >= 1")
	}
	return nil
}
