package password

import (
	"errors"
	"strings"
	"testing"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Memory = minMemoryKB
	cfg.Time = 1
	cfg.Parallelism = 1
	return cfg
}

func TestHashAndVerify(t *testing.T) {
	h, err := New(fastConfig())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	hash, err := h.Hash("correct-horse")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := h.Verify("correct-horse", hash)
	if err != nil || !ok {
		t.Fatalf("expected verification to succeed, ok=%v err=%v", ok, err)
	}

	ok, err = h.Verify("wrong-horse", hash)
	if err != nil || ok {
		t.Fatalf("expected verification to fail, ok=%v err=%v", ok, err)
	}
}

func TestHashUsesFreshSalt(t *testing.T) {
	h, _ := New(fastConfig())
	a, _ := h.Hash("same-password")
	b, _ := h.Hash("same-password")
	if a == b {
		t.Fatal("expected distinct hashes for the same password")
	}
}

func TestHashRejectsShortPassword(t *testing.T) {
	h, _ := New(fastConfig())
	if _, err := h.Hash("short"); !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}

func TestVerifyAcceptsPaddedEncoding(t *testing.T) {
	h, _ := New(fastConfig())
	hash, _ := h.Hash("padded-password")

	parts := strings.Split(hash, "$")
	parts[4] += "=="
	padded := strings.Join(parts, "$")

	ok, err := h.Verify("padded-password", padded)
	if err != nil || !ok {
		t.Fatalf("expected padded hash to verify, ok=%v err=%v", ok, err)
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	h, _ := New(fastConfig())

	cases := []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
		"$argon2id$v=16$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
		"$argon2id$v=19$m=10,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
		"$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1,x=2$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$a2V5",
	}
	for _, c := range cases {
		if _, err := h.Verify("whatever-password", c); !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("Verify(%q): expected ErrMalformedHash, got %v", c, err)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	weak, _ := New(fastConfig())
	hash, _ := weak.Hash("upgrade-me-please")

	strongCfg := fastConfig()
	strongCfg.Time = 2
	strong, _ := New(strongCfg)

	if need, err := strong.NeedsRehash(hash); err != nil || !need {
		t.Fatalf("expected rehash, need=%v err=%v", need, err)
	}
	if need, err := weak.NeedsRehash(hash); err != nil || need {
		t.Fatalf("expected no rehash, need=%v err=%v", need, err)
	}
}

func TestVerifyDummyDoesNotPanic(t *testing.T) {
	h, _ := New(fastConfig())
	h.VerifyDummy("anything")
	h.VerifyDummy("anything-else")
}

func TestNewRejectsWeakConfig(t *testing.T) {
	mutations := []func(*Config){
		func(c *Config) { c.Memory = 1024 },
		func(c *Config) { c.Time = 0 },
		func(c *Config) { c.Parallelism = 0 },
		func(c *Config) { c.SaltLength = 8 },
		func(c *Config) { c.KeyLength = 8 },
		func(c *Config) { c.MinLength = 0 },
	}
	for i, m := range mutations {
		cfg := DefaultConfig()
		m(&cfg)
		if _, err := New(cfg); err == nil {
			t.Fatalf("case %d: expected config error", i)
		}
	}
}
