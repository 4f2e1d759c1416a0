package stores

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard remembers TOTP codes that were accepted so the same code
// cannot be used twice inside its validity window.
type ReplayGuard struct {
	redis  redis.UniversalClient
	prefix string
}

// NewReplayGuard returns a guard keyed "<prefix>:<userID>:<hash>", "hsu" by default.
func NewReplayGuard(client redis.UniversalClient, prefix string) *ReplayGuard {
	if prefix == "" {
		prefix = "hsu"
	}
	return &ReplayGuard{redis: client, prefix: prefix}
}

func (g *ReplayGuard) key(userID, code string) string {
	sum := sha256.Sum256([]byte(userID + ":" + code))
	return g.prefix + ":" + userID + ":" + hex.EncodeToString(sum[:8])
}

// Claim marks code as used for userID. It returns false when the code was
// already claimed.
func (g *ReplayGuard) Claim(ctx context.Context, userID, code string, ttl time.Duration) (bool, error) {
	ok, err := g.redis.SetNX(ctx, g.key(userID, code), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return ok, nil
}
