package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable wraps backend failures of a LaunchStore.
var ErrStoreUnavailable = errors.New("launch store unavailable")

// LaunchStore persists whether a device has been through the landing
// screen once.
type LaunchStore interface {
	IsLaunchComplete(ctx context.Context, deviceID string) (bool, error)
	MarkLaunchComplete(ctx context.Context, deviceID string) error
}

// RedisLaunchStore keeps one key per device with no expiry.
type RedisLaunchStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisLaunchStore returns a store writing keys as "<prefix>:<deviceID>".
// An empty prefix defaults to "hsl".
func NewRedisLaunchStore(client redis.UniversalClient, prefix string) *RedisLaunchStore {
	if prefix == "" {
		prefix = "hsl"
	}
	return &RedisLaunchStore{redis: client, prefix: prefix}
}

func (s *RedisLaunchStore) key(deviceID string) string {
	return s.prefix + ":" + deviceID
}

func (s *RedisLaunchStore) IsLaunchComplete(ctx context.Context, deviceID string) (bool, error) {
	if err := checkDeviceID(deviceID); err != nil {
		return false, err
	}
	n, err := s.redis.Exists(ctx, s.key(deviceID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

func (s *RedisLaunchStore) MarkLaunchComplete(ctx context.Context, deviceID string) error {
	if err := checkDeviceID(deviceID); err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(deviceID), "1", 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// MemoryLaunchStore is a LaunchStore for tests and single-process use. The
// zero value is ready to use.
type MemoryLaunchStore struct {
	mu   sync.RWMutex
	done map[string]struct{}
}

func NewMemoryLaunchStore() *MemoryLaunchStore {
	return &MemoryLaunchStore{done: make(map[string]struct{})}
}

func (s *MemoryLaunchStore) IsLaunchComplete(_ context.Context, deviceID string) (bool, error) {
	if err := checkDeviceID(deviceID); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.done[deviceID]
	return ok, nil
}

func (s *MemoryLaunchStore) MarkLaunchComplete(_ context.Context, deviceID string) error {
	if err := checkDeviceID(deviceID); err != nil {
		return err
	}
	s.mu.Lock()
	if s.done == nil {
		s.done = make(map[string]struct{})
	}
	s.done[deviceID] = struct{}{}
	s.mu.Unlock()
	return nil
}

func checkDeviceID(deviceID string) error {
	if strings.TrimSpace(deviceID) == "" {
		return errors.New("device id required")
	}
	return nil
}
