package onboarding

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisLaunchStore(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisLaunchStore(rdb, "")
	ctx := context.Background()

	done, err := store.IsLaunchComplete(ctx, "dev-1")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, store.MarkLaunchComplete(ctx, "dev-1"))
	assert.True(t, mr.Exists("hsl:dev-1"))
	assert.Zero(t, mr.TTL("hsl:dev-1"), "launch flag must not expire")

	done, err = store.IsLaunchComplete(ctx, "dev-1")
	require.NoError(t, err)
	assert.True(t, done)

	done, err = store.IsLaunchComplete(ctx, "dev-2")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestRedisLaunchStoreBackendFailure(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisLaunchStore(rdb, "custom")
	mr.Close()

	_, err := store.IsLaunchComplete(context.Background(), "dev-1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, store.MarkLaunchComplete(context.Background(), "dev-1"), ErrStoreUnavailable)
}

func TestMemoryLaunchStoreZeroValue(t *testing.T) {
	var store MemoryLaunchStore
	ctx := context.Background()

	done, err := store.IsLaunchComplete(ctx, "dev-1")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, store.MarkLaunchComplete(ctx, "dev-1"))
	done, err = store.IsLaunchComplete(ctx, "dev-1")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestStoresRequireDeviceID(t *testing.T) {
	_, rdb := newTestRedis(t)
	for _, store := range []LaunchStore{NewMemoryLaunchStore(), NewRedisLaunchStore(rdb, "")} {
		_, err := store.IsLaunchComplete(context.Background(), " ")
		assert.Error(t, err)
		assert.Error(t, store.MarkLaunchComplete(context.Background(), ""))
	}
}

func TestGateFirstLaunchThenLogin(t *testing.T) {
	gate := NewGate(NewMemoryLaunchStore(), nil)
	ctx := context.Background()

	assert.Equal(t, RouteLanding, gate.InitialRoute(ctx, "dev-1"))

	next, err := gate.Continue(ctx, "dev-1", RouteSignup)
	require.NoError(t, err)
	assert.Equal(t, RouteSignup, next)

	assert.Equal(t, RouteLogin, gate.InitialRoute(ctx, "dev-1"))
	assert.Equal(t, RouteLanding, gate.InitialRoute(ctx, "dev-2"))
}

func TestGateContinueRejectsOtherRoutes(t *testing.T) {
	store := NewMemoryLaunchStore()
	gate := NewGate(store, nil)

	_, err := gate.Continue(context.Background(), "dev-1", RouteLanding)
	require.Error(t, err)

	done, _ := store.IsLaunchComplete(context.Background(), "dev-1")
	assert.False(t, done, "a rejected route must not mark the launch complete")
}

type failingStore struct{ err error }

func (f failingStore) IsLaunchComplete(context.Context, string) (bool, error) { return false, f.err }
func (f failingStore) MarkLaunchComplete(context.Context, string) error       { return f.err }

func TestGateStoreFailureFallsBackToLanding(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	boom := errors.New("boom")
	gate := NewGate(failingStore{err: boom}, zap.New(core))

	assert.Equal(t, RouteLanding, gate.InitialRoute(context.Background(), "dev-1"))

	next, err := gate.Continue(context.Background(), "dev-1", RouteLogin)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, RouteLogin, next)
	assert.Equal(t, 2, logs.Len())
}
