package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestChallengeIssueGetDelete(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewChallengeStore(rdb, "")
	ctx := context.Background()

	issued, err := store.Issue(ctx, "u1", 3*time.Minute)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if !mr.Exists("hsc:u1") {
		t.Fatal("expected challenge key hsc:u1")
	}
	if ttl := mr.TTL("hsc:u1"); ttl != 3*time.Minute {
		t.Fatalf("expected 3m TTL, got %v", ttl)
	}

	got, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.UserID != "u1" || got.ExpiresAt != issued.ExpiresAt || got.Attempts != 0 {
		t.Fatalf("unexpected record %+v", got)
	}

	existed, err := store.Delete(ctx, "u1")
	if err != nil || !existed {
		t.Fatalf("Delete: existed=%v err=%v", existed, err)
	}
	if _, err := store.Get(ctx, "u1"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
}

func TestChallengeExpiredIsRemoved(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewChallengeStore(rdb, "")
	ctx := context.Background()

	if _, err := store.Issue(ctx, "u1", time.Minute); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	store.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	if _, err := store.Get(ctx, "u1"); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
	if mr.Exists("hsc:u1") {
		t.Fatal("expected expired challenge to be deleted")
	}
}

func TestChallengeRecordFailureCapsAttempts(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewChallengeStore(rdb, "")
	ctx := context.Background()

	if _, err := store.Issue(ctx, "u1", time.Minute); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	for i := 1; i < 3; i++ {
		exceeded, err := store.RecordFailure(ctx, "u1", 3)
		if err != nil {
			t.Fatalf("RecordFailure %d: %v", i, err)
		}
		if exceeded {
			t.Fatalf("attempt %d must not exceed the cap", i)
		}
		got, _ := store.Get(ctx, "u1")
		if int(got.Attempts) != i {
			t.Fatalf("expected %d attempts, got %d", i, got.Attempts)
		}
	}

	exceeded, err := store.RecordFailure(ctx, "u1", 3)
	if err != nil || !exceeded {
		t.Fatalf("expected cap to be reached, exceeded=%v err=%v", exceeded, err)
	}
	if mr.Exists("hsc:u1") {
		t.Fatal("expected challenge to be deleted at the cap")
	}

	if _, err := store.RecordFailure(ctx, "u1", 3); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
}

func TestChallengeRecordFailureFollowsInjectedClock(t *testing.T) {
	mr, rdb := newTestRedis(t)
	base := time.Now()
	store := NewChallengeStore(rdb, "").WithClock(func() time.Time { return base })
	ctx := context.Background()

	if _, err := store.Issue(ctx, "u1", time.Minute); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	store.now = func() time.Time { return base.Add(40 * time.Second) }
	if _, err := store.RecordFailure(ctx, "u1", 5); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if ttl := mr.TTL("hsc:u1"); ttl > 21*time.Second || ttl < 19*time.Second {
		t.Fatalf("expected the remaining TTL from the injected clock, got %v", ttl)
	}

	store.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := store.RecordFailure(ctx, "u1", 5); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
	if mr.Exists("hsc:u1") {
		t.Fatal("expected expired challenge to be deleted")
	}
}

func TestChallengeCorruptRecord(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewChallengeStore(rdb, "")

	if err := mr.Set("hsc:u1", "\x09garbage"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.Get(context.Background(), "u1"); !errors.Is(err, errRecordCorrupt) {
		t.Fatalf("expected corrupt record error, got %v", err)
	}
}

func TestChallengeBackendDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewChallengeStore(rdb, "")
	mr.Close()

	if _, err := store.Issue(context.Background(), "u1", time.Minute); !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
}

func TestSessionSaveGetDelete(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewSessionStore(rdb, "")
	ctx := context.Background()

	record := &Session{
		SessionID: "s1",
		UserID:    "u1",
		Role:      "doctor",
		CreatedAt: time.Now().Unix(),
		ExpiresAt: time.Now().Add(15 * time.Minute).Unix(),
	}
	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !mr.Exists("hss:s1") {
		t.Fatal("expected session key hss:s1")
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if *got != *record {
		t.Fatalf("expected %+v, got %+v", record, got)
	}

	for i := 0; i < 2; i++ {
		if _, err := store.Delete(ctx, "s1"); err != nil {
			t.Fatalf("Delete %d failed: %v", i, err)
		}
	}
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionSaveRejectsExpired(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewSessionStore(rdb, "")
	err := store.Save(context.Background(), &Session{SessionID: "s1", ExpiresAt: time.Now().Add(-time.Second).Unix()})
	if err == nil {
		t.Fatal("expected expired session to be refused")
	}
}

func TestReplayGuardClaimsOnce(t *testing.T) {
	mr, rdb := newTestRedis(t)
	guard := NewReplayGuard(rdb, "")
	ctx := context.Background()

	first, err := guard.Claim(ctx, "u1", "123456", 90*time.Second)
	if err != nil || !first {
		t.Fatalf("expected first claim to succeed, ok=%v err=%v", first, err)
	}
	again, err := guard.Claim(ctx, "u1", "123456", 90*time.Second)
	if err != nil || again {
		t.Fatalf("expected replay to be refused, ok=%v err=%v", again, err)
	}
	other, err := guard.Claim(ctx, "u2", "123456", 90*time.Second)
	if err != nil || !other {
		t.Fatalf("expected other user to claim the same digits, ok=%v err=%v", other, err)
	}

	mr.FastForward(91 * time.Second)
	later, err := guard.Claim(ctx, "u1", "123456", 90*time.Second)
	if err != nil || !later {
		t.Fatalf("expected claim after window, ok=%v err=%v", later, err)
	}

	for _, k := range mr.Keys() {
		if k == "hsu:u1:123456" {
			t.Fatal("replay key must not contain the plaintext code")
		}
	}
}
