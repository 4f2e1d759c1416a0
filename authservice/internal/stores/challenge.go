package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengeRecordVersion1 = 1

var (
	ErrChallengeNotFound = errors.New("totp challenge not found")
	ErrChallengeExpired  = errors.New("totp challenge expired")
	ErrBackend           = errors.New("auth store backend unavailable")
)

// Challenge is a pending second-factor challenge. There is at most one per
// user; a new login replaces it.
type Challenge struct {
	UserID    string
	IssuedAt  int64
	ExpiresAt int64
	Attempts  uint16
}

type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewChallengeStore returns a store keyed "<prefix>:<userID>", "hsc" by default.
func NewChallengeStore(client redis.UniversalClient, prefix string) *ChallengeStore {
	if prefix == "" {
		prefix = "hsc"
	}
	return &ChallengeStore{redis: client, prefix: prefix, now: time.Now}
}

// WithClock replaces the clock used for issue and expiry checks.
func (s *ChallengeStore) WithClock(now func() time.Time) *ChallengeStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *ChallengeStore) key(userID string) string {
	return s.prefix + ":" + userID
}

// Issue stores a fresh challenge for userID, replacing any pending one.
func (s *ChallengeStore) Issue(ctx context.Context, userID string, ttl time.Duration) (*Challenge, error) {
	now := s.now()
	record := &Challenge{
		UserID:    userID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
	encoded, err := encodeChallenge(record)
	if err != nil {
		return nil, err
	}
	if err := s.redis.Set(ctx, s.key(userID), encoded, ttl).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return record, nil
}

func (s *ChallengeStore) Get(ctx context.Context, userID string) (*Challenge, error) {
	data, err := s.redis.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	record, err := decodeChallenge(data)
	if err != nil {
		return nil, err
	}
	if s.now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(userID)).Result()
		return nil, ErrChallengeExpired
	}
	return record, nil
}

// Delete removes the challenge and reports whether one existed.
func (s *ChallengeStore) Delete(ctx context.Context, userID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return n > 0, nil
}

// RecordFailure counts a wrong code. When the count reaches maxAttempts the
// challenge is deleted and exceeded is true.
func (s *ChallengeStore) RecordFailure(ctx context.Context, userID string, maxAttempts int) (exceeded bool, err error) {
	const maxRetries = 4
	key := s.key(userID)

	for i := 0; i < maxRetries; i++ {
		exceeded = false
		err = s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			record, err := decodeChallenge(data)
			if err != nil {
				return err
			}

			now := s.now()
			ttl := time.Unix(record.ExpiresAt, 0).Sub(now)
			if now.Unix() > record.ExpiresAt || ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrChallengeExpired
			}

			record.Attempts++
			if int(record.Attempts) >= maxAttempts {
				exceeded = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			updated, err := encodeChallenge(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case err == nil:
			return exceeded, nil
		case errors.Is(err, redis.Nil):
			return false, ErrChallengeNotFound
		case errors.Is(err, ErrChallengeExpired), errors.Is(err, errRecordCorrupt):
			return false, err
		default:
			return false, fmt.Errorf("%w: %v", ErrBackend, err)
		}
	}

	return false, fmt.Errorf("%w: contention on %s", ErrBackend, key)
}

func encodeChallenge(record *Challenge) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(challengeRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := writeString(&buf, record.UserID); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeChallenge(data []byte) (*Challenge, error) {
	r := bytes.NewReader(data)
	if err := readVersion(r, challengeRecordVersion1); err != nil {
		return nil, err
	}

	record := &Challenge{}
	if err := binary.Read(r, binary.BigEndian, &record.Attempts); err != nil {
		return nil, errRecordCorrupt
	}
	if err := binary.Read(r, binary.BigEndian, &record.IssuedAt); err != nil {
		return nil, errRecordCorrupt
	}
	if err := binary.Read(r, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, errRecordCorrupt
	}
	userID, err := readString(r)
	if err != nil {
		return nil, err
	}
	record.UserID = userID
	return record, nil
}
