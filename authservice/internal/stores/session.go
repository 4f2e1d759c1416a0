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

const sessionRecordVersion1 = 1

var ErrSessionNotFound = errors.New("session not found")

// Session is the server-side record behind an access token. Deleting it
// revokes the token before its expiry.
type Session struct {
	SessionID string
	UserID    string
	Role      string
	CreatedAt int64
	ExpiresAt int64
}

type SessionStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewSessionStore returns a store keyed "<prefix>:<sessionID>", "hss" by default.
func NewSessionStore(client redis.UniversalClient, prefix string) *SessionStore {
	if prefix == "" {
		prefix = "hss"
	}
	return &SessionStore{redis: client, prefix: prefix}
}

func (s *SessionStore) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *SessionStore) Save(ctx context.Context, record *Session) error {
	ttl := time.Until(time.Unix(record.ExpiresAt, 0))
	if ttl <= 0 {
		return errors.New("session already expired")
	}
	encoded, err := encodeSession(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(record.SessionID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	record, err := decodeSession(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		return nil, ErrSessionNotFound
	}
	return record, nil
}

// Delete is idempotent. It reports whether a session existed.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return n > 0, nil
}

func encodeSession(record *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(sessionRecordVersion1)

	for _, s := range []string{record.SessionID, record.UserID, record.Role} {
		if err := writeString(&buf, s); err != nil {
			return nil, err
		}
	}
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSession(data []byte) (*Session, error) {
	r := bytes.NewReader(data)
	if err := readVersion(r, sessionRecordVersion1); err != nil {
		return nil, err
	}

	record := &Session{}
	var err error
	if record.SessionID, err = readString(r); err != nil {
		return nil, err
	}
	if record.UserID, err = readString(r); err != nil {
		return nil, err
	}
	if record.Role, err = readString(r); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, errRecordCorrupt
	}
	if err := binary.Read(r, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, errRecordCorrupt
	}
	return record, nil
}
