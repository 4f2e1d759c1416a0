package userstore

import (
	"context"
	"strings"
	"sync"
)

// Memory is an in-process Provider. Usernames match case-insensitively.
type Memory struct {
	mu         sync.RWMutex
	byID       map[string]Record
	byUsername map[string]string
}

// NewMemory returns an empty Memory provider.
func NewMemory() *Memory {
	return &Memory{
		byID:       make(map[string]Record),
		byUsername: make(map[string]string),
	}
}

func usernameKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func (m *Memory) GetByUsername(_ context.Context, username string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byUsername[usernameKey(username)]
	if !ok {
		return Record{}, ErrNotFound
	}
	return m.byID[id], nil
}

func (m *Memory) GetByID(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) Create(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := usernameKey(r.Username)
	if _, ok := m.byID[r.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := m.byUsername[key]; ok {
		return ErrDuplicate
	}
	if r.Role == "" {
		r.Role = RolePatient
	}

	m.byID[r.ID] = r
	m.byUsername[key] = r.ID
	return nil
}

func (m *Memory) SetTOTPSecret(_ context.Context, id, secret string) error {
	return m.update(id, func(r *Record) {
		r.TOTPSecret = secret
		r.TOTPEnabled = false
	})
}

func (m *Memory) EnableTOTP(_ context.Context, id string) error {
	return m.update(id, func(r *Record) {
		r.TOTPEnabled = r.TOTPSecret != ""
	})
}

func (m *Memory) update(id string, fn func(*Record)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	fn(&r)
	m.byID[id] = r
	return nil
}
