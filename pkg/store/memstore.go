package store

import (
	"context"
	"sync"

	qerrors "github.com/kryptomesh/meshd/internal/errors"
	"github.com/kryptomesh/meshd/pkg/protocol"
)

// MemStore is a map-backed UserStore and MessageStore, used by tests and
// by the server's default no-data-dir run mode.
type MemStore struct {
	mu       sync.RWMutex
	users    map[string]protocol.User
	messages []protocol.Message
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{users: make(map[string]protocol.User)}
}

// Upsert implements UserStore.
func (s *MemStore) Upsert(_ context.Context, u protocol.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

// Get implements UserStore.
func (s *MemStore) Get(_ context.Context, id string) (protocol.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return protocol.User{}, qerrors.NewStoreError("get", qerrors.ErrNotFound)
	}
	return u, nil
}

// SetOnline implements UserStore. Setting the same online state twice in a
// row is a no-op beyond refreshing lastSeen, matching the idempotence
// required of online-state mutations.
func (s *MemStore) SetOnline(_ context.Context, id string, online bool, lastSeenUnixMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return qerrors.NewStoreError("set_online", qerrors.ErrNotFound)
	}
	u.IsOnline = online
	u.LastSeen = lastSeenUnixMs
	s.users[id] = u
	return nil
}

// List implements UserStore.
func (s *MemStore) List(_ context.Context) ([]protocol.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

// Append implements MessageStore.
func (s *MemStore) Append(_ context.Context, m protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return nil
}

// Count implements MessageStore.
func (s *MemStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages), nil
}

// BySender implements MessageStore.
func (s *MemStore) BySender(_ context.Context, senderID string) ([]protocol.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []protocol.Message
	for _, m := range s.messages {
		if m.SenderID == senderID {
			out = append(out, m)
		}
	}
	return out, nil
}
