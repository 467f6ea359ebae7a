// Package store defines the persistence interfaces for the roster and
// message log, plus an in-memory implementation and a durable
// cockroachdb/pebble-backed implementation.
package store

import (
	"context"

	"github.com/kryptomesh/meshd/pkg/protocol"
)

// UserStore manages the roster of known users, including online state.
type UserStore interface {
	// Upsert inserts or replaces the user record keyed by u.ID.
	Upsert(ctx context.Context, u protocol.User) error
	// Get returns the user with id, or errs.ErrNotFound.
	Get(ctx context.Context, id string) (protocol.User, error)
	// SetOnline idempotently marks id online or offline and updates lastSeen.
	SetOnline(ctx context.Context, id string, online bool, lastSeenUnixMs int64) error
	// List returns every known user.
	List(ctx context.Context) ([]protocol.User, error)
}

// MessageStore is an append-only log of chat messages with secondary
// access by sender, time, and type.
type MessageStore interface {
	// Append persists m. Implementations must not partially write m: a
	// failure here must leave the store exactly as it was before the call.
	Append(ctx context.Context, m protocol.Message) error
	// Count returns the total number of persisted messages.
	Count(ctx context.Context) (int, error)
	// BySender returns messages authored by senderID, oldest first.
	BySender(ctx context.Context, senderID string) ([]protocol.Message, error)
}
