package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/cockroachdb/pebble"

	qerrors "github.com/kryptomesh/meshd/internal/errors"
	"github.com/kryptomesh/meshd/pkg/protocol"
)

// Key prefixes for the single Pebble keyspace this store owns.
const (
	userPrefix     = "u:"
	messagePrefix  = "m:"
	idxSenderPfx   = "idx:sender:"
	idxTimePfx     = "idx:ts:"
	idxTypePfx     = "idx:type:"
	messageCounter = "m:__count__"
)

// PebbleStore is a durable UserStore and MessageStore backed by a single
// cockroachdb/pebble instance. Users and Messages share one keyspace,
// distinguished by key prefix; Messages additionally maintain derived
// index prefixes updated in the same write batch as the primary record so
// they can never diverge from it.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebbleStore opens (creating if necessary) a Pebble database at dir.
func OpenPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, qerrors.NewStoreError("open", err)
	}
	return &PebbleStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *PebbleStore) Close() error {
	if err := s.db.Close(); err != nil {
		return qerrors.NewStoreError("close", err)
	}
	return nil
}

// Upsert implements UserStore.
func (s *PebbleStore) Upsert(_ context.Context, u protocol.User) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return qerrors.NewStoreError("upsert_marshal", err)
	}
	if err := s.db.Set([]byte(userPrefix+u.ID), raw, pebble.Sync); err != nil {
		return qerrors.NewStoreError("upsert", err)
	}
	return nil
}

// Get implements UserStore.
func (s *PebbleStore) Get(_ context.Context, id string) (protocol.User, error) {
	raw, closer, err := s.db.Get([]byte(userPrefix + id))
	if err == pebble.ErrNotFound {
		return protocol.User{}, qerrors.NewStoreError("get", qerrors.ErrNotFound)
	}
	if err != nil {
		return protocol.User{}, qerrors.NewStoreError("get", err)
	}
	defer closer.Close()

	var u protocol.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return protocol.User{}, qerrors.NewStoreError("get_unmarshal", err)
	}
	return u, nil
}

// SetOnline implements UserStore.
func (s *PebbleStore) SetOnline(ctx context.Context, id string, online bool, lastSeenUnixMs int64) error {
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	u.IsOnline = online
	u.LastSeen = lastSeenUnixMs
	return s.Upsert(ctx, u)
}

// List implements UserStore.
func (s *PebbleStore) List(_ context.Context) ([]protocol.User, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(userPrefix),
		UpperBound: []byte(userPrefix + "\xff"),
	})
	if err != nil {
		return nil, qerrors.NewStoreError("list", err)
	}
	defer iter.Close()

	var out []protocol.User
	for iter.First(); iter.Valid(); iter.Next() {
		var u protocol.User
		if err := json.Unmarshal(iter.Value(), &u); err != nil {
			return nil, qerrors.NewStoreError("list_unmarshal", err)
		}
		out = append(out, u)
	}
	return out, nil
}

// Append implements MessageStore. The primary record and its three
// secondary index entries are written in a single batch so a crash never
// leaves one without the others.
func (s *PebbleStore) Append(_ context.Context, m protocol.Message) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return qerrors.NewStoreError("append_marshal", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set([]byte(messagePrefix+m.ID), raw, nil); err != nil {
		return qerrors.NewStoreError("append", err)
	}
	if err := batch.Set([]byte(fmt.Sprintf("%s%s:%s", idxSenderPfx, m.SenderID, m.ID)), nil, nil); err != nil {
		return qerrors.NewStoreError("append_index_sender", err)
	}
	if err := batch.Set([]byte(fmt.Sprintf("%s%020d:%s", idxTimePfx, m.Timestamp, m.ID)), nil, nil); err != nil {
		return qerrors.NewStoreError("append_index_ts", err)
	}
	if err := batch.Set([]byte(fmt.Sprintf("%s%s:%s", idxTypePfx, m.Type, m.ID)), nil, nil); err != nil {
		return qerrors.NewStoreError("append_index_type", err)
	}

	count, err := s.messageCount()
	if err != nil {
		return err
	}
	if err := batch.Set([]byte(messageCounter), []byte(strconv.Itoa(count+1)), nil); err != nil {
		return qerrors.NewStoreError("append_counter", err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return qerrors.NewStoreError("append_commit", err)
	}
	return nil
}

func (s *PebbleStore) messageCount() (int, error) {
	raw, closer, err := s.db.Get([]byte(messageCounter))
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, qerrors.NewStoreError("count", err)
	}
	defer closer.Close()
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, qerrors.NewStoreError("count_parse", err)
	}
	return n, nil
}

// Count implements MessageStore.
func (s *PebbleStore) Count(_ context.Context) (int, error) {
	return s.messageCount()
}

// BySender implements MessageStore via the sender secondary index.
func (s *PebbleStore) BySender(_ context.Context, senderID string) ([]protocol.Message, error) {
	prefix := fmt.Sprintf("%s%s:", idxSenderPfx, senderID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "\xff"),
	})
	if err != nil {
		return nil, qerrors.NewStoreError("by_sender", err)
	}
	defer iter.Close()

	var out []protocol.Message
	for iter.First(); iter.Valid(); iter.Next() {
		msgID := string(iter.Key())[len(prefix):]
		raw, closer, err := s.db.Get([]byte(messagePrefix + msgID))
		if err != nil {
			return nil, qerrors.NewStoreError("by_sender_lookup", err)
		}
		var m protocol.Message
		unmarshalErr := json.Unmarshal(raw, &m)
		closer.Close()
		if unmarshalErr != nil {
			return nil, qerrors.NewStoreError("by_sender_unmarshal", unmarshalErr)
		}
		out = append(out, m)
	}
	// The sender index is ordered by message ID; return oldest first.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}
