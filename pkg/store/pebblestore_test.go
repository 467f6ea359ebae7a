package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kryptomesh/meshd/pkg/protocol"
)

func TestPebbleStoreUsersRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mesh-users")
	s, err := OpenPebbleStore(dir)
	if err != nil {
		t.Fatalf("OpenPebbleStore: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	u := protocol.User{ID: "u1", Username: "Alice", IsOnline: false}
	if err := s.Upsert(ctx, u); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if err := s.SetOnline(ctx, "u1", true, 42); err != nil {
		t.Fatalf("SetOnline: %v", err)
	}
	got, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.IsOnline || got.LastSeen != 42 {
		t.Fatalf("got = %+v, want online at lastSeen 42", got)
	}
}

func TestPebbleStoreMessagesAndSenderIndex(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mesh-messages")
	s, err := OpenPebbleStore(dir)
	if err != nil {
		t.Fatalf("OpenPebbleStore: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		m := protocol.Message{ID: string(rune('a' + i)), SenderID: "u1", Timestamp: int64(i), Type: "chat"}
		if err := s.Append(ctx, m); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Fatalf("Count() = %d, want 3", count)
	}

	bySender, err := s.BySender(ctx, "u1")
	if err != nil {
		t.Fatalf("BySender: %v", err)
	}
	if len(bySender) != 3 {
		t.Fatalf("BySender() = %d, want 3", len(bySender))
	}
}

func TestPebbleStoreReopenPersists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mesh-reopen")
	ctx := context.Background()

	s1, err := OpenPebbleStore(dir)
	if err != nil {
		t.Fatalf("OpenPebbleStore: %v", err)
	}
	if err := s1.Upsert(ctx, protocol.User{ID: "u1", Username: "Alice"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := OpenPebbleStore(dir)
	if err != nil {
		t.Fatalf("OpenPebbleStore (reopen): %v", err)
	}
	defer s2.Close()

	got, err := s2.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Username != "Alice" {
		t.Fatalf("got.Username = %q, want Alice", got.Username)
	}
}
