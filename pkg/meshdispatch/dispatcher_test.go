package meshdispatch

import (
	"errors"
	"testing"

	"github.com/kryptomesh/meshd/pkg/protocol"
)

type recorder struct {
	id       string
	received []protocol.Envelope
	full     bool
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Send(env protocol.Envelope) error {
	if r.full {
		return errors.New("queue full")
	}
	r.received = append(r.received, env)
	return nil
}

func (r *recorder) UserInfo() protocol.User {
	return protocol.User{ID: r.id, Username: r.id, IsOnline: true}
}

func TestRegisterSnapshotUnregister(t *testing.T) {
	d := New(nil)
	a := &recorder{id: "a"}
	b := &recorder{id: "b"}

	d.Register(a)
	d.Register(b)
	if d.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", d.Len())
	}

	d.Unregister("a", a)
	if d.Len() != 1 {
		t.Fatalf("Len() after Unregister = %d, want 1", d.Len())
	}
	snap := d.Snapshot()
	if len(snap) != 1 || snap[0].ID() != "b" {
		t.Fatalf("Snapshot() = %+v, want just b", snap)
	}
}

func TestUnregisterStaleConnectionDoesNotEvictNewer(t *testing.T) {
	d := New(nil)
	old := &recorder{id: "a"}
	newer := &recorder{id: "a"}

	d.Register(old)
	d.Register(newer) // reconnect under the same user ID
	d.Unregister("a", old)

	if d.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (newer registration preserved)", d.Len())
	}
}

func TestBroadcastExcludesSenderAndDeliversToOthers(t *testing.T) {
	d := New(nil)
	sender := &recorder{id: "alice"}
	bob := &recorder{id: "bob"}
	d.Register(sender)
	d.Register(bob)

	build := func(m Member) (protocol.Envelope, error) {
		return protocol.NewEnvelope(protocol.TypeEncryptedMessage, "alice", map[string]string{"for": m.ID()}, 1)
	}
	slow := d.Broadcast(build, func(m Member) bool { return m.ID() != "alice" })

	if len(slow) != 0 {
		t.Fatalf("unexpected slow consumers: %v", slow)
	}
	if len(sender.received) != 0 {
		t.Fatal("sender should not receive its own broadcast")
	}
	if len(bob.received) != 1 {
		t.Fatalf("bob.received = %d, want 1", len(bob.received))
	}
}

func TestBroadcastReportsSlowConsumerWithoutHaltingOthers(t *testing.T) {
	d := New(nil)
	slowMember := &recorder{id: "slow", full: true}
	fine := &recorder{id: "fine"}
	d.Register(slowMember)
	d.Register(fine)

	build := func(m Member) (protocol.Envelope, error) {
		return protocol.NewEnvelope(protocol.TypeEncryptedMessage, "system", map[string]string{}, 1)
	}
	slow := d.Broadcast(build, nil)

	if len(slow) != 1 || slow[0].ID() != "slow" {
		t.Fatalf("slow = %v, want [slow]", slow)
	}
	if len(fine.received) != 1 {
		t.Fatal("the non-slow recipient should still be delivered to")
	}
}

func TestUserListReflectsOnlyLiveMembership(t *testing.T) {
	d := New(nil)
	alice := &recorder{id: "alice"}
	bob := &recorder{id: "bob"}

	d.Register(alice)
	d.Register(bob)
	list := d.UserList()
	if list.TotalUsers != 2 || list.OnlineUsers != 2 || len(list.Users) != 2 {
		t.Fatalf("UserList() = %+v, want 2 users", list)
	}

	d.Unregister("bob", bob)
	list = d.UserList()
	if list.TotalUsers != 1 || list.OnlineUsers != 1 || len(list.Users) != 1 {
		t.Fatalf("UserList() after bob disconnects = %+v, want exactly alice", list)
	}
	if list.Users[0].ID != "alice" {
		t.Fatalf("UserList() = %+v, want alice", list)
	}
}

func TestBroadcastPreservesPerSenderOrder(t *testing.T) {
	d := New(nil)
	sender := &recorder{id: "alice"}
	bob := &recorder{id: "bob"}
	d.Register(sender)
	d.Register(bob)

	for i := 0; i < 3; i++ {
		n := i
		build := func(m Member) (protocol.Envelope, error) {
			return protocol.NewEnvelope(protocol.TypeEncryptedMessage, "alice", map[string]int{"seq": n}, int64(n))
		}
		d.Broadcast(build, func(m Member) bool { return m.ID() != "alice" })
	}

	if len(bob.received) != 3 {
		t.Fatalf("bob.received = %d, want 3", len(bob.received))
	}
	for i, env := range bob.received {
		if env.Timestamp != int64(i) {
			t.Fatalf("message %d has timestamp %d, want %d (FIFO order broken)", i, env.Timestamp, i)
		}
	}
}
