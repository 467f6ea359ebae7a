// Package meshdispatch implements the chat room's membership directory and
// message fan-out. Registration and unregistration are writers; Broadcast
// and Snapshot are readers; all three share one lock so that a join or
// leave is never interleaved with an in-progress fan-out.
package meshdispatch

import (
	"sync"

	"github.com/kryptomesh/meshd/pkg/protocol"
)

// Member is anything the dispatcher can deliver an Envelope to: in
// production, a live connection's write side; in tests, a recorder.
type Member interface {
	ID() string
	// Send enqueues env for delivery. It must not block: a full outbound
	// queue is a slow-consumer condition, reported back to the caller
	// rather than stalling the fan-out for every other recipient.
	Send(env protocol.Envelope) error
	// UserInfo describes the member for a USER_LIST snapshot.
	UserInfo() protocol.User
}

// Observer receives notifications about dispatcher activity, for metrics.
type Observer interface {
	OnRegister(memberCount int)
	OnUnregister(memberCount int)
	OnBroadcast(recipientCount int)
	OnSlowConsumer(memberID string)
}

// Dispatcher is the directory of currently-registered members and the
// single point of fan-out for broadcast messages.
type Dispatcher struct {
	mu       sync.RWMutex
	members  map[string]Member
	observer Observer
}

// New constructs an empty Dispatcher. obs may be nil.
func New(obs Observer) *Dispatcher {
	return &Dispatcher{
		members:  make(map[string]Member),
		observer: obs,
	}
}

// Register adds m to the directory, replacing any existing member with the
// same ID (the newer connection is authoritative). The older connection is
// neither notified nor closed; its later Unregister leaves the newer
// registration in place.
func (d *Dispatcher) Register(m Member) {
	d.mu.Lock()
	d.members[m.ID()] = m
	count := len(d.members)
	d.mu.Unlock()

	if d.observer != nil {
		d.observer.OnRegister(count)
	}
}

// Unregister removes the member with id, but only if it is still m — this
// prevents a stale unregister (from a connection that has since been
// superseded by a reconnect) from evicting the newer registration.
func (d *Dispatcher) Unregister(id string, m Member) {
	d.mu.Lock()
	count := len(d.members)
	if cur, ok := d.members[id]; ok && cur == m {
		delete(d.members, id)
		count = len(d.members)
	}
	d.mu.Unlock()

	if d.observer != nil {
		d.observer.OnUnregister(count)
	}
}

// Snapshot returns a stable point-in-time copy of the member set, safe to
// range over without holding the dispatcher's lock.
func (d *Dispatcher) Snapshot() []Member {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Member, 0, len(d.members))
	for _, m := range d.members {
		out = append(out, m)
	}
	return out
}

// Len reports the number of registered members.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.members)
}

// UserList builds a USER_LIST snapshot directly from the registered
// membership, the set of currently-authenticated connections, rather than
// from any historical record of users seen. This is what makes the
// snapshot reflect "authenticated connections at this instant" rather
// than every user ever seen, online or not.
func (d *Dispatcher) UserList() protocol.UserListData {
	members := d.Snapshot()

	users := make([]protocol.User, 0, len(members))
	for _, m := range members {
		users = append(users, m.UserInfo())
	}
	return protocol.UserListData{
		Users:       users,
		TotalUsers:  len(users),
		OnlineUsers: len(users),
	}
}

// EnvelopeBuilder produces the envelope to deliver to a specific
// recipient — typically re-encrypting the plaintext under that
// recipient's own session key.
type EnvelopeBuilder func(recipient Member) (protocol.Envelope, error)

// Broadcast takes a stable snapshot of the membership and delivers one
// envelope, built fresh per recipient by build, to every member for whom
// include returns true. include is typically "not the sender", but
// broadcast of a SYSTEM notice addresses everyone.
//
// Broadcast appears atomic with respect to Register/Unregister: the
// snapshot is taken once, under the lock, before any delivery begins, so a
// join or leave that happens during fan-out is wholly excluded or wholly
// visible to the next call, never split across it.
func (d *Dispatcher) Broadcast(build EnvelopeBuilder, include func(Member) bool) (slowConsumers []Member) {
	members := d.Snapshot()

	delivered := 0
	for _, m := range members {
		if include != nil && !include(m) {
			continue
		}
		env, err := build(m)
		if err != nil {
			continue
		}
		if err := m.Send(env); err != nil {
			slowConsumers = append(slowConsumers, m)
			if d.observer != nil {
				d.observer.OnSlowConsumer(m.ID())
			}
			continue
		}
		delivered++
	}

	if d.observer != nil {
		d.observer.OnBroadcast(delivered)
	}
	return slowConsumers
}
