// Package meshconn implements the per-socket connection state machine:
// NEW → AUTHENTICATING → AUTHENTICATED → CLOSED, the handshake and
// encrypted-message processing pipelines, and the idle/heartbeat timers
// that drive liveness.
package meshconn

import (
	"context"
	"encoding/base64"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kryptomesh/meshd/internal/constants"
	qerrors "github.com/kryptomesh/meshd/internal/errors"
	"github.com/kryptomesh/meshd/pkg/meshcrypto"
	"github.com/kryptomesh/meshd/pkg/meshdispatch"
	"github.com/kryptomesh/meshd/pkg/meshlimit"
	"github.com/kryptomesh/meshd/pkg/protocol"
	"github.com/kryptomesh/meshd/pkg/store"
)

// Handler owns one accepted TCP connection end to end: framing, the
// handshake, encrypted-message processing, and the idle/heartbeat timers.
// It implements meshdispatch.Member so the Dispatcher can address it
// directly.
type Handler struct {
	id       string
	conn     net.Conn
	codec    *protocol.LineCodec
	remoteIP string

	server   *meshcrypto.ServerIdentity
	peerKeys *meshcrypto.PeerKeyring

	dispatcher *meshdispatch.Dispatcher
	users      store.UserStore
	messages   store.MessageStore
	limiter    *meshlimit.Limiter
	observer   Observer

	cfg Config
	now func() time.Time

	state atomic.Int32

	mu            sync.RWMutex
	userID        string
	username      string
	publicKeyB64  string
	connectedAt   int64
	sessionKey    meshcrypto.SessionKey
	hasSessionKey bool

	outbound chan protocol.Envelope

	lastRead  atomic.Int64
	lastWrite atomic.Int64

	closeOnce   sync.Once
	closeReason string
	done        chan struct{}
}

// New constructs a Handler for an accepted connection. id is the
// server-assigned connection identifier; remoteIP is the peer's address
// without port, used as the rate-limiter's "ip:" key.
func New(
	id string,
	conn net.Conn,
	remoteIP string,
	server *meshcrypto.ServerIdentity,
	peerKeys *meshcrypto.PeerKeyring,
	dispatcher *meshdispatch.Dispatcher,
	users store.UserStore,
	messages store.MessageStore,
	limiter *meshlimit.Limiter,
	observer Observer,
	cfg Config,
) *Handler {
	if cfg.WriterIdle <= 0 {
		cfg.WriterIdle = constants.DefaultWriterIdle
	}
	if cfg.ReaderIdle <= 0 {
		cfg.ReaderIdle = time.Duration(constants.DefaultReaderIdleMultiple) * cfg.WriterIdle
	}
	if cfg.OutboundQueueLen <= 0 {
		cfg.OutboundQueueLen = constants.DefaultOutboundQueueSize
	}
	if observer == nil {
		observer = NoOpObserver{}
	}

	h := &Handler{
		id:         id,
		conn:       conn,
		codec:      protocol.NewLineCodec(conn, conn),
		remoteIP:   remoteIP,
		server:     server,
		peerKeys:   peerKeys,
		dispatcher: dispatcher,
		users:      users,
		messages:   messages,
		limiter:    limiter,
		observer:   observer,
		cfg:        cfg,
		now:        time.Now,
		outbound:   make(chan protocol.Envelope, cfg.OutboundQueueLen),
		done:       make(chan struct{}),
	}
	h.state.Store(int32(StateNew))
	h.touchRead()
	h.touchWrite()
	return h
}

// ID implements meshdispatch.Member. Before a handshake completes this is
// the empty string; the dispatcher never sees a Handler before that point.
func (h *Handler) ID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.userID
}

// Send implements meshdispatch.Member: a non-blocking enqueue onto the
// outbound queue. A full queue is a slow-consumer condition.
func (h *Handler) Send(env protocol.Envelope) error {
	select {
	case h.outbound <- env:
		return nil
	default:
		return qerrors.NewResourceError("outbound_queue", qerrors.ErrSlowConsumer)
	}
}

// SessionKey returns the connection's established session key, if any.
func (h *Handler) SessionKey() (meshcrypto.SessionKey, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessionKey, h.hasSessionKey
}

// Username returns the bound display name, or "" before handshake.
func (h *Handler) Username() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.username
}

// UserInfo implements meshdispatch.Member. Before a handshake completes
// this returns a zero-value User; the dispatcher never sees a Handler
// before that point.
func (h *Handler) UserInfo() protocol.User {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return protocol.User{
		ID:           h.userID,
		Username:     h.username,
		PublicKey:    h.publicKeyB64,
		IsOnline:     true,
		LastSeen:     h.connectedAt,
		ConnectionID: h.id,
		IPAddress:    h.remoteIP,
	}
}

// State returns the connection's current lifecycle state.
func (h *Handler) State() State {
	return State(h.state.Load())
}

func (h *Handler) setState(s State) {
	h.state.Store(int32(s))
}

func (h *Handler) touchRead()  { h.lastRead.Store(h.now().UnixNano()) }
func (h *Handler) touchWrite() { h.lastWrite.Store(h.now().UnixNano()) }

// LastActivity returns the time of the connection's most recent successful
// read, for an acceptor-level idle sweep to cross-check against its own
// reader-idle timer.
func (h *Handler) LastActivity() time.Time {
	return time.Unix(0, h.lastRead.Load())
}

// Run drives the connection until it closes: a read pump, a write pump,
// and an idle/heartbeat monitor, all cancellable by ctx or by Close.
// Run blocks until the connection has fully terminated.
func (h *Handler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)

	go func() { defer wg.Done(); h.readPump() }()
	go func() { defer wg.Done(); h.writePump() }()
	go func() { defer wg.Done(); h.monitor(ctx) }()

	select {
	case <-ctx.Done():
		h.Close("SHUTDOWN")
	case <-h.done:
	}
	wg.Wait()
}

// Close terminates the connection exactly once, running the cancellation
// sequence from the connection handler's lifecycle contract.
func (h *Handler) Close(reason string) {
	h.closeOnce.Do(func() {
		h.closeReason = reason
		wasAuthenticated := h.State() == StateAuthenticated
		username := h.Username()
		userID := h.ID()

		h.setState(StateClosed)
		_ = h.conn.Close()
		close(h.done)

		if userID != "" {
			h.dispatcher.Unregister(userID, h)
			h.peerKeys.Forget(userID)
			_ = h.users.SetOnline(context.Background(), userID, false, h.now().UnixNano()/int64(time.Millisecond))
		}

		h.mu.Lock()
		h.hasSessionKey = false
		h.sessionKey = meshcrypto.SessionKey{}
		h.mu.Unlock()

		if wasAuthenticated && username != "" {
			h.broadcastSystem(username + " left the chat")
		}

		h.observer.OnClosed(reason)
	})
}

func nowMillis(t time.Time) int64 { return t.UnixNano() / int64(time.Millisecond) }

// base64 helpers local to this package to keep the wire decode/encode of
// EncryptedMessageData fields in one place.
func decodeB64(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }
func encodeB64(b []byte) string          { return base64.StdEncoding.EncodeToString(b) }
