// Package meshserver is the acceptor and process lifecycle: bind, accept,
// enforce the connection cap, run the background idle-sweep/stats-tick
// tasks, and drain every live connection on graceful shutdown. It is the
// one place that wires meshconn, meshdispatch, meshcrypto, meshlimit,
// store, and meshmetrics together into a running server.
package meshserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kryptomesh/meshd/internal/config"
	"github.com/kryptomesh/meshd/internal/constants"
	"github.com/kryptomesh/meshd/pkg/meshconn"
	"github.com/kryptomesh/meshd/pkg/meshcrypto"
	"github.com/kryptomesh/meshd/pkg/meshdispatch"
	"github.com/kryptomesh/meshd/pkg/meshlimit"
	"github.com/kryptomesh/meshd/pkg/meshmetrics"
	"github.com/kryptomesh/meshd/pkg/protocol"
	"github.com/kryptomesh/meshd/pkg/store"
	"github.com/kryptomesh/meshd/pkg/version"
)

// Server owns one mesh chat listener: the accept loop, the membership and
// persistence collaborators every accepted connection shares, and the
// metrics/health HTTP endpoint.
type Server struct {
	cfg      config.Config
	identity *meshcrypto.ServerIdentity

	peerKeys   *meshcrypto.PeerKeyring
	dispatcher *meshdispatch.Dispatcher
	users      store.UserStore
	messages   store.MessageStore
	limiter    *meshlimit.Limiter
	metrics    *meshmetrics.Collector
	connObs    *meshmetrics.ConnObserver
	log        zerolog.Logger

	listener net.Listener
	httpSrv  *http.Server

	mu       sync.Mutex
	handlers map[string]*meshconn.Handler
	nextID   atomic.Uint64
	active   atomic.Int64

	wg           sync.WaitGroup
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// New constructs a Server. users and messages are typically
// store.NewMemStore() or store.OpenPebbleStore(cfg.DataDir), chosen by the
// caller based on whether -data-dir was configured.
func New(cfg config.Config, identity *meshcrypto.ServerIdentity, users store.UserStore, messages store.MessageStore, metrics *meshmetrics.Collector, log zerolog.Logger) *Server {
	dispatchObs := meshmetrics.NewDispatchObserver(metrics, log)
	return &Server{
		cfg:        cfg,
		identity:   identity,
		peerKeys:   meshcrypto.NewPeerKeyring(),
		dispatcher: meshdispatch.New(dispatchObs),
		users:      users,
		messages:   messages,
		limiter:    meshlimit.New(cfg.RateLimitPerMinute, time.Minute),
		metrics:    metrics,
		connObs:    meshmetrics.NewConnObserver(metrics, log),
		log:        log,
		handlers:   make(map[string]*meshconn.Handler),
	}
}

// ListenAndServe binds cfg.Host:cfg.Port, starts the metrics/health HTTP
// endpoint (if cfg.MetricsAddr is set), and runs the accept loop until ctx
// is cancelled or Shutdown is called. It blocks until the accept loop
// exits.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("meshserver: listen %s: %w", addr, err)
	}

	if s.cfg.MetricsAddr != "" {
		s.httpSrv = &http.Server{
			Addr:    s.cfg.MetricsAddr,
			Handler: meshmetrics.Handler(s.metrics, version.String()),
		}
		go func() {
			if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error().Err(err).Msg("metrics server exited")
			}
		}()
	}

	return s.Serve(ctx, lis)
}

// Serve runs the accept loop over an already-bound listener, plus the
// background idle-sweep, stats-tick, and rate-limiter GC tasks. Exposed
// separately from ListenAndServe so tests can drive a loopback listener
// directly.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.listener = lis

	s.wg.Add(3)
	go func() { defer s.wg.Done(); s.runTicking(ctx, constants.IdleSweepInterval, "idle_sweep", s.sweepIdle) }()
	go func() { defer s.wg.Done(); s.runTicking(ctx, constants.StatsTickInterval, "stats_tick", s.tickStats) }()
	go func() {
		defer s.wg.Done()
		s.runTicking(ctx, constants.IdleSweepInterval, "rate_limiter_gc", func() { s.limiter.GC() })
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn().Err(err).Msg("accept error")
			continue
		}
		s.handleAccept(ctx, conn)
	}
}

func (s *Server) handleAccept(ctx context.Context, conn net.Conn) {
	if int(s.active.Load()) >= s.cfg.MaxConnections {
		s.rejectMaxConnections(conn)
		return
	}

	s.active.Add(1)
	s.metrics.ConnectionOpened()

	id := fmt.Sprintf("conn-%d", s.nextID.Add(1))
	hcfg := meshconn.Config{
		WriterIdle:       s.cfg.HeartbeatInterval,
		ReaderIdle:       2 * s.cfg.HeartbeatInterval,
		OutboundQueueLen: constants.DefaultOutboundQueueSize,
		ServerVersion:    version.String(),
	}
	h := meshconn.New(id, conn, remoteIP(conn), s.identity, s.peerKeys, s.dispatcher, s.users, s.messages, s.limiter, s.connObs, hcfg)

	s.mu.Lock()
	s.handlers[id] = h
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.handlers, id)
			s.mu.Unlock()
			s.active.Add(-1)
		}()
		h.Run(ctx)
	}()
}

// rejectMaxConnections implements the acceptor's capacity check (spec
// §4.6): a connection arriving at or above maxConnections gets one ERROR
// frame and an immediate close, without a handler ever being constructed.
func (s *Server) rejectMaxConnections(conn net.Conn) {
	s.metrics.MessageRejected("max_connections")
	codec := protocol.NewLineCodec(conn, conn)
	env, err := protocol.NewEnvelope(protocol.TypeError, constants.ServerUserID, protocol.ErrorData{
		Code:    protocol.ErrCodeMaxConnections,
		Message: "server at capacity",
	}, time.Now().UnixNano()/int64(time.Millisecond))
	if err == nil {
		_ = codec.WriteEnvelope(env)
	}
	_ = conn.Close()
}

// Shutdown cancels the accept loop, closes the listener, closes every live
// handler, and waits up to constants.ShutdownDrainTimeout for all
// background tasks and handlers to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	var drainErr error
	s.shutdownOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}

		s.mu.Lock()
		handlers := make([]*meshconn.Handler, 0, len(s.handlers))
		for _, h := range s.handlers {
			handlers = append(handlers, h)
		}
		s.mu.Unlock()
		for _, h := range handlers {
			h.Close("SHUTDOWN")
		}

		done := make(chan struct{})
		go func() { s.wg.Wait(); close(done) }()

		select {
		case <-done:
		case <-time.After(constants.ShutdownDrainTimeout):
			drainErr = fmt.Errorf("meshserver: shutdown drain timed out after %s", constants.ShutdownDrainTimeout)
		case <-ctx.Done():
			drainErr = ctx.Err()
		}

		if s.httpSrv != nil {
			_ = s.httpSrv.Shutdown(context.Background())
		}
	})
	return drainErr
}

// Dispatcher exposes the membership directory for tests driving end-to-end
// scenarios over a real listener.
func (s *Server) Dispatcher() *meshdispatch.Dispatcher { return s.dispatcher }

// Addr returns the bound listener address, or nil before Serve/ListenAndServe.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
