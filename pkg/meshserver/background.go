package meshserver

import (
	"context"
	"time"

	"github.com/kryptomesh/meshd/pkg/meshconn"
)

// runTicking drives fn every interval until ctx is cancelled, recovering a
// panic in fn (logging it) rather than letting one bad tick take the whole
// background task down — the restart-on-error contract for idle sweep,
// stats tick, and rate-limiter GC.
func (s *Server) runTicking(ctx context.Context, interval time.Duration, name string, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.safeRun(name, fn)
		}
	}
}

func (s *Server) safeRun(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("task", name).Interface("panic", r).Msg("background task panicked, continuing")
		}
	}()
	fn()
}

// sweepIdle closes any handler whose last successful read is older than
// 2*ConnectionTimeout. Each handler already self-enforces this via its own
// reader-idle timer; this is the acceptor-level backstop named in spec
// §4.6, catching a handler whose monitor goroutine wedged.
func (s *Server) sweepIdle() {
	cutoff := time.Now().Add(-2 * s.cfg.ConnectionTimeout)

	s.mu.Lock()
	stale := make([]*meshconn.Handler, 0)
	for _, h := range s.handlers {
		if h.LastActivity().Before(cutoff) {
			stale = append(stale, h)
		}
	}
	s.mu.Unlock()

	for _, h := range stale {
		h.Close("READ_TIMEOUT")
	}
}

func (s *Server) tickStats() {
	s.log.Info().
		Int64("active_connections", s.active.Load()).
		Int("members", s.dispatcher.Len()).
		Int("rate_limit_buckets", s.limiter.Len()).
		Msg("stats tick")
}
