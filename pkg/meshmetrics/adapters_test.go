package meshmetrics

import (
	"testing"
	"time"

	qerrors "github.com/kryptomesh/meshd/internal/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestConnObserverOnHandshakeCompleteRecordsLatencyAndCount(t *testing.T) {
	c := New()
	o := NewConnObserver(c, zerolog.Nop())
	o.OnHandshakeComplete("alice", 10*time.Millisecond)

	if got := testutil.ToFloat64(c.handshakesTotal); got != 1 {
		t.Fatalf("handshakesTotal = %v, want 1", got)
	}
}

func TestConnObserverOnProtocolErrorRoutesHandshakePhaseToHandshakeFailed(t *testing.T) {
	c := New()
	o := NewConnObserver(c, zerolog.Nop())
	o.OnProtocolError(qerrors.NewProtocolError("handshake.decode", qerrors.ErrMalformedFrame))

	if got := testutil.ToFloat64(c.handshakeFailures.WithLabelValues("handshake.decode")); got != 1 {
		t.Fatalf("handshake.decode failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.messageRejects.WithLabelValues("protocol_error")); got != 0 {
		t.Fatalf("protocol_error rejects = %v, want 0", got)
	}
}

func TestConnObserverOnProtocolErrorRoutesOtherPhasesToMessageRejected(t *testing.T) {
	c := New()
	o := NewConnObserver(c, zerolog.Nop())
	o.OnProtocolError(qerrors.NewProtocolError("message.decode", qerrors.ErrMalformedFrame))

	if got := testutil.ToFloat64(c.messageRejects.WithLabelValues("protocol_error")); got != 1 {
		t.Fatalf("protocol_error rejects = %v, want 1", got)
	}
}

func TestConnObserverOnProtocolErrorHandlesUnwrappedError(t *testing.T) {
	c := New()
	o := NewConnObserver(c, zerolog.Nop())
	o.OnProtocolError(qerrors.ErrUnsupportedType)

	if got := testutil.ToFloat64(c.messageRejects.WithLabelValues("protocol_error")); got != 1 {
		t.Fatalf("protocol_error rejects = %v, want 1", got)
	}
}

func TestConnObserverOnRateLimitedSplitsKeyPrefix(t *testing.T) {
	c := New()
	o := NewConnObserver(c, zerolog.Nop())
	o.OnRateLimited("ip:10.0.0.1")
	o.OnRateLimited("user:alice")

	if got := testutil.ToFloat64(c.rateLimitedTotal.WithLabelValues("ip")); got != 1 {
		t.Fatalf("ip rate limited = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.rateLimitedTotal.WithLabelValues("user")); got != 1 {
		t.Fatalf("user rate limited = %v, want 1", got)
	}
}

func TestConnObserverOnClosedDecrementsActiveConnections(t *testing.T) {
	c := New()
	c.ConnectionOpened()
	o := NewConnObserver(c, zerolog.Nop())
	o.OnClosed("NORMAL")

	if got := testutil.ToFloat64(c.connectionsActive); got != 0 {
		t.Fatalf("connectionsActive = %v, want 0", got)
	}
}

func TestDispatchObserverOnBroadcastObservesFanout(t *testing.T) {
	c := New()
	o := NewDispatchObserver(c, zerolog.Nop())
	o.OnBroadcast(3)

	mfs, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "meshd_broadcast_fanout_size" {
			found = true
			if mf.GetMetric()[0].GetHistogram().GetSampleSum() != 3 {
				t.Fatalf("sample sum = %v, want 3", mf.GetMetric()[0].GetHistogram().GetSampleSum())
			}
		}
	}
	if !found {
		t.Fatal("broadcast_fanout_size metric not found")
	}
}

func TestDispatchObserverOnSlowConsumerIncrementsCounter(t *testing.T) {
	c := New()
	o := NewDispatchObserver(c, zerolog.Nop())
	o.OnSlowConsumer("conn-1")

	if got := testutil.ToFloat64(c.slowConsumers); got != 1 {
		t.Fatalf("slowConsumers = %v, want 1", got)
	}
}
