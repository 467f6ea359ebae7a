package meshmetrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	qerrors "github.com/kryptomesh/meshd/internal/errors"
	"github.com/rs/zerolog"
)

// ConnObserver adapts a Collector (and a logger) to meshconn.Observer,
// without meshconn importing Prometheus, zerolog, or OpenTelemetry
// directly. It also emits one trace span per handshake and per processed
// message, carrying the latency meshconn already measured as a span
// attribute since the observer callback fires after the work completes
// rather than around it.
type ConnObserver struct {
	metrics *Collector
	log     zerolog.Logger
	tracer  trace.Tracer
}

// NewConnObserver constructs a ConnObserver. log is named "conn".
func NewConnObserver(metrics *Collector, log zerolog.Logger) *ConnObserver {
	return &ConnObserver{
		metrics: metrics,
		log:     log.With().Str("component", "conn").Logger(),
		tracer:  otel.Tracer("github.com/kryptomesh/meshd/pkg/meshconn"),
	}
}

func (o *ConnObserver) OnHandshakeComplete(userID string, d time.Duration) {
	o.metrics.HandshakeCompleted()
	o.metrics.HandshakeLatency(d)
	o.log.Info().Str("user_id", userID).Dur("latency", d).Msg("handshake complete")

	_, span := o.tracer.Start(context.Background(), "meshconn.handshake")
	span.SetAttributes(attribute.String("user_id", userID), attribute.Int64("duration_ms", d.Milliseconds()))
	span.End()
}

func (o *ConnObserver) OnMessageProcessed(d time.Duration) {
	o.metrics.MessageProcessed(d)

	_, span := o.tracer.Start(context.Background(), "meshconn.process_message")
	span.SetAttributes(attribute.Int64("duration_ms", d.Milliseconds()))
	span.End()
}

func (o *ConnObserver) OnProtocolError(err error) {
	var perr *qerrors.ProtocolError
	if errors.As(err, &perr) && strings.HasPrefix(perr.Phase, "handshake.") {
		o.metrics.HandshakeFailed(perr.Phase)
	} else {
		o.metrics.MessageRejected("protocol_error")
	}
	o.log.Warn().Err(err).Msg("protocol error")
}

func (o *ConnObserver) OnRateLimited(key string) {
	prefix, _, _ := strings.Cut(key, ":")
	o.metrics.RateLimited(prefix)
	o.log.Warn().Str("key", key).Msg("rate limited")
}

func (o *ConnObserver) OnClosed(reason string) {
	o.metrics.ConnectionClosed()
	o.log.Info().Str("reason", reason).Msg("connection closed")
}

// DispatchObserver adapts a Collector and logger to meshdispatch.Observer.
type DispatchObserver struct {
	metrics *Collector
	log     zerolog.Logger
}

// NewDispatchObserver constructs a DispatchObserver. log is named "dispatch".
func NewDispatchObserver(metrics *Collector, log zerolog.Logger) *DispatchObserver {
	return &DispatchObserver{metrics: metrics, log: log.With().Str("component", "dispatch").Logger()}
}

func (o *DispatchObserver) OnRegister(memberCount int) {
	o.log.Debug().Int("members", memberCount).Msg("member registered")
}

func (o *DispatchObserver) OnUnregister(memberCount int) {
	o.log.Debug().Int("members", memberCount).Msg("member unregistered")
}

func (o *DispatchObserver) OnBroadcast(recipientCount int) {
	o.metrics.BroadcastDelivered(recipientCount)
}

func (o *DispatchObserver) OnSlowConsumer(memberID string) {
	o.metrics.SlowConsumer()
	o.log.Warn().Str("member_id", memberID).Msg("slow consumer")
}
