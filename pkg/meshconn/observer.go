package meshconn

import "time"

// Observer receives lifecycle and processing-latency hooks for a
// connection. Implementations should be lightweight; callbacks may run on
// the hot message-processing path.
type Observer interface {
	OnHandshakeComplete(userID string, d time.Duration)
	OnMessageProcessed(d time.Duration)
	OnProtocolError(err error)
	OnRateLimited(key string)
	OnClosed(reason string)
}

// NoOpObserver discards every event. Used when no metrics collaborator is
// configured.
type NoOpObserver struct{}

var _ Observer = NoOpObserver{}

func (NoOpObserver) OnHandshakeComplete(string, time.Duration) {}
func (NoOpObserver) OnMessageProcessed(time.Duration) {}
func (NoOpObserver) OnProtocolError(error)            {}
func (NoOpObserver) OnRateLimited(string)             {}
func (NoOpObserver) OnClosed(string)                  {}
