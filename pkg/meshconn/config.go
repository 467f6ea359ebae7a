package meshconn

import "time"

// Config carries the tunable parameters for a connection's idle/heartbeat
// policy and outbound queue sizing. Zero values are replaced by
// constants.Default* in New.
type Config struct {
	WriterIdle       time.Duration
	ReaderIdle       time.Duration
	OutboundQueueLen int
	ServerVersion    string
}
