package meshconn

import "github.com/google/uuid"

// newMessageID mints an ID for server-originated payloads (SYSTEM notices)
// that don't carry one from the wire.
func newMessageID() string {
	return uuid.NewString()
}
