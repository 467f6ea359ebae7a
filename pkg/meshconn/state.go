package meshconn

// State is the lifecycle state of a single connection.
type State int32

// The four states a connection passes through, in order; CLOSED is
// terminal and reachable from any of the others.
const (
	StateNew State = iota
	StateAuthenticating
	StateAuthenticated
	StateClosed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
