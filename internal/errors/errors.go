// Package errors defines the mesh server's error taxonomy: sentinel errors
// for the common failure modes of each component, plus wrapper types that
// attach operation/phase context while remaining matchable with errors.Is
// and errors.As.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for crypto operations (spec §4.2, §7 CryptoError).
var (
	// ErrBadKey indicates a peer public key could not be parsed as an
	// X.509 SubjectPublicKeyInfo RSA key.
	ErrBadKey = errors.New("crypto: bad peer key")

	// ErrBadTag indicates AES-GCM authentication failed during decrypt.
	ErrBadTag = errors.New("crypto: bad authentication tag")

	// ErrBadSignature indicates an RSA signature failed verification.
	ErrBadSignature = errors.New("crypto: bad signature")

	// ErrNoSessionKey indicates an operation needed a session key that has
	// not yet been established for the connection.
	ErrNoSessionKey = errors.New("crypto: no session key")
)

// Sentinel errors for protocol/framing operations (spec §4.1, §7 ProtocolError).
var (
	// ErrFrameTooLarge indicates a line exceeded MaxFrameBytes.
	ErrFrameTooLarge = errors.New("protocol: frame too large")

	// ErrMalformedFrame indicates a line was not valid envelope JSON.
	ErrMalformedFrame = errors.New("protocol: malformed frame")

	// ErrUnsupportedType indicates an envelope's type is not a known
	// NetworkMessageType.
	ErrUnsupportedType = errors.New("protocol: unsupported message type")

	// ErrWrongStateForType indicates a message type is not legal in the
	// connection's current state.
	ErrWrongStateForType = errors.New("protocol: message type invalid for state")
)

// Sentinel errors for resource limits (spec §7 ResourceError).
var (
	// ErrMaxConnections indicates the server is at its connection cap.
	ErrMaxConnections = errors.New("resource: max connections reached")

	// ErrSlowConsumer indicates a connection's outbound queue overflowed.
	ErrSlowConsumer = errors.New("resource: slow consumer")
)

// Sentinel errors for rate-limit policy (spec §7 PolicyError).
var (
	// ErrRateLimited indicates a token bucket had no tokens available.
	ErrRateLimited = errors.New("policy: rate limited")
)

// Sentinel errors for transport (spec §7 TransportError).
var (
	// ErrReadTimeout indicates the reader-idle interval elapsed with no
	// successful read.
	ErrReadTimeout = errors.New("transport: read timeout")

	// ErrConnectionClosed indicates the underlying socket is gone.
	ErrConnectionClosed = errors.New("transport: connection closed")
)

// Sentinel errors for persistence (spec §7 StoreError).
var (
	// ErrNotFound indicates a store lookup found no matching record.
	ErrNotFound = errors.New("store: not found")

	// ErrStoreUnavailable indicates a store operation could not complete.
	ErrStoreUnavailable = errors.New("store: unavailable")
)

// CryptoError wraps a cryptographic failure with the operation that failed.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string { return fmt.Sprintf("crypto %s: %v", e.Op, e.Err) }
func (e *CryptoError) Unwrap() error { return e.Err }

// NewCryptoError constructs a CryptoError.
func NewCryptoError(op string, err error) *CryptoError {
	return &CryptoError{Op: op, Err: err}
}

// ProtocolError wraps a framing/envelope failure with the phase it occurred in.
type ProtocolError struct {
	Phase string
	Err   error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("protocol %s: %v", e.Phase, e.Err) }
func (e *ProtocolError) Unwrap() error { return e.Err }

// NewProtocolError constructs a ProtocolError.
func NewProtocolError(phase string, err error) *ProtocolError {
	return &ProtocolError{Phase: phase, Err: err}
}

// ResourceError wraps an exhausted-capacity failure with the resource name.
type ResourceError struct {
	Resource string
	Err      error
}

func (e *ResourceError) Error() string { return fmt.Sprintf("resource %s: %v", e.Resource, e.Err) }
func (e *ResourceError) Unwrap() error { return e.Err }

// NewResourceError constructs a ResourceError.
func NewResourceError(resource string, err error) *ResourceError {
	return &ResourceError{Resource: resource, Err: err}
}

// PolicyError wraps a policy rejection (e.g. rate limiting) with the key it
// was keyed on.
type PolicyError struct {
	Key string
	Err error
}

func (e *PolicyError) Error() string { return fmt.Sprintf("policy %s: %v", e.Key, e.Err) }
func (e *PolicyError) Unwrap() error { return e.Err }

// NewPolicyError constructs a PolicyError.
func NewPolicyError(key string, err error) *PolicyError {
	return &PolicyError{Key: key, Err: err}
}

// TransportError wraps a socket-level failure with the connection ID.
type TransportError struct {
	ConnID string
	Err    error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport %s: %v", e.ConnID, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError constructs a TransportError.
func NewTransportError(connID string, err error) *TransportError {
	return &TransportError{ConnID: connID, Err: err}
}

// StoreError wraps a persistence failure with the operation attempted.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError constructs a StoreError.
func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool { return errors.As(err, target) }
