// Package meshd is an end-to-end-encrypted group chat mesh server: a TCP
// listener speaking a line-delimited JSON protocol, RSA-4096 handshakes
// that wrap a per-connection AES-256-GCM session key, and single-hop
// fan-out to every other authenticated peer.
//
// # Quick Start
//
// Running the server:
//
//	meshd serve --port 8443 --data-dir ./data
//
// Generating a persistent server identity ahead of time:
//
//	meshd genkey --key-path ./server.pem
//	meshd serve --port 8443 --key-path ./server.pem
//
// # Package Structure
//
//   - pkg/meshcrypto: RSA-4096 identity, session-key wrap/unwrap, AES-256-GCM, signatures
//   - pkg/protocol: Wire envelope types and line-delimited JSON framing
//   - pkg/meshconn: Per-connection state machine, handshake, and message pipeline
//   - pkg/meshdispatch: Room membership directory and broadcast fan-out
//   - pkg/meshlimit: Token-bucket rate limiting
//   - pkg/store: User roster and message persistence (in-memory and Pebble-backed)
//   - pkg/meshlog: Structured logging
//   - pkg/meshmetrics: Prometheus metrics and the health/metrics HTTP endpoint
//   - pkg/meshserver: Acceptor, connection-cap enforcement, and graceful shutdown
//   - internal/config: Operator-facing configuration
//   - internal/constants: Protocol and policy defaults
//   - internal/errors: Typed error taxonomy
//
// # Security Properties
//
//   - RSA-4096 OAEP-SHA256 wraps a fresh AES-256 session key per connection
//   - AES-256-GCM authenticated encryption for every chat message
//   - RSA-PKCS1v15-SHA256 signatures verified against the sender's registered
//     key, never the wire-carried key, to prevent a downgrade to an
//     attacker-chosen key
//   - Forward secrecy at the connection granularity: a session key never
//     outlives the TCP connection it was minted for
package meshd
