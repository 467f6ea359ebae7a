package meshcrypto

import (
	"crypto/rsa"
	"sync"

	errs "github.com/kryptomesh/meshd/internal/errors"
)

// PeerKeyring is a concurrent registry of connectionID -> registered peer
// RSA public key (spec §4.2 registerPeerKey, §5 "no external reader" of
// per-connection crypto state — the keyring is the one cross-cutting piece
// that legitimately is shared, since signature verification on the
// dispatch path needs the sender's key by connection/user ID).
type PeerKeyring struct {
	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

// NewPeerKeyring constructs an empty keyring.
func NewPeerKeyring() *PeerKeyring {
	return &PeerKeyring{keys: make(map[string]*rsa.PublicKey)}
}

// Register parses and stores a peer's Base64 SPKI-encoded RSA public key
// under id (typically the connection ID or userId). Parse failure maps to
// errs.ErrBadKey.
func (k *PeerKeyring) Register(id string, base64Pub string) (*rsa.PublicKey, error) {
	pub, err := ParsePublicKeyBase64(base64Pub)
	if err != nil {
		return nil, err
	}
	k.mu.Lock()
	k.keys[id] = pub
	k.mu.Unlock()
	return pub, nil
}

// Lookup returns the registered public key for id, if any.
func (k *PeerKeyring) Lookup(id string) (*rsa.PublicKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	pub, ok := k.keys[id]
	return pub, ok
}

// Forget removes id's registered key, called on connection close (spec
// §4.3 cancellation step (d): "drop its session key and peer public key").
func (k *PeerKeyring) Forget(id string) {
	k.mu.Lock()
	delete(k.keys, id)
	k.mu.Unlock()
}

// ErrBadKey re-exports the sentinel for callers that only import meshcrypto.
var ErrBadKey = errs.ErrBadKey
