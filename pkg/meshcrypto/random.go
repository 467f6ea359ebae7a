// Package meshcrypto implements the mesh server's wire-bit-exact
// cryptographic primitives: RSA-4096/OAEP-SHA256 key wrap, AES-256-GCM
// content encryption, and SHA-256-with-RSA signatures.
//
// Security note: all randomness is sourced from crypto/rand, the OS CSPRNG.
package meshcrypto

import (
	"crypto/rand"
	"io"

	errs "github.com/kryptomesh/meshd/internal/errors"
)

// SecureRandomBytes returns n cryptographically secure random bytes.
func SecureRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, errs.NewCryptoError("secure-random", err)
	}
	return b, nil
}

// ConstantTimeEqual compares two byte slices in constant time, preventing
// timing side-channels when comparing secrets or tags.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}

// Zeroize overwrites b with zeros. Best-effort: the Go runtime may have
// already copied the underlying bytes elsewhere, but this still closes the
// most common window where a session key lingers in a live slice after use.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
