package meshcrypto

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/kryptomesh/meshd/internal/constants"
	errs "github.com/kryptomesh/meshd/internal/errors"
)

// SessionKey is a per-connection 256-bit AES key (spec §3 Session key).
// Lifetime is the TCP connection; at most one is active per connection.
type SessionKey [constants.AESKeySize]byte

// NewSessionKey generates a fresh 256-bit AES key from the CSPRNG. The
// server calls this once per handshake; a new session key is never reused
// across connections.
func NewSessionKey() (SessionKey, error) {
	var k SessionKey
	b, err := SecureRandomBytes(constants.AESKeySize)
	if err != nil {
		return k, err
	}
	copy(k[:], b)
	return k, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.NewCryptoError("aes.NewCipher", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, constants.AESNonceSize)
	if err != nil {
		return nil, errs.NewCryptoError("cipher.NewGCM", err)
	}
	return gcm, nil
}

// EncryptedPayload carries the two wire fields produced by EncryptMessage:
// ciphertext (including the GCM tag) and the IV used to produce it.
type EncryptedPayload struct {
	Ciphertext []byte
	IV         []byte
}

// EncryptMessage encrypts plaintext under sessionKey with AES-256-GCM,
// drawing a fresh random 96-bit IV for every call (spec §4.2: "new random
// IV per call; IV must not be reused across calls with the same key").
func EncryptMessage(plaintext []byte, sessionKey SessionKey) (EncryptedPayload, error) {
	gcm, err := newGCM(sessionKey[:])
	if err != nil {
		return EncryptedPayload{}, err
	}
	iv, err := SecureRandomBytes(constants.AESNonceSize)
	if err != nil {
		return EncryptedPayload{}, err
	}
	ciphertext := gcm.Seal(nil, iv, plaintext, nil)
	return EncryptedPayload{Ciphertext: ciphertext, IV: iv}, nil
}

// DecryptMessage authenticates and decrypts payload under sessionKey.
// Authentication failure maps to errs.ErrBadTag (spec: CryptoError::BadTag).
func DecryptMessage(payload EncryptedPayload, sessionKey SessionKey) ([]byte, error) {
	if len(payload.IV) != constants.AESNonceSize {
		return nil, errs.NewCryptoError("decrypt", errs.ErrBadTag)
	}
	gcm, err := newGCM(sessionKey[:])
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, payload.IV, payload.Ciphertext, nil)
	if err != nil {
		return nil, errs.NewCryptoError("decrypt", errs.ErrBadTag)
	}
	return plaintext, nil
}
