package meshcrypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"

	errs "github.com/kryptomesh/meshd/internal/errors"
)

// WrapSessionKey RSA-OAEP-SHA256 encrypts sessionKey under the peer's
// public key, returning the Base64-encoded ciphertext placed in
// HandshakeResponseData.encryptedSessionKey (spec §4.2 wrapSessionKey).
func WrapSessionKey(sessionKey SessionKey, peerPub *rsa.PublicKey) (string, error) {
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, peerPub, sessionKey[:], nil)
	if err != nil {
		return "", errs.NewCryptoError("wrapSessionKey", err)
	}
	return b64Encode(ciphertext), nil
}

// UnwrapSessionKey decrypts a Base64 RSA-OAEP-SHA256 wrapped session key
// under the holder's private key. Used by clients, and by tests acting as
// a client to validate the server's handshake response.
func UnwrapSessionKey(wrapped string, priv *rsa.PrivateKey) (SessionKey, error) {
	var out SessionKey
	ciphertext, err := b64Decode(wrapped)
	if err != nil {
		return out, errs.NewCryptoError("unwrapSessionKey", err)
	}
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ciphertext, nil)
	if err != nil {
		return out, errs.NewCryptoError("unwrapSessionKey", err)
	}
	if len(plaintext) != len(out) {
		return out, errs.NewCryptoError("unwrapSessionKey", errs.ErrBadKey)
	}
	copy(out[:], plaintext)
	return out, nil
}
