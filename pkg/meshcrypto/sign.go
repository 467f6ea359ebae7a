package meshcrypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"

	errs "github.com/kryptomesh/meshd/internal/errors"
)

// Sign produces an RSA-PKCS1v15-SHA256 ("SHA-256-with-RSA", spec §4.2)
// signature over plaintext using the server's own key, returned as Base64.
func (s *ServerIdentity) Sign(plaintext []byte) (string, error) {
	sig, err := signWithKey(s.private, plaintext)
	if err != nil {
		return "", err
	}
	return b64Encode(sig), nil
}

func signWithKey(priv *rsa.PrivateKey, plaintext []byte) ([]byte, error) {
	digest := sha256.Sum256(plaintext)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err != nil {
		return nil, errs.NewCryptoError("sign", err)
	}
	return sig, nil
}

// Verify checks a Base64 RSA-PKCS1v15-SHA256 signature over plaintext
// against peerPub. Returns false (never an error) when the signature does
// not verify, mirroring the spec's verify(plaintext, sig, peerPubKey) bool
// signature — callers translate a false result into INVALID_SIGNATURE.
func Verify(plaintext []byte, base64Sig string, peerPub *rsa.PublicKey) bool {
	sig, err := b64Decode(base64Sig)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(plaintext)
	return rsa.VerifyPKCS1v15(peerPub, crypto.SHA256, digest[:], sig) == nil
}
