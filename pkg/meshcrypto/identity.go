package meshcrypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/kryptomesh/meshd/internal/constants"
	errs "github.com/kryptomesh/meshd/internal/errors"
)

// ServerIdentity holds the server's own RSA-4096 keypair. Its public key is
// published in HandshakeResponseData so clients can verify server-signed
// frames (spec §4.2, §4.4).
type ServerIdentity struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey
}

// PublicKey returns the server's RSA public key.
func (s *ServerIdentity) PublicKey() *rsa.PublicKey { return s.public }

// LoadOrGenerateServerKey reads an RSA-4096 keypair from a PEM file at path;
// if the file does not exist, it generates one and persists it there. A
// zero-value path generates an ephemeral keypair (no persistence), useful
// for tests and for runs without -key-path configured.
func LoadOrGenerateServerKey(path string) (*ServerIdentity, error) {
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			key, perr := parsePKCS1PEM(data)
			if perr != nil {
				return nil, errs.NewCryptoError("load-server-key", perr)
			}
			return &ServerIdentity{private: key, public: &key.PublicKey}, nil
		}
	}

	key, err := rsa.GenerateKey(rand.Reader, constants.ServerRSAKeyBits)
	if err != nil {
		return nil, errs.NewCryptoError("generate-server-key", err)
	}

	if path != "" {
		if err := persistPKCS1PEM(path, key); err != nil {
			return nil, errs.NewCryptoError("persist-server-key", err)
		}
	}

	return &ServerIdentity{private: key, public: &key.PublicKey}, nil
}

func parsePKCS1PEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errs.ErrBadKey
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

func persistPKCS1PEM(path string, key *rsa.PrivateKey) error {
	der := x509.MarshalPKCS1PrivateKey(key)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}
	return os.WriteFile(path, pem.EncodeToMemory(block), 0o600)
}

// EncodePublicKeyBase64 returns the Base64 (standard alphabet, padded) of
// the X.509 SubjectPublicKeyInfo encoding of pub, the wire format used for
// publicKey / serverPublicKey fields throughout §6.1.
func EncodePublicKeyBase64(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", errs.NewCryptoError("marshal-spki", err)
	}
	return b64Encode(der), nil
}

// ParsePublicKeyBase64 parses a Base64-encoded X.509 SubjectPublicKeyInfo
// into an RSA public key. Any failure (bad base64, bad DER, non-RSA key)
// maps to errs.ErrBadKey (spec: CryptoError::BadKey).
func ParsePublicKeyBase64(b64 string) (*rsa.PublicKey, error) {
	der, err := b64Decode(b64)
	if err != nil {
		return nil, errs.NewCryptoError("registerPeerKey", errs.ErrBadKey)
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, errs.NewCryptoError("registerPeerKey", errs.ErrBadKey)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errs.NewCryptoError("registerPeerKey", errs.ErrBadKey)
	}
	return rsaPub, nil
}
