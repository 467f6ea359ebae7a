package meshcrypto

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
)

// KeyFingerprint returns a short hex SHA-256 digest of pub's DER SPKI
// encoding, for correlating peer identities across log lines without ever
// printing raw key material.
func KeyFingerprint(pub *rsa.PublicKey) string {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "invalid"
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:8])
}
