package meshcrypto

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	priv := genTestKey(t)
	id := &ServerIdentity{private: priv, public: &priv.PublicKey}

	plaintext := []byte("join notice: Alice joined the chat")
	sig, err := id.Sign(plaintext)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if !Verify(plaintext, sig, id.PublicKey()) {
		t.Fatal("signature failed to verify against the signer's own key")
	}
}

func TestVerifyRejectsTamperedPlaintext(t *testing.T) {
	priv := genTestKey(t)
	id := &ServerIdentity{private: priv, public: &priv.PublicKey}

	sig, err := id.Sign([]byte("original"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if Verify([]byte("tampered"), sig, id.PublicKey()) {
		t.Fatal("Verify should reject a signature over different plaintext")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	priv1 := genTestKey(t)
	priv2 := genTestKey(t)
	id := &ServerIdentity{private: priv1, public: &priv1.PublicKey}

	plaintext := []byte("payload")
	sig, err := id.Sign(plaintext)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if Verify(plaintext, sig, &priv2.PublicKey) {
		t.Fatal("Verify should reject a signature checked against the wrong public key")
	}
}

func TestVerifyRejectsGarbageSignature(t *testing.T) {
	priv := genTestKey(t)
	if Verify([]byte("payload"), "not-base64!!", &priv.PublicKey) {
		t.Fatal("Verify should reject a malformed signature")
	}
}
