package meshcrypto

import "testing"

func TestWrapUnwrapSessionKeyRoundTrip(t *testing.T) {
	priv := genTestKey(t)
	sessionKey, err := NewSessionKey()
	if err != nil {
		t.Fatalf("NewSessionKey: %v", err)
	}

	wrapped, err := WrapSessionKey(sessionKey, &priv.PublicKey)
	if err != nil {
		t.Fatalf("WrapSessionKey: %v", err)
	}

	got, err := UnwrapSessionKey(wrapped, priv)
	if err != nil {
		t.Fatalf("UnwrapSessionKey: %v", err)
	}
	if got != sessionKey {
		t.Fatal("unwrapped session key does not match original")
	}
}

func TestUnwrapSessionKeyWrongPrivateKeyFails(t *testing.T) {
	priv1 := genTestKey(t)
	priv2 := genTestKey(t)
	sessionKey, _ := NewSessionKey()

	wrapped, err := WrapSessionKey(sessionKey, &priv1.PublicKey)
	if err != nil {
		t.Fatalf("WrapSessionKey: %v", err)
	}
	if _, err := UnwrapSessionKey(wrapped, priv2); err == nil {
		t.Fatal("expected unwrap with the wrong private key to fail")
	}
}
