package protocol

import "testing"

func TestNewEnvelopeEncodesDataAsJSONString(t *testing.T) {
	hs := HandshakeData{UserID: "u1", Username: "Alice", PublicKey: "pk"}
	env, err := NewEnvelope(TypeHandshake, "u1", hs, 1000)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	var got HandshakeData
	if err := env.DecodeData(&got); err != nil {
		t.Fatalf("DecodeData: %v", err)
	}
	if got != hs {
		t.Fatalf("decoded data = %+v, want %+v", got, hs)
	}
}

func TestNetworkMessageTypeIsKnown(t *testing.T) {
	known := []NetworkMessageType{
		TypeHandshake, TypeHandshakeResponse, TypeKeyExchange, TypeEncryptedMessage,
		TypeUserList, TypeHeartbeat, TypeFileTransfer, TypeError, TypeDisconnect,
	}
	for _, typ := range known {
		if !typ.IsKnown() {
			t.Errorf("%q should be known", typ)
		}
	}
	if NetworkMessageType("BOGUS").IsKnown() {
		t.Error("BOGUS should not be known")
	}
}

func TestErrorDataRoundTrip(t *testing.T) {
	ed := ErrorData{Code: ErrCodeRateLimited, Message: "too many requests"}
	env, err := NewEnvelope(TypeError, "server", ed, 1)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	var got ErrorData
	if err := env.DecodeData(&got); err != nil {
		t.Fatalf("DecodeData: %v", err)
	}
	if got != ed {
		t.Fatalf("decoded = %+v, want %+v", got, ed)
	}
}
