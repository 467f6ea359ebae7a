package protocol

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kryptomesh/meshd/internal/constants"
	qerrors "github.com/kryptomesh/meshd/internal/errors"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	codec := NewLineCodec(&buf, &buf)

	env, err := NewEnvelope(TypeHeartbeat, "u1", map[string]string{}, 1234)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if err := codec.WriteEnvelope(env); err != nil {
		t.Fatalf("WriteEnvelope: %v", err)
	}

	got, err := codec.ReadEnvelope()
	if err != nil {
		t.Fatalf("ReadEnvelope: %v", err)
	}
	if got.Type != env.Type || got.SenderID != env.SenderID || got.Timestamp != env.Timestamp {
		t.Fatalf("round-tripped envelope = %+v, want %+v", got, env)
	}
}

func TestReadEnvelopeRejectsUnknownType(t *testing.T) {
	r := strings.NewReader(`{"type":"BOGUS","senderId":"u1","data":"{}","timestamp":1}` + "\n")
	codec := NewLineCodec(r, &bytes.Buffer{})
	if _, err := codec.ReadEnvelope(); !qerrors.Is(err, qerrors.ErrUnsupportedType) {
		t.Fatalf("err = %v, want ErrUnsupportedType", err)
	}
}

func TestReadEnvelopeRejectsMalformedJSON(t *testing.T) {
	r := strings.NewReader("not json at all\n")
	codec := NewLineCodec(r, &bytes.Buffer{})
	if _, err := codec.ReadEnvelope(); !qerrors.Is(err, qerrors.ErrMalformedFrame) {
		t.Fatalf("err = %v, want ErrMalformedFrame", err)
	}
}

func TestFrameExactlyMaxBytesAccepted(t *testing.T) {
	env, err := NewEnvelope(TypeHeartbeat, "u1", map[string]string{}, 1)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	raw, err := marshalEnvelope(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// raw includes the trailing newline and a 4-byte `null` messageId; a
	// quoted messageId of pad bytes takes pad+2, so the frame grows by pad-2.
	pad := constants.MaxFrameBytes - len(raw) + 2
	if pad < 0 {
		t.Fatalf("base envelope already exceeds MaxFrameBytes: %d", len(raw))
	}
	env.MessageID = paddedMessageID(pad)

	var buf bytes.Buffer
	codec := NewLineCodec(&buf, &buf)
	if err := codec.WriteEnvelope(env); err != nil {
		t.Fatalf("WriteEnvelope at exactly MaxFrameBytes: %v", err)
	}
	if buf.Len() != constants.MaxFrameBytes {
		t.Fatalf("frame length = %d, want %d", buf.Len(), constants.MaxFrameBytes)
	}

	readBack := NewLineCodec(&buf, &bytes.Buffer{})
	if _, err := readBack.ReadEnvelope(); err != nil {
		t.Fatalf("ReadEnvelope on a frame of exactly MaxFrameBytes: %v", err)
	}
}

func TestFrameOneByteOverMaxRejected(t *testing.T) {
	env, err := NewEnvelope(TypeHeartbeat, "u1", map[string]string{}, 1)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	raw, err := marshalEnvelope(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	pad := constants.MaxFrameBytes - len(raw) + 3
	env.MessageID = paddedMessageID(pad)

	var buf bytes.Buffer
	codec := NewLineCodec(&buf, &buf)
	if err := codec.WriteEnvelope(env); err == nil {
		t.Fatal("expected WriteEnvelope to reject a frame one byte over MaxFrameBytes")
	} else if !qerrors.Is(err, qerrors.ErrFrameTooLarge) {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}

func marshalEnvelope(env Envelope) ([]byte, error) {
	var buf bytes.Buffer
	w := NewLineCodec(&bytes.Buffer{}, &buf)
	if err := w.WriteEnvelope(env); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func paddedMessageID(n int) *string {
	if n <= 0 {
		s := ""
		return &s
	}
	s := strings.Repeat("a", n)
	return &s
}
