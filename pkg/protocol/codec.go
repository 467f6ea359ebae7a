// codec.go implements framing for the mesh protocol: one JSON Envelope
// per line, newline-terminated, bounded to MaxFrameBytes including the
// trailing newline.
package protocol

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/kryptomesh/meshd/internal/constants"
	qerrors "github.com/kryptomesh/meshd/internal/errors"
)

// LineCodec reads and writes newline-delimited Envelope frames over a
// single connection. It is not safe for concurrent use by multiple
// readers or multiple writers; callers serialize writes through one
// goroutine, per the one-writer-per-connection discipline.
type LineCodec struct {
	r *bufio.Reader
	w *bufio.Writer
}

// NewLineCodec wraps rw with buffered line framing.
func NewLineCodec(r io.Reader, w io.Writer) *LineCodec {
	return &LineCodec{
		r: bufio.NewReaderSize(r, constants.MaxFrameBytes),
		w: bufio.NewWriterSize(w, constants.MaxFrameBytes),
	}
}

// ReadEnvelope reads and decodes the next frame. A line (including its
// trailing newline) longer than MaxFrameBytes is rejected without
// consuming the remainder of the malformed frame's underlying buffer
// guarantees; the caller should close the connection on any error here.
func (c *LineCodec) ReadEnvelope() (Envelope, error) {
	line, err := c.r.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		return Envelope{}, qerrors.ErrFrameTooLarge
	}
	if err != nil {
		return Envelope{}, err
	}
	if len(line) > constants.MaxFrameBytes {
		return Envelope{}, qerrors.ErrFrameTooLarge
	}

	var env Envelope
	if err := json.Unmarshal(line[:len(line)-1], &env); err != nil {
		return Envelope{}, qerrors.ErrMalformedFrame
	}
	if !env.Type.IsKnown() {
		return Envelope{}, qerrors.ErrUnsupportedType
	}
	return env, nil
}

// WriteEnvelope encodes env as a single JSON line and flushes it. The
// full frame, including the trailing newline, must fit in MaxFrameBytes.
func (c *LineCodec) WriteEnvelope(env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if len(raw)+1 > constants.MaxFrameBytes {
		return qerrors.ErrFrameTooLarge
	}
	if _, err := c.w.Write(raw); err != nil {
		return err
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return err
	}
	return c.w.Flush()
}
