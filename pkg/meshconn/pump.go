package meshconn

import (
	"context"
	"errors"
	"time"

	"github.com/kryptomesh/meshd/internal/constants"
	qerrors "github.com/kryptomesh/meshd/internal/errors"
	"github.com/kryptomesh/meshd/pkg/protocol"
)

// readPump is the connection's single read task. It processes frames
// strictly sequentially, which is what the per-sender FIFO guarantee
// rests on.
func (h *Handler) readPump() {
	for {
		env, err := h.codec.ReadEnvelope()
		if err != nil {
			if h.State() != StateClosed {
				h.closeOnReadError(err)
			}
			return
		}
		h.touchRead()
		h.handleEnvelope(env)
		if h.State() == StateClosed {
			return
		}
	}
}

// closeOnReadError maps a ReadEnvelope failure to the ERROR code spec §8
// requires before close. A framing violation (oversize frame, invalid
// JSON, unknown type) is the peer's fault and gets INVALID_MESSAGE/
// UNSUPPORTED; anything else is the transport going away underneath us,
// which has no peer left to notify.
func (h *Handler) closeOnReadError(err error) {
	switch {
	case errors.Is(err, qerrors.ErrFrameTooLarge):
		h.internalError("read.frame_too_large", err)
		h.sendError(protocol.ErrCodeInvalidMessage, "frame exceeds maximum size")
		h.Close("INVALID_MESSAGE")
	case errors.Is(err, qerrors.ErrMalformedFrame):
		h.internalError("read.malformed_frame", err)
		h.sendError(protocol.ErrCodeInvalidMessage, "malformed frame")
		h.Close("INVALID_MESSAGE")
	case errors.Is(err, qerrors.ErrUnsupportedType):
		h.internalError("read.unsupported_type", err)
		h.sendError(protocol.ErrCodeUnsupported, "unknown envelope type")
		h.Close("INVALID_MESSAGE")
	default:
		// transport EOF/IO error: the peer is gone, nothing left to notify.
		h.Close("READ_ERROR")
	}
}

// writePump drains the outbound queue, fully writing one frame before the
// next begins. Pending frames are discarded once the connection closes.
func (h *Handler) writePump() {
	for {
		select {
		case env, ok := <-h.outbound:
			if !ok {
				return
			}
			if err := h.codec.WriteEnvelope(env); err != nil {
				h.Close("WRITE_ERROR")
				return
			}
			h.touchWrite()
		case <-h.done:
			return
		}
	}
}

// monitor enforces the writer-idle heartbeat and the reader-idle timeout.
// The reader-idle timer runs from the last successful read and the
// writer-idle timer from the last successful write; the reader-idle
// interval must stay strictly greater than the writer-idle interval so a
// responsive peer, which triggers writes of its own HEARTBEAT replies,
// never trips the reader timeout.
func (h *Handler) monitor(ctx context.Context) {
	tick := h.cfg.WriterIdle / 4
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			now := h.now()

			if since := now.Sub(time.Unix(0, h.lastRead.Load())); since >= h.cfg.ReaderIdle {
				h.Close("READ_TIMEOUT")
				return
			}
			if since := now.Sub(time.Unix(0, h.lastWrite.Load())); since >= h.cfg.WriterIdle {
				env, err := protocol.NewEnvelope(protocol.TypeHeartbeat, constants.ServerUserID, map[string]string{}, nowMillis(now))
				if err == nil {
					_ = h.Send(env)
				}
			}
		}
	}
}

// handleEnvelope routes env according to the connection's current state,
// per the acceptance rules of the connection handler state machine.
func (h *Handler) handleEnvelope(env protocol.Envelope) {
	switch h.State() {
	case StateNew:
		if env.Type != protocol.TypeHandshake {
			h.sendError(protocol.ErrCodeNotAuthenticated, "expected HANDSHAKE")
			h.Close("NOT_AUTHENTICATED")
			return
		}
		h.handleHandshake(env)

	case StateAuthenticating:
		h.sendError(protocol.ErrCodeHandshakeFailed, "handshake already in progress")

	case StateAuthenticated:
		switch env.Type {
		case protocol.TypeEncryptedMessage:
			h.handleEncryptedMessage(env)
		case protocol.TypeHeartbeat:
			// lastRead was already refreshed by the caller; no reply needed
			// beyond the writer-idle ticker's own heartbeat cadence.
		case protocol.TypeDisconnect:
			h.Close("DISCONNECT")
		case protocol.TypeHandshake:
			h.sendError(protocol.ErrCodeAlreadyAuthed, "already authenticated")
		default:
			h.sendError(protocol.ErrCodeUnsupported, string(env.Type)+" not valid while authenticated")
		}

	case StateClosed:
		// draining; nothing to do.
	}
}

func (h *Handler) sendError(code protocol.ErrorCode, message string) {
	env, err := protocol.NewEnvelope(protocol.TypeError, constants.ServerUserID, protocol.ErrorData{
		Code:    code,
		Message: message,
	}, nowMillis(h.now()))
	if err != nil {
		return
	}
	_ = h.Send(env)
}

func (h *Handler) internalError(op string, err error) {
	h.observer.OnProtocolError(qerrors.NewProtocolError(op, err))
}
