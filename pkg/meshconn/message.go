package meshconn

import (
	"context"

	"github.com/kryptomesh/meshd/pkg/meshcrypto"
	"github.com/kryptomesh/meshd/pkg/protocol"
)

// handleEncryptedMessage runs the seven-step pipeline for a chat message:
// rate limit, decrypt, verify, persist, fan out, and record latency.
// Crypto verification failures are always silent to other peers: the
// message is dropped before it ever reaches the store or the dispatcher.
func (h *Handler) handleEncryptedMessage(env protocol.Envelope) {
	start := h.now()

	h.mu.RLock()
	userID := h.userID
	username := h.username
	sessionKey := h.sessionKey
	hasKey := h.hasSessionKey
	h.mu.RUnlock()

	if err := h.limiter.Allow("user:" + userID); err != nil {
		h.observer.OnRateLimited("user:" + userID)
		h.sendError(protocol.ErrCodeRateLimited, "rate limited")
		return
	}

	var data protocol.EncryptedMessageData
	if err := env.DecodeData(&data); err != nil {
		h.sendError(protocol.ErrCodeInvalidMessage, "malformed message payload")
		return
	}

	if !hasKey {
		h.sendError(protocol.ErrCodeNoSessionKey, "no session key established")
		return
	}

	ciphertext, err := decodeB64(data.EncryptedContent)
	if err != nil {
		h.sendError(protocol.ErrCodeInvalidMessage, "bad ciphertext encoding")
		return
	}
	iv, err := decodeB64(data.IV)
	if err != nil {
		h.sendError(protocol.ErrCodeInvalidMessage, "bad iv encoding")
		return
	}

	plaintext, err := meshcrypto.DecryptMessage(meshcrypto.EncryptedPayload{Ciphertext: ciphertext, IV: iv}, sessionKey)
	if err != nil {
		h.internalError("message.decrypt", err)
		h.sendError(protocol.ErrCodeMessageFailed, "decryption failed")
		return
	}

	// Verify against the sender's *registered* key; the wire-carried
	// senderPublicKey field is never trusted, to prevent a downgrade to an
	// attacker-chosen key.
	peerPub, ok := h.peerKeys.Lookup(userID)
	if !ok {
		h.sendError(protocol.ErrCodeInvalidSignature, "no registered key for sender")
		return
	}
	if !meshcrypto.Verify(plaintext, data.Signature, peerPub) {
		h.sendError(protocol.ErrCodeInvalidSignature, "signature verification failed")
		return
	}

	msg := protocol.Message{
		ID:          data.MessageID,
		Content:     string(plaintext),
		SenderID:    userID,
		SenderName:  username,
		Timestamp:   data.Timestamp,
		Type:        data.MessageType,
		IsEncrypted: true,
		CreatedAt:   nowMillis(start),
	}
	if err := h.messages.Append(context.Background(), msg); err != nil {
		// The server must not broadcast what it could not persist.
		h.sendError(protocol.ErrCodeMessageFailed, "message store unavailable")
		return
	}

	h.fanOutChat(msg)
	h.observer.OnMessageProcessed(h.now().Sub(start))
}
