package meshconn

import (
	"context"

	"github.com/kryptomesh/meshd/internal/constants"
	"github.com/kryptomesh/meshd/pkg/meshcrypto"
	"github.com/kryptomesh/meshd/pkg/protocol"
)

// handleHandshake runs the eight-step handshake sequence: rate limit,
// register the peer key, mint and wrap a session key, upsert the roster
// entry, reply, transition to AUTHENTICATED, and announce the join.
func (h *Handler) handleHandshake(env protocol.Envelope) {
	start := h.now()
	h.setState(StateAuthenticating)

	var hs protocol.HandshakeData
	if err := env.DecodeData(&hs); err != nil {
		h.internalError("handshake.decode", err)
		h.sendError(protocol.ErrCodeHandshakeFailed, "malformed handshake payload")
		h.Close("HANDSHAKE_FAILED")
		return
	}

	if err := h.limiter.Allow("ip:" + h.remoteIP); err != nil {
		h.observer.OnRateLimited("ip:" + h.remoteIP)
		h.sendError(protocol.ErrCodeRateLimited, "too many handshake attempts")
		h.Close("RATE_LIMITED")
		return
	}

	peerPub, err := h.peerKeys.Register(hs.UserID, hs.PublicKey)
	if err != nil {
		h.internalError("handshake.register_key", err)
		h.sendError(protocol.ErrCodeHandshakeFailed, "invalid public key")
		h.Close("HANDSHAKE_FAILED")
		return
	}

	sessionKey, err := meshcrypto.NewSessionKey()
	if err != nil {
		h.sendError(protocol.ErrCodeHandshakeFailed, "could not allocate session key")
		h.Close("HANDSHAKE_FAILED")
		return
	}
	wrapped, err := meshcrypto.WrapSessionKey(sessionKey, peerPub)
	if err != nil {
		h.sendError(protocol.ErrCodeHandshakeFailed, "could not wrap session key")
		h.Close("HANDSHAKE_FAILED")
		return
	}

	now := nowMillis(h.now())

	h.mu.Lock()
	h.userID = hs.UserID
	h.username = hs.Username
	h.publicKeyB64 = hs.PublicKey
	h.connectedAt = now
	h.sessionKey = sessionKey
	h.hasSessionKey = true
	h.mu.Unlock()

	user := protocol.User{
		ID:           hs.UserID,
		Username:     hs.Username,
		PublicKey:    hs.PublicKey,
		IsOnline:     true,
		LastSeen:     now,
		ConnectionID: h.id,
		IPAddress:    h.remoteIP,
	}
	if err := h.users.Upsert(context.Background(), user); err != nil {
		h.sendError(protocol.ErrCodeHandshakeFailed, "roster unavailable")
		h.Close("HANDSHAKE_FAILED")
		return
	}

	serverPubB64, err := meshcrypto.EncodePublicKeyBase64(h.server.PublicKey())
	if err != nil {
		h.sendError(protocol.ErrCodeHandshakeFailed, "server key unavailable")
		h.Close("HANDSHAKE_FAILED")
		return
	}

	resp := protocol.HandshakeResponseData{
		UserID:              constants.ServerUserID,
		Username:            constants.ServerUsername,
		PublicKey:           serverPubB64,
		EncryptedSessionKey: wrapped,
		ServerVersion:       h.cfg.ServerVersion,
		MaxMessageSize:      constants.MaxFrameBytes,
	}
	respEnv, err := protocol.NewEnvelope(protocol.TypeHandshakeResponse, constants.ServerUserID, resp, now)
	if err != nil {
		h.Close("HANDSHAKE_FAILED")
		return
	}
	if err := h.Send(respEnv); err != nil {
		h.Close("SLOW_CONSUMER")
		return
	}

	h.setState(StateAuthenticated)
	h.dispatcher.Register(h)
	h.observer.OnHandshakeComplete(hs.UserID, h.now().Sub(start))

	h.broadcastSystem(hs.Username + " joined the chat")
	h.sendUserList()
}

// sendUserList sends a USER_LIST snapshot to this connection only, built
// from the dispatcher's live membership (Invariant 4: the roster reflects
// authenticated connections at the moment of the snapshot) rather than the
// persistent UserStore, which retains every user ever seen whether or not
// they are currently connected.
func (h *Handler) sendUserList() {
	payload := h.dispatcher.UserList()
	env, err := protocol.NewEnvelope(protocol.TypeUserList, constants.ServerUserID, payload, nowMillis(h.now()))
	if err != nil {
		return
	}
	_ = h.Send(env)
}
