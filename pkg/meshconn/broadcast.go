package meshconn

import (
	"github.com/kryptomesh/meshd/internal/constants"
	qerrors "github.com/kryptomesh/meshd/internal/errors"
	"github.com/kryptomesh/meshd/pkg/meshcrypto"
	"github.com/kryptomesh/meshd/pkg/meshdispatch"
	"github.com/kryptomesh/meshd/pkg/protocol"
)

// keyedRecipient is satisfied by *Handler; it lets the fan-out builder
// reach into a recipient's own session key without meshdispatch needing
// to know anything about cryptography.
type keyedRecipient interface {
	meshdispatch.Member
	SessionKey() (meshcrypto.SessionKey, bool)
}

// encryptFor re-encrypts plaintext under recipient's session key and signs
// it with the server's key, producing the envelope the dispatcher hands
// off to that recipient's outbound queue.
func (h *Handler) encryptFor(recipient meshdispatch.Member, senderID, senderName string, msgID string, msgType string, timestamp int64, plaintext []byte) (protocol.Envelope, error) {
	kr, ok := recipient.(keyedRecipient)
	if !ok {
		return protocol.Envelope{}, qerrors.NewCryptoError("fan_out", qerrors.ErrNoSessionKey)
	}
	sessionKey, has := kr.SessionKey()
	if !has {
		return protocol.Envelope{}, qerrors.NewCryptoError("fan_out", qerrors.ErrNoSessionKey)
	}

	payload, err := meshcrypto.EncryptMessage(plaintext, sessionKey)
	if err != nil {
		return protocol.Envelope{}, err
	}
	sig, err := h.server.Sign(plaintext)
	if err != nil {
		return protocol.Envelope{}, err
	}
	serverPubB64, err := meshcrypto.EncodePublicKeyBase64(h.server.PublicKey())
	if err != nil {
		return protocol.Envelope{}, err
	}

	data := protocol.EncryptedMessageData{
		MessageID:        msgID,
		EncryptedContent: encodeB64(payload.Ciphertext),
		IV:               encodeB64(payload.IV),
		Signature:        sig,
		SenderPublicKey:  serverPubB64,
		SenderName:       senderName,
		Timestamp:        timestamp,
		MessageType:      msgType,
	}
	return protocol.NewEnvelope(protocol.TypeEncryptedMessage, senderID, data, timestamp)
}

// fanOutChat broadcasts msg to every other authenticated connection,
// re-encrypting it fresh per recipient. A recipient whose outbound queue
// is full is closed with SLOW_CONSUMER; delivery to everyone else
// proceeds unaffected.
func (h *Handler) fanOutChat(msg protocol.Message) {
	build := func(m meshdispatch.Member) (protocol.Envelope, error) {
		return h.encryptFor(m, msg.SenderID, msg.SenderName, msg.ID, msg.Type, msg.Timestamp, []byte(msg.Content))
	}
	include := func(m meshdispatch.Member) bool { return m != h }

	slow := h.dispatcher.Broadcast(build, include)
	h.closeSlowConsumers(slow)
}

// broadcastSystem fans a SYSTEM notice ("joined"/"left") out to every
// authenticated connection, itself included, using senderId "system" per
// the join/leave notification contract.
func (h *Handler) broadcastSystem(text string) {
	now := nowMillis(h.now())
	build := func(m meshdispatch.Member) (protocol.Envelope, error) {
		return h.encryptFor(m, constants.SystemSenderID, constants.SystemSenderName, newMessageID(), "SYSTEM", now, []byte(text))
	}
	slow := h.dispatcher.Broadcast(build, nil)
	h.closeSlowConsumers(slow)
}

func (h *Handler) closeSlowConsumers(slow []meshdispatch.Member) {
	for _, m := range slow {
		if victim, ok := m.(*Handler); ok && victim != h {
			victim.Close("SLOW_CONSUMER")
		}
	}
}
