// Package protocol defines the wire types for the mesh chat protocol.
//
// Every frame is a JSON object (the Envelope) terminated by a newline.
// The Envelope carries an inner payload, itself JSON-encoded into a string
// field so that the outer schema never needs to change shape when the
// inner payload does.
package protocol

import "encoding/json"

// NetworkMessageType identifies the kind of payload carried by an Envelope.
type NetworkMessageType string

// The complete set of envelope types the mesh protocol recognizes.
const (
	TypeHandshake         NetworkMessageType = "HANDSHAKE"
	TypeHandshakeResponse NetworkMessageType = "HANDSHAKE_RESPONSE"
	TypeKeyExchange       NetworkMessageType = "KEY_EXCHANGE"
	TypeEncryptedMessage  NetworkMessageType = "ENCRYPTED_MESSAGE"
	TypeUserList          NetworkMessageType = "USER_LIST"
	TypeHeartbeat         NetworkMessageType = "HEARTBEAT"
	TypeFileTransfer      NetworkMessageType = "FILE_TRANSFER"
	TypeError             NetworkMessageType = "ERROR"
	TypeDisconnect        NetworkMessageType = "DISCONNECT"
)

// IsKnown reports whether t is one of the defined envelope types.
func (t NetworkMessageType) IsKnown() bool {
	switch t {
	case TypeHandshake, TypeHandshakeResponse, TypeKeyExchange, TypeEncryptedMessage,
		TypeUserList, TypeHeartbeat, TypeFileTransfer, TypeError, TypeDisconnect:
		return true
	default:
		return false
	}
}

// Envelope is the outer frame of every message exchanged over a connection.
// Data holds the inner payload pre-encoded as a JSON string, so the
// envelope's own shape never depends on which payload it carries.
type Envelope struct {
	Type      NetworkMessageType `json:"type"`
	SenderID  string             `json:"senderId"`
	Data      string             `json:"data"`
	Timestamp int64              `json:"timestamp"`
	MessageID *string            `json:"messageId"`
}

// DecodeData unmarshals the envelope's inner Data string into v.
func (e *Envelope) DecodeData(v any) error {
	return json.Unmarshal([]byte(e.Data), v)
}

// NewEnvelope builds an Envelope carrying payload marshaled into Data.
func NewEnvelope(typ NetworkMessageType, senderID string, payload any, timestampMs int64) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:      typ,
		SenderID:  senderID,
		Data:      string(raw),
		Timestamp: timestampMs,
	}, nil
}

// HandshakeData is the client's opening offer: its identity and public key.
type HandshakeData struct {
	UserID        string `json:"userId"`
	Username      string `json:"username"`
	PublicKey     string `json:"publicKey"`
	ClientVersion string `json:"clientVersion,omitempty"`
}

// HandshakeResponseData is the server's reply, carrying the wrapped
// per-connection session key.
type HandshakeResponseData struct {
	UserID              string `json:"userId"`
	Username            string `json:"username"`
	PublicKey           string `json:"publicKey"`
	EncryptedSessionKey string `json:"encryptedSessionKey"`
	ServerVersion       string `json:"serverVersion"`
	MaxMessageSize      int    `json:"maxMessageSize"`
}

// EncryptedMessageData carries ciphertext plus everything a recipient needs
// to decrypt and authenticate it.
type EncryptedMessageData struct {
	MessageID        string `json:"messageId"`
	EncryptedContent string `json:"encryptedContent"`
	IV               string `json:"iv"`
	Signature        string `json:"signature"`
	SenderPublicKey  string `json:"senderPublicKey"`
	SenderName       string `json:"senderName"`
	Timestamp        int64  `json:"timestamp"`
	MessageType      string `json:"messageType"`
}

// User describes a roster entry as exposed on the wire.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PublicKey    string `json:"publicKey"`
	IsHost       bool   `json:"isHost"`
	IsOnline     bool   `json:"isOnline"`
	LastSeen     int64  `json:"lastSeen"`
	ConnectionID string `json:"connectionId,omitempty"`
	IPAddress    string `json:"ipAddress,omitempty"`
}

// UserListData is the full roster snapshot sent to clients.
type UserListData struct {
	Users       []User `json:"users"`
	TotalUsers  int    `json:"totalUsers"`
	OnlineUsers int    `json:"onlineUsers"`
}

// ErrorCode enumerates the defined ERROR envelope codes.
type ErrorCode string

// Defined error codes carried in ErrorData.Code.
const (
	ErrCodeMaxConnections   ErrorCode = "MAX_CONNECTIONS"
	ErrCodeNotAuthenticated ErrorCode = "NOT_AUTHENTICATED"
	ErrCodeAlreadyAuthed    ErrorCode = "ALREADY_AUTHENTICATED"
	ErrCodeInvalidMessage   ErrorCode = "INVALID_MESSAGE"
	ErrCodeHandshakeFailed  ErrorCode = "HANDSHAKE_FAILED"
	ErrCodeNoSessionKey     ErrorCode = "NO_SESSION_KEY"
	ErrCodeInvalidSignature ErrorCode = "INVALID_SIGNATURE"
	ErrCodeMessageFailed    ErrorCode = "MESSAGE_FAILED"
	ErrCodeRateLimited      ErrorCode = "RATE_LIMITED"
	ErrCodeUnsupported      ErrorCode = "UNSUPPORTED"
	ErrCodeSlowConsumer     ErrorCode = "SLOW_CONSUMER"
	ErrCodeReadTimeout      ErrorCode = "READ_TIMEOUT"
)

// ErrorData is the payload of an ERROR envelope.
type ErrorData struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// Message is a persisted chat message record.
type Message struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	SenderID    string `json:"senderId"`
	SenderName  string `json:"senderName"`
	Timestamp   int64  `json:"timestamp"`
	Type        string `json:"type"`
	RoomID      string `json:"roomId"`
	IsEncrypted bool   `json:"isEncrypted"`
	CreatedAt   int64  `json:"createdAt"`
}
