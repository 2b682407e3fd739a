package ws

import (
	"encoding/json"
	"time"

	"peer-chat-app/backend/internal/chat"
)

// Wire event names. Inbound events come from the client; outbound events are
// pushed by the server.
const (
	// Inbound
	EventJoinChat    = "joinChat"
	EventLeaveChat   = "leaveChat"
	EventSendMessage = "sendMessage"
	EventPing        = "ping"

	// Outbound
	EventAck            = "ack"
	EventReceiveMessage = "receiveMessage"
	EventChatHistory    = "chatHistory"
	EventError          = "error"
	EventPong           = "pong"
)

// Envelope is the wire wrapper for every event in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

// JoinChatPayload asks to join the conversation with a peer. UserID is
// redundant with the authenticated identity and must match it when present.
type JoinChatPayload struct {
	UserID string `json:"userId,omitempty"`
	PeerID string `json:"peerId" binding:"required"`
}

// LeaveChatPayload leaves one conversation, or every joined conversation
// when PeerID is empty.
type LeaveChatPayload struct {
	PeerID string `json:"peerId,omitempty"`
}

// SendMessagePayload carries an outgoing message. CreatedAt is display
// metadata only; the server clock is authoritative for ordering.
type SendMessagePayload struct {
	Text        string     `json:"text"`
	Sender      string     `json:"sender,omitempty"`
	Recipient   string     `json:"recipient"`
	ClientMsgID string     `json:"clientMsgId,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}

// ReceiveMessagePayload pushes one routed message to a session.
type ReceiveMessagePayload struct {
	Message chat.Message `json:"message"`
}

// ChatHistoryPayload pushes the conversation backlog on join.
type ChatHistoryPayload struct {
	ConversationKey string         `json:"conversationKey"`
	Messages        []chat.Message `json:"messages"`
}

// ErrorPayload reports a session-scoped error.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// NewEnvelope wraps a payload into an envelope, marshaling the content.
func NewEnvelope(eventType string, content any) (*Envelope, error) {
	env := &Envelope{Type: eventType}
	if content != nil {
		raw, err := json.Marshal(content)
		if err != nil {
			return nil, err
		}
		env.Content = raw
	}
	return env, nil
}
