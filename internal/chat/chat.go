// Package chat implements the conversation core: deterministic conversation
// identity for a pair of participants, the in-memory session registry, the
// message router, and the per-conversation history store.
package chat

import (
	"time"
)

// ParticipantID is an opaque, externally assigned user identity.
// The authentication layer supplies it; the core never re-validates it.
type ParticipantID string

// ConversationKey canonically identifies the conversation between two
// participants. It is a pure function of the unordered pair, so the same
// two participants always land in the same conversation.
type ConversationKey string

// Message is an immutable chat message. Seq and CreatedAt are assigned by
// the server at append time; client-supplied timestamps are never used for
// ordering.
type Message struct {
	ID              string          `json:"id"`
	ConversationKey ConversationKey `json:"conversationKey"`
	Seq             int64           `json:"seq"`
	Sender          ParticipantID   `json:"sender"`
	Recipient       ParticipantID   `json:"recipient"`
	Text            string          `json:"text"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Ack statuses returned to a sender after routing.
const (
	AckSuccess = "success"
	AckFailure = "failure"
)

// Ack is the sender-visible result of a send. Delivery failures to individual
// sessions never surface here; persistence is the boundary the ack reports on.
type Ack struct {
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	MessageID   string `json:"id,omitempty"`
	Seq         int64  `json:"seq,omitempty"`
	ClientMsgID string `json:"clientMsgId,omitempty"`
}

// Session is one live connection bound to one participant. The transport
// layer implements it; the registry and router only see this interface.
type Session interface {
	// SessionID uniquely identifies the connection within the process.
	SessionID() string
	// Participant returns the authenticated identity bound to the connection.
	Participant() ParticipantID
	// Deliver pushes a message to the connection. Best-effort: an error is
	// a transport delivery failure, logged and never propagated to senders.
	Deliver(msg *Message) error
}
