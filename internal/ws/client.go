package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"peer-chat-app/backend/internal/chat"
	pkgerrors "peer-chat-app/backend/pkg/errors"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024 // 64KB

	// Per-event handling budget for history reads and appends
	eventTimeout = 10 * time.Second
)

var (
	errSendBufferFull = errors.New("send buffer full")
	errSessionClosed  = errors.New("session closed")
)

// Client is one WebSocket connection bound to one authenticated participant.
// It implements chat.Session.
type Client struct {
	id          string
	participant chat.ParticipantID
	conn        *websocket.Conn
	send        chan []byte
	hub         *Hub

	// mu serializes enqueues against closeSend, so the hub closing the
	// session can never race a send into a closed channel.
	mu     sync.Mutex
	closed bool
}

// SessionID implements chat.Session.
func (c *Client) SessionID() string { return c.id }

// Participant implements chat.Session.
func (c *Client) Participant() chat.ParticipantID { return c.participant }

// Deliver implements chat.Session. Non-blocking: a full send buffer or a
// session torn down mid-delivery is a transport delivery failure, reported
// to the router and never to the sender.
func (c *Client) Deliver(msg *chat.Message) error {
	env, err := NewEnvelope(EventReceiveMessage, ReceiveMessagePayload{Message: *msg})
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// enqueue queues a frame for WritePump without blocking.
func (c *Client) enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errSessionClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// closeSend marks the session closed and closes the send channel so
// WritePump drains and exits. Only the hub calls this; idempotent.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump reads events off the connection and dispatches them. Events are
// handled in arrival order so one sender's messages append in the order they
// were sent. The deferred unregister guarantees registry cleanup.
func (c *Client) ReadPump() {
	defer c.disconnect()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("unexpected close", "session_id", c.id, "error", err.Error())
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.hub.log.Warn("malformed event", "session_id", c.id, "error", err.Error())
			c.sendError("", "malformed event envelope")
			continue
		}

		c.handleEvent(&env)
	}
}

// disconnect hands the client back to the hub for cleanup. If the hub has
// already stopped, its shutdown branch tears every client down, so the
// unregister send must not block forever.
func (c *Client) disconnect() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.shutdown:
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

// WritePump writes queued frames and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Drain any queued frames as separate messages.
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleEvent(env *Envelope) {
	switch env.Type {
	case EventJoinChat:
		c.handleJoinChat(env.Content)
	case EventSendMessage:
		c.handleSendMessage(env.Content)
	case EventLeaveChat:
		c.handleLeaveChat(env.Content)
	case EventPing:
		c.sendEvent(EventPong, nil)
	default:
		c.hub.log.Warn("unknown event type", "session_id", c.id, "type", env.Type)
		c.sendError("", "unknown event type: "+env.Type)
	}
}

// handleJoinChat registers the session in the peer conversation and replies
// with the backlog.
func (c *Client) handleJoinChat(content json.RawMessage) {
	var payload JoinChatPayload
	if err := json.Unmarshal(content, &payload); err != nil || payload.PeerID == "" {
		c.sendError("", "joinChat requires a peerId")
		return
	}

	// The authenticated identity is authoritative; a conflicting userId in
	// the payload is a client bug, not a way to join someone else's chats.
	if payload.UserID != "" && chat.ParticipantID(payload.UserID) != c.participant {
		c.sendError("", "userId does not match authenticated participant")
		return
	}

	key, err := c.hub.registry.Join(c, chat.ParticipantID(payload.PeerID))
	if err != nil {
		c.sendError(errorCode(err), err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	backlog, err := c.hub.history.Backlog(ctx, key)
	if err != nil {
		// All-or-nothing: a join whose backlog cannot be served is undone,
		// so the client can retry from a clean state.
		c.hub.registry.LeaveConversation(c, key)
		c.hub.log.LogError(err, "backlog fetch failed",
			"session_id", c.id, "conversation_key", string(key))
		c.sendError("", "failed to load chat history")
		return
	}

	c.sendEvent(EventChatHistory, ChatHistoryPayload{
		ConversationKey: string(key),
		Messages:        backlog,
	})
}

// handleSendMessage routes the message and replies with the routing ack.
func (c *Client) handleSendMessage(content json.RawMessage) {
	var payload SendMessagePayload
	if err := json.Unmarshal(content, &payload); err != nil {
		c.sendError("", "malformed sendMessage payload")
		return
	}

	// The session's authenticated participant is the sender; a payload that
	// claims someone else is rejected like any other invalid message.
	sender := c.participant
	if payload.Sender != "" && chat.ParticipantID(payload.Sender) != c.participant {
		c.sendEvent(EventAck, chat.Ack{
			Status:      chat.AckFailure,
			Reason:      pkgerrors.CodeInvalidMessage,
			ClientMsgID: payload.ClientMsgID,
		})
		return
	}

	req := chat.SendRequest{
		Sender:      sender,
		Recipient:   chat.ParticipantID(payload.Recipient),
		Text:        payload.Text,
		ClientMsgID: payload.ClientMsgID,
	}
	if payload.CreatedAt != nil {
		req.CreatedAt = *payload.CreatedAt
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	ack := c.hub.router.Route(ctx, req)
	c.sendEvent(EventAck, ack)
}

// handleLeaveChat drops one conversation, or all of them without a peerId.
func (c *Client) handleLeaveChat(content json.RawMessage) {
	var payload LeaveChatPayload
	if len(content) > 0 {
		if err := json.Unmarshal(content, &payload); err != nil {
			c.sendError("", "malformed leaveChat payload")
			return
		}
	}

	if payload.PeerID == "" {
		c.hub.registry.Leave(c)
		return
	}

	key, err := chat.ResolveKey(c.participant, chat.ParticipantID(payload.PeerID))
	if err != nil {
		c.sendError(errorCode(err), err.Error())
		return
	}
	c.hub.registry.LeaveConversation(c, key)
}

func (c *Client) sendEvent(eventType string, content any) {
	env, err := NewEnvelope(eventType, content)
	if err != nil {
		c.hub.log.LogError(err, "marshal event failed", "session_id", c.id, "type", eventType)
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		c.hub.log.LogError(err, "marshal envelope failed", "session_id", c.id, "type", eventType)
		return
	}

	if err := c.enqueue(data); err != nil {
		c.hub.log.Warn("dropping event", "session_id", c.id, "type", eventType, "error", err.Error())
	}
}

func (c *Client) sendError(code, message string) {
	c.sendEvent(EventError, ErrorPayload{Code: code, Message: message})
}
