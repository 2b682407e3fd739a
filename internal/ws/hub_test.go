package ws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peer-chat-app/backend/internal/chat"
	"peer-chat-app/backend/pkg/logger"
)

// unavailableHistory fails every operation, standing in for a store outage.
type unavailableHistory struct{}

func (unavailableHistory) Append(context.Context, chat.ConversationKey, *chat.Message) (int64, error) {
	return 0, errors.New("history unavailable")
}

func (unavailableHistory) Backlog(context.Context, chat.ConversationKey) ([]chat.Message, error) {
	return nil, errors.New("history unavailable")
}

// registerAndWait pushes a client through the running hub's register channel.
// The channel is unbuffered, so the send returning means the hub accepted it.
func registerAndWait(hub *Hub, c *Client) {
	hub.register <- c
}

func TestDeliverAfterDisconnectIsTransportError(t *testing.T) {
	hub := newTestHub(t)
	go hub.Run()
	defer hub.Stop()

	c := newTestClient(hub, "1")
	registerAndWait(hub, c)

	c.handleEvent(&Envelope{Type: EventJoinChat, Content: rawContent(t, JoinChatPayload{PeerID: "2"})})
	nextEvent(t, c)

	hub.unregister <- c
	// The loop handles one event at a time, so once this second client is
	// accepted the unregister above has been fully processed.
	registerAndWait(hub, newTestClient(hub, "9"))

	// A message racing the disconnect must come back as a delivery error,
	// never a panic from the closed send channel.
	err := c.Deliver(&chat.Message{ID: "m1", Sender: "2", Recipient: "1", Text: "late"})
	assert.ErrorIs(t, err, errSessionClosed)
}

func TestUnregisterCleansUpMembership(t *testing.T) {
	hub := newTestHub(t)
	go hub.Run()
	defer hub.Stop()

	c := newTestClient(hub, "1")
	registerAndWait(hub, c)

	c.handleEvent(&Envelope{Type: EventJoinChat, Content: rawContent(t, JoinChatPayload{PeerID: "2"})})
	nextEvent(t, c)
	require.Len(t, hub.registry.Conversations(c), 1)

	hub.unregister <- c
	registerAndWait(hub, newTestClient(hub, "9"))

	assert.Empty(t, hub.registry.Conversations(c))
	assert.Zero(t, hub.registry.SessionCount(), "no session holds a membership anymore")
}

func TestUnregisterUnknownClientIsNoOp(t *testing.T) {
	hub := newTestHub(t)
	go hub.Run()
	defer hub.Stop()

	c := newTestClient(hub, "1")
	hub.unregister <- c
	registerAndWait(hub, newTestClient(hub, "9"))

	// Never registered, so its send channel must still be open.
	err := c.Deliver(&chat.Message{ID: "m1", Sender: "2", Recipient: "1", Text: "hi"})
	assert.NoError(t, err)
}

func TestJoinChatUndoneWhenBacklogFails(t *testing.T) {
	registry := chat.NewRegistry()
	log := logger.New(logger.Config{Level: "error", JSON: false})
	history := unavailableHistory{}
	router := chat.NewRouter(registry, history, log, nil)
	hub := NewHub(registry, router, history, nil, nil, log)

	c := newTestClient(hub, "1")
	c.handleEvent(&Envelope{Type: EventJoinChat, Content: rawContent(t, JoinChatPayload{PeerID: "2"})})

	env := nextEvent(t, c)
	assert.Equal(t, EventError, env.Type)
	assert.Empty(t, hub.registry.Conversations(c), "a join whose backlog failed must not persist")
}

func TestDisconnectDoesNotBlockAfterStop(t *testing.T) {
	hub := newTestHub(t)
	go hub.Run()

	c := newTestClient(hub, "1")
	registerAndWait(hub, c)

	hub.Stop()

	done := make(chan struct{})
	go func() {
		c.disconnect()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect blocked after the hub stopped")
	}
}
