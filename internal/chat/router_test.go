package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "peer-chat-app/backend/pkg/errors"
	"peer-chat-app/backend/pkg/logger"
)

func newTestRouter(t *testing.T) (*Router, *Registry, *MemoryHistory) {
	t.Helper()
	registry := NewRegistry()
	history := NewMemoryHistory()
	log := logger.New(logger.Config{Level: "error", JSON: false})
	return NewRouter(registry, history, log, nil), registry, history
}

// failingHistory rejects every append, simulating an unavailable store.
type failingHistory struct{}

func (failingHistory) Append(context.Context, ConversationKey, *Message) (int64, error) {
	return 0, errors.New("connection refused")
}

func (failingHistory) Backlog(context.Context, ConversationKey) ([]Message, error) {
	return nil, errors.New("connection refused")
}

func TestRouteDeliversToJoinedPeer(t *testing.T) {
	router, registry, _ := newTestRouter(t)

	u1 := newFakeSession("sess-1", "u1")
	u2 := newFakeSession("sess-2", "u2")
	_, err := registry.Join(u1, "u2")
	require.NoError(t, err)
	_, err = registry.Join(u2, "u1")
	require.NoError(t, err)

	ack := router.Route(context.Background(), SendRequest{
		Sender:    "u1",
		Recipient: "u2",
		Text:      "hi",
	})

	require.Equal(t, AckSuccess, ack.Status)
	assert.Equal(t, int64(1), ack.Seq)
	assert.NotEmpty(t, ack.MessageID)

	delivered := u2.deliveredMessages()
	require.Len(t, delivered, 1)
	assert.Equal(t, ParticipantID("u1"), delivered[0].Sender)
	assert.Equal(t, "hi", delivered[0].Text)

	// The sender's own session also receives the push.
	require.Len(t, u1.deliveredMessages(), 1)
}

func TestRouteBacklogEmptyBeforeAnyMessages(t *testing.T) {
	_, registry, history := newTestRouter(t)

	u2 := newFakeSession("sess-2", "u2")
	key, err := registry.Join(u2, "u1")
	require.NoError(t, err)

	backlog, err := history.Backlog(context.Background(), key)
	require.NoError(t, err)
	assert.Empty(t, backlog)
}

func TestRouteRejectsEmptyText(t *testing.T) {
	router, registry, history := newTestRouter(t)

	u1 := newFakeSession("sess-1", "u1")
	key, err := registry.Join(u1, "u2")
	require.NoError(t, err)

	for _, text := range []string{"", "   ", "\t\n"} {
		ack := router.Route(context.Background(), SendRequest{
			Sender:    "u1",
			Recipient: "u2",
			Text:      text,
		})
		assert.Equal(t, AckFailure, ack.Status)
		assert.Equal(t, pkgerrors.CodeInvalidMessage, ack.Reason)
	}

	// Nothing was appended.
	backlog, err := history.Backlog(context.Background(), key)
	require.NoError(t, err)
	assert.Empty(t, backlog)
	assert.Empty(t, u1.deliveredMessages())
}

func TestRouteRejectsBadParticipants(t *testing.T) {
	router, _, _ := newTestRouter(t)
	ctx := context.Background()

	ack := router.Route(ctx, SendRequest{Sender: "u1", Recipient: "u1", Text: "hi"})
	assert.Equal(t, AckFailure, ack.Status)
	assert.Equal(t, pkgerrors.CodeInvalidMessage, ack.Reason)

	ack = router.Route(ctx, SendRequest{Sender: "", Recipient: "u2", Text: "hi"})
	assert.Equal(t, AckFailure, ack.Status)
	assert.Equal(t, pkgerrors.CodeInvalidMessage, ack.Reason)

	ack = router.Route(ctx, SendRequest{Sender: "u:1", Recipient: "u2", Text: "hi"})
	assert.Equal(t, AckFailure, ack.Status)
	assert.Equal(t, pkgerrors.CodeInvalidParticipantPair, ack.Reason)
}

func TestRouteMultiTabFanOut(t *testing.T) {
	router, registry, _ := newTestRouter(t)

	tab1 := newFakeSession("sess-1a", "u1")
	tab2 := newFakeSession("sess-1b", "u1")
	u2 := newFakeSession("sess-2", "u2")
	for _, s := range []*fakeSession{tab1, tab2} {
		_, err := registry.Join(s, "u2")
		require.NoError(t, err)
	}
	_, err := registry.Join(u2, "u1")
	require.NoError(t, err)

	ack := router.Route(context.Background(), SendRequest{
		Sender:    "u2",
		Recipient: "u1",
		Text:      "hello tabs",
	})
	require.Equal(t, AckSuccess, ack.Status)

	// Both of u1's sessions receive the message.
	assert.Len(t, tab1.deliveredMessages(), 1)
	assert.Len(t, tab2.deliveredMessages(), 1)
}

func TestRouteAfterLeaveAppendsButDoesNotDeliver(t *testing.T) {
	router, registry, history := newTestRouter(t)
	ctx := context.Background()

	u1 := newFakeSession("sess-1", "u1")
	u2 := newFakeSession("sess-2", "u2")
	key, err := registry.Join(u1, "u2")
	require.NoError(t, err)
	_, err = registry.Join(u2, "u1")
	require.NoError(t, err)

	// u1 disconnects.
	registry.Leave(u1)

	ack := router.Route(ctx, SendRequest{Sender: "u2", Recipient: "u1", Text: "you there?"})
	require.Equal(t, AckSuccess, ack.Status)
	assert.Empty(t, u1.deliveredMessages())

	// On reconnect+join, u1 catches up from the backlog.
	reconnected := newFakeSession("sess-1r", "u1")
	rejoinKey, err := registry.Join(reconnected, "u2")
	require.NoError(t, err)
	assert.Equal(t, key, rejoinKey)

	backlog, err := history.Backlog(ctx, rejoinKey)
	require.NoError(t, err)
	require.Len(t, backlog, 1)
	assert.Equal(t, "you there?", backlog[0].Text)
}

func TestRouteDeliveryRestrictedToPair(t *testing.T) {
	router, registry, _ := newTestRouter(t)

	u1 := newFakeSession("sess-1", "u1")
	u2 := newFakeSession("sess-2", "u2")
	_, err := registry.Join(u1, "u2")
	require.NoError(t, err)
	_, err = registry.Join(u2, "u1")
	require.NoError(t, err)

	// A session bound to a third participant registered under the same key.
	intruder := newFakeSession("sess-3", "mallory")
	key, err := ResolveKey("u1", "u2")
	require.NoError(t, err)
	registry.mu.Lock()
	registry.members[key][intruder] = struct{}{}
	registry.joined[intruder] = map[ConversationKey]struct{}{key: {}}
	registry.mu.Unlock()

	ack := router.Route(context.Background(), SendRequest{
		Sender:    "u1",
		Recipient: "u2",
		Text:      "secret",
	})
	require.Equal(t, AckSuccess, ack.Status)

	assert.Len(t, u2.deliveredMessages(), 1)
	assert.Empty(t, intruder.deliveredMessages())
}

func TestRouteDeliveryFailureDoesNotFailAck(t *testing.T) {
	router, registry, history := newTestRouter(t)
	ctx := context.Background()

	u1 := newFakeSession("sess-1", "u1")
	u2 := newFakeSession("sess-2", "u2")
	_, err := registry.Join(u1, "u2")
	require.NoError(t, err)
	key, err := registry.Join(u2, "u1")
	require.NoError(t, err)
	u2.failNext = true

	ack := router.Route(ctx, SendRequest{Sender: "u1", Recipient: "u2", Text: "hi"})
	assert.Equal(t, AckSuccess, ack.Status)

	// Persistence succeeded even though delivery to u2 failed.
	backlog, err := history.Backlog(ctx, key)
	require.NoError(t, err)
	assert.Len(t, backlog, 1)
}

func TestRouteStoreUnavailable(t *testing.T) {
	registry := NewRegistry()
	log := logger.New(logger.Config{Level: "error", JSON: false})
	router := NewRouter(registry, failingHistory{}, log, nil)

	u2 := newFakeSession("sess-2", "u2")
	_, err := registry.Join(u2, "u1")
	require.NoError(t, err)

	ack := router.Route(context.Background(), SendRequest{
		Sender:    "u1",
		Recipient: "u2",
		Text:      "hi",
	})
	assert.Equal(t, AckFailure, ack.Status)
	assert.Equal(t, pkgerrors.CodeStoreUnavailable, ack.Reason)
	assert.Empty(t, u2.deliveredMessages())
}

func TestRouteServerAssignsTimestampAndOrder(t *testing.T) {
	router, _, history := newTestRouter(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	router.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	// Client-supplied timestamp is far in the past; ordering must ignore it.
	past := base.Add(-24 * time.Hour)
	for i, text := range []string{"first", "second", "third"} {
		ack := router.Route(ctx, SendRequest{
			Sender:    "u1",
			Recipient: "u2",
			Text:      text,
			CreatedAt: past,
		})
		require.Equal(t, AckSuccess, ack.Status)
		assert.Equal(t, int64(i+1), ack.Seq)
	}

	key, err := ResolveKey("u1", "u2")
	require.NoError(t, err)
	backlog, err := history.Backlog(ctx, key)
	require.NoError(t, err)
	require.Len(t, backlog, 3)
	for i, msg := range backlog {
		assert.Equal(t, int64(i+1), msg.Seq)
		assert.Equal(t, base.Add(time.Duration(i+1)*time.Second), msg.CreatedAt)
	}
	assert.Equal(t, "first", backlog[0].Text)
	assert.Equal(t, "third", backlog[2].Text)
}

func TestRouteEchoesClientMsgID(t *testing.T) {
	router, _, _ := newTestRouter(t)

	ack := router.Route(context.Background(), SendRequest{
		Sender:      "u1",
		Recipient:   "u2",
		Text:        "hi",
		ClientMsgID: "local-42",
	})
	require.Equal(t, AckSuccess, ack.Status)
	assert.Equal(t, "local-42", ack.ClientMsgID)

	ack = router.Route(context.Background(), SendRequest{
		Sender:      "u1",
		Recipient:   "u2",
		Text:        "",
		ClientMsgID: "local-43",
	})
	assert.Equal(t, AckFailure, ack.Status)
	assert.Equal(t, "local-43", ack.ClientMsgID)
}
