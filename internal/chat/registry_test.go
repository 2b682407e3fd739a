package chat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession records delivered messages; used by registry and router tests.
type fakeSession struct {
	id          string
	participant ParticipantID

	mu        sync.Mutex
	delivered []Message
	failNext  bool
}

func newFakeSession(id string, participant ParticipantID) *fakeSession {
	return &fakeSession{id: id, participant: participant}
}

func (s *fakeSession) SessionID() string          { return s.id }
func (s *fakeSession) Participant() ParticipantID { return s.participant }

func (s *fakeSession) Deliver(msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		return fmt.Errorf("send buffer full")
	}
	s.delivered = append(s.delivered, *msg)
	return nil
}

func (s *fakeSession) deliveredMessages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.delivered))
	copy(out, s.delivered)
	return out
}

func TestRegistryJoinRecordsMembership(t *testing.T) {
	r := NewRegistry()
	s := newFakeSession("sess-1", "u1")

	key, err := r.Join(s, "u2")
	require.NoError(t, err)
	assert.Equal(t, ConversationKey("u1:u2"), key)

	members := r.MembersOf(key)
	require.Len(t, members, 1)
	assert.Equal(t, "sess-1", members[0].SessionID())
}

func TestRegistryJoinRejectsInvalidPeer(t *testing.T) {
	r := NewRegistry()
	s := newFakeSession("sess-1", "u1")

	_, err := r.Join(s, "u1")
	require.Error(t, err)
	assert.Empty(t, r.Conversations(s))

	_, err = r.Join(s, "")
	require.Error(t, err)
	assert.Empty(t, r.Conversations(s))
}

func TestRegistryJoinIsIdempotentPerConversation(t *testing.T) {
	r := NewRegistry()
	s := newFakeSession("sess-1", "u1")

	_, err := r.Join(s, "u2")
	require.NoError(t, err)
	key, err := r.Join(s, "u2")
	require.NoError(t, err)

	assert.Len(t, r.MembersOf(key), 1)
	assert.Len(t, r.Conversations(s), 1)
}

func TestRegistryLeaveIdempotent(t *testing.T) {
	r := NewRegistry()
	s := newFakeSession("sess-1", "u1")

	key, err := r.Join(s, "u2")
	require.NoError(t, err)
	_, err = r.Join(s, "u3")
	require.NoError(t, err)

	r.Leave(s)
	assert.Empty(t, r.MembersOf(key))
	assert.Empty(t, r.Conversations(s))
	assert.Zero(t, r.SessionCount())

	// Leaving twice produces the same state as leaving once.
	r.Leave(s)
	assert.Empty(t, r.MembersOf(key))
	assert.Zero(t, r.SessionCount())
}

func TestRegistryLeaveNeverJoinedSession(t *testing.T) {
	r := NewRegistry()
	r.Leave(newFakeSession("ghost", "u9"))
	assert.Zero(t, r.SessionCount())
}

func TestRegistryMultipleSessionsSameParticipant(t *testing.T) {
	r := NewRegistry()
	tab1 := newFakeSession("sess-1", "u1")
	tab2 := newFakeSession("sess-2", "u1")

	key1, err := r.Join(tab1, "u2")
	require.NoError(t, err)
	key2, err := r.Join(tab2, "u2")
	require.NoError(t, err)

	assert.Equal(t, key1, key2)
	assert.Len(t, r.MembersOf(key1), 2)

	r.Leave(tab1)
	members := r.MembersOf(key1)
	require.Len(t, members, 1)
	assert.Equal(t, "sess-2", members[0].SessionID())
}

func TestRegistryLeaveConversation(t *testing.T) {
	r := NewRegistry()
	s := newFakeSession("sess-1", "u1")

	key1, err := r.Join(s, "u2")
	require.NoError(t, err)
	key2, err := r.Join(s, "u3")
	require.NoError(t, err)

	r.LeaveConversation(s, key1)
	assert.Empty(t, r.MembersOf(key1))
	require.Len(t, r.MembersOf(key2), 1)
	assert.Equal(t, []ConversationKey{key2}, r.Conversations(s))
}

func TestRegistryConcurrentJoinLeave(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := newFakeSession(fmt.Sprintf("sess-%d", i), ParticipantID(fmt.Sprintf("user-%d", i)))
			_, err := r.Join(s, "hub")
			assert.NoError(t, err)
			r.MembersOf("user-0:hub")
			r.Leave(s)
		}(i)
	}
	wg.Wait()

	assert.Zero(t, r.SessionCount())
}
