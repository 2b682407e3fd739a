package chat

import (
	"sync"
)

// Registry tracks which live sessions belong to which conversations.
// Entries exist only for the session's lifetime; the transport layer must
// call Leave on disconnect or membership would grow without bound.
type Registry struct {
	mu      sync.RWMutex
	members map[ConversationKey]map[Session]struct{}
	joined  map[Session]map[ConversationKey]struct{}
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		members: make(map[ConversationKey]map[Session]struct{}),
		joined:  make(map[Session]map[ConversationKey]struct{}),
	}
}

// Join resolves the conversation key for the session's participant and the
// peer, then records the session as a member. Joining the same conversation
// twice is a no-op.
func (r *Registry) Join(s Session, peer ParticipantID) (ConversationKey, error) {
	key, err := ResolveKey(s.Participant(), peer)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.members[key] == nil {
		r.members[key] = make(map[Session]struct{})
	}
	r.members[key][s] = struct{}{}

	if r.joined[s] == nil {
		r.joined[s] = make(map[ConversationKey]struct{})
	}
	r.joined[s][key] = struct{}{}

	return key, nil
}

// Leave removes every membership held by the session. Idempotent: leaving a
// session that was never joined, or leaving twice, changes nothing.
func (r *Registry) Leave(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.joined[s] {
		delete(r.members[key], s)
		if len(r.members[key]) == 0 {
			delete(r.members, key)
		}
	}
	delete(r.joined, s)
}

// LeaveConversation removes the session from a single conversation.
func (r *Registry) LeaveConversation(s Session, key ConversationKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.members[key], s)
	if len(r.members[key]) == 0 {
		delete(r.members, key)
	}
	delete(r.joined[s], key)
	if len(r.joined[s]) == 0 {
		delete(r.joined, s)
	}
}

// MembersOf returns the sessions currently joined to the conversation.
func (r *Registry) MembersOf(key ConversationKey) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]Session, 0, len(r.members[key]))
	for s := range r.members[key] {
		sessions = append(sessions, s)
	}
	return sessions
}

// Conversations returns the keys the session has joined.
func (r *Registry) Conversations(s Session) []ConversationKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]ConversationKey, 0, len(r.joined[s]))
	for key := range r.joined[s] {
		keys = append(keys, key)
	}
	return keys
}

// SessionCount reports the number of sessions with at least one membership.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.joined)
}
