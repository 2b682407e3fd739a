package chat

import (
	"context"
	"sync"
)

// HistoryStore is the per-conversation ordered log. Append assigns the next
// sequence number for the key (starting at 1, strictly increasing, no gaps);
// Backlog returns the full log in exact append order. An unknown key has an
// empty backlog, not an error.
type HistoryStore interface {
	Append(ctx context.Context, key ConversationKey, msg *Message) (int64, error)
	Backlog(ctx context.Context, key ConversationKey) ([]Message, error)
}

// MemoryHistory is the in-process HistoryStore. Each conversation owns its
// own lock, so appends to the same key serialize while unrelated
// conversations proceed concurrently.
type MemoryHistory struct {
	mu   sync.RWMutex
	logs map[ConversationKey]*conversationLog
}

type conversationLog struct {
	mu       sync.Mutex
	messages []Message
}

// NewMemoryHistory creates an empty in-memory history store.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{
		logs: make(map[ConversationKey]*conversationLog),
	}
}

// Append stores the message at the tail of the conversation's log and stamps
// it with the assigned sequence number.
func (h *MemoryHistory) Append(_ context.Context, key ConversationKey, msg *Message) (int64, error) {
	log := h.logFor(key)

	log.mu.Lock()
	defer log.mu.Unlock()

	seq := int64(len(log.messages)) + 1
	msg.Seq = seq
	msg.ConversationKey = key
	log.messages = append(log.messages, *msg)
	return seq, nil
}

// Backlog returns a copy of the conversation's log in append order.
func (h *MemoryHistory) Backlog(_ context.Context, key ConversationKey) ([]Message, error) {
	h.mu.RLock()
	log, ok := h.logs[key]
	h.mu.RUnlock()
	if !ok {
		return []Message{}, nil
	}

	log.mu.Lock()
	defer log.mu.Unlock()

	out := make([]Message, len(log.messages))
	copy(out, log.messages)
	return out, nil
}

// logFor returns the conversation's log, creating it lazily on first use.
func (h *MemoryHistory) logFor(key ConversationKey) *conversationLog {
	h.mu.RLock()
	log, ok := h.logs[key]
	h.mu.RUnlock()
	if ok {
		return log
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if log, ok = h.logs[key]; ok {
		return log
	}
	log = &conversationLog{}
	h.logs[key] = log
	return log
}
