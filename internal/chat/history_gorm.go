package chat

import (
	"context"
	"sync"

	"peer-chat-app/backend/internal/models"

	"gorm.io/gorm"
)

// GormHistory is the durable HistoryStore. One append-only row per message,
// keyed (conversation_key, seq). A per-key mutex preserves the single-writer
// append discipline so sequence numbers stay contiguous.
type GormHistory struct {
	db *gorm.DB

	mu    sync.Mutex
	locks map[ConversationKey]*sync.Mutex
}

// NewGormHistory creates a history store backed by the given database.
func NewGormHistory(db *gorm.DB) *GormHistory {
	return &GormHistory{
		db:    db,
		locks: make(map[ConversationKey]*sync.Mutex),
	}
}

// Append inserts the message with the next sequence number for the key.
func (h *GormHistory) Append(ctx context.Context, key ConversationKey, msg *Message) (int64, error) {
	lock := h.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	var last int64
	err := h.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_key = ?", string(key)).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&last).Error
	if err != nil {
		return 0, err
	}

	seq := last + 1
	msg.Seq = seq
	msg.ConversationKey = key

	record := models.Message{
		ExternalID:      msg.ID,
		ConversationKey: string(key),
		Seq:             seq,
		Sender:          string(msg.Sender),
		Recipient:       string(msg.Recipient),
		Text:            msg.Text,
		Timestamp:       msg.CreatedAt,
	}
	if err := h.db.WithContext(ctx).Create(&record).Error; err != nil {
		return 0, err
	}
	return seq, nil
}

// Backlog returns the conversation's messages ordered by sequence number.
func (h *GormHistory) Backlog(ctx context.Context, key ConversationKey) ([]Message, error) {
	var records []models.Message
	err := h.db.WithContext(ctx).
		Where("conversation_key = ?", string(key)).
		Order("seq ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	messages := make([]Message, 0, len(records))
	for _, r := range records {
		messages = append(messages, Message{
			ID:              r.ExternalID,
			ConversationKey: ConversationKey(r.ConversationKey),
			Seq:             r.Seq,
			Sender:          ParticipantID(r.Sender),
			Recipient:       ParticipantID(r.Recipient),
			Text:            r.Text,
			CreatedAt:       r.Timestamp,
		})
	}
	return messages, nil
}

func (h *GormHistory) lockFor(key ConversationKey) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	lock, ok := h.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		h.locks[key] = lock
	}
	return lock
}
