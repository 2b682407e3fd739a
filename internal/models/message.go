package models

import (
	"time"
)

// Message is the durable record of one chat message. Each row is one
// append-only record keyed by (conversation_key, seq).
type Message struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	ExternalID      string    `json:"external_id" gorm:"index"`
	ConversationKey string    `json:"conversation_key" gorm:"index:idx_messages_conv_seq,unique,priority:1"`
	Seq             int64     `json:"seq" gorm:"index:idx_messages_conv_seq,unique,priority:2"`
	Sender          string    `json:"sender" gorm:"index"`
	Recipient       string    `json:"recipient"`
	Text            string    `json:"text"`
	Timestamp       time.Time `json:"timestamp"`
	CreatedAt       time.Time `json:"created_at"`
}
