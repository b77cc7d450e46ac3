package model

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage belongs to exactly one chat and is immutable once created.
// Read state lives on the per-recipient rows, not here.
type ChatMessage struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	ChatID     uuid.UUID `json:"chat_id" gorm:"type:uuid;index;not null"`
	FromUserID uuid.UUID `json:"from_user_id" gorm:"type:uuid;index;not null"`
	EnteredAt  time.Time `json:"entered_at" gorm:"index;not null"`
	Content    *string   `json:"content,omitempty" gorm:"type:text"`
}

// ChatMessageRecipient is the per-(message, recipient) delivery and
// read-state row produced by fan-out. Exactly one exists per pair; the
// recipient set is chat members minus the sender, captured at
// message-creation time.
type ChatMessageRecipient struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	ChatID     uuid.UUID  `json:"chat_id" gorm:"type:uuid;index;not null"`
	MessageID  uuid.UUID  `json:"message_id" gorm:"type:uuid;index;not null;uniqueIndex:idx_message_recipient"`
	ToUserID   uuid.UUID  `json:"to_user_id" gorm:"type:uuid;index;not null;uniqueIndex:idx_message_recipient"`
	EnteredAt  time.Time  `json:"entered_at" gorm:"not null"`
	NotifiedAt *time.Time `json:"notified_at,omitempty"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
}
