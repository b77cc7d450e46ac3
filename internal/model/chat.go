package model

import (
	"time"

	"github.com/google/uuid"
)

// Chat represents a participant set. Membership is fixed in the observed
// flows: chats are never mutated after creation.
type Chat struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Title     *string   `json:"title,omitempty" gorm:"type:varchar(255)"`
	CreatedAt time.Time `json:"created_at"`

	// Relations
	Members []ChatMember `json:"members,omitempty" gorm:"foreignKey:ChatID"`
}

// ChatMember is one (chat, user) membership row.
type ChatMember struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	ChatID    uuid.UUID `json:"chat_id" gorm:"type:uuid;index;not null;uniqueIndex:idx_chat_member"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;index;not null;uniqueIndex:idx_chat_member"`
	CreatedAt time.Time `json:"created_at"`
}
