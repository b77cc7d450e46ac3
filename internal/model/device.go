package model

import (
	"time"

	"github.com/google/uuid"
)

// DeviceSubscription is one web-push subscription per (user, endpoint). The
// id is a uuid5 of the endpoint URL, so re-subscribing with the same
// endpoint hits the primary key and the insert is idempotent.
type DeviceSubscription struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID `json:"user_id" gorm:"type:uuid;index;not null"`
	Subscription string    `json:"subscription" gorm:"type:text;not null"`
	CreatedAt    time.Time `json:"created_at"`
}

// SubscriptionID derives the deterministic subscription id from the push
// endpoint URL.
func SubscriptionID(endpoint string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(endpoint))
}
