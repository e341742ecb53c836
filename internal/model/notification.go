package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NotificationStatus is the lifecycle state of a queued notification.
type NotificationStatus string

const (
	StatusPending NotificationStatus = "pending"
	StatusSent    NotificationStatus = "sent"
	StatusFailed  NotificationStatus = "failed"
)

// Terminal reports whether s is a final state.
func (s NotificationStatus) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// QueuedNotification is a push intent written by an external trigger.
type QueuedNotification struct {
	ID           string             `gorm:"primaryKey;size:36"`
	UserID       string             `gorm:"size:64;not null;index"`
	Title        string             `gorm:"size:256;not null"`
	Body         string             `gorm:"type:text;not null"`
	Data         datatypes.JSONMap  `gorm:"column:data"`
	Status       NotificationStatus `gorm:"size:16;not null;default:pending;index:idx_queued_notifications_status_created,priority:1"`
	ErrorMessage *string            `gorm:"type:text"`
	CreatedAt    time.Time          `gorm:"not null;index:idx_queued_notifications_status_created,priority:2"`
	SentAt       *time.Time
	FailedAt     *time.Time

	// Lease held by the processing pass currently working on the row.
	ClaimedBy      string `gorm:"size:36;index"`
	ClaimExpiresAt *time.Time
}

// BeforeCreate assigns a fresh identifier.
func (n *QueuedNotification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}
