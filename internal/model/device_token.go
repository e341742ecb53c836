package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Platform identifies the push primitive that issued a device token.
type Platform string

const (
	PlatformWeb     Platform = "web"
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// Valid reports whether p is one of the supported platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformWeb, PlatformAndroid, PlatformIOS:
		return true
	}
	return false
}

// DeviceInfo is the free-form metadata captured at registration time.
type DeviceInfo struct {
	UserAgent    string    `json:"user_agent,omitempty"`
	Locale       string    `json:"locale,omitempty"`
	Platform     string    `json:"platform,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

// DeviceToken is one installation or browser able to receive pushes for a user.
type DeviceToken struct {
	ID         string                         `gorm:"primaryKey;size:36"`
	UserID     string                         `gorm:"size:64;not null;uniqueIndex:idx_device_tokens_user_token,priority:1"`
	Token      string                         `gorm:"size:1024;not null;uniqueIndex:idx_device_tokens_user_token,priority:2"`
	Platform   Platform                       `gorm:"size:16;not null"`
	DeviceInfo datatypes.JSONType[DeviceInfo] `gorm:"column:device_info"`
	Active     bool                           `gorm:"not null;default:true;index"`
	CreatedAt  time.Time                      `gorm:"not null"`
	UpdatedAt  time.Time                      `gorm:"not null"`
}

// BeforeCreate assigns a fresh identifier.
func (d *DeviceToken) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// TokenRef is the minimal projection of an active token used by the dispatcher.
type TokenRef struct {
	ID       string
	Token    string
	Platform Platform
}
