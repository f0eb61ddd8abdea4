package models

import (
	"time"

	"gorm.io/datatypes"
)

// Device platforms.
const (
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
	PlatformWeb     = "web"
)

// Device is a push registration owned by the device registry.
type Device struct {
	BaseModel

	UserID            *string        `gorm:"type:varchar(36);index" json:"user_id,omitempty"`
	Platform          string         `gorm:"type:varchar(16);not null" json:"platform"`
	RegistrationToken string         `gorm:"type:varchar(512);uniqueIndex;not null" json:"registration_token"`
	IsActive          bool           `gorm:"not null;index" json:"is_active"`
	LastSeen          *time.Time     `json:"last_seen,omitempty"`
	Metadata          datatypes.JSON `json:"metadata"`
}
