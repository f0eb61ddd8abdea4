package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification channels.
const (
	ChannelPush  = "push"
	ChannelInApp = "in_app"
	ChannelEmail = "email"
)

// Notification is a user-facing notification record. A nil UserID marks a broadcast.
type Notification struct {
	BaseModel

	UserID  *string        `gorm:"type:varchar(36);index" json:"user_id,omitempty"`
	Type    string         `gorm:"type:varchar(64);not null;index" json:"type"`
	Title   string         `gorm:"type:varchar(255);not null" json:"title"`
	Message string         `gorm:"type:text" json:"message"`
	Data    datatypes.JSON `json:"data"`
	Channel string         `gorm:"type:varchar(16);not null;default:'push'" json:"channel"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`
}
