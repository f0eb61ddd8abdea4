package models

import (
	"time"

	"gorm.io/datatypes"
)

// Outgoing push statuses. Sent and failed are terminal.
const (
	PushStatusQueued  = "queued"
	PushStatusSent    = "sent"
	PushStatusFailed  = "failed"
	PushStatusDelayed = "delayed"
)

// OutgoingPush is one delivery of one notification to one device.
type OutgoingPush struct {
	BaseModel

	NotificationID   string         `gorm:"type:varchar(36);not null;index" json:"notification_id"`
	DeviceID         string         `gorm:"type:varchar(36);not null;index" json:"device_id"`
	Payload          datatypes.JSON `json:"payload"`
	Status           string         `gorm:"type:varchar(16);not null;default:'queued';index" json:"status"`
	Attempts         int            `gorm:"not null;default:0" json:"attempts"`
	LastAttemptAt    *time.Time     `json:"last_attempt_at,omitempty"`
	NextAttemptAt    *time.Time     `gorm:"index" json:"next_attempt_at,omitempty"`
	ProviderResponse datatypes.JSON `json:"provider_response"`

	Device *Device `gorm:"foreignKey:DeviceID" json:"device,omitempty"`
}

// TableName pins the table name.
func (OutgoingPush) TableName() string {
	return "outgoing_pushes"
}
