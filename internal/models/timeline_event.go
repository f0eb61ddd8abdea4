package models

import "gorm.io/datatypes"

// TimelineEvent is an append-only audit entry for an emergency.
type TimelineEvent struct {
	BaseModel

	EmergencyID string         `gorm:"type:varchar(36);not null;index" json:"emergency_id"`
	EventType   string         `gorm:"type:varchar(64);not null" json:"event_type"`
	ActorID     *string        `gorm:"type:varchar(36)" json:"actor_id,omitempty"`
	Message     string         `gorm:"type:text" json:"message"`
	Metadata    datatypes.JSON `json:"metadata"`
}
