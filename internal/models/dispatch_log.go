package models

import (
	"time"

	"gorm.io/datatypes"
)

// Dispatch log statuses. Every status other than notified is terminal.
const (
	DispatchStatusNotified = "notified"
	DispatchStatusAccepted = "accepted"
	DispatchStatusDeclined = "declined"
	DispatchStatusTimeout  = "timeout"
)

// DispatchLog records one worker notified about one emergency.
type DispatchLog struct {
	BaseModel

	EmergencyID  string         `gorm:"type:varchar(36);not null;uniqueIndex:idx_dispatch_logs_pair,priority:1" json:"emergency_id"`
	WorkerID     string         `gorm:"type:varchar(36);not null;uniqueIndex:idx_dispatch_logs_pair,priority:2;index" json:"worker_id"`
	Rank         int            `gorm:"column:candidate_rank;not null;default:0" json:"rank"`
	AttemptTime  time.Time      `gorm:"not null" json:"attempt_time"`
	Status       string         `gorm:"type:varchar(16);not null;default:'notified';index" json:"status"`
	ResponseTime *time.Time     `json:"response_time,omitempty"`
	RawResponse  datatypes.JSON `json:"raw_response"`
}

// TableName pins the table name.
func (DispatchLog) TableName() string {
	return "dispatch_logs"
}
