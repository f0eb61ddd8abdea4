package models

import "time"

// Queued task states.
const (
	TaskStatusQueued  = "queued"
	TaskStatusRunning = "running"
	TaskStatusDone    = "done"
	TaskStatusFailed  = "failed"
)

// QueuedTask backs the database task queue.
type QueuedTask struct {
	BaseModel

	Kind        string     `gorm:"type:varchar(64);not null;index" json:"kind"`
	Payload     []byte     `json:"payload"`
	Status      string     `gorm:"type:varchar(16);not null;default:'queued';index:idx_queued_tasks_claim,priority:1" json:"status"`
	RunAt       time.Time  `gorm:"not null;index:idx_queued_tasks_claim,priority:2" json:"run_at"`
	Attempt     int        `gorm:"not null;default:0" json:"attempt"`
	LastError   string     `gorm:"type:text" json:"last_error,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
