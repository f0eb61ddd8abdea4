package models

import (
	"time"

	"gorm.io/datatypes"
)

// Emergency statuses.
const (
	EmergencyStatusOpen       = "open"
	EmergencyStatusDispatched = "dispatched"
	EmergencyStatusAccepted   = "accepted"
	EmergencyStatusOnTheWay   = "on_the_way"
	EmergencyStatusResolved   = "resolved"
	EmergencyStatusCancelled  = "cancelled"
)

// Urgency levels.
const (
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

// EmergencyRequest is an urgent job request matched against nearby workers.
// Rows are never deleted.
type EmergencyRequest struct {
	BaseModel

	CreatedBy          *string        `gorm:"type:varchar(36);index" json:"created_by,omitempty"`
	ContactPhone       string         `gorm:"type:varchar(20);not null" json:"contact_phone"`
	Latitude           float64        `gorm:"not null" json:"latitude"`
	Longitude          float64        `gorm:"not null" json:"longitude"`
	AddressText        string         `gorm:"type:text" json:"address_text"`
	ServiceID          *string        `gorm:"type:varchar(36);index" json:"service_id,omitempty"`
	ServiceDescription string         `gorm:"type:text" json:"service_description,omitempty"`
	Urgency            string         `gorm:"type:varchar(16);not null;default:'high'" json:"urgency"`
	Status             string         `gorm:"type:varchar(16);not null;default:'open';index" json:"status"`
	AssignedWorkerID   *string        `gorm:"type:varchar(36);index" json:"assigned_worker_id,omitempty"`
	AssignedContractor *string        `gorm:"type:varchar(36)" json:"assigned_contractor_id,omitempty"`
	DispatchedAt       *time.Time     `gorm:"index" json:"dispatched_at,omitempty"`
	Metadata           datatypes.JSON `json:"metadata"`

	DispatchLogs []DispatchLog `gorm:"foreignKey:EmergencyID" json:"dispatch_logs,omitempty"`
}

// TableName pins the table name.
func (EmergencyRequest) TableName() string {
	return "emergency_requests"
}

// IsTerminal reports whether no further transitions are possible.
func (e EmergencyRequest) IsTerminal() bool {
	return e.Status == EmergencyStatusResolved || e.Status == EmergencyStatusCancelled
}
