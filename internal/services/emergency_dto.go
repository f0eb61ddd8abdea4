package services

import (
	"time"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/models"
)

// EmergencyDTO is the API view of an emergency request.
type EmergencyDTO struct {
	ID                 string           `json:"id"`
	CreatedBy          *string          `json:"created_by,omitempty"`
	ContactPhone       string           `json:"contact_phone"`
	Latitude           float64          `json:"latitude"`
	Longitude          float64          `json:"longitude"`
	AddressText        string           `json:"address_text"`
	ServiceID          *string          `json:"service_id,omitempty"`
	ServiceDescription string           `json:"service_description,omitempty"`
	Urgency            string           `json:"urgency"`
	Status             string           `json:"status"`
	AssignedWorkerID   *string          `json:"assigned_worker_id,omitempty"`
	AssignedContractor *string          `json:"assigned_contractor_id,omitempty"`
	DispatchedAt       *time.Time       `json:"dispatched_at,omitempty"`
	Metadata           map[string]any   `json:"metadata,omitempty"`
	DispatchLogs       []DispatchLogDTO `json:"dispatch_logs,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// DispatchLogDTO is the API view of a dispatch log entry.
type DispatchLogDTO struct {
	ID           string         `json:"id"`
	WorkerID     string         `json:"worker_id"`
	Rank         int            `json:"rank"`
	AttemptTime  time.Time      `json:"attempt_time"`
	Status       string         `json:"status"`
	ResponseTime *time.Time     `json:"response_time,omitempty"`
	RawResponse  map[string]any `json:"raw_response,omitempty"`
}

func mapEmergency(row models.EmergencyRequest) EmergencyDTO {
	dto := EmergencyDTO{
		ID:                 row.ID,
		CreatedBy:          row.CreatedBy,
		ContactPhone:       row.ContactPhone,
		Latitude:           row.Latitude,
		Longitude:          row.Longitude,
		AddressText:        row.AddressText,
		ServiceID:          row.ServiceID,
		ServiceDescription: row.ServiceDescription,
		Urgency:            row.Urgency,
		Status:             row.Status,
		AssignedWorkerID:   row.AssignedWorkerID,
		AssignedContractor: row.AssignedContractor,
		DispatchedAt:       row.DispatchedAt,
		Metadata:           decodeJSON(row.Metadata),
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
	if len(row.DispatchLogs) > 0 {
		dto.DispatchLogs = make([]DispatchLogDTO, 0, len(row.DispatchLogs))
		for _, log := range row.DispatchLogs {
			dto.DispatchLogs = append(dto.DispatchLogs, DispatchLogDTO{
				ID:           log.ID,
				WorkerID:     log.WorkerID,
				Rank:         log.Rank,
				AttemptTime:  log.AttemptTime,
				Status:       log.Status,
				ResponseTime: log.ResponseTime,
				RawResponse:  decodeJSON(log.RawResponse),
			})
		}
	}
	return dto
}
