package timeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/models"
)

// GormRecorder stores events in the timeline_events table.
type GormRecorder struct {
	db *gorm.DB
}

// NewGormRecorder constructs a recorder backed by gorm.
func NewGormRecorder(db *gorm.DB) (*GormRecorder, error) {
	if db == nil {
		return nil, errors.New("timeline: db is required")
	}
	return &GormRecorder{db: db}, nil
}

// Record implements Recorder.
func (r *GormRecorder) Record(ctx context.Context, event Event) error {
	row := models.TimelineEvent{
		EmergencyID: event.EmergencyID,
		EventType:   event.Type,
		ActorID:     event.ActorID,
		Message:     event.Message,
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	row.ID = event.ID
	if !event.CreatedAt.IsZero() {
		row.CreatedAt = event.CreatedAt
	}
	if len(event.Metadata) > 0 {
		data, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("timeline: encode metadata: %w", err)
		}
		row.Metadata = datatypes.JSON(data)
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("timeline: record %s: %w", event.Type, err)
	}
	return nil
}

// List implements Recorder. Events are returned oldest first.
func (r *GormRecorder) List(ctx context.Context, emergencyID string) ([]Event, error) {
	var rows []models.TimelineEvent
	if err := r.db.WithContext(ctx).
		Where("emergency_id = ?", emergencyID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("timeline: list: %w", err)
	}

	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		event := Event{
			ID:          row.ID,
			EmergencyID: row.EmergencyID,
			Type:        row.EventType,
			ActorID:     row.ActorID,
			Message:     row.Message,
			CreatedAt:   row.CreatedAt,
		}
		if len(row.Metadata) > 0 {
			_ = json.Unmarshal(row.Metadata, &event.Metadata)
		}
		events = append(events, event)
	}
	return events, nil
}
