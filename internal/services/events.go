package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/models"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/realtime"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/timeline"
)

// EmergencyEvent is the payload published for emergency status changes.
type EmergencyEvent struct {
	EmergencyID      string         `json:"emergency_id"`
	Status           string         `json:"status"`
	AssignedWorkerID *string        `json:"assigned_worker_id,omitempty"`
	Details          map[string]any `json:"details,omitempty"`
	OccurredAt       time.Time      `json:"occurred_at"`
}

func (o options) publishEmergency(ctx context.Context, event string, emergency models.EmergencyRequest, details map[string]any) {
	o.publisher.Publish(ctx, realtime.StreamEmergencies, realtime.Message{
		Event: event,
		Data: EmergencyEvent{
			EmergencyID:      emergency.ID,
			Status:           emergency.Status,
			AssignedWorkerID: emergency.AssignedWorkerID,
			Details:          details,
			OccurredAt:       o.clock(),
		},
	})
}

func (o options) recordTimeline(ctx context.Context, emergencyID, eventType string, actorID *string, message string, metadata map[string]any) {
	if o.timeline == nil {
		return
	}
	err := o.timeline.Record(ctx, timeline.Event{
		EmergencyID: emergencyID,
		Type:        eventType,
		ActorID:     actorID,
		Message:     message,
		Metadata:    metadata,
		CreatedAt:   o.clock(),
	})
	if err != nil {
		o.log.Warn("record timeline event failed",
			zap.String("emergency_id", emergencyID),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
