// Package timeline keeps an append-only audit trail for each emergency.
package timeline

import (
	"context"
	"time"
)

// Event types.
const (
	EventCreated        = "emergency_created"
	EventDispatched     = "emergency_dispatched"
	EventDispatchFailed = "emergency_dispatch_failed"
	EventAccepted       = "emergency_accepted"
	EventDeclined       = "emergency_declined"
	EventStatusChanged  = "emergency_status_changed"
	EventEscalated      = "emergency_escalated"
)

// Event is one timeline entry.
type Event struct {
	ID          string         `json:"id" bson:"_id"`
	EmergencyID string         `json:"emergency_id" bson:"emergency_id"`
	Type        string         `json:"event_type" bson:"event_type"`
	ActorID     *string        `json:"actor_id,omitempty" bson:"actor_id,omitempty"`
	Message     string         `json:"message" bson:"message"`
	Metadata    map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at" bson:"created_at"`
}

// Recorder stores and lists timeline events.
type Recorder interface {
	Record(ctx context.Context, event Event) error
	List(ctx context.Context, emergencyID string) ([]Event, error)
}
