// Package queue moves background work off the request path. Dispatch runs and push
// batches are enqueued as tasks and executed by a Runner; the backend decides whether
// they live in memory, in the database or in Redis.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task kinds.
const (
	KindEmergencyDispatch = "emergency.dispatch"
	KindPushDeliver       = "push.deliver"
)

// ErrUnknownTask is returned when a task has no registered handler.
var ErrUnknownTask = errors.New("queue: no handler for task kind")

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var target *permanentError
	return errors.As(err, &target)
}

// Task is a unit of deferred work. A task is not visible to Dequeue before RunAt.
type Task struct {
	ID      string
	Kind    string
	Payload []byte
	RunAt   time.Time
	Attempt int
}

// Queue stores tasks until they are due.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	// Dequeue claims up to limit due tasks. A claimed task is not returned again.
	Dequeue(ctx context.Context, limit int) ([]Task, error)
	// Complete records the outcome of a claimed task.
	Complete(ctx context.Context, id string, taskErr error) error
}

// NewTask encodes payload as JSON into a task of the given kind.
func NewTask(kind string, payload any, runAt time.Time) (Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("queue: encode %s payload: %w", kind, err)
	}
	return Task{
		ID:      uuid.NewString(),
		Kind:    kind,
		Payload: data,
		RunAt:   runAt.UTC(),
	}, nil
}

// Decode unmarshals the task payload into v.
func (t Task) Decode(v any) error {
	if len(t.Payload) == 0 {
		return fmt.Errorf("queue: task %s has empty payload", t.ID)
	}
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("queue: decode %s payload: %w", t.Kind, err)
	}
	return nil
}

// DispatchPayload identifies the emergency to dispatch.
type DispatchPayload struct {
	EmergencyID string `json:"emergency_id"`
}

// PushBatchPayload lists outgoing push record ids processed together.
type PushBatchPayload struct {
	PushIDs []string `json:"push_ids"`
}

func normalise(task Task, now time.Time) Task {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.RunAt.IsZero() {
		task.RunAt = now
	}
	task.RunAt = task.RunAt.UTC()
	return task
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
