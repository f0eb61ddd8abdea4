package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryQueue keeps tasks in process. Tasks are lost on restart.
type MemoryQueue struct {
	mu       sync.Mutex
	pending  []Task
	inflight map[string]Task
	failed   map[string]string
	now      func() time.Time
}

// NewMemoryQueue constructs an empty in-memory queue. A nil clock defaults to time.Now.
func NewMemoryQueue(now func() time.Time) *MemoryQueue {
	if now == nil {
		now = time.Now
	}
	return &MemoryQueue{
		inflight: make(map[string]Task),
		failed:   make(map[string]string),
		now:      now,
	}
}

// Enqueue implements Queue.
func (q *MemoryQueue) Enqueue(_ context.Context, task Task) error {
	if task.Kind == "" {
		return errors.New("queue: task kind is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = append(q.pending, normalise(task, q.now()))
	return nil
}

// Dequeue implements Queue.
func (q *MemoryQueue) Dequeue(_ context.Context, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	sort.SliceStable(q.pending, func(i, j int) bool {
		return q.pending[i].RunAt.Before(q.pending[j].RunAt)
	})

	now := q.now()
	due := make([]Task, 0, limit)
	remaining := q.pending[:0]
	for _, task := range q.pending {
		if len(due) < limit && !task.RunAt.After(now) {
			due = append(due, task)
			q.inflight[task.ID] = task
			continue
		}
		remaining = append(remaining, task)
	}
	q.pending = remaining
	return due, nil
}

// Complete implements Queue.
func (q *MemoryQueue) Complete(_ context.Context, id string, taskErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.inflight, id)
	if taskErr != nil {
		q.failed[id] = taskErr.Error()
	}
	return nil
}

// Pending returns a copy of the tasks not yet claimed, ordered by RunAt.
func (q *MemoryQueue) Pending() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Task, len(q.pending))
	copy(out, q.pending)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RunAt.Before(out[j].RunAt)
	})
	return out
}

// Failures returns the error text recorded for failed task ids.
func (q *MemoryQueue) Failures() map[string]string {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make(map[string]string, len(q.failed))
	for id, msg := range q.failed {
		out[id] = msg
	}
	return out
}
