package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/models"
)

// DatabaseQueue persists tasks in the queued_tasks table so they survive restarts.
type DatabaseQueue struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDatabaseQueue constructs a queue backed by gorm. A nil clock defaults to time.Now.
func NewDatabaseQueue(db *gorm.DB, now func() time.Time) (*DatabaseQueue, error) {
	if db == nil {
		return nil, errors.New("queue: database handle is required")
	}
	if now == nil {
		now = time.Now
	}
	return &DatabaseQueue{db: db, now: now}, nil
}

// Enqueue implements Queue.
func (q *DatabaseQueue) Enqueue(ctx context.Context, task Task) error {
	if task.Kind == "" {
		return errors.New("queue: task kind is required")
	}
	task = normalise(task, q.now())

	row := models.QueuedTask{
		Kind:    task.Kind,
		Payload: task.Payload,
		Status:  models.TaskStatusQueued,
		RunAt:   task.RunAt,
		Attempt: task.Attempt,
	}
	row.ID = task.ID

	if err := q.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", task.Kind, err)
	}
	return nil
}

// Dequeue implements Queue. Rows are claimed with a conditional update so concurrent
// runners never receive the same task.
func (q *DatabaseQueue) Dequeue(ctx context.Context, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 1
	}

	var rows []models.QueuedTask
	err := q.db.WithContext(ctx).
		Where("status = ? AND run_at <= ?", models.TaskStatusQueued, q.now().UTC()).
		Order("run_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("queue: select due tasks: %w", err)
	}

	tasks := make([]Task, 0, len(rows))
	for _, row := range rows {
		result := q.db.WithContext(ctx).
			Model(&models.QueuedTask{}).
			Where("id = ? AND status = ?", row.ID, models.TaskStatusQueued).
			Update("status", models.TaskStatusRunning)
		if result.Error != nil {
			return tasks, fmt.Errorf("queue: claim task %s: %w", row.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			continue
		}
		tasks = append(tasks, Task{
			ID:      row.ID,
			Kind:    row.Kind,
			Payload: row.Payload,
			RunAt:   row.RunAt,
			Attempt: row.Attempt,
		})
	}
	return tasks, nil
}

// Complete implements Queue.
func (q *DatabaseQueue) Complete(ctx context.Context, id string, taskErr error) error {
	status := models.TaskStatusDone
	if taskErr != nil {
		status = models.TaskStatusFailed
	}
	now := q.now().UTC()

	err := q.db.WithContext(ctx).
		Model(&models.QueuedTask{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       status,
			"last_error":   errorText(taskErr),
			"completed_at": &now,
		}).Error
	if err != nil {
		return fmt.Errorf("queue: complete task %s: %w", id, err)
	}
	return nil
}

// PurgeCompleted deletes finished tasks completed before the cutoff.
func (q *DatabaseQueue) PurgeCompleted(ctx context.Context, before time.Time) (int64, error) {
	result := q.db.WithContext(ctx).
		Where("status IN ? AND completed_at < ?", []string{models.TaskStatusDone, models.TaskStatusFailed}, before.UTC()).
		Delete(&models.QueuedTask{})
	if result.Error != nil {
		return 0, fmt.Errorf("queue: purge completed: %w", result.Error)
	}
	return result.RowsAffected, nil
}
