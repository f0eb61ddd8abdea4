package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/models"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/realtime"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/timeline"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/logger"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/metrics"
)

const (
	escalationReason = "No worker acceptance within timeout"
	sweepBatchSize   = 200
)

// TimeoutMonitor flags dispatched emergencies nobody accepted in time. It never changes
// status and never re-dispatches.
type TimeoutMonitor struct {
	db   *gorm.DB
	opts options
	mu   sync.Mutex
}

// NewTimeoutMonitor constructs a TimeoutMonitor.
func NewTimeoutMonitor(db *gorm.DB, opts ...Option) (*TimeoutMonitor, error) {
	if db == nil {
		return nil, errors.New("timeout monitor: db is required")
	}
	return &TimeoutMonitor{
		db:   db,
		opts: buildOptions(logger.WithModule("timeout"), opts),
	}, nil
}

// Sweep flags emergencies dispatched at least timeout ago without an accepted response.
// It returns how many were flagged. An overlapping call returns immediately.
func (m *TimeoutMonitor) Sweep(ctx context.Context, timeout time.Duration) (int, error) {
	ctx = ensureContext(ctx)
	if !m.mu.TryLock() {
		m.opts.log.Debug("timeout sweep already running")
		return 0, nil
	}
	defer m.mu.Unlock()

	now := m.opts.clock()
	cutoff := now.Add(-timeout)

	var stalled []models.EmergencyRequest
	if err := m.db.WithContext(ctx).
		Where("status = ? AND dispatched_at <= ?", models.EmergencyStatusDispatched, cutoff).
		Where("NOT EXISTS (SELECT 1 FROM dispatch_logs WHERE dispatch_logs.emergency_id = emergency_requests.id AND dispatch_logs.status = ?)",
			models.DispatchStatusAccepted).
		Order("dispatched_at ASC").
		Limit(sweepBatchSize).
		Find(&stalled).Error; err != nil {
		return 0, fmt.Errorf("timeout monitor: load stalled emergencies: %w", err)
	}

	flagged := 0
	for _, emergency := range stalled {
		if escalated(emergency) {
			continue
		}
		ok, err := m.flag(ctx, emergency.ID, now)
		if err != nil {
			return flagged, err
		}
		if !ok {
			continue
		}
		flagged++

		emergency.Status = models.EmergencyStatusDispatched
		details := map[string]any{"reason": escalationReason, "timeout_seconds": timeout.Seconds()}
		m.opts.recordTimeline(ctx, emergency.ID, timeline.EventEscalated, nil, escalationReason, details)
		m.opts.publishEmergency(ctx, realtime.EventEmergencyEscalated, emergency, details)
		metrics.Escalations.Inc()
	}

	if flagged > 0 {
		m.opts.log.Info("flagged stalled emergencies", zap.Int("count", flagged), zap.Duration("timeout", timeout))
	}
	return flagged, nil
}

// flag re-reads the emergency inside a transaction and only writes while it is still
// dispatched and unflagged.
func (m *TimeoutMonitor) flag(ctx context.Context, id string, now time.Time) (bool, error) {
	flagged := false
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.EmergencyRequest
		if err := tx.First(&current, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if current.Status != models.EmergencyStatusDispatched || escalated(current) {
			return nil
		}

		metadata, err := mergeJSON(current.Metadata, map[string]any{
			"escalation_needed": true,
			"escalation_reason": escalationReason,
			"timed_out_at":      now.Format(time.RFC3339),
		})
		if err != nil {
			return err
		}

		result := tx.Model(&models.EmergencyRequest{}).
			Where("id = ? AND status = ?", id, models.EmergencyStatusDispatched).
			Update("metadata", metadata)
		if result.Error != nil {
			return result.Error
		}
		flagged = result.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("timeout monitor: flag emergency: %w", err)
	}
	return flagged, nil
}

// ExpireResponses moves notified dispatch logs older than timeout to timeout, but only for
// emergencies another worker already took. Logs of unaccepted emergencies stay open so a
// late worker can still respond.
func (m *TimeoutMonitor) ExpireResponses(ctx context.Context, timeout time.Duration) (int64, error) {
	ctx = ensureContext(ctx)
	now := m.opts.clock()

	settled := m.db.Model(&models.EmergencyRequest{}).
		Select("id").
		Where("status IN ?", []string{
			models.EmergencyStatusAccepted,
			models.EmergencyStatusOnTheWay,
			models.EmergencyStatusResolved,
		})

	result := m.db.WithContext(ctx).
		Model(&models.DispatchLog{}).
		Where("status = ? AND attempt_time <= ?", models.DispatchStatusNotified, now.Add(-timeout)).
		Where("emergency_id IN (?)", settled).
		Updates(map[string]any{
			"status":        models.DispatchStatusTimeout,
			"response_time": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("timeout monitor: expire responses: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func escalated(emergency models.EmergencyRequest) bool {
	flag, _ := decodeJSON(emergency.Metadata)["escalation_needed"].(bool)
	return flag
}
