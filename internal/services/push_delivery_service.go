package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/cache"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/models"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/push"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/queue"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/backoff"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/logger"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/metrics"
)

const (
	pushRateKey   = "push:rate"
	strandedLimit = 1000
)

// BatchSummary counts what happened to each record in a delivery batch.
type BatchSummary struct {
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
	Retrying int `json:"retrying"`
	Delayed  int `json:"delayed"`
	Total    int `json:"total"`
}

// PushDeliveryService sends outgoing pushes through the gateway and applies the retry policy.
type PushDeliveryService struct {
	db      *gorm.DB
	gateway push.Gateway
	queue   queue.Queue
	limiter cache.Store
	batch   int
	opts    options
}

// NewPushDeliveryService constructs a PushDeliveryService.
func NewPushDeliveryService(db *gorm.DB, gateway push.Gateway, q queue.Queue, opts ...Option) (*PushDeliveryService, error) {
	if db == nil {
		return nil, errors.New("push delivery service: db is required")
	}
	if gateway == nil {
		return nil, errors.New("push delivery service: gateway is required")
	}
	if q == nil {
		return nil, errors.New("push delivery service: queue is required")
	}
	return &PushDeliveryService{
		db:      db,
		gateway: gateway,
		queue:   q,
		opts:    buildOptions(logger.WithModule("push.delivery"), opts),
	}, nil
}

// WithRateStore enables the per-minute send limit backed by store.
func (s *PushDeliveryService) WithRateStore(store cache.Store) *PushDeliveryService {
	s.limiter = store
	return s
}

// WithBatchSize sets how many record ids go into each requeued delivery task.
func (s *PushDeliveryService) WithBatchSize(n int) *PushDeliveryService {
	s.batch = n
	return s
}

// RequeueStranded enqueues queued or delayed pushes whose scheduled attempt passed more
// than olderThan ago without any delivery task settling them. Requeued records have
// next_attempt_at moved to now, so a later run waits another olderThan before
// touching them again.
func (s *PushDeliveryService) RequeueStranded(ctx context.Context, olderThan time.Duration) (int, error) {
	ctx = ensureContext(ctx)
	now := s.opts.clock().UTC()
	cutoff := now.Add(-olderThan)
	pendingStatuses := []string{models.PushStatusQueued, models.PushStatusDelayed}

	var ids []string
	if err := s.db.WithContext(ctx).
		Model(&models.OutgoingPush{}).
		Where("status IN ?", pendingStatuses).
		Where("next_attempt_at <= ? OR (next_attempt_at IS NULL AND created_at <= ?)", cutoff, cutoff).
		Order("created_at ASC").
		Limit(strandedLimit).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("push delivery service: find stranded pushes: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := s.db.WithContext(ctx).
		Model(&models.OutgoingPush{}).
		Where("id IN ? AND status IN ?", ids, pendingStatuses).
		Update("next_attempt_at", now).Error; err != nil {
		return 0, fmt.Errorf("push delivery service: reschedule stranded pushes: %w", err)
	}

	size := PushSettings{BatchSize: s.batch}.batchSize()
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		if err := s.enqueue(ctx, ids[start:end], now); err != nil {
			return start, err
		}
	}

	s.opts.log.Warn("requeued stranded pushes", zap.Int("count", len(ids)))
	return len(ids), nil
}

type pendingPush struct {
	record  models.OutgoingPush
	message push.Message
}

// ProcessBatch delivers the given outgoing pushes. Records that are already terminal
// are left untouched, so reprocessing a batch never re-sends a delivered push.
func (s *PushDeliveryService) ProcessBatch(ctx context.Context, ids []string, settings PushSettings) (BatchSummary, error) {
	ctx = ensureContext(ctx)
	summary := BatchSummary{Total: len(ids)}
	if len(ids) == 0 {
		return summary, nil
	}
	if !settings.Enabled {
		summary.Skipped = len(ids)
		return summary, nil
	}

	var records []models.OutgoingPush
	if err := s.db.WithContext(ctx).
		Preload("Device").
		Where("id IN ?", ids).
		Find(&records).Error; err != nil {
		return summary, fmt.Errorf("push delivery service: load records: %w", err)
	}
	byID := make(map[string]models.OutgoingPush, len(records))
	for _, record := range records {
		byID[record.ID] = record
	}

	now := s.opts.clock()
	pending := make([]pendingPush, 0, len(records))
	retryAt := make(map[time.Time][]string)
	var delayed []string
	var delayedUntil time.Time

	for _, id := range ids {
		record, ok := byID[id]
		if !ok {
			summary.Skipped++
			continue
		}
		delete(byID, id)

		switch record.Status {
		case models.PushStatusSent, models.PushStatusFailed:
			summary.Skipped++
			continue
		}
		// Claimed ahead of its schedule: put it back rather than drop it.
		if record.NextAttemptAt != nil && record.NextAttemptAt.After(now) {
			retryAt[*record.NextAttemptAt] = append(retryAt[*record.NextAttemptAt], record.ID)
			summary.Delayed++
			continue
		}

		if record.Device == nil || !record.Device.IsActive {
			if err := s.markInactive(ctx, record, now); err != nil {
				return summary, err
			}
			summary.Skipped++
			metrics.PushDeliveries.WithLabelValues("skipped").Inc()
			continue
		}

		if wait, limited, err := s.rateLimited(ctx, settings); err != nil {
			return summary, err
		} else if limited {
			until := now.Add(wait)
			if err := s.markDelayed(ctx, record, until); err != nil {
				return summary, err
			}
			delayed = append(delayed, record.ID)
			delayedUntil = until
			summary.Delayed++
			metrics.PushDeliveries.WithLabelValues("delayed").Inc()
			continue
		}

		pending = append(pending, pendingPush{record: record, message: buildMessage(record)})
	}

	if len(delayed) > 0 {
		if err := s.enqueue(ctx, delayed, delayedUntil); err != nil {
			return summary, err
		}
	}
	if len(pending) == 0 {
		return summary, s.enqueueRetries(ctx, retryAt)
	}

	results := s.send(ctx, pending)
	strategy := backoff.NewExponential(settings.BackoffBase, settings.BackoffMax)
	maxRetries := settings.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultPushSettings().MaxRetries
	}

	for i, item := range pending {
		result := results[i]
		record := item.record
		attempts := record.Attempts + 1

		switch {
		case result.Outcome == push.OutcomeSent:
			if err := s.update(ctx, record.ID, map[string]any{
				"status":            models.PushStatusSent,
				"attempts":          attempts,
				"last_attempt_at":   now,
				"next_attempt_at":   nil,
				"provider_response": resultJSON(result),
			}); err != nil {
				return summary, err
			}
			summary.Sent++
			metrics.PushDeliveries.WithLabelValues("sent").Inc()

		case result.Permanent():
			if err := s.update(ctx, record.ID, map[string]any{
				"status":            models.PushStatusFailed,
				"attempts":          attempts,
				"last_attempt_at":   now,
				"next_attempt_at":   nil,
				"provider_response": resultJSON(result),
			}); err != nil {
				return summary, err
			}
			if err := s.deactivateDevice(ctx, record.DeviceID); err != nil {
				return summary, err
			}
			s.opts.log.Info("push permanently rejected; device deactivated",
				zap.String("push_id", record.ID),
				zap.String("device_id", record.DeviceID),
				zap.Error(result.Err()),
			)
			summary.Failed++
			metrics.PushDeliveries.WithLabelValues("failed").Inc()

		case attempts < maxRetries:
			next := now.Add(strategy.Delay(attempts))
			if err := s.update(ctx, record.ID, map[string]any{
				"status":            models.PushStatusQueued,
				"attempts":          attempts,
				"last_attempt_at":   now,
				"next_attempt_at":   next,
				"provider_response": resultJSON(result),
			}); err != nil {
				return summary, err
			}
			retryAt[next] = append(retryAt[next], record.ID)
			summary.Retrying++
			metrics.PushDeliveries.WithLabelValues("retry").Inc()

		default:
			if err := s.update(ctx, record.ID, map[string]any{
				"status":            models.PushStatusFailed,
				"attempts":          attempts,
				"last_attempt_at":   now,
				"next_attempt_at":   nil,
				"provider_response": resultJSON(result),
			}); err != nil {
				return summary, err
			}
			s.opts.log.Warn("push retries exhausted",
				zap.String("push_id", record.ID),
				zap.Int("attempts", attempts),
				zap.Error(result.Err()),
			)
			summary.Failed++
			metrics.PushDeliveries.WithLabelValues("failed").Inc()
		}
	}

	return summary, s.enqueueRetries(ctx, retryAt)
}

func (s *PushDeliveryService) enqueueRetries(ctx context.Context, retryAt map[time.Time][]string) error {
	for runAt, retryIDs := range retryAt {
		if err := s.enqueue(ctx, retryIDs, runAt); err != nil {
			return err
		}
	}
	return nil
}

// send calls the gateway once for the whole batch. A batch-level error is applied to
// every message.
func (s *PushDeliveryService) send(ctx context.Context, pending []pendingPush) []push.Result {
	messages := make([]push.Message, 0, len(pending))
	for _, item := range pending {
		messages = append(messages, item.message)
	}

	results, err := s.gateway.SendBatch(ctx, messages)
	if err != nil {
		var gwErr *push.GatewayError
		if errors.As(err, &gwErr) && gwErr.Misconfigured() {
			s.opts.log.Error("push gateway refused the batch; check push.project_id and credentials",
				zap.Int("status", gwErr.StatusCode),
				zap.Int("messages", len(messages)),
				zap.Error(err),
			)
		} else {
			s.opts.log.Warn("push gateway batch failed", zap.Int("messages", len(messages)), zap.Error(err))
		}
		result := push.ResultFromError(err)
		results = make([]push.Result, len(messages))
		for i := range results {
			results[i] = result
		}
		return results
	}

	for len(results) < len(messages) {
		results = append(results, push.Result{Outcome: push.OutcomeTransient, Error: "missing gateway result"})
	}
	return results
}

func (s *PushDeliveryService) rateLimited(ctx context.Context, settings PushSettings) (time.Duration, bool, error) {
	if s.limiter == nil || settings.RateLimitPerMinute <= 0 {
		return 0, false, nil
	}
	count, ttl, err := s.limiter.IncrementWithTTL(ctx, pushRateKey, time.Minute)
	if err != nil {
		return 0, false, fmt.Errorf("push delivery service: rate limit: %w", err)
	}
	if count <= int64(settings.RateLimitPerMinute) {
		return 0, false, nil
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return ttl, true, nil
}

func (s *PushDeliveryService) markInactive(ctx context.Context, record models.OutgoingPush, now time.Time) error {
	payload, _ := json.Marshal(map[string]string{"error": "device inactive"})
	return s.update(ctx, record.ID, map[string]any{
		"status":            models.PushStatusFailed,
		"last_attempt_at":   now,
		"next_attempt_at":   nil,
		"provider_response": datatypes.JSON(payload),
	})
}

func (s *PushDeliveryService) markDelayed(ctx context.Context, record models.OutgoingPush, until time.Time) error {
	return s.update(ctx, record.ID, map[string]any{
		"status":          models.PushStatusDelayed,
		"next_attempt_at": until,
	})
}

// update never touches a record that has already been sent.
func (s *PushDeliveryService) update(ctx context.Context, id string, values map[string]any) error {
	if err := s.db.WithContext(ctx).
		Model(&models.OutgoingPush{}).
		Where("id = ? AND status <> ?", id, models.PushStatusSent).
		Updates(values).Error; err != nil {
		return fmt.Errorf("push delivery service: update record: %w", err)
	}
	return nil
}

// deactivateDevice only ever clears is_active.
func (s *PushDeliveryService) deactivateDevice(ctx context.Context, deviceID string) error {
	if err := s.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("id = ?", deviceID).
		Update("is_active", false).Error; err != nil {
		return fmt.Errorf("push delivery service: deactivate device: %w", err)
	}
	return nil
}

func (s *PushDeliveryService) enqueue(ctx context.Context, ids []string, runAt time.Time) error {
	task, err := queue.NewTask(queue.KindPushDeliver, queue.PushBatchPayload{PushIDs: ids}, runAt)
	if err != nil {
		return fmt.Errorf("push delivery service: build task: %w", err)
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("push delivery service: enqueue retry: %w", err)
	}
	return nil
}

func buildMessage(record models.OutgoingPush) push.Message {
	var payload PushPayload
	_ = json.Unmarshal(record.Payload, &payload)

	data := stringifyData(payload.Data)
	if payload.NotificationID != "" {
		data["notification_id"] = payload.NotificationID
	}
	return push.Message{
		Token:    record.Device.RegistrationToken,
		Platform: record.Device.Platform,
		Title:    payload.Title,
		Body:     payload.Message,
		Data:     data,
	}
}

// stringifyData flattens payload data into the string map push providers accept.
func stringifyData(data map[string]any) map[string]string {
	out := make(map[string]string, len(data)+1)
	for key, value := range data {
		switch v := value.(type) {
		case nil:
		case string:
			out[key] = v
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				continue
			}
			out[key] = string(encoded)
		}
	}
	return out
}

func resultJSON(result push.Result) datatypes.JSON {
	encoded, err := json.Marshal(result)
	if err != nil {
		return nil
	}
	return datatypes.JSON(encoded)
}
