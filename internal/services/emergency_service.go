package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/cache"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/geo"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/models"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/queue"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/realtime"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/timeline"
	apperrors "github.com/anandyadav-dev/HunarMitra-Backend/pkg/errors"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/logger"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/metrics"
)

// Dispatch modes reported on creation.
const (
	DispatchModeQueued = "queued"
	DispatchModeManual = "manual"
)

// CreateEmergencyInput captures an inbound emergency request.
type CreateEmergencyInput struct {
	ContactPhone       string
	Latitude           float64
	Longitude          float64
	AddressText        string
	ServiceID          string
	ServiceDescription string
	Urgency            string
}

// CreateEmergencyResult is returned from Create.
type CreateEmergencyResult struct {
	Emergency      EmergencyDTO `json:"emergency"`
	DispatchStatus string       `json:"dispatch_status"`
}

// ListEmergenciesInput filters List.
type ListEmergenciesInput struct {
	Status string
	Limit  int
	Offset int
}

// UpdateStatusInput is an administrative status change.
type UpdateStatusInput struct {
	Status string
	Notes  string
}

// EmergencyService owns the emergency lifecycle: intake, worker responses and manual
// status changes.
type EmergencyService struct {
	db       *gorm.DB
	queue    queue.Queue
	notifier Notifier
	rates    cache.Store
	opts     options
}

// NewEmergencyService constructs an EmergencyService.
func NewEmergencyService(db *gorm.DB, q queue.Queue, notifier Notifier, opts ...Option) (*EmergencyService, error) {
	if db == nil {
		return nil, errors.New("emergency service: db is required")
	}
	if q == nil {
		return nil, errors.New("emergency service: queue is required")
	}
	return &EmergencyService{
		db:       db,
		queue:    q,
		notifier: notifier,
		opts:     buildOptions(logger.WithModule("emergency"), opts),
	}, nil
}

// WithRateStore enables per-requester intake limits backed by store.
func (s *EmergencyService) WithRateStore(store cache.Store) *EmergencyService {
	s.rates = store
	return s
}

// Create validates and stores a new emergency. When auto-assign is enabled a dispatch task
// is queued; otherwise the emergency waits for a manual dispatch.
func (s *EmergencyService) Create(ctx context.Context, actor Actor, input CreateEmergencyInput, settings EmergencySettings) (*CreateEmergencyResult, error) {
	ctx = ensureContext(ctx)

	phone := strings.TrimSpace(input.ContactPhone)
	if phone == "" {
		return nil, apperrors.NewValidation("contact phone is required")
	}
	if err := geo.ValidateCoordinates(input.Latitude, input.Longitude); err != nil {
		return nil, err
	}
	urgency := strings.ToLower(defaultIfEmpty(strings.TrimSpace(input.Urgency), models.UrgencyHigh))
	switch urgency {
	case models.UrgencyLow, models.UrgencyMedium, models.UrgencyHigh:
	default:
		return nil, apperrors.NewValidation(fmt.Sprintf("unsupported urgency %q", input.Urgency))
	}

	if err := s.checkRate(ctx, defaultIfEmpty(actor.UserID, phone), settings.RateLimitPerMinute); err != nil {
		return nil, err
	}

	emergency := models.EmergencyRequest{
		CreatedBy:          stringPtr(actor.UserID),
		ContactPhone:       phone,
		Latitude:           input.Latitude,
		Longitude:          input.Longitude,
		AddressText:        strings.TrimSpace(input.AddressText),
		ServiceID:          stringPtr(input.ServiceID),
		ServiceDescription: strings.TrimSpace(input.ServiceDescription),
		Urgency:            urgency,
		Status:             models.EmergencyStatusOpen,
	}
	if err := s.db.WithContext(ctx).Create(&emergency).Error; err != nil {
		return nil, fmt.Errorf("emergency service: create emergency: %w", err)
	}

	mode := DispatchModeManual
	if settings.AutoAssign {
		if err := s.enqueueDispatch(ctx, emergency.ID); err != nil {
			return nil, err
		}
		metadata, err := mergeJSON(emergency.Metadata, map[string]any{
			"dispatch_queued_at": s.opts.clock().Format(time.RFC3339),
		})
		if err != nil {
			return nil, fmt.Errorf("emergency service: encode metadata: %w", err)
		}
		if err := s.db.WithContext(ctx).Model(&emergency).Update("metadata", metadata).Error; err != nil {
			return nil, fmt.Errorf("emergency service: record dispatch queue: %w", err)
		}
		emergency.Metadata = metadata
		mode = DispatchModeQueued
	}

	s.opts.recordTimeline(ctx, emergency.ID, timeline.EventCreated, emergency.CreatedBy,
		fmt.Sprintf("Emergency reported (%s urgency)", urgency), map[string]any{"dispatch_status": mode})
	s.opts.publishEmergency(ctx, realtime.EventEmergencyCreated, emergency, map[string]any{"dispatch_status": mode})
	metrics.EmergenciesCreated.WithLabelValues(mode).Inc()

	s.opts.log.Info("emergency created",
		zap.String("emergency_id", emergency.ID),
		zap.String("urgency", urgency),
		zap.String("dispatch_status", mode),
	)
	return &CreateEmergencyResult{Emergency: mapEmergency(emergency), DispatchStatus: mode}, nil
}

// Get returns an emergency visible to the actor, including its dispatch log.
func (s *EmergencyService) Get(ctx context.Context, actor Actor, id string) (*EmergencyDTO, error) {
	ctx = ensureContext(ctx)
	emergency, err := s.load(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if !canView(actor, emergency) {
		return nil, apperrors.NewNotFound("emergency not found")
	}
	dto := mapEmergency(emergency)
	return &dto, nil
}

// List returns the emergencies the actor may see, newest first.
func (s *EmergencyService) List(ctx context.Context, actor Actor, input ListEmergenciesInput) ([]EmergencyDTO, int64, error) {
	ctx = ensureContext(ctx)
	if actor.UserID == "" && !actor.IsAdmin() {
		return nil, 0, apperrors.ErrUnauthorized
	}

	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	query := s.db.WithContext(ctx).Model(&models.EmergencyRequest{})
	switch {
	case actor.IsAdmin():
	case actor.IsWorker():
		query = query.Where(
			"created_by = ? OR assigned_worker_id = ? OR id IN (?)",
			actor.UserID,
			actor.WorkerID,
			s.db.Model(&models.DispatchLog{}).Select("emergency_id").Where("worker_id = ?", actor.WorkerID),
		)
	default:
		query = query.Where("created_by = ?", actor.UserID)
	}
	if status := strings.TrimSpace(input.Status); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("emergency service: count emergencies: %w", err)
	}

	var rows []models.EmergencyRequest
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(max(0, input.Offset)).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("emergency service: list emergencies: %w", err)
	}

	items := make([]EmergencyDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapEmergency(row))
	}
	return items, total, nil
}

// Accept assigns the emergency to the calling worker. Only the first accept wins; any
// later attempt gets ErrAlreadyAssigned and its dispatch log stays untouched.
func (s *EmergencyService) Accept(ctx context.Context, actor Actor, id string) (*EmergencyDTO, error) {
	ctx = ensureContext(ctx)
	if !actor.IsWorker() {
		return nil, apperrors.ErrForbidden
	}

	now := s.opts.clock()
	var emergency models.EmergencyRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The claim is the first statement so the transaction holds the write lock
		// before it reads anything; a read snapshot taken earlier could not be upgraded.
		pending := s.db.Model(&models.DispatchLog{}).
			Select("1").
			Where("emergency_id = ? AND worker_id = ? AND status = ?", id, actor.WorkerID, models.DispatchStatusNotified)
		claim := tx.Model(&models.EmergencyRequest{}).
			Where("id = ? AND status IN ? AND assigned_worker_id IS NULL AND EXISTS (?)", id,
				[]string{models.EmergencyStatusOpen, models.EmergencyStatusDispatched}, pending).
			Updates(map[string]any{
				"assigned_worker_id": actor.WorkerID,
				"status":             models.EmergencyStatusAccepted,
			})
		if claim.Error != nil {
			return fmt.Errorf("emergency service: claim emergency: %w", claim.Error)
		}
		if claim.RowsAffected == 0 {
			return classifyRejectedAccept(tx, id, actor.WorkerID)
		}

		if err := tx.First(&emergency, "id = ?", id).Error; err != nil {
			return fmt.Errorf("emergency service: load emergency: %w", err)
		}
		metadata, err := mergeJSON(emergency.Metadata, map[string]any{
			"accepted_at": now.Format(time.RFC3339),
		})
		if err != nil {
			return fmt.Errorf("emergency service: encode metadata: %w", err)
		}
		if err := tx.Model(&models.EmergencyRequest{}).
			Where("id = ?", id).
			Update("metadata", metadata).Error; err != nil {
			return fmt.Errorf("emergency service: store metadata: %w", err)
		}

		settle := tx.Model(&models.DispatchLog{}).
			Where("emergency_id = ? AND worker_id = ? AND status = ?", id, actor.WorkerID, models.DispatchStatusNotified).
			Updates(map[string]any{
				"status":        models.DispatchStatusAccepted,
				"response_time": now,
			})
		if settle.Error != nil {
			return fmt.Errorf("emergency service: settle dispatch log: %w", settle.Error)
		}
		if settle.RowsAffected == 0 {
			return apperrors.ErrAlreadyResolved
		}

		emergency.Metadata = metadata
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrAlreadyAssigned), errors.Is(err, apperrors.ErrAlreadyResolved):
			metrics.AcceptAttempts.WithLabelValues("conflict").Inc()
		default:
			metrics.AcceptAttempts.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	metrics.AcceptAttempts.WithLabelValues("accepted").Inc()

	if emergency.CreatedBy != nil && s.notifier != nil {
		if _, err := s.notifier.Create(ctx, CreateNotificationInput{
			UserID:  *emergency.CreatedBy,
			Type:    NotificationTypeEmergencyAccepted,
			Title:   "Emergency Accepted",
			Message: "A worker has accepted your emergency request and will contact you shortly.",
			Channel: models.ChannelPush,
			Data: map[string]any{
				"emergency_id": emergency.ID,
				"worker_id":    actor.WorkerID,
			},
		}); err != nil {
			s.opts.log.Warn("notify requester failed", zap.String("emergency_id", emergency.ID), zap.Error(err))
		}
	}

	details := map[string]any{"worker_id": actor.WorkerID}
	s.opts.recordTimeline(ctx, emergency.ID, timeline.EventAccepted, &actor.UserID, "Worker accepted the emergency", details)
	s.opts.publishEmergency(ctx, realtime.EventEmergencyAccepted, emergency, details)

	s.opts.log.Info("emergency accepted",
		zap.String("emergency_id", emergency.ID),
		zap.String("worker_id", actor.WorkerID),
	)
	return s.Get(ctx, Actor{Role: RoleAdmin}, emergency.ID)
}

// Decline records the calling worker's refusal.
func (s *EmergencyService) Decline(ctx context.Context, actor Actor, id string) error {
	ctx = ensureContext(ctx)
	if !actor.IsWorker() {
		return apperrors.ErrForbidden
	}

	result := s.db.WithContext(ctx).
		Model(&models.DispatchLog{}).
		Where("emergency_id = ? AND worker_id = ? AND status = ?", id, actor.WorkerID, models.DispatchStatusNotified).
		Updates(map[string]any{
			"status":        models.DispatchStatusDeclined,
			"response_time": s.opts.clock(),
		})
	if result.Error != nil {
		return fmt.Errorf("emergency service: decline: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).
			Model(&models.DispatchLog{}).
			Where("emergency_id = ? AND worker_id = ?", id, actor.WorkerID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("emergency service: decline lookup: %w", err)
		}
		if count == 0 {
			return apperrors.NewNotFound("no pending dispatch for this worker")
		}
		return apperrors.ErrAlreadyResolved
	}

	s.opts.recordTimeline(ctx, id, timeline.EventDeclined, &actor.UserID, "Worker declined the emergency",
		map[string]any{"worker_id": actor.WorkerID})
	return nil
}

// UpdateStatus applies an administrative status change.
func (s *EmergencyService) UpdateStatus(ctx context.Context, actor Actor, id string, input UpdateStatusInput) (*EmergencyDTO, error) {
	ctx = ensureContext(ctx)
	if !actor.IsAdmin() {
		return nil, apperrors.ErrForbidden
	}
	emergency, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, emergency, strings.ToLower(strings.TrimSpace(input.Status)), input.Notes)
}

// Cancel cancels an emergency on behalf of its requester or an administrator.
func (s *EmergencyService) Cancel(ctx context.Context, actor Actor, id, reason string) (*EmergencyDTO, error) {
	ctx = ensureContext(ctx)
	emergency, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && (actor.UserID == "" || derefString(emergency.CreatedBy) != actor.UserID) {
		return nil, apperrors.ErrForbidden
	}
	return s.transition(ctx, actor, emergency, models.EmergencyStatusCancelled, reason)
}

// RequestDispatch queues a dispatch run for an open emergency.
func (s *EmergencyService) RequestDispatch(ctx context.Context, actor Actor, id string) error {
	ctx = ensureContext(ctx)
	if !actor.IsAdmin() {
		return apperrors.ErrForbidden
	}
	emergency, err := s.load(ctx, id, false)
	if err != nil {
		return err
	}
	if emergency.Status != models.EmergencyStatusOpen {
		return apperrors.NewConflict(fmt.Sprintf("emergency is %s, only open emergencies can be dispatched", emergency.Status))
	}
	return s.enqueueDispatch(ctx, emergency.ID)
}

// Timeline lists the timeline of an emergency visible to the actor.
func (s *EmergencyService) Timeline(ctx context.Context, actor Actor, id string) ([]timeline.Event, error) {
	ctx = ensureContext(ctx)
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	if s.opts.timeline == nil {
		return []timeline.Event{}, nil
	}
	events, err := s.opts.timeline.List(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("emergency service: list timeline: %w", err)
	}
	return events, nil
}

func (s *EmergencyService) transition(ctx context.Context, actor Actor, emergency models.EmergencyRequest, to, notes string) (*EmergencyDTO, error) {
	if !isEmergencyStatus(to) {
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown status %q", to))
	}
	from := emergency.Status
	if isTerminalStatus(from) {
		return nil, apperrors.ErrAlreadyResolved
	}
	if !CanTransition(from, to) {
		return nil, apperrors.NewConflict(fmt.Sprintf("cannot move emergency from %s to %s", from, to))
	}

	now := s.opts.clock()
	metadata := decodeJSON(emergency.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	history, _ := metadata["status_notes"].([]any)
	metadata["status_notes"] = append(history, map[string]any{
		"timestamp":   now.Format(time.RFC3339),
		"from_status": from,
		"to_status":   to,
		"notes":       strings.TrimSpace(notes),
		"updated_by":  actor.UserID,
	})

	updates := map[string]any{"status": to}
	if to == models.EmergencyStatusCancelled && emergency.AssignedWorkerID != nil {
		metadata["previous_assigned_worker_id"] = *emergency.AssignedWorkerID
		updates["assigned_worker_id"] = nil
		emergency.AssignedWorkerID = nil
	}
	encoded, err := encodeJSON(metadata)
	if err != nil {
		return nil, fmt.Errorf("emergency service: encode metadata: %w", err)
	}
	updates["metadata"] = encoded

	result := s.db.WithContext(ctx).
		Model(&models.EmergencyRequest{}).
		Where("id = ? AND status = ?", emergency.ID, from).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("emergency service: update status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperrors.NewConflict("emergency status changed concurrently")
	}

	emergency.Status = to
	emergency.Metadata = encoded

	details := map[string]any{"from_status": from, "to_status": to}
	s.opts.recordTimeline(ctx, emergency.ID, timeline.EventStatusChanged, stringPtr(actor.UserID),
		fmt.Sprintf("Status changed from %s to %s", from, to), details)
	s.opts.publishEmergency(ctx, realtime.EventEmergencyStatusChanged, emergency, details)

	return s.Get(ctx, Actor{Role: RoleAdmin}, emergency.ID)
}

func (s *EmergencyService) load(ctx context.Context, id string, withLogs bool) (models.EmergencyRequest, error) {
	var emergency models.EmergencyRequest
	query := s.db.WithContext(ctx)
	if withLogs {
		query = query.Preload("DispatchLogs", func(db *gorm.DB) *gorm.DB {
			return db.Order("candidate_rank ASC")
		})
	}
	if err := query.First(&emergency, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return emergency, apperrors.NewNotFound("emergency not found")
		}
		return emergency, fmt.Errorf("emergency service: load emergency: %w", err)
	}
	return emergency, nil
}

func (s *EmergencyService) enqueueDispatch(ctx context.Context, emergencyID string) error {
	task, err := queue.NewTask(queue.KindEmergencyDispatch, queue.DispatchPayload{EmergencyID: emergencyID}, s.opts.clock())
	if err != nil {
		return fmt.Errorf("emergency service: build dispatch task: %w", err)
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("emergency service: enqueue dispatch: %w", err)
	}
	return nil
}

func (s *EmergencyService) checkRate(ctx context.Context, requester string, limit int) error {
	if s.rates == nil || limit <= 0 {
		return nil
	}
	count, _, err := s.rates.IncrementWithTTL(ctx, "emergency:rate:"+requester, time.Minute)
	if err != nil {
		return fmt.Errorf("emergency service: rate limit: %w", err)
	}
	if count > int64(limit) {
		return apperrors.ErrRateLimit
	}
	return nil
}

func canView(actor Actor, emergency models.EmergencyRequest) bool {
	if actor.IsAdmin() {
		return true
	}
	if actor.UserID != "" && derefString(emergency.CreatedBy) == actor.UserID {
		return true
	}
	if !actor.IsWorker() {
		return false
	}
	if derefString(emergency.AssignedWorkerID) == actor.WorkerID {
		return true
	}
	for _, log := range emergency.DispatchLogs {
		if log.WorkerID == actor.WorkerID {
			return true
		}
	}
	return false
}

// classifyRejectedAccept explains why the claim matched no row.
func classifyRejectedAccept(tx *gorm.DB, id, workerID string) error {
	var emergency models.EmergencyRequest
	if err := tx.First(&emergency, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NewNotFound("emergency not found")
		}
		return fmt.Errorf("emergency service: load emergency: %w", err)
	}

	var log models.DispatchLog
	if err := tx.Where("emergency_id = ? AND worker_id = ?", id, workerID).First(&log).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NewNotFound("no pending dispatch for this worker")
		}
		return fmt.Errorf("emergency service: load dispatch log: %w", err)
	}
	if log.Status != models.DispatchStatusNotified || emergency.IsTerminal() {
		return apperrors.ErrAlreadyResolved
	}
	return apperrors.ErrAlreadyAssigned
}
