package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/geo"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/models"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/realtime"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/timeline"
	apperrors "github.com/anandyadav-dev/HunarMitra-Backend/pkg/errors"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/logger"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/metrics"
)

const (
	// NotificationTypeEmergencyDispatch marks notifications sent to candidate workers.
	NotificationTypeEmergencyDispatch = "emergency_dispatch"
	// NotificationTypeEmergencyAccepted marks the notification sent to the requester.
	NotificationTypeEmergencyAccepted = "emergency_accepted"

	dispatchFailureReason = "no available workers in radius"
	// kmPerDegreeLat approximates one degree of latitude for the pool bounding box.
	kmPerDegreeLat = 111.0
)

// errAlreadyNotified marks a candidate that a concurrent run already logged.
var errAlreadyNotified = errors.New("worker already notified")

// Notifier creates notification records.
type Notifier interface {
	Create(ctx context.Context, input CreateNotificationInput) (*NotificationDTO, error)
}

// DispatchResult summarises one dispatch run.
type DispatchResult struct {
	EmergencyID        string `json:"emergency_id"`
	Status             string `json:"status"`
	CandidatesNotified int    `json:"candidates_notified"`
	Skipped            bool   `json:"skipped"`
}

// DispatchService turns open emergencies into notified candidates.
type DispatchService struct {
	db       *gorm.DB
	notifier Notifier
	opts     options
}

// NewDispatchService constructs a DispatchService.
func NewDispatchService(db *gorm.DB, notifier Notifier, opts ...Option) (*DispatchService, error) {
	if db == nil {
		return nil, errors.New("dispatch service: db is required")
	}
	if notifier == nil {
		return nil, errors.New("dispatch service: notifier is required")
	}
	return &DispatchService{
		db:       db,
		notifier: notifier,
		opts:     buildOptions(logger.WithModule("dispatch"), opts),
	}, nil
}

// Dispatch notifies the best-ranked available workers about an open emergency. Calling it
// on an emergency that is no longer open does nothing.
func (s *DispatchService) Dispatch(ctx context.Context, emergencyID string, settings DispatchSettings) (*DispatchResult, error) {
	ctx = ensureContext(ctx)
	settings = settings.normalised()

	var emergency models.EmergencyRequest
	if err := s.db.WithContext(ctx).First(&emergency, "id = ?", emergencyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("emergency not found")
		}
		return nil, fmt.Errorf("dispatch service: load emergency: %w", err)
	}

	if emergency.Status != models.EmergencyStatusOpen {
		metrics.DispatchRuns.WithLabelValues("skipped").Inc()
		return &DispatchResult{EmergencyID: emergency.ID, Status: emergency.Status, Skipped: true}, nil
	}

	origin := geo.Point{Lat: emergency.Latitude, Lng: emergency.Longitude}
	if err := origin.Validate(); err != nil {
		return nil, err
	}

	pool, userByWorker, err := s.loadPool(ctx, origin, derefString(emergency.ServiceID), settings)
	if err != nil {
		return nil, err
	}

	candidates := geo.Match(origin, pool, geo.MatchOptions{
		RadiusKm:      settings.RadiusKm,
		ServiceID:     derefString(emergency.ServiceID),
		MaxCandidates: settings.MaxCandidates,
		PoolLimit:     settings.PoolLimit,
	})

	notified := make([]string, 0, len(candidates))
	duplicates := 0
	for rank, candidate := range candidates {
		err := s.notifyCandidate(ctx, emergency, candidate, rank+1, userByWorker[candidate.Worker.ID], settings)
		if errors.Is(err, errAlreadyNotified) {
			duplicates++
			continue
		}
		if err != nil {
			s.opts.log.Warn("notify candidate failed",
				zap.String("emergency_id", emergency.ID),
				zap.String("worker_id", candidate.Worker.ID),
				zap.Error(err),
			)
			continue
		}
		notified = append(notified, candidate.Worker.ID)
	}

	if len(notified) == 0 && duplicates > 0 {
		metrics.DispatchRuns.WithLabelValues("skipped").Inc()
		return &DispatchResult{EmergencyID: emergency.ID, Status: emergency.Status, Skipped: true}, nil
	}

	metrics.DispatchCandidates.Observe(float64(len(notified)))
	if len(notified) == 0 {
		return s.markFailed(ctx, emergency)
	}
	return s.markDispatched(ctx, emergency, notified, settings)
}

func (s *DispatchService) loadPool(ctx context.Context, origin geo.Point, serviceID string, settings DispatchSettings) ([]geo.Worker, map[string]string, error) {
	latSpan := settings.RadiusKm / kmPerDegreeLat
	query := s.db.WithContext(ctx).
		Model(&models.WorkerProfile{}).
		Preload("Services").
		Where("is_available = ?", true).
		Where("latitude IS NOT NULL AND longitude IS NOT NULL").
		Where("latitude BETWEEN ? AND ?", origin.Lat-latSpan, origin.Lat+latSpan)
	if serviceID != "" {
		query = query.Where("id IN (?)",
			s.db.Model(&models.WorkerService{}).Select("worker_id").Where("service_id = ?", serviceID))
	}

	var profiles []models.WorkerProfile
	if err := query.
		Order("rating DESC").
		Order("id ASC").
		Limit(settings.PoolLimit).
		Find(&profiles).Error; err != nil {
		return nil, nil, fmt.Errorf("dispatch service: load worker pool: %w", err)
	}

	pool := make([]geo.Worker, 0, len(profiles))
	users := make(map[string]string, len(profiles))
	for _, profile := range profiles {
		serviceIDs := make([]string, 0, len(profile.Services))
		for _, svc := range profile.Services {
			serviceIDs = append(serviceIDs, svc.ServiceID)
		}
		pool = append(pool, geo.Worker{
			ID:          profile.ID,
			Lat:         profile.Latitude,
			Lng:         profile.Longitude,
			IsAvailable: profile.IsAvailable,
			Rating:      profile.Rating,
			ServiceIDs:  serviceIDs,
		})
		users[profile.ID] = profile.UserID
	}
	return pool, users, nil
}

// notifyCandidate writes the dispatch log and the worker notification. The log row is
// removed again when the notification cannot be created.
func (s *DispatchService) notifyCandidate(ctx context.Context, emergency models.EmergencyRequest, candidate geo.Candidate, rank int, userID string, settings DispatchSettings) error {
	if userID == "" {
		return errors.New("worker has no user account")
	}

	raw, err := encodeJSON(map[string]any{
		"distance_km":      candidate.DistanceKm,
		"worker_rating":    candidate.Worker.Rating,
		"search_radius_km": settings.RadiusKm,
	})
	if err != nil {
		return err
	}

	log := models.DispatchLog{
		EmergencyID: emergency.ID,
		WorkerID:    candidate.Worker.ID,
		Rank:        rank,
		AttemptTime: s.opts.clock(),
		Status:      models.DispatchStatusNotified,
		RawResponse: raw,
	}
	if err := s.db.WithContext(ctx).Create(&log).Error; err != nil {
		if isUniqueConstraintError(err) {
			return errAlreadyNotified
		}
		return fmt.Errorf("create dispatch log: %w", err)
	}

	_, err = s.notifier.Create(ctx, CreateNotificationInput{
		UserID:  userID,
		Type:    NotificationTypeEmergencyDispatch,
		Title:   "Emergency Request Nearby",
		Message: fmt.Sprintf("Urgent help needed %.1fkm away. Tap to respond immediately.", candidate.DistanceKm),
		Channel: models.ChannelPush,
		Data: map[string]any{
			"emergency_id": emergency.ID,
			"distance_km":  candidate.DistanceKm,
			"urgency":      emergency.Urgency,
			"service":      serviceLabel(emergency),
			"address":      emergency.AddressText,
		},
	})
	if err != nil {
		if delErr := s.db.WithContext(ctx).Delete(&models.DispatchLog{}, "id = ?", log.ID).Error; delErr != nil {
			s.opts.log.Error("remove orphaned dispatch log failed", zap.String("log_id", log.ID), zap.Error(delErr))
		}
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (s *DispatchService) markDispatched(ctx context.Context, emergency models.EmergencyRequest, notified []string, settings DispatchSettings) (*DispatchResult, error) {
	now := s.opts.clock()
	metadata, err := mergeJSON(emergency.Metadata, map[string]any{
		"candidates_notified": len(notified),
		"radius_used":         settings.RadiusKm,
		"dispatched_at":       now.Format(time.RFC3339),
		"notified_worker_ids": notified,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch service: encode metadata: %w", err)
	}

	result := s.db.WithContext(ctx).
		Model(&models.EmergencyRequest{}).
		Where("id = ? AND status = ?", emergency.ID, models.EmergencyStatusOpen).
		Updates(map[string]any{
			"status":        models.EmergencyStatusDispatched,
			"dispatched_at": now,
			"metadata":      metadata,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("dispatch service: mark dispatched: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Cancelled or dispatched concurrently; the logs stay as an audit of who was told.
		metrics.DispatchRuns.WithLabelValues("skipped").Inc()
		return &DispatchResult{EmergencyID: emergency.ID, Status: emergency.Status, CandidatesNotified: len(notified), Skipped: true}, nil
	}

	emergency.Status = models.EmergencyStatusDispatched
	emergency.DispatchedAt = &now
	emergency.Metadata = metadata

	details := map[string]any{"candidates_notified": len(notified), "radius_used": settings.RadiusKm}
	s.opts.recordTimeline(ctx, emergency.ID, timeline.EventDispatched, nil,
		fmt.Sprintf("Dispatched to %d nearby workers", len(notified)), details)
	s.opts.publishEmergency(ctx, realtime.EventEmergencyDispatched, emergency, details)
	metrics.DispatchRuns.WithLabelValues("dispatched").Inc()

	s.opts.log.Info("emergency dispatched",
		zap.String("emergency_id", emergency.ID),
		zap.Int("candidates", len(notified)),
		zap.Float64("radius_km", settings.RadiusKm),
	)
	return &DispatchResult{EmergencyID: emergency.ID, Status: emergency.Status, CandidatesNotified: len(notified)}, nil
}

func (s *DispatchService) markFailed(ctx context.Context, emergency models.EmergencyRequest) (*DispatchResult, error) {
	metadata, err := mergeJSON(emergency.Metadata, map[string]any{
		"dispatch_failed":    true,
		"dispatch_failed_at": s.opts.clock().Format(time.RFC3339),
		"failure_reason":     dispatchFailureReason,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch service: encode metadata: %w", err)
	}

	if err := s.db.WithContext(ctx).
		Model(&models.EmergencyRequest{}).
		Where("id = ? AND status = ?", emergency.ID, models.EmergencyStatusOpen).
		Update("metadata", metadata).Error; err != nil {
		return nil, fmt.Errorf("dispatch service: mark dispatch failed: %w", err)
	}

	details := map[string]any{"reason": dispatchFailureReason}
	s.opts.recordTimeline(ctx, emergency.ID, timeline.EventDispatchFailed, nil, dispatchFailureReason, details)
	s.opts.publishEmergency(ctx, realtime.EventEmergencyDispatchEmpty, emergency, details)
	metrics.DispatchRuns.WithLabelValues("no_candidates").Inc()

	s.opts.log.Warn("no candidates for emergency", zap.String("emergency_id", emergency.ID))
	return &DispatchResult{EmergencyID: emergency.ID, Status: emergency.Status}, nil
}

func serviceLabel(emergency models.EmergencyRequest) string {
	if emergency.ServiceDescription != "" {
		return emergency.ServiceDescription
	}
	return derefString(emergency.ServiceID)
}
