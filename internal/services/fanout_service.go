package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/models"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/queue"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/logger"
)

// PushPayload is stored on every outgoing push and rendered into the provider message.
type PushPayload struct {
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	Data           map[string]any `json:"data,omitempty"`
	NotificationID string         `json:"notification_id"`
}

// FanoutService expands a push notification into one outgoing push per active device and
// queues delivery batches.
type FanoutService struct {
	db    *gorm.DB
	queue queue.Queue
	opts  options
}

// NewFanoutService constructs a FanoutService.
func NewFanoutService(db *gorm.DB, q queue.Queue, opts ...Option) (*FanoutService, error) {
	if db == nil {
		return nil, errors.New("fanout service: db is required")
	}
	if q == nil {
		return nil, errors.New("fanout service: queue is required")
	}
	return &FanoutService{
		db:    db,
		queue: q,
		opts:  buildOptions(logger.WithModule("push.fanout"), opts),
	}, nil
}

// Handle creates queued pushes for the notification and returns how many were created.
// It does nothing when push is disabled, the channel is not push or no device is active.
func (s *FanoutService) Handle(ctx context.Context, notification models.Notification, settings PushSettings) (int, error) {
	ctx = ensureContext(ctx)
	if !settings.Enabled || notification.Channel != models.ChannelPush {
		return 0, nil
	}

	query := s.db.WithContext(ctx).Model(&models.Device{}).Where("is_active = ?", true)
	if notification.UserID != nil {
		query = query.Where("user_id = ?", *notification.UserID)
	}

	var devices []models.Device
	if err := query.Order("created_at ASC").Find(&devices).Error; err != nil {
		return 0, fmt.Errorf("fanout service: load devices: %w", err)
	}
	if len(devices) == 0 {
		return 0, nil
	}

	payload, err := json.Marshal(PushPayload{
		Title:          notification.Title,
		Message:        notification.Message,
		Data:           decodeJSON(notification.Data),
		NotificationID: notification.ID,
	})
	if err != nil {
		return 0, fmt.Errorf("fanout service: encode payload: %w", err)
	}

	// next_attempt_at starts at the enqueue time so the stranded push job can tell
	// how long a record has waited for its first attempt.
	runAt := s.opts.clock().UTC()
	pushes := make([]models.OutgoingPush, 0, len(devices))
	for _, device := range devices {
		pushes = append(pushes, models.OutgoingPush{
			BaseModel:      models.BaseModel{CreatedAt: runAt},
			NotificationID: notification.ID,
			DeviceID:       device.ID,
			Payload:        datatypes.JSON(payload),
			Status:         models.PushStatusQueued,
			NextAttemptAt:  &runAt,
		})
	}
	if err := s.db.WithContext(ctx).Create(&pushes).Error; err != nil {
		return 0, fmt.Errorf("fanout service: create pushes: %w", err)
	}

	ids := make([]string, 0, len(pushes))
	for _, push := range pushes {
		ids = append(ids, push.ID)
	}

	size := settings.batchSize()
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		task, err := queue.NewTask(queue.KindPushDeliver, queue.PushBatchPayload{PushIDs: ids[start:end]}, runAt)
		if err != nil {
			return len(pushes), fmt.Errorf("fanout service: build task: %w", err)
		}
		if err := s.queue.Enqueue(ctx, task); err != nil {
			return len(pushes), fmt.Errorf("fanout service: enqueue batch: %w", err)
		}
	}

	s.opts.log.Debug("push fan-out queued",
		zap.String("notification_id", notification.ID),
		zap.Int("devices", len(pushes)),
	)
	return len(pushes), nil
}
