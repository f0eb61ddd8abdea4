package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/models"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/realtime"
	apperrors "github.com/anandyadav-dev/HunarMitra-Backend/pkg/errors"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/logger"
)

// NotificationDTO represents the API-friendly notification payload.
type NotificationDTO struct {
	ID        string         `json:"id"`
	UserID    *string        `json:"user_id,omitempty"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Channel   string         `json:"channel"`
	IsRead    bool           `json:"is_read"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
}

// CreateNotificationInput defines attributes required to persist a notification.
// An empty UserID creates a broadcast.
type CreateNotificationInput struct {
	UserID  string
	Type    string
	Title   string
	Message string
	Data    map[string]any
	Channel string
}

// ListNotificationsInput defines filters for querying user notifications.
type ListNotificationsInput struct {
	UserID     string
	UnreadOnly bool
	Limit      int
	Offset     int
}

// NotificationEventPayload represents data sent to realtime consumers.
type NotificationEventPayload struct {
	Notification   *NotificationDTO `json:"notification,omitempty"`
	NotificationID string           `json:"notification_id,omitempty"`
}

// NotificationBroadcaster is the subset of the realtime hub used for notifications.
type NotificationBroadcaster interface {
	BroadcastToUser(stream, userID string, message realtime.Message)
	BroadcastStream(stream string, message realtime.Message)
}

// PushFanout reacts to push-channel notifications.
type PushFanout interface {
	Handle(ctx context.Context, notification models.Notification, settings PushSettings) (int, error)
}

// NotificationOption customises a NotificationService.
type NotificationOption func(*NotificationService)

// WithPushFanout wires push fan-out with the settings applied to every creation.
func WithPushFanout(fanout PushFanout, settings PushSettings) NotificationOption {
	return func(s *NotificationService) {
		s.fanout = fanout
		s.push = settings
	}
}

// NotificationService manages notification records for users.
type NotificationService struct {
	db     *gorm.DB
	hub    NotificationBroadcaster
	fanout PushFanout
	push   PushSettings
	log    *zap.Logger
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(db *gorm.DB, hub NotificationBroadcaster, opts ...NotificationOption) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	svc := &NotificationService{db: db, hub: hub, log: logger.WithModule("notifications")}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// ListForUser returns the user's own and broadcast notifications ordered by recency.
func (s *NotificationService) ListForUser(ctx context.Context, input ListNotificationsInput) ([]NotificationDTO, int64, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, 0, errors.New("notification service: user id is required")
	}

	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	query := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? OR user_id IS NULL", userID)
	if input.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("notification service: count notifications: %w", err)
	}

	var rows []models.Notification
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(max(0, input.Offset)).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("notification service: list notifications: %w", err)
	}

	return mapNotificationRows(rows), total, nil
}

// Create persists a notification, broadcasts it and hands push-channel records to fan-out.
// Fan-out failures are logged and never returned.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)
	notificationType := strings.TrimSpace(input.Type)
	if notificationType == "" {
		return nil, apperrors.NewValidation("notification type is required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidation("notification title is required")
	}

	channel := strings.ToLower(defaultIfEmpty(strings.TrimSpace(input.Channel), models.ChannelPush))
	switch channel {
	case models.ChannelPush, models.ChannelInApp, models.ChannelEmail:
	default:
		return nil, apperrors.NewValidation(fmt.Sprintf("unsupported channel %q", input.Channel))
	}

	notification := models.Notification{
		UserID:  stringPtr(input.UserID),
		Type:    notificationType,
		Title:   title,
		Message: strings.TrimSpace(input.Message),
		Channel: channel,
	}

	data, err := encodeJSON(input.Data)
	if err != nil {
		return nil, fmt.Errorf("notification service: marshal data: %w", err)
	}
	notification.Data = data

	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", err)
	}

	dto := mapNotification(notification)
	s.broadcast(notification.UserID, "notification.created", &NotificationEventPayload{
		Notification: &dto,
	})

	if s.fanout != nil && notification.Channel == models.ChannelPush {
		if _, err := s.fanout.Handle(ctx, notification, s.push); err != nil {
			s.log.Warn("push fan-out failed",
				zap.String("notification_id", notification.ID),
				zap.Error(err),
			)
		}
	}
	return &dto, nil
}

// MarkRead sets the notification read flag for a user.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)
	notification, err := s.loadOwned(ctx, userID, notificationID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(&notification).
		Updates(map[string]any{
			"is_read": true,
			"read_at": now,
		}).Error; err != nil {
		return nil, fmt.Errorf("notification service: mark read: %w", err)
	}

	notification.IsRead = true
	notification.ReadAt = &now
	dto := mapNotification(notification)

	s.broadcast(notification.UserID, "notification.read", &NotificationEventPayload{
		Notification:   &dto,
		NotificationID: notification.ID,
	})
	return &dto, nil
}

// MarkUnread unsets the notification read flag.
func (s *NotificationService) MarkUnread(ctx context.Context, userID, notificationID string) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)
	notification, err := s.loadOwned(ctx, userID, notificationID)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&notification).
		Updates(map[string]any{
			"is_read": false,
			"read_at": nil,
		}).Error; err != nil {
		return nil, fmt.Errorf("notification service: mark unread: %w", err)
	}

	notification.IsRead = false
	notification.ReadAt = nil
	dto := mapNotification(notification)

	s.broadcast(notification.UserID, "notification.updated", &NotificationEventPayload{
		Notification:   &dto,
		NotificationID: notification.ID,
	})
	return &dto, nil
}

// Delete removes a notification owned by the supplied user. Broadcasts cannot be deleted
// by individual users.
func (s *NotificationService) Delete(ctx context.Context, userID, notificationID string) error {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return fmt.Errorf("notification service: delete notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	s.broadcast(&userID, "notification.deleted", &NotificationEventPayload{
		NotificationID: notificationID,
	})
	return nil
}

// MarkAllRead marks all notifications owned by the user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	ctx = ensureContext(ctx)
	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": now,
		}).Error; err != nil {
		return fmt.Errorf("notification service: mark all read: %w", err)
	}

	s.broadcast(&userID, "notification.read_all", nil)
	return nil
}

func (s *NotificationService) loadOwned(ctx context.Context, userID, notificationID string) (models.Notification, error) {
	var notification models.Notification
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		First(&notification).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notification, apperrors.ErrNotFound
		}
		return notification, fmt.Errorf("notification service: load notification: %w", err)
	}
	return notification, nil
}

func (s *NotificationService) broadcast(userID *string, event string, payload *NotificationEventPayload) {
	if s.hub == nil {
		return
	}
	message := realtime.Message{
		Stream: realtime.StreamNotifications,
		Event:  event,
	}
	if payload != nil {
		message.Data = payload
	}
	if userID == nil {
		s.hub.BroadcastStream(realtime.StreamNotifications, message)
		return
	}
	s.hub.BroadcastToUser(realtime.StreamNotifications, *userID, message)
}

func mapNotificationRows(rows []models.Notification) []NotificationDTO {
	items := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapNotification(row))
	}
	return items
}

func mapNotification(row models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        row.ID,
		UserID:    row.UserID,
		Type:      row.Type,
		Title:     row.Title,
		Message:   row.Message,
		Data:      decodeJSON(row.Data),
		Channel:   row.Channel,
		IsRead:    row.IsRead,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
		ReadAt:    row.ReadAt,
	}
}
