package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/models"
	apperrors "github.com/anandyadav-dev/HunarMitra-Backend/pkg/errors"
)

// DeviceDTO is the API view of a device registration.
type DeviceDTO struct {
	ID        string     `json:"id"`
	UserID    *string    `json:"user_id,omitempty"`
	Platform  string     `json:"platform"`
	IsActive  bool       `json:"is_active"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// RegisterDeviceInput registers or refreshes a push token.
type RegisterDeviceInput struct {
	UserID            string
	Platform          string
	RegistrationToken string
	Metadata          map[string]any
}

// DeviceService is the registration flow for push devices. Registering is the only path
// that marks a device active again.
type DeviceService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDeviceService constructs a DeviceService.
func NewDeviceService(db *gorm.DB) (*DeviceService, error) {
	if db == nil {
		return nil, errors.New("device service: db is required")
	}
	return &DeviceService{db: db, now: time.Now}, nil
}

// Register upserts a device by registration token.
func (s *DeviceService) Register(ctx context.Context, input RegisterDeviceInput) (*DeviceDTO, error) {
	ctx = ensureContext(ctx)
	token := strings.TrimSpace(input.RegistrationToken)
	if token == "" {
		return nil, apperrors.NewValidation("registration token is required")
	}
	platform := strings.ToLower(strings.TrimSpace(input.Platform))
	switch platform {
	case models.PlatformAndroid, models.PlatformIOS, models.PlatformWeb:
	default:
		return nil, apperrors.NewValidation(fmt.Sprintf("unsupported platform %q", input.Platform))
	}

	metadata, err := encodeJSON(input.Metadata)
	if err != nil {
		return nil, fmt.Errorf("device service: encode metadata: %w", err)
	}

	now := s.now().UTC()
	device := models.Device{
		UserID:            stringPtr(input.UserID),
		Platform:          platform,
		RegistrationToken: token,
		IsActive:          true,
		LastSeen:          &now,
		Metadata:          metadata,
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "registration_token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "platform", "is_active", "last_seen", "metadata", "updated_at"}),
	}).Create(&device).Error; err != nil {
		return nil, fmt.Errorf("device service: register device: %w", err)
	}

	var stored models.Device
	if err := s.db.WithContext(ctx).First(&stored, "registration_token = ?", token).Error; err != nil {
		return nil, fmt.Errorf("device service: reload device: %w", err)
	}
	dto := mapDevice(stored)
	return &dto, nil
}

// Unregister deactivates the device holding token.
func (s *DeviceService) Unregister(ctx context.Context, userID, token string) error {
	ctx = ensureContext(ctx)
	query := s.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("registration_token = ?", strings.TrimSpace(token))
	if userID != "" {
		query = query.Where("user_id = ? OR user_id IS NULL", userID)
	}
	result := query.Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("device service: unregister device: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFound("device not found")
	}
	return nil
}

// ListForUser returns the user's registered devices.
func (s *DeviceService) ListForUser(ctx context.Context, userID string) ([]DeviceDTO, error) {
	ctx = ensureContext(ctx)
	var rows []models.Device
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("device service: list devices: %w", err)
	}
	items := make([]DeviceDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapDevice(row))
	}
	return items, nil
}

func mapDevice(row models.Device) DeviceDTO {
	return DeviceDTO{
		ID:        row.ID,
		UserID:    row.UserID,
		Platform:  row.Platform,
		IsActive:  row.IsActive,
		LastSeen:  row.LastSeen,
		CreatedAt: row.CreatedAt,
	}
}
