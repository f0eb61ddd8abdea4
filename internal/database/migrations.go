package database

import (
	"gorm.io/gorm"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.WorkerProfile{},
		&models.WorkerService{},
		&models.EmergencyRequest{},
		&models.DispatchLog{},
		&models.Notification{},
		&models.Device{},
		&models.OutgoingPush{},
		&models.QueuedTask{},
		&models.TimelineEvent{},
		&models.CacheEntry{},
	)
}
