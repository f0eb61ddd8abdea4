package models

// WorkerProfile is the dispatch-relevant snapshot of a worker. Profile CRUD lives elsewhere;
// this core only reads it.
type WorkerProfile struct {
	BaseModel

	UserID      string   `gorm:"type:varchar(36);uniqueIndex;not null" json:"user_id"`
	DisplayName string   `gorm:"type:varchar(255)" json:"display_name"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	IsAvailable bool     `gorm:"not null;default:false;index" json:"is_available"`
	Rating      float64  `gorm:"not null;default:0" json:"rating"`

	Services []WorkerService `gorm:"foreignKey:WorkerID" json:"services,omitempty"`
}

// WorkerService links a worker to a service they offer.
type WorkerService struct {
	WorkerID  string `gorm:"primaryKey;type:varchar(36)" json:"worker_id"`
	ServiceID string `gorm:"primaryKey;type:varchar(36)" json:"service_id"`
}
