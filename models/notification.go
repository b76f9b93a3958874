package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification types
const (
	NotificationTypePriceAlert = "price_alert"
)

// Notification is a durable in-app message for one owner
type Notification struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id" bson:"_id"`
	OwnerID   string    `gorm:"size:64;not null;index" json:"owner_id" bson:"owner_id"`
	Type      string    `gorm:"size:32" json:"type" bson:"type"`
	Title     string    `json:"title" bson:"title"`
	Message   string    `json:"message" bson:"message"`
	AlertID   string    `gorm:"size:36;index" json:"alert_id,omitempty" bson:"alert_id,omitempty"`
	Read      bool      `json:"read" bson:"read"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// BeforeCreate assigns an id when the caller did not
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}

// MigrateNotificationModels runs database migrations for notifications
func MigrateNotificationModels(db *gorm.DB) error {
	return db.AutoMigrate(&Notification{})
}
