package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Direction is the side of the target an alert watches
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// ParseDirection validates a direction value
func ParseDirection(value string) (Direction, bool) {
	switch Direction(strings.ToLower(strings.TrimSpace(value))) {
	case DirectionAbove:
		return DirectionAbove, true
	case DirectionBelow:
		return DirectionBelow, true
	}
	return "", false
}

// ErrNoChannel is returned when every notification channel is disabled
var ErrNoChannel = errors.New("at least one notification channel must be enabled")

// NotificationChannels holds the delivery preferences of an alert
type NotificationChannels struct {
	Email bool `gorm:"column:notify_email" json:"email"`
	InApp bool `gorm:"column:notify_in_app" json:"in_app"`
}

// NewNotificationChannels builds a preference set with at least one channel enabled
func NewNotificationChannels(email, inApp bool) (NotificationChannels, error) {
	if !email && !inApp {
		return NotificationChannels{}, ErrNoChannel
	}
	return NotificationChannels{Email: email, InApp: inApp}, nil
}

// Alert is a user-defined price threshold.
// Triggered is terminal: once set the alert is never evaluated again.
type Alert struct {
	ID                   string               `gorm:"primaryKey;size:36" json:"id"`
	OwnerID              string               `gorm:"size:64;not null;index" json:"owner_id"`
	AssetClass           AssetClass           `gorm:"size:16;not null;index:idx_alert_asset" json:"asset_class"`
	AssetID              string               `gorm:"size:64;not null;index:idx_alert_asset" json:"asset_id"`
	AssetName            string               `json:"asset_name"`
	AssetSymbol          string               `gorm:"size:32" json:"asset_symbol"`
	Direction            Direction            `gorm:"size:8;not null" json:"direction"`
	TargetPrice          decimal.Decimal      `gorm:"type:decimal(24,8);not null" json:"target_price"`
	LastObservedPrice    decimal.NullDecimal  `gorm:"type:decimal(24,8)" json:"last_observed_price"`
	IsActive             bool                 `gorm:"index:idx_alert_state" json:"is_active"`
	Triggered            bool                 `gorm:"index:idx_alert_state" json:"triggered"`
	TriggeredAt          *time.Time           `json:"triggered_at"`
	NotificationChannels NotificationChannels `gorm:"embedded" json:"notification_channels"`
	LastCheckedAt        *time.Time           `json:"last_checked_at"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

// BeforeCreate assigns an id when the caller did not
func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Crossed applies the inclusive crossing rule against price
func (a Alert) Crossed(price decimal.Decimal) bool {
	switch a.Direction {
	case DirectionAbove:
		return price.GreaterThanOrEqual(a.TargetPrice)
	case DirectionBelow:
		return price.LessThanOrEqual(a.TargetPrice)
	}
	return false
}

// Evaluable reports whether the engine should still look at this alert
func (a Alert) Evaluable() bool {
	return a.IsActive && !a.Triggered
}

// AssetKey groups alerts that share one price lookup
type AssetKey struct {
	Class AssetClass
	ID    string
}

// Key returns the price lookup key of the alert
func (a Alert) Key() AssetKey {
	return AssetKey{Class: a.AssetClass, ID: a.AssetID}
}

// MigrateAlertModels runs database migrations for alerts
func MigrateAlertModels(db *gorm.DB) error {
	return db.AutoMigrate(&Alert{})
}
