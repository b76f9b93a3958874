package alerts

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"market_pulse_backend/models"
)

// Filter narrows an owner's alert listing; nil/empty fields match everything
type Filter struct {
	Active     *bool
	Triggered  *bool
	AssetClass models.AssetClass
	AssetID    string
}

// OwnerUpdate holds the fields an owner may change while an alert is untriggered
type OwnerUpdate struct {
	TargetPrice *decimal.Decimal
	IsActive    *bool
	Channels    *models.NotificationChannels
}

// Repository persists alerts
type Repository interface {
	Create(ctx context.Context, alert *models.Alert) error
	Get(ctx context.Context, ownerID, id string) (*models.Alert, error)
	List(ctx context.Context, ownerID string, filter Filter) ([]models.Alert, error)
	FindActiveEquivalents(ctx context.Context, alert models.Alert) ([]models.Alert, error)
	UpdateOwned(ctx context.Context, ownerID, id string, update OwnerUpdate) error
	Delete(ctx context.Context, ownerID, id string) error
	DeleteTriggered(ctx context.Context, ownerID string) (int64, error)
	DeleteTriggeredBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// ListEvaluable returns every alert that is active and not yet triggered
	ListEvaluable(ctx context.Context) ([]models.Alert, error)
	// MarkTriggered flips an untriggered alert to triggered. It reports false
	// when the alert was already triggered (or deleted) by someone else.
	MarkTriggered(ctx context.Context, id string, price decimal.Decimal, at time.Time) (bool, error)
	// RecordCheck stores the latest observed price of an untriggered alert
	RecordCheck(ctx context.Context, id string, price decimal.Decimal, at time.Time) error
}

// GormRepository is the SQL backed Repository
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Create(ctx context.Context, alert *models.Alert) error {
	return r.db.WithContext(ctx).Create(alert).Error
}

func (r *GormRepository) Get(ctx context.Context, ownerID, id string) (*models.Alert, error) {
	var alert models.Alert
	err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&alert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &alert, nil
}

func (r *GormRepository) List(ctx context.Context, ownerID string, filter Filter) ([]models.Alert, error) {
	query := r.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if filter.Active != nil {
		query = query.Where("is_active = ?", *filter.Active)
	}
	if filter.Triggered != nil {
		query = query.Where("triggered = ?", *filter.Triggered)
	}
	if filter.AssetClass != "" {
		query = query.Where("asset_class = ?", filter.AssetClass)
	}
	if filter.AssetID != "" {
		query = query.Where("asset_id = ?", filter.AssetID)
	}

	var alerts []models.Alert
	if err := query.Order("created_at DESC").Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

func (r *GormRepository) FindActiveEquivalents(ctx context.Context, alert models.Alert) ([]models.Alert, error) {
	var alerts []models.Alert
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND asset_class = ? AND asset_id = ? AND direction = ?",
			alert.OwnerID, alert.AssetClass, alert.AssetID, alert.Direction).
		Where("is_active = ? AND triggered = ?", true, false).
		Find(&alerts).Error
	return alerts, err
}

func (r *GormRepository) UpdateOwned(ctx context.Context, ownerID, id string, update OwnerUpdate) error {
	values := map[string]interface{}{}
	if update.TargetPrice != nil {
		values["target_price"] = *update.TargetPrice
	}
	if update.IsActive != nil {
		values["is_active"] = *update.IsActive
	}
	if update.Channels != nil {
		values["notify_email"] = update.Channels.Email
		values["notify_in_app"] = update.Channels.InApp
	}
	if len(values) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).Model(&models.Alert{}).
		Where("id = ? AND owner_id = ? AND triggered = ?", id, ownerID, false).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.Get(ctx, ownerID, id); err != nil {
			return err
		}
		return ErrAlreadyTriggered
	}
	return nil
}

func (r *GormRepository) Delete(ctx context.Context, ownerID, id string) error {
	result := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).Delete(&models.Alert{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepository) DeleteTriggered(ctx context.Context, ownerID string) (int64, error) {
	result := r.db.WithContext(ctx).Where("owner_id = ? AND triggered = ?", ownerID, true).Delete(&models.Alert{})
	return result.RowsAffected, result.Error
}

func (r *GormRepository) DeleteTriggeredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("triggered = ? AND triggered_at < ?", true, cutoff).
		Delete(&models.Alert{})
	return result.RowsAffected, result.Error
}

func (r *GormRepository) ListEvaluable(ctx context.Context) ([]models.Alert, error) {
	var alerts []models.Alert
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND triggered = ?", true, false).
		Order("created_at").
		Find(&alerts).Error
	return alerts, err
}

func (r *GormRepository) MarkTriggered(ctx context.Context, id string, price decimal.Decimal, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Alert{}).
		Where("id = ? AND triggered = ?", id, false).
		Updates(map[string]interface{}{
			"triggered":           true,
			"triggered_at":        at,
			"last_observed_price": price,
			"last_checked_at":     at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *GormRepository) RecordCheck(ctx context.Context, id string, price decimal.Decimal, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Alert{}).
		Where("id = ? AND triggered = ?", id, false).
		Updates(map[string]interface{}{
			"last_observed_price": price,
			"last_checked_at":     at,
		}).Error
}
