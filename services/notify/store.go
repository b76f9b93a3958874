package notify

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"market_pulse_backend/models"
)

// ErrNotFound is returned when a notification does not exist for the owner
var ErrNotFound = errors.New("notification not found")

const defaultListLimit = 50

// ListOptions narrows an inbox listing
type ListOptions struct {
	UnreadOnly bool
	Limit      int
}

// Store keeps in-app notifications
type Store interface {
	Create(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, ownerID string, opts ListOptions) ([]models.Notification, error)
	UnreadCount(ctx context.Context, ownerID string) (int64, error)
	MarkRead(ctx context.Context, ownerID, id string) error
	MarkAllRead(ctx context.Context, ownerID string) (int64, error)
}

func listLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return defaultListLimit
	}
	return limit
}

// GormStore keeps notifications in the relational database
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(ctx context.Context, n *models.Notification) error {
	return s.db.WithContext(ctx).Create(n).Error
}

func (s *GormStore) List(ctx context.Context, ownerID string, opts ListOptions) ([]models.Notification, error) {
	query := s.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if opts.UnreadOnly {
		query = query.Where("read = ?", false)
	}
	var items []models.Notification
	err := query.Order("created_at DESC").Limit(listLimit(opts.Limit)).Find(&items).Error
	return items, err
}

func (s *GormStore) UnreadCount(ctx context.Context, ownerID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("owner_id = ? AND read = ?", ownerID, false).
		Count(&count).Error
	return count, err
}

func (s *GormStore) MarkRead(ctx context.Context, ownerID, id string) error {
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Update("read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) MarkAllRead(ctx context.Context, ownerID string) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("owner_id = ? AND read = ?", ownerID, false).
		Update("read", true)
	return result.RowsAffected, result.Error
}
