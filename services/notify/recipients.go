package notify

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"market_pulse_backend/models"
)

// ErrNoRecipient means the owner has no deliverable email address
var ErrNoRecipient = errors.New("no email recipient for owner")

// Recipient is who an email notification goes to
type Recipient struct {
	Email string
	Name  string
}

// RecipientResolver maps an owner to an email recipient
type RecipientResolver interface {
	Resolve(ctx context.Context, ownerID string) (Recipient, error)
}

// UserDirectory resolves recipients from the users table
type UserDirectory struct {
	db *gorm.DB
}

func NewUserDirectory(db *gorm.DB) *UserDirectory {
	return &UserDirectory{db: db}
}

func (d *UserDirectory) Resolve(ctx context.Context, ownerID string) (Recipient, error) {
	var user models.User
	err := d.db.WithContext(ctx).Where("id = ?", ownerID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Recipient{}, fmt.Errorf("%w: %s", ErrNoRecipient, ownerID)
		}
		return Recipient{}, err
	}
	if !user.IsActive || user.Email == "" {
		return Recipient{}, fmt.Errorf("%w: %s", ErrNoRecipient, ownerID)
	}
	return Recipient{Email: user.Email, Name: user.FullName}, nil
}
