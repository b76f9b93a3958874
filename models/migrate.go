package models

import "gorm.io/gorm"

// Migrate runs all database migrations
func Migrate(db *gorm.DB) error {
	if err := MigrateUserModels(db); err != nil {
		return err
	}
	if err := MigrateAlertModels(db); err != nil {
		return err
	}
	return MigrateNotificationModels(db)
}
