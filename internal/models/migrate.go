package models

import (
	"gorm.io/gorm"
)

// Migrate creates or updates the mirror tables. The subscriptions table is
// owned by the billing service and is not migrated here.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Server{},
		&Inbound{},
		&Client{},
		&SyncLog{},
	)
}
