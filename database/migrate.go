package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yeremiapane/kitchen-display/models"
	"github.com/yeremiapane/kitchen-display/utils"
)

// Migrate membuat tabel order, item dan outbox db_changes.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Order{},
		&models.OrderItem{},
		&models.DBChange{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}

	// Verifikasi outbox
	var pending int64
	if err := db.Model(&models.DBChange{}).Where("processed = ?", false).Count(&pending).Error; err != nil {
		return fmt.Errorf("verify outbox: %w", err)
	}
	utils.InfoLogger.WithField("pending_changes", pending).Info("migration completed")
	return nil
}
