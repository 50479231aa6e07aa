package database

import (
	"fmt"
	"log/slog"

	"forgegate/internal/middleware"

	"gorm.io/gorm"
)

// AutoMigrate brings the schema up to date for all registered models.
func AutoMigrate(db *gorm.DB) error {
	models := PersistentModels()
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrate schema: %w", err)
	}
	middleware.Logger.Info("schema migrated", slog.Int("models", len(models)))
	return nil
}
