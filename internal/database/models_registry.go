package database

import "forgegate/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.Request{},
		&models.AdminAction{},
		&models.PanelAccount{},
	}
}
