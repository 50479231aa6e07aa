package repository

import (
	"context"

	"forgegate/internal/models"

	"gorm.io/gorm"
)

// AdminActionRepository defines the interface for the append-only admin audit log.
type AdminActionRepository interface {
	Append(ctx context.Context, action *models.AdminAction) error
	ListByRequest(ctx context.Context, requestID uint) ([]models.AdminAction, error)
}

// adminActionRepository implements AdminActionRepository
type adminActionRepository struct {
	db *gorm.DB
}

// NewAdminActionRepository creates a new admin action repository
func NewAdminActionRepository(db *gorm.DB) AdminActionRepository {
	return &adminActionRepository{db: db}
}

func (r *adminActionRepository) Append(ctx context.Context, action *models.AdminAction) error {
	if err := r.db.WithContext(ctx).Create(action).Error; err != nil {
		return models.NewStoreError(err)
	}
	return nil
}

func (r *adminActionRepository) ListByRequest(ctx context.Context, requestID uint) ([]models.AdminAction, error) {
	var actions []models.AdminAction
	if err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at ASC").
		Find(&actions).Error; err != nil {
		return nil, models.NewStoreError(err)
	}
	return actions, nil
}
