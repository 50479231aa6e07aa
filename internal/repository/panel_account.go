package repository

import (
	"context"
	"errors"

	"forgegate/internal/models"

	"gorm.io/gorm"
)

// PanelAccountRepository tracks panel-side accounts created for requesters.
// One row per owner; the row is the idempotency record for the account
// provisioning step.
type PanelAccountRepository interface {
	GetByOwner(ctx context.Context, ownerID string) (*models.PanelAccount, error)
	Record(ctx context.Context, account *models.PanelAccount) error
}

// panelAccountRepository implements PanelAccountRepository
type panelAccountRepository struct {
	db *gorm.DB
}

// NewPanelAccountRepository creates a new panel account repository
func NewPanelAccountRepository(db *gorm.DB) PanelAccountRepository {
	return &panelAccountRepository{db: db}
}

// GetByOwner returns the recorded account for ownerID, or nil when none exists.
func (r *panelAccountRepository) GetByOwner(ctx context.Context, ownerID string) (*models.PanelAccount, error) {
	var account models.PanelAccount
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewStoreError(err)
	}
	return &account, nil
}

// Record persists the owner-to-account mapping. FirstOrCreate keeps concurrent
// recordings of the same owner from failing on the unique index.
func (r *panelAccountRepository) Record(ctx context.Context, account *models.PanelAccount) error {
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", account.OwnerID).
		FirstOrCreate(account).Error; err != nil {
		return models.NewStoreError(err)
	}
	return nil
}
