// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"errors"

	"forgegate/internal/middleware"
	"forgegate/internal/models"

	"gorm.io/gorm"
)

// RequestRepository defines the interface for request data operations.
// UpdateStatus is the single mutation path for request status: a
// compare-and-set gated by the transition table.
type RequestRepository interface {
	Create(ctx context.Context, request *models.Request) error
	GetByID(ctx context.Context, id uint) (*models.Request, error)
	ListByStatus(ctx context.Context, status models.RequestStatus) ([]models.Request, error)
	ListByRequester(ctx context.Context, requesterID string, limit int) ([]models.Request, error)
	CountActive(ctx context.Context, requesterID string) (int64, error)
	HasActiveForGame(ctx context.Context, requesterID, gameName string) (bool, error)
	UpdateStatus(ctx context.Context, id uint, expected, next models.RequestStatus, fields map[string]interface{}) error
}

// requestRepository implements RequestRepository
type requestRepository struct {
	db *gorm.DB
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) Create(ctx context.Context, request *models.Request) error {
	if err := r.db.WithContext(ctx).Create(request).Error; err != nil {
		return models.NewStoreError(err)
	}
	return nil
}

func (r *requestRepository) GetByID(ctx context.Context, id uint) (*models.Request, error) {
	var request models.Request
	if err := r.db.WithContext(ctx).First(&request, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Request", id)
		}
		return nil, models.NewStoreError(err)
	}
	return &request, nil
}

func (r *requestRepository) ListByStatus(ctx context.Context, status models.RequestStatus) ([]models.Request, error) {
	var requests []models.Request
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&requests).Error; err != nil {
		return nil, models.NewStoreError(err)
	}
	return requests, nil
}

func (r *requestRepository) ListByRequester(ctx context.Context, requesterID string, limit int) ([]models.Request, error) {
	var requests []models.Request
	q := r.db.WithContext(ctx).
		Where("requester_id = ?", requesterID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&requests).Error; err != nil {
		return nil, models.NewStoreError(err)
	}
	return requests, nil
}

func (r *requestRepository) CountActive(ctx context.Context, requesterID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Request{}).
		Where("requester_id = ? AND status IN ?", requesterID, models.ActiveStatuses()).
		Count(&count).Error; err != nil {
		return 0, models.NewStoreError(err)
	}
	return count, nil
}

func (r *requestRepository) HasActiveForGame(ctx context.Context, requesterID, gameName string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Request{}).
		Where("requester_id = ? AND game_name = ? AND status IN ?",
			requesterID, gameName, models.ActiveStatuses()).
		Count(&count).Error; err != nil {
		return false, models.NewStoreError(err)
	}
	return count > 0, nil
}

// UpdateStatus performs the compare-and-set transition expected→next. The
// update commits only when the stored status still equals expected; a lost
// race yields a Conflict error, an illegal pair an InvalidTransition error.
// Extra fields (decision reason, admin id, panel refs) commit atomically with
// the status.
func (r *requestRepository) UpdateStatus(ctx context.Context, id uint, expected, next models.RequestStatus, fields map[string]interface{}) error {
	if err := models.ValidateTransition(expected, next); err != nil {
		return err
	}

	updates := map[string]interface{}{"status": next}
	for k, v := range fields {
		updates[k] = v
	}

	res := r.db.WithContext(ctx).
		Model(&models.Request{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return models.NewStoreError(res.Error)
	}

	if res.RowsAffected == 0 {
		// Either the row is gone or another caller won the race; re-read to
		// tell the two apart.
		var current models.Request
		if err := r.db.WithContext(ctx).First(&current, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("Request", id)
			}
			return models.NewStoreError(err)
		}
		middleware.TransitionConflicts.Inc()
		return models.NewConflictError(id)
	}

	middleware.RequestTransitions.WithLabelValues(string(next)).Inc()
	return nil
}
