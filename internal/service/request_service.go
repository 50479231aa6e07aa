package service

import (
	"context"
	"log/slog"
	"strings"

	"forgegate/internal/middleware"
	"forgegate/internal/models"
	"forgegate/internal/notifications"
	"forgegate/internal/repository"

	"github.com/google/uuid"
)

// RequestService handles the requester-facing side of the lifecycle.
type RequestService struct {
	requestRepo repository.RequestRepository
	gate        *AdmissionGate
	catalog     *models.GameCatalog
	notifier    *notifications.Notifier
	logger      *slog.Logger
}

// NewRequestService returns a new RequestService.
func NewRequestService(
	requestRepo repository.RequestRepository,
	gate *AdmissionGate,
	catalog *models.GameCatalog,
	notifier *notifications.Notifier,
) *RequestService {
	return &RequestService{
		requestRepo: requestRepo,
		gate:        gate,
		catalog:     catalog,
		notifier:    notifier,
		logger:      middleware.Logger.With(slog.String("component", "request_service")),
	}
}

// CreateRequest validates the game, applies admission control and opens
// a pending request.
func (s *RequestService) CreateRequest(ctx context.Context, requesterID, requesterName, gameName string) (*models.Request, error) {
	if strings.TrimSpace(requesterID) == "" {
		return nil, models.NewValidationError("requester id is required")
	}

	tmpl, ok := s.catalog.Get(gameName)
	if !ok {
		return nil, models.NewValidationError("unknown game: " + gameName)
	}

	request := &models.Request{
		PublicRef:     uuid.NewString(),
		RequesterID:   requesterID,
		RequesterName: requesterName,
		GameName:      tmpl.Name,
		Status:        models.RequestStatusPending,
	}

	err := s.gate.Admit(ctx, requesterID, tmpl.Name, func(ctx context.Context) error {
		return s.requestRepo.Create(ctx, request)
	})
	if err != nil {
		return nil, err
	}

	middleware.RequestsCreated.Inc()
	s.logger.InfoContext(ctx, "request opened",
		slog.Uint64("request_id", uint64(request.ID)),
		slog.String("requester_id", requesterID),
		slog.String("game", tmpl.Name))
	s.notifier.NotifyAdmins(ctx, request, "request.opened", "")
	return request, nil
}

// CancelRequest withdraws the caller's own pending request. Only the
// requester may cancel, and only before a decision has been made.
func (s *RequestService) CancelRequest(ctx context.Context, requesterID string, requestID uint) (*models.Request, error) {
	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.RequesterID != requesterID {
		return nil, models.NewUnauthorizedError("you can only cancel your own requests")
	}

	err = s.requestRepo.UpdateStatus(ctx, requestID, models.RequestStatusPending, models.RequestStatusCancelled, nil)
	if err != nil {
		return nil, err
	}

	request, err = s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "request cancelled",
		slog.Uint64("request_id", uint64(requestID)),
		slog.String("requester_id", requesterID))
	s.notifier.NotifyAdmins(ctx, request, "request.cancelled", "")
	return request, nil
}

// GetStatus returns a single request visible to the caller. Requesters
// see only their own requests; admins see everything.
func (s *RequestService) GetStatus(ctx context.Context, callerID string, isAdmin bool, requestID uint) (*models.Request, error) {
	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && request.RequesterID != callerID {
		return nil, models.NewNotFoundError("Request", requestID)
	}
	return request, nil
}

// MyRequests lists the caller's most recent requests.
func (s *RequestService) MyRequests(ctx context.Context, requesterID string, limit int) ([]models.Request, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	return s.requestRepo.ListByRequester(ctx, requesterID, limit)
}

// ListPending returns the admin review queue, oldest first.
func (s *RequestService) ListPending(ctx context.Context) ([]models.Request, error) {
	return s.requestRepo.ListByStatus(ctx, models.RequestStatusPending)
}

// Games lists the requestable games.
func (s *RequestService) Games() []models.GameTemplate {
	return s.catalog.List()
}
