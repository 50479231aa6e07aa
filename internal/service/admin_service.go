package service

import (
	"context"
	"log/slog"
	"strings"

	"forgegate/internal/middleware"
	"forgegate/internal/models"
	"forgegate/internal/notifications"
	"forgegate/internal/repository"
)

// AdminService handles approval and denial decisions.
type AdminService struct {
	requestRepo repository.RequestRepository
	actionRepo  repository.AdminActionRepository
	provisioner *Provisioner
	notifier    *notifications.Notifier
	logger      *slog.Logger

	// provisionAsync launches provisioning after an approval commits.
	// Replaced in tests to run synchronously.
	provisionAsync func(ctx context.Context, requestID uint)
}

// NewAdminService returns a new AdminService.
func NewAdminService(
	requestRepo repository.RequestRepository,
	actionRepo repository.AdminActionRepository,
	provisioner *Provisioner,
	notifier *notifications.Notifier,
) *AdminService {
	s := &AdminService{
		requestRepo: requestRepo,
		actionRepo:  actionRepo,
		provisioner: provisioner,
		notifier:    notifier,
		logger:      middleware.Logger.With(slog.String("component", "admin_service")),
	}
	s.provisionAsync = func(ctx context.Context, requestID uint) {
		// Provisioning outlives the HTTP request that approved it.
		go func() {
			bg := context.WithoutCancel(ctx)
			if err := s.provisioner.Provision(bg, requestID); err != nil {
				s.logger.Error("provisioning run failed",
					slog.Uint64("request_id", uint64(requestID)),
					slog.String("error", err.Error()))
			}
		}()
	}
	return s
}

// Approve commits the approval decision and kicks off provisioning. A
// request that is no longer pending surfaces a conflict so the admin
// sees the race rather than a silent no-op.
func (s *AdminService) Approve(ctx context.Context, adminID string, requestID uint) (*models.Request, error) {
	err := s.requestRepo.UpdateStatus(ctx, requestID,
		models.RequestStatusPending, models.RequestStatusApproved,
		map[string]interface{}{"admin_id": adminID})
	if err != nil {
		return nil, err
	}

	if err := s.actionRepo.Append(ctx, &models.AdminAction{
		RequestID: requestID,
		AdminID:   adminID,
		Action:    models.AdminActionApprove,
	}); err != nil {
		s.logger.ErrorContext(ctx, "audit append failed",
			slog.Uint64("request_id", uint64(requestID)),
			slog.String("error", err.Error()))
	}

	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "request approved",
		slog.Uint64("request_id", uint64(requestID)),
		slog.String("admin_id", adminID))
	s.notifier.NotifyRequester(ctx, request, "request.approved", "")
	s.notifier.NotifyAdmins(ctx, request, "request.approved", "")

	s.provisionAsync(ctx, requestID)
	return request, nil
}

// Deny commits a denial. The reason is mandatory and is relayed to the
// requester verbatim.
func (s *AdminService) Deny(ctx context.Context, adminID string, requestID uint, reason string) (*models.Request, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, models.NewValidationError("a denial reason is required")
	}

	err := s.requestRepo.UpdateStatus(ctx, requestID,
		models.RequestStatusPending, models.RequestStatusDenied,
		map[string]interface{}{
			"admin_id":        adminID,
			"decision_reason": reason,
		})
	if err != nil {
		return nil, err
	}

	if err := s.actionRepo.Append(ctx, &models.AdminAction{
		RequestID: requestID,
		AdminID:   adminID,
		Action:    models.AdminActionDeny,
		Reason:    reason,
	}); err != nil {
		s.logger.ErrorContext(ctx, "audit append failed",
			slog.Uint64("request_id", uint64(requestID)),
			slog.String("error", err.Error()))
	}

	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "request denied",
		slog.Uint64("request_id", uint64(requestID)),
		slog.String("admin_id", adminID))
	s.notifier.NotifyRequester(ctx, request, "request.denied", reason)
	s.notifier.NotifyAdmins(ctx, request, "request.denied", reason)
	return request, nil
}

// AuditTrail returns the decision history for a request, oldest first.
func (s *AdminService) AuditTrail(ctx context.Context, requestID uint) ([]models.AdminAction, error) {
	if _, err := s.requestRepo.GetByID(ctx, requestID); err != nil {
		return nil, err
	}
	return s.actionRepo.ListByRequest(ctx, requestID)
}
