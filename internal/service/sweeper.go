package service

import (
	"context"
	"log/slog"
	"time"

	"forgegate/internal/middleware"
	"forgegate/internal/models"
	"forgegate/internal/notifications"
	"forgegate/internal/repository"
)

// Sweeper expires pending requests that aged out before an admin
// decided. It runs as a background loop alongside the server.
type Sweeper struct {
	requestRepo repository.RequestRepository
	notifier    *notifications.Notifier
	maxAge      time.Duration
	interval    time.Duration
	logger      *slog.Logger

	now func() time.Time
}

// NewSweeper returns a Sweeper expiring pending requests older than
// maxAge, checked every interval.
func NewSweeper(requestRepo repository.RequestRepository, notifier *notifications.Notifier, maxAge, interval time.Duration) *Sweeper {
	return &Sweeper{
		requestRepo: requestRepo,
		notifier:    notifier,
		maxAge:      maxAge,
		interval:    interval,
		logger:      middleware.Logger.With(slog.String("component", "sweeper")),
		now:         time.Now,
	}
}

// Run blocks until ctx is cancelled, sweeping on each tick. One sweep
// runs immediately on start so a restart does not delay overdue
// expirations by a full interval.
func (s *Sweeper) Run(ctx context.Context) {
	if n, err := s.Sweep(ctx); err != nil {
		s.logger.Error("sweep failed", slog.String("error", err.Error()))
	} else if n > 0 {
		s.logger.Info("initial sweep expired requests", slog.Int("count", n))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.Sweep(ctx); err != nil {
				s.logger.Error("sweep failed", slog.String("error", err.Error()))
			} else if n > 0 {
				s.logger.Info("sweep expired requests", slog.Int("count", n))
			}
		}
	}
}

// Sweep expires overdue pending requests once and returns how many it
// moved. A request decided while the sweep is running loses the race
// cleanly: the compare-and-set refuses and the sweep moves on.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	pending, err := s.requestRepo.ListByStatus(ctx, models.RequestStatusPending)
	if err != nil {
		return 0, err
	}

	expired := 0
	now := s.now()
	for i := range pending {
		request := &pending[i]
		if request.Age(now) < s.maxAge {
			continue
		}

		err := s.requestRepo.UpdateStatus(ctx, request.ID,
			models.RequestStatusPending, models.RequestStatusExpired,
			map[string]interface{}{"decision_reason": "no decision within the review window"})
		if err != nil {
			if appErr, ok := err.(*models.AppError); ok && appErr.Code == "CONFLICT" {
				continue
			}
			s.logger.ErrorContext(ctx, "expire failed",
				slog.Uint64("request_id", uint64(request.ID)),
				slog.String("error", err.Error()))
			continue
		}

		expired++
		middleware.RequestsExpired.Inc()
		request.Status = models.RequestStatusExpired
		request.DecisionReason = "no decision within the review window"
		s.notifier.NotifyRequester(ctx, request, "request.expired", request.DecisionReason)
	}
	return expired, nil
}
