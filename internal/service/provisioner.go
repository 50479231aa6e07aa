package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"forgegate/internal/middleware"
	"forgegate/internal/models"
	"forgegate/internal/notifications"
	"forgegate/internal/observability"
	"forgegate/internal/panel"
	"forgegate/internal/repository"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
)

// Provisioner executes the panel steps for an approved request. Each
// request is claimed exactly once through the approved to provisioning
// compare-and-set, so it is safe to hand the same request to several
// workers.
type Provisioner struct {
	requestRepo repository.RequestRepository
	accountRepo repository.PanelAccountRepository
	panel       panel.API
	catalog     *models.GameCatalog
	notifier    *notifications.Notifier
	stepTimeout time.Duration
	maxRetries  uint64
	logger      *slog.Logger
}

// NewProvisioner returns a new Provisioner. stepTimeout bounds each
// panel call attempt, maxRetries bounds retries per step on transient
// failures.
func NewProvisioner(
	requestRepo repository.RequestRepository,
	accountRepo repository.PanelAccountRepository,
	panelAPI panel.API,
	catalog *models.GameCatalog,
	notifier *notifications.Notifier,
	stepTimeout time.Duration,
	maxRetries int,
) *Provisioner {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Provisioner{
		requestRepo: requestRepo,
		accountRepo: accountRepo,
		panel:       panelAPI,
		catalog:     catalog,
		notifier:    notifier,
		stepTimeout: stepTimeout,
		maxRetries:  uint64(maxRetries),
		logger:      middleware.Logger.With(slog.String("component", "provisioner")),
	}
}

// Provision claims the request and drives it to a terminal state. A
// lost claim (someone else already took it) is not an error.
func (p *Provisioner) Provision(ctx context.Context, requestID uint) error {
	err := p.requestRepo.UpdateStatus(ctx, requestID,
		models.RequestStatusApproved, models.RequestStatusProvisioning, nil)
	if err != nil {
		if appErr, ok := err.(*models.AppError); ok && appErr.Code == "CONFLICT" {
			p.logger.InfoContext(ctx, "request already claimed",
				slog.Uint64("request_id", uint64(requestID)))
			return nil
		}
		return err
	}

	request, err := p.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		// The claim committed, so the request must still reach a
		// terminal state; nothing retries a stuck provisioning row.
		p.failClaimed(ctx, requestID, "could not load request after claim: "+err.Error())
		return err
	}

	tmpl, ok := p.catalog.Get(request.GameName)
	if !ok {
		// The game was removed from the catalog between approval and
		// provisioning. Nothing to compensate.
		return p.fail(ctx, request, nil, "game no longer available: "+request.GameName)
	}

	state := &provisionState{}
	if err := p.runSteps(ctx, request, tmpl, state); err != nil {
		reason := err.Error()
		if failed := p.compensate(ctx, request, tmpl, state); len(failed) > 0 {
			reason += "; compensation failed: " + strings.Join(failed, "; ")
		}
		return p.fail(ctx, request, state, reason)
	}
	return p.complete(ctx, request, state)
}

// provisionState tracks which steps committed, for compensation and
// for the credentials handed over on completion.
type provisionState struct {
	accountRef     string
	accountCreated bool
	credentials    *notifications.Credentials
	roleGranted    bool
	instanceRef    string
	started        bool
}

func (p *Provisioner) runSteps(ctx context.Context, request *models.Request, tmpl models.GameTemplate, state *provisionState) error {
	username := panelUsername(request)

	// A previously recorded account short-circuits the panel lookup.
	recorded, err := p.accountRepo.GetByOwner(ctx, request.RequesterID)
	if err != nil {
		return fmt.Errorf("look up account: %w", err)
	}
	if recorded != nil && recorded.AccountRef != "" {
		state.accountRef = recorded.AccountRef
		p.logger.InfoContext(ctx, "reusing recorded panel account",
			slog.String("owner_id", request.RequesterID),
			slog.String("account_ref", recorded.AccountRef))
	} else {
		err := p.step(ctx, "ensure_account", func(ctx context.Context) error {
			acct, err := p.panel.EnsureAccount(ctx, request.RequesterID, username)
			if err != nil {
				return err
			}
			state.accountRef = acct.Ref
			if acct.Created {
				state.accountCreated = true
			}
			// A brand-new account has no usable password yet. Issue one
			// exactly once, even if a later attempt of this step finds
			// the account already existing.
			if state.accountCreated && state.credentials == nil {
				password, err := generatePassword()
				if err != nil {
					return err
				}
				if err := p.panel.ResetUserPassword(ctx, username, password); err != nil {
					return err
				}
				state.credentials = &notifications.Credentials{
					Username: username,
					Password: password,
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("ensure account: %w", err)
		}
		if err := p.accountRepo.Record(ctx, &models.PanelAccount{
			OwnerID:    request.RequesterID,
			Username:   username,
			AccountRef: state.accountRef,
		}); err != nil {
			return fmt.Errorf("record account: %w", err)
		}
	}

	err = p.step(ctx, "assign_role", func(ctx context.Context) error {
		if err := p.panel.AssignRole(ctx, state.accountRef, tmpl.DefaultRole); err != nil {
			return err
		}
		state.roleGranted = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}

	err = p.step(ctx, "create_instance", func(ctx context.Context) error {
		ref, err := p.panel.CreateInstance(ctx, state.accountRef, tmpl)
		if err != nil {
			return err
		}
		state.instanceRef = ref
		return nil
	})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}

	err = p.step(ctx, "start_instance", func(ctx context.Context) error {
		if err := p.panel.StartInstance(ctx, state.instanceRef); err != nil {
			return err
		}
		state.started = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("start instance: %w", err)
	}
	return nil
}

// step runs one panel step, retrying transient failures with
// exponential backoff. Permanent failures abort immediately.
func (p *Provisioner) step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := observability.Tracer.Start(ctx, "provision."+name)
	span.SetAttributes(attribute.String("provision.step", name))
	defer span.End()

	attempt := func() error {
		stepCtx, cancel := context.WithTimeout(ctx, p.stepTimeout)
		defer cancel()
		if err := fn(stepCtx); err != nil {
			if panel.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.maxRetries), ctx)

	err := backoff.RetryNotify(attempt, policy, func(err error, next time.Duration) {
		middleware.ProvisionSteps.WithLabelValues(name, "retry").Inc()
		p.logger.WarnContext(ctx, "panel step failed, retrying",
			slog.String("step", name),
			slog.Duration("backoff", next),
			slog.String("error", err.Error()))
	})
	if err != nil {
		middleware.ProvisionSteps.WithLabelValues(name, "failure").Inc()
		span.RecordError(err)
		return err
	}
	middleware.ProvisionSteps.WithLabelValues(name, "success").Inc()
	return nil
}

// compensate undoes committed panel work in reverse order. A failed
// action does not stop the remaining ones; each failure is returned so
// it ends up in the recorded failure reason for manual admin follow-up.
// The panel account is deliberately left in place; it is reused by
// later requests from the same owner.
func (p *Provisioner) compensate(ctx context.Context, request *models.Request, tmpl models.GameTemplate, state *provisionState) []string {
	var failed []string
	if state.instanceRef != "" {
		if err := p.compensateAction(ctx, "delete_instance", func(ctx context.Context) error {
			return p.panel.DeleteInstance(ctx, state.instanceRef)
		}); err != nil {
			failed = append(failed, "delete_instance: "+err.Error())
		}
	}
	if state.roleGranted {
		if err := p.compensateAction(ctx, "revoke_role", func(ctx context.Context) error {
			return p.panel.RevokeRole(ctx, state.accountRef, tmpl.DefaultRole)
		}); err != nil {
			failed = append(failed, "revoke_role: "+err.Error())
		}
	}
	return failed
}

func (p *Provisioner) compensateAction(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	actionCtx, cancel := context.WithTimeout(ctx, p.stepTimeout)
	defer cancel()

	err := fn(actionCtx)
	if err != nil && panel.IsTransient(err) {
		// One more try for flaky failures; anything beyond that is left
		// for operators.
		retryCtx, retryCancel := context.WithTimeout(ctx, p.stepTimeout)
		defer retryCancel()
		err = fn(retryCtx)
	}
	if err != nil {
		middleware.CompensationRuns.WithLabelValues(name, "failure").Inc()
		p.logger.ErrorContext(ctx, "compensation failed, manual cleanup needed",
			slog.String("action", name),
			slog.String("error", err.Error()))
		return err
	}
	middleware.CompensationRuns.WithLabelValues(name, "success").Inc()
	return nil
}

func (p *Provisioner) complete(ctx context.Context, request *models.Request, state *provisionState) error {
	err := p.requestRepo.UpdateStatus(ctx, request.ID,
		models.RequestStatusProvisioning, models.RequestStatusCompleted,
		map[string]interface{}{
			"panel_account_ref":  state.accountRef,
			"panel_instance_ref": state.instanceRef,
		})
	if err != nil {
		return err
	}

	request.Status = models.RequestStatusCompleted
	request.PanelAccountRef = state.accountRef
	request.PanelInstanceRef = state.instanceRef
	p.logger.InfoContext(ctx, "provisioning completed",
		slog.Uint64("request_id", uint64(request.ID)),
		slog.String("instance_ref", state.instanceRef))
	p.notifier.NotifyProvisioned(ctx, request, state.credentials)
	return nil
}

func (p *Provisioner) fail(ctx context.Context, request *models.Request, state *provisionState, reason string) error {
	fields := map[string]interface{}{"decision_reason": reason}
	if state != nil && state.accountRef != "" {
		fields["panel_account_ref"] = state.accountRef
	}
	err := p.requestRepo.UpdateStatus(ctx, request.ID,
		models.RequestStatusProvisioning, models.RequestStatusProvisioningFailed, fields)
	if err != nil {
		return err
	}

	request.Status = models.RequestStatusProvisioningFailed
	request.DecisionReason = reason
	p.logger.ErrorContext(ctx, "provisioning failed",
		slog.Uint64("request_id", uint64(request.ID)),
		slog.String("reason", reason))
	p.notifier.NotifyRequester(ctx, request, "request.provisioning_failed", reason)
	return nil
}

// failClaimed best-effort terminates a claimed request that could not
// even be loaded. Without this the row would sit in provisioning with
// nothing left to move it.
func (p *Provisioner) failClaimed(ctx context.Context, requestID uint, reason string) {
	err := p.requestRepo.UpdateStatus(ctx, requestID,
		models.RequestStatusProvisioning, models.RequestStatusProvisioningFailed,
		map[string]interface{}{"decision_reason": reason})
	if err != nil {
		p.logger.ErrorContext(ctx, "could not mark claimed request failed, manual cleanup needed",
			slog.Uint64("request_id", uint64(requestID)),
			slog.String("reason", reason),
			slog.String("error", err.Error()))
		return
	}
	p.logger.ErrorContext(ctx, "provisioning failed",
		slog.Uint64("request_id", uint64(requestID)),
		slog.String("reason", reason))
}

const passwordCharset = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789!#%+-"

// generatePassword builds a random initial panel password. Ambiguous
// characters are left out of the charset since users retype these.
func generatePassword() (string, error) {
	buf := make([]byte, 16)
	max := big.NewInt(int64(len(passwordCharset)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		buf[i] = passwordCharset[n.Int64()]
	}
	return string(buf), nil
}

// panelUsername derives a stable panel username from the requester.
func panelUsername(request *models.Request) string {
	name := strings.ToLower(strings.TrimSpace(request.RequesterName))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
	name = strings.Trim(name, "_")
	if name == "" {
		name = "player"
	}
	if len(name) > 24 {
		name = name[:24]
	}
	return name + "_" + request.RequesterID
}
