package service

import (
	"context"
	"sort"
	"sync"

	"forgegate/internal/models"
	"forgegate/internal/notifications"
	"forgegate/internal/panel"
)

// memRequestRepo is an in-memory RequestRepository with the same
// compare-and-set semantics as the real store.
type memRequestRepo struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]*models.Request

	// failCountActive injects a store error into CountActive.
	failCountActive error
	// failGetByID injects a store error into GetByID.
	failGetByID error
}

func newMemRequestRepo() *memRequestRepo {
	return &memRequestRepo{rows: make(map[uint]*models.Request)}
}

func (m *memRequestRepo) Create(_ context.Context, request *models.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	request.ID = m.nextID
	clone := *request
	m.rows[request.ID] = &clone
	return nil
}

func (m *memRequestRepo) GetByID(_ context.Context, id uint) (*models.Request, error) {
	if m.failGetByID != nil {
		return nil, m.failGetByID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, models.NewNotFoundError("Request", id)
	}
	clone := *row
	return &clone, nil
}

func (m *memRequestRepo) ListByStatus(_ context.Context, status models.RequestStatus) ([]models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Request
	for _, row := range m.rows {
		if row.Status == status {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRequestRepo) ListByRequester(_ context.Context, requesterID string, limit int) ([]models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Request
	for _, row := range m.rows {
		if row.RequesterID == requesterID {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRequestRepo) CountActive(_ context.Context, requesterID string) (int64, error) {
	if m.failCountActive != nil {
		return 0, m.failCountActive
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, row := range m.rows {
		if row.RequesterID == requesterID && row.Status.IsActive() {
			n++
		}
	}
	return n, nil
}

func (m *memRequestRepo) HasActiveForGame(_ context.Context, requesterID, gameName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.RequesterID == requesterID && row.GameName == gameName && row.Status.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRequestRepo) UpdateStatus(_ context.Context, id uint, expected, next models.RequestStatus, fields map[string]interface{}) error {
	if err := models.ValidateTransition(expected, next); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return models.NewNotFoundError("Request", id)
	}
	if row.Status != expected {
		return models.NewConflictError(id)
	}
	row.Status = next
	for k, v := range fields {
		switch k {
		case "decision_reason":
			row.DecisionReason = v.(string)
		case "admin_id":
			adminID := v.(string)
			row.AdminID = &adminID
		case "panel_account_ref":
			row.PanelAccountRef = v.(string)
		case "panel_instance_ref":
			row.PanelInstanceRef = v.(string)
		}
	}
	return nil
}

type actionRepoStub struct {
	mu      sync.Mutex
	actions []models.AdminAction

	appendFn func(context.Context, *models.AdminAction) error
}

func (s *actionRepoStub) Append(ctx context.Context, action *models.AdminAction) error {
	if s.appendFn != nil {
		return s.appendFn(ctx, action)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	action.ID = uint(len(s.actions) + 1)
	s.actions = append(s.actions, *action)
	return nil
}

func (s *actionRepoStub) ListByRequest(_ context.Context, requestID uint) ([]models.AdminAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AdminAction
	for _, a := range s.actions {
		if a.RequestID == requestID {
			out = append(out, a)
		}
	}
	return out, nil
}

type accountRepoStub struct {
	mu       sync.Mutex
	accounts map[string]*models.PanelAccount
	recordFn func(context.Context, *models.PanelAccount) error
}

func newAccountRepoStub() *accountRepoStub {
	return &accountRepoStub{accounts: make(map[string]*models.PanelAccount)}
}

func (s *accountRepoStub) GetByOwner(_ context.Context, ownerID string) (*models.PanelAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[ownerID]
	if !ok {
		return nil, nil
	}
	clone := *acct
	return &clone, nil
}

func (s *accountRepoStub) Record(ctx context.Context, account *models.PanelAccount) error {
	if s.recordFn != nil {
		return s.recordFn(ctx, account)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.accounts[account.OwnerID]; ok {
		*account = *existing
		return nil
	}
	account.ID = uint(len(s.accounts) + 1)
	clone := *account
	s.accounts[account.OwnerID] = &clone
	return nil
}

// panelStub implements panel.API with per-call hooks and a call log.
type panelStub struct {
	mu    sync.Mutex
	calls []string

	ensureAccountFn  func(ctx context.Context, ownerID, username string) (panel.Account, error)
	resetPasswordFn  func(ctx context.Context, username, password string) error
	assignRoleFn     func(ctx context.Context, accountRef, role string) error
	revokeRoleFn     func(ctx context.Context, accountRef, role string) error
	createInstanceFn func(ctx context.Context, accountRef string, tmpl models.GameTemplate) (string, error)
	startInstanceFn  func(ctx context.Context, instanceRef string) error
	deleteInstanceFn func(ctx context.Context, instanceRef string) error
}

func newPanelStub() *panelStub {
	return &panelStub{
		ensureAccountFn: func(context.Context, string, string) (panel.Account, error) {
			return panel.Account{Ref: "acct-1", Created: true}, nil
		},
		resetPasswordFn: func(context.Context, string, string) error { return nil },
		assignRoleFn:    func(context.Context, string, string) error { return nil },
		revokeRoleFn:    func(context.Context, string, string) error { return nil },
		createInstanceFn: func(context.Context, string, models.GameTemplate) (string, error) {
			return "inst-1", nil
		},
		startInstanceFn:  func(context.Context, string) error { return nil },
		deleteInstanceFn: func(context.Context, string) error { return nil },
	}
}

func (s *panelStub) record(call string) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}

func (s *panelStub) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *panelStub) EnsureAccount(ctx context.Context, ownerID, username string) (panel.Account, error) {
	s.record("EnsureAccount")
	return s.ensureAccountFn(ctx, ownerID, username)
}

func (s *panelStub) ResetUserPassword(ctx context.Context, username, password string) error {
	s.record("ResetUserPassword")
	return s.resetPasswordFn(ctx, username, password)
}

func (s *panelStub) AssignRole(ctx context.Context, accountRef, role string) error {
	s.record("AssignRole")
	return s.assignRoleFn(ctx, accountRef, role)
}

func (s *panelStub) RevokeRole(ctx context.Context, accountRef, role string) error {
	s.record("RevokeRole")
	return s.revokeRoleFn(ctx, accountRef, role)
}

func (s *panelStub) CreateInstance(ctx context.Context, accountRef string, tmpl models.GameTemplate) (string, error) {
	s.record("CreateInstance")
	return s.createInstanceFn(ctx, accountRef, tmpl)
}

func (s *panelStub) StartInstance(ctx context.Context, instanceRef string) error {
	s.record("StartInstance")
	return s.startInstanceFn(ctx, instanceRef)
}

func (s *panelStub) DeleteInstance(ctx context.Context, instanceRef string) error {
	s.record("DeleteInstance")
	return s.deleteInstanceFn(ctx, instanceRef)
}

var _ panel.API = (*panelStub)(nil)

func silentNotifier() *notifications.Notifier {
	return notifications.NewNotifier(nil)
}

func transientPanelErr(op string) error {
	return &panel.Error{Op: op, Status: 502, Message: "bad gateway", Transient: true}
}

func permanentPanelErr(op string) error {
	return &panel.Error{Op: op, Status: 400, Message: "rejected"}
}
