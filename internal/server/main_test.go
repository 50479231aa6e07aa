package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"forgegate/internal/config"
	"forgegate/internal/database"
	"forgegate/internal/models"
	"forgegate/internal/panel"

	"github.com/gofiber/fiber/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:                 "8460",
		Env:                  "test",
		JWTSecret:            "test-secret",
		MaxPendingPerUser:    3,
		RequestTimeout:       24 * time.Hour,
		SweepInterval:        time.Hour,
		ProvisionStepTimeout: time.Second,
		ProvisionRetries:     1,
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(database.PersistentModels()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}

// stubPanel is a panel.API that always succeeds.
type stubPanel struct {
	failStart bool
}

func (p *stubPanel) EnsureAccount(context.Context, string, string) (panel.Account, error) {
	return panel.Account{Ref: "acct-1", Created: true}, nil
}
func (p *stubPanel) ResetUserPassword(context.Context, string, string) error { return nil }
func (p *stubPanel) AssignRole(context.Context, string, string) error  { return nil }
func (p *stubPanel) RevokeRole(context.Context, string, string) error  { return nil }
func (p *stubPanel) CreateInstance(context.Context, string, models.GameTemplate) (string, error) {
	return "inst-1", nil
}
func (p *stubPanel) StartInstance(context.Context, string) error {
	if p.failStart {
		return &panel.Error{Op: "ADSModule/StartInstance", Status: 400, Message: "rejected"}
	}
	return nil
}
func (p *stubPanel) DeleteInstance(context.Context, string) error { return nil }

// setupTestServer builds a Server over in-memory sqlite and an app with
// routes registered behind a locals-injecting shim instead of JWT auth.
func setupTestServer(t *testing.T) (*Server, *fiber.App, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)

	s, err := NewServerWithDeps(testConfig(), db, nil, &stubPanel{})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	app := fiber.New()
	return s, app, db
}

// fiberAppWith builds an app exposing the admin approve route as an
// admin caller, for tests that need their own Server wiring.
func fiberAppWith(s *Server) *fiber.App {
	app := fiber.New()
	app.Post("/admin/requests/:id/approve", asUser("admin-1", "", true), s.ApproveRequest)
	return app
}

// asUser registers a pre-handler that injects the given identity.
func asUser(actor, name string, admin bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("actorID", actor)
		c.Locals("actorName", name)
		c.Locals("isAdmin", admin)
		return c.Next()
	}
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode body %q: %v", raw, err)
	}
}

func seedStoredRequest(t *testing.T, db *gorm.DB, requesterID, game string, status models.RequestStatus) *models.Request {
	t.Helper()
	req := &models.Request{
		PublicRef:   "ref-" + requesterID + "-" + game,
		RequesterID: requesterID,
		GameName:    game,
		Status:      status,
	}
	if err := db.Create(req).Error; err != nil {
		t.Fatalf("seed request: %v", err)
	}
	return req
}
