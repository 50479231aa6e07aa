// Package server contains the HTTP handlers for the request lifecycle API.
package server

import (
	"context"
	"fmt"
	"time"

	"forgegate/internal/cache"
	"forgegate/internal/config"
	"forgegate/internal/database"
	"forgegate/internal/middleware"
	"forgegate/internal/models"
	"forgegate/internal/notifications"
	"forgegate/internal/panel"
	"forgegate/internal/repository"
	"forgegate/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	promMiddleware *fiberprometheus.FiberPrometheus

	requestRepo repository.RequestRepository
	actionRepo  repository.AdminActionRepository
	accountRepo repository.PanelAccountRepository

	catalog  *models.GameCatalog
	notifier *notifications.Notifier

	requestService *service.RequestService
	adminService   *service.AdminService
	provisioner    *service.Provisioner
	sweeper        *service.Sweeper
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	redisClient := cache.GetClient()

	panelAPI := panel.NewClient(cfg.PanelURL(), cfg.PanelUsername, cfg.PanelPassword, cfg.ProvisionStepTimeout)

	return NewServerWithDeps(cfg, db, redisClient, panelAPI)
}

// NewServerWithDeps creates a Server using already-initialized
// dependencies. Use this in tests or when a bootstrap layer establishes
// DB/Redis and the panel connection.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, panelAPI panel.API) (*Server, error) {
	requestRepo := repository.NewRequestRepository(db)
	actionRepo := repository.NewAdminActionRepository(db)
	accountRepo := repository.NewPanelAccountRepository(db)

	prom := middleware.InitMetrics("forgegate-api")

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: prom,
		requestRepo:    requestRepo,
		actionRepo:     actionRepo,
		accountRepo:    accountRepo,
		catalog:        models.DefaultGameCatalog(),
		notifier:       notifications.NewNotifier(redisClient),
	}

	gate := service.NewAdmissionGate(requestRepo, cfg.MaxPendingPerUser)
	server.requestService = service.NewRequestService(requestRepo, gate, server.catalog, server.notifier)
	server.provisioner = service.NewProvisioner(requestRepo, accountRepo, panelAPI,
		server.catalog, server.notifier, cfg.ProvisionStepTimeout, cfg.ProvisionRetries)
	server.adminService = service.NewAdminService(requestRepo, actionRepo, server.provisioner, server.notifier)
	server.sweeper = service.NewSweeper(requestRepo, server.notifier, cfg.RequestTimeout, cfg.SweepInterval)

	return server, nil
}

// Sweeper exposes the expiry loop so the bootstrap layer can run it.
func (s *Server) Sweeper() *service.Sweeper {
	return s.sweeper
}

// Shutdown releases server-held resources after the HTTP listener has
// stopped accepting connections.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			firstErr = err
		}
	}
	if sqlDB, err := s.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.StructuredLogger())

	// CORS runs before middlewares that can short-circuit so gateway
	// clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting per client IP.
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Forgegate Metrics Dashboard",
	}))

	// Public catalog browse
	api.Get("/games", s.GetGames)

	protected := api.Group("", middleware.AuthRequired)

	requests := protected.Group("/requests")
	requests.Post("/", middleware.RateLimit(
		s.redis, 5, time.Minute, "create_request"), s.CreateRequest)
	requests.Get("/me", s.GetMyRequests)
	requests.Post("/:id/cancel", s.CancelRequest)
	requests.Get("/:id", s.GetRequest)

	admin := protected.Group("/admin", middleware.AdminRequired)
	adminRequests := admin.Group("/requests")
	adminRequests.Get("/pending", s.GetPendingRequests)
	adminRequests.Post("/:id/approve", s.ApproveRequest)
	adminRequests.Post("/:id/deny", s.DenyRequest)
	adminRequests.Get("/:id/audit", s.GetRequestAudit)
	admin.Put("/templates/:game", s.UpdateGameTemplate)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		// Notifications degrade without Redis but the API still works.
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}
