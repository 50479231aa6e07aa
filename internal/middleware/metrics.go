package middleware

import (
	"sync"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Domain metrics. HTTP-level metrics come from fiberprometheus; these track
// the request lifecycle and the orchestrator's interaction with the panel.
var (
	RequestsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forgegate_requests_created_total",
		Help: "Requests accepted by admission control.",
	})
	AdmissionRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forgegate_admission_rejections_total",
		Help: "Requests refused by admission control, by reason code.",
	}, []string{"reason"})
	RequestTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forgegate_request_transitions_total",
		Help: "Committed request status transitions.",
	}, []string{"to"})
	TransitionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forgegate_transition_conflicts_total",
		Help: "Compare-and-set transition attempts lost to a concurrent winner.",
	})
	ProvisionSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forgegate_provision_steps_total",
		Help: "Provisioning step attempts, by step and outcome.",
	}, []string{"step", "outcome"})
	CompensationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forgegate_compensation_runs_total",
		Help: "Compensation actions executed after a permanent step failure.",
	}, []string{"action", "outcome"})
	RequestsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forgegate_requests_expired_total",
		Help: "Pending requests expired by the sweeper.",
	})
	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forgegate_notification_failures_total",
		Help: "Outcome notifications that could not be published.",
	})
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forgegate_redis_errors_total",
		Help: "Redis command errors, by command.",
	}, []string{"command"})
)

var (
	promOnce     sync.Once
	promInstance *fiberprometheus.FiberPrometheus
)

// InitMetrics creates the fiberprometheus middleware for HTTP-level
// metrics. The instance is shared: fiberprometheus registers on the
// default registry, so building it twice would collide.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		promInstance = fiberprometheus.New(serviceName)
	})
	return promInstance
}

// MetricsMiddleware wires the fiberprometheus middleware into the app chain.
func MetricsMiddleware(prom *fiberprometheus.FiberPrometheus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return prom.Middleware(c)
	}
}
