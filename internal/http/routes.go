package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/target/jobqueue/internal/core"
	domainauth "github.com/target/jobqueue/internal/domain/auth"
	apperrors "github.com/target/jobqueue/internal/errors"
	"github.com/target/jobqueue/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth      *service.AuthService
	Admission *service.AdmissionService
	Queries   *service.JobQueryService
	Retention *service.RetentionService
	// Optional: live job events over websocket. The route is not registered when nil.
	Events core.JobEventSubscriber
	// Optional: per-IP throttle for credential endpoints. Zero RPS disables it.
	Throttle ThrottleConfig
	// Optional: dependency checks served on /readyz.
	Readiness []ReadinessCheck
	// Optional: ping interval for event streams, defaults to 30s.
	EventPingInterval time.Duration
	CookieDomain      string
	Logger            *slog.Logger // Logger for HTTP errors (optional)
}

// NewRouter creates and configures the HTTP API router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	requireAuth := RequireAuth(services.Auth, logger)
	requireAdmin := RequireRole(domainauth.RoleAdmin, logger)
	throttle := NewIPThrottle(ThrottleConfig{
		RPS:    services.Throttle.RPS,
		Burst:  services.Throttle.Burst,
		Idle:   services.Throttle.Idle,
		Now:    services.Throttle.Now,
		Logger: logger,
	})

	authHandlers := &AuthHandlers{Svc: services.Auth, CookieDomain: services.CookieDomain, Logger: logger}
	registerAuthRoutes(mux, authHandlers, routeGuards{auth: requireAuth, throttle: throttle.Middleware})

	jobHandlers := &JobHandlers{
		Admission: services.Admission,
		Queries:   services.Queries,
		Retention: services.Retention,
		Logger:    logger,
	}
	registerJobRoutes(mux, jobHandlers, requireAuth, requireAdmin)

	if services.Events != nil {
		eventHandlers := NewEventHandlers(EventHandlersOptions{
			Subscriber:   services.Events,
			PingInterval: services.EventPingInterval,
			Logger:       logger,
		})
		mux.Handle("GET /jobs/events", requireAuth(http.HandlerFunc(eventHandlers.Stream)))
	}

	health := &HealthHandlers{Checks: services.Readiness, Logger: logger}
	mux.Handle("GET /{$}", http.HandlerFunc(health.Live))
	mux.Handle("GET /healthz", http.HandlerFunc(health.Live))
	mux.Handle("HEAD /healthz", http.HandlerFunc(health.Live))
	mux.Handle("GET /readyz", http.HandlerFunc(health.Ready))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		RenderError(w, r, logger, apperrors.NotFound("route not found"))
	})

	return Recover(logger)(Logging(logger)(mux))
}

type routeGuards struct {
	auth     func(http.Handler) http.Handler
	throttle func(http.Handler) http.Handler
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers, g routeGuards) {
	mux.Handle("POST /auth/register", g.throttle(http.HandlerFunc(h.Register)))
	mux.Handle("POST /auth/login", g.throttle(http.HandlerFunc(h.Login)))
	mux.Handle("POST /auth/logout", g.auth(http.HandlerFunc(h.Logout)))
	mux.Handle("GET /auth/me", g.auth(http.HandlerFunc(h.Me)))
	mux.Handle("GET /auth/sso/login", g.throttle(http.HandlerFunc(h.SSOLogin)))
	mux.Handle("GET /auth/sso/callback", g.throttle(http.HandlerFunc(h.SSOCallback)))
}

func registerJobRoutes(
	mux *http.ServeMux,
	h *JobHandlers,
	requireAuth, requireAdmin func(http.Handler) http.Handler,
) {
	mux.Handle("POST /jobs", requireAuth(http.HandlerFunc(h.Submit)))
	mux.Handle("GET /jobs/stats", requireAuth(http.HandlerFunc(h.Stats)))
	mux.Handle("GET /jobs/{id}/status", requireAuth(http.HandlerFunc(h.Status)))
	mux.Handle("GET /jobs/{id}/result", requireAuth(http.HandlerFunc(h.Result)))
	mux.Handle("GET /jobs/{status}/{page}", requireAuth(http.HandlerFunc(h.List)))
	mux.Handle("POST /admin/jobs/cleanup", requireAuth(requireAdmin(http.HandlerFunc(h.Cleanup))))
}
