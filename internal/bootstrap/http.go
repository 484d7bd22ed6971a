package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"

	"github.com/target/jobqueue/config"
	httpx "github.com/target/jobqueue/internal/http"
)

// httpShutdownTimeout bounds how long in-flight requests may take to drain.
const httpShutdownTimeout = 10 * time.Second

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// StartHTTPServer creates and starts the HTTP server.
// Returns the server instance for graceful shutdown. Serve errors are sent on errCh.
func StartHTTPServer(cfg *HTTPServerConfig, errCh chan<- error) (*http.Server, error) {
	if cfg == nil {
		return nil, errors.New("http server config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler := httpx.NewRouter(buildRouterServices(appCfg, cfg.Services, logger))
	return startServer(serverConfig{
		Logger:  logger,
		Handler: handler,
		HTTP:    appCfg.HTTP,
		ErrCh:   errCh,
	})
}

func buildRouterServices(cfg *config.AppConfig, svcs ServiceContainer, logger *slog.Logger) httpx.RouterServices {
	services := httpx.RouterServices{
		Auth:         svcs.Auth,
		Admission:    svcs.Admission,
		Queries:      svcs.Queries,
		Retention:    svcs.Retention,
		CookieDomain: cfg.HTTP.CookieDomain,
		Throttle: httpx.ThrottleConfig{
			RPS:    cfg.Auth.ThrottleRPS,
			Burst:  cfg.Auth.ThrottleBurst,
			Logger: logger,
		},
		Readiness: readinessChecks(svcs),
		Logger:    logger,
	}
	// A nil *JobEvents must not become a non-nil interface.
	if svcs.Events != nil {
		services.Events = svcs.Events
	}
	return services
}

// readinessChecks covers the stores a submission touches: the job table and
// the dispatch queue.
func readinessChecks(svcs ServiceContainer) []httpx.ReadinessCheck {
	var checks []httpx.ReadinessCheck
	if svcs.Jobs != nil && svcs.Jobs.DB != nil {
		db := svcs.Jobs.DB
		checks = append(checks, httpx.ReadinessCheck{
			Name: "job_store",
			Check: func(ctx context.Context) (any, error) {
				return nil, db.PingContext(ctx)
			},
		})
	}
	if svcs.Queue != nil {
		queue := svcs.Queue
		checks = append(checks, httpx.ReadinessCheck{
			Name: "dispatch_queue",
			Check: func(ctx context.Context) (any, error) {
				depth, err := queue.Depth(ctx)
				if err != nil {
					return nil, err
				}
				return depth, nil
			},
		})
	}
	return checks
}

type serverConfig struct {
	Logger  *slog.Logger
	Handler http.Handler
	HTTP    config.HTTPConfig
	ErrCh   chan<- error
}

func startServer(cfg serverConfig) (*http.Server, error) {
	addr := cfg.HTTP.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           cfg.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	if cfg.HTTP.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.HTTP.MaxConnections)
	}

	go func() {
		cfg.Logger.Info("starting HTTP server", "addr", ln.Addr().String(), "max_connections", cfg.HTTP.MaxConnections)
		if serveErr := server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			cfg.Logger.Error("HTTP server failed", "error", serveErr)
			if cfg.ErrCh != nil {
				select {
				case cfg.ErrCh <- fmt.Errorf("http server: %w", serveErr):
				default:
				}
			}
		}
	}()

	return server, nil
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	parent := cfg.Context
	if parent == nil {
		parent = context.Background()
	}
	shutdownCtx, cancel := context.WithTimeout(parent, httpShutdownTimeout)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
