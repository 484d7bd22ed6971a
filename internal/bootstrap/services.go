package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/jobqueue/config"
	redisadapter "github.com/target/jobqueue/internal/adapters/redis"
	"github.com/target/jobqueue/internal/data"
	"github.com/target/jobqueue/internal/observability/statsd"
	"github.com/target/jobqueue/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs          *data.JobRepo
	Users         *data.UserRepo
	Queue         *redisadapter.JobQueue
	Events        *redisadapter.JobEvents
	Auth          *service.AuthService
	Admission     *service.AdmissionService
	Queries       *service.JobQueryService
	Retention     *service.RetentionService
	Executor      *service.ExecutorService
	Observability ObservabilityContainer
}

// Close releases resources owned by the container.
func (c ServiceContainer) Close() error {
	if c.Observability.client != nil {
		return c.Observability.client.Close()
	}
	return nil
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// MetricsSink is nil when metrics are disabled.
	MetricsSink   statsd.Sink
	MetricsConfig config.ObservabilityMetricsConfig
	client        *statsd.Client
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures the metrics sink.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	out := ObservabilityContainer{MetricsConfig: cfg.Metrics}
	if !cfg.Metrics.IsEnabled() {
		return out
	}

	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.Metrics.StatsdAddress,
		Prefix:  cfg.Metrics.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return out
	}
	out.client = client
	out.MetricsSink = client
	return out
}

// NewServices wires repositories, Redis adapters and domain services.
// The auth service is only built when the HTTP service is enabled.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database connection is required")
	}
	if deps.RedisClient == nil {
		return ServiceContainer{}, errors.New("redis client is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	c := ServiceContainer{
		Jobs:          data.NewJobRepo(deps.DB, data.RepoConfig{Logger: logger}),
		Users:         data.NewUserRepo(deps.DB, data.RepoConfig{Logger: logger}),
		Observability: buildObservability(logger, cfg.Observability),
	}

	if err := buildRedisAdapters(&c, deps.RedisClient, cfg, logger); err != nil {
		return ServiceContainer{}, err
	}
	if err := buildJobServices(&c, deps.RedisClient, cfg, logger); err != nil {
		return ServiceContainer{}, err
	}

	if cfg.IsHTTPServerEnabled() {
		auth, err := BuildAuthService(ctx, AuthConfig{
			Auth:        cfg.Auth,
			IsDev:       cfg.IsDev,
			RedisClient: deps.RedisClient,
			Users:       c.Users,
			Logger:      logger,
		})
		if err != nil {
			return ServiceContainer{}, err
		}
		c.Auth = auth
	}

	return c, nil
}

func buildRedisAdapters(c *ServiceContainer, client redis.UniversalClient, cfg *config.AppConfig, logger *slog.Logger) error {
	queue, err := redisadapter.NewJobQueue(redisadapter.JobQueueOptions{
		Client: client,
		Key:    cfg.Jobs.QueueKey,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("create job queue: %w", err)
	}
	events, err := redisadapter.NewJobEvents(redisadapter.JobEventsOptions{
		Client: client,
		Prefix: cfg.Jobs.EventsChannelPrefix,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("create job events: %w", err)
	}
	c.Queue = queue
	c.Events = events
	return nil
}

func buildJobServices(c *ServiceContainer, client redis.UniversalClient, cfg *config.AppConfig, logger *slog.Logger) error {
	limiter, err := redisadapter.NewFixedWindowLimiter(redisadapter.FixedWindowLimiterOptions{
		Client: client,
		Limit:  int64(cfg.RateLimit.Requests),
		Window: cfg.RateLimit.Window,
		Prefix: cfg.RateLimit.KeyPrefix,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("create rate limiter: %w", err)
	}

	sink := c.Observability.MetricsSink

	if c.Admission, err = service.NewAdmissionService(service.AdmissionServiceOptions{
		Limiter:        limiter,
		Repo:           c.Jobs,
		Dispatcher:     c.Queue,
		Events:         c.Events,
		MaxInputLength: cfg.Jobs.MaxInputLength,
		Logger:         logger,
		Metrics:        sink,
	}); err != nil {
		return fmt.Errorf("create admission service: %w", err)
	}

	if c.Queries, err = service.NewJobQueryService(service.JobQueryServiceOptions{
		Repo:     c.Jobs,
		PageSize: cfg.Jobs.PageSize,
		Logger:   logger,
	}); err != nil {
		return fmt.Errorf("create job query service: %w", err)
	}

	if c.Retention, err = service.NewRetentionService(service.RetentionServiceOptions{
		Repo:          c.Jobs,
		DefaultWindow: cfg.Retention.Window,
		BatchSize:     cfg.Retention.BatchSize,
		Logger:        logger,
		Metrics:       sink,
	}); err != nil {
		return fmt.Errorf("create retention service: %w", err)
	}

	if c.Executor, err = service.NewExecutorService(service.ExecutorServiceOptions{
		Repo:          c.Jobs,
		Events:        c.Events,
		SimulatedCost: cfg.Worker.SimulatedCost,
		Logger:        logger,
		Metrics:       sink,
	}); err != nil {
		return fmt.Errorf("create executor service: %w", err)
	}

	return nil
}

// ServiceOrchestrationConfig contains everything RunServicesWithShutdown needs.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) (*http.Server, error) {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil, nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	}, deps.errCh)
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil && ctx.Err() == nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			default:
				deps.logger.WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newWorkerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeWorker,
		name: "worker",
		start: func(ctx context.Context) error {
			return RunWorker(ctx, WorkerConfig{
				Queue:    deps.cfg.Services.Queue,
				Executor: deps.cfg.Services.Executor,
				Config:   deps.cfg.Config.Worker,
				Logger:   deps.logger,
			})
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			return RunReaper(ctx, ReaperConfig{
				Repo:       deps.cfg.Services.Jobs,
				Dispatcher: deps.cfg.Services.Queue,
				Logger:     deps.logger,
				Config:     deps.cfg.Config.Reaper,
				Retention:  deps.cfg.Config.Retention,
				Metrics:    deps.cfg.Services.Observability.MetricsSink,
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newWorkerBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	deps := &serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	}
	server, err := startHTTPServerIfEnabled(deps)
	if err != nil {
		return err
	}
	backgrounds := startBackgroundServices(deps, buildBackgroundServices(deps))

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  server,
		logger:      logger,
		backgrounds: backgrounds,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		return gracefulStop(cfg)
	case <-cfg.ctx.Done():
		cfg.logger.Info("context canceled, shutting down services...")
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop drains HTTP first so no new jobs are admitted, then cancels
// background services and waits for them.
func gracefulStop(cfg shutdownConfig) error {
	var httpErr error
	if cfg.httpServer != nil {
		httpErr = ShutdownHTTPServer(ShutdownConfig{
			Context: context.WithoutCancel(cfg.ctx),
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		})
	}

	cfg.cancel()
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return httpErr
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
