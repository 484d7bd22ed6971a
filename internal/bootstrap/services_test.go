package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/jobqueue/config"
)

func TestErrorChannelCapacity(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{
			name: "no services enabled",
			want: 0,
		},
		{
			name:  "http only",
			modes: []config.ServiceMode{config.ServiceModeHTTP},
			want:  1,
		},
		{
			name:  "worker and reaper",
			modes: []config.ServiceMode{config.ServiceModeWorker, config.ServiceModeReaper},
			want:  2,
		},
		{
			name:  "all services enabled",
			modes: config.ValidServiceModes(),
			want:  3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			if got := errorChannelCapacity(enabled); got != tt.want {
				t.Fatalf("errorChannelCapacity(%v) = %d, want %d", tt.modes, got, tt.want)
			}
			if got := errorChannelBufferSize(enabled); got != tt.want+1 {
				t.Fatalf("errorChannelBufferSize(%v) = %d, want %d", tt.modes, got, tt.want+1)
			}
		})
	}
}

func TestGetEnabledServices(t *testing.T) {
	cfg := &config.AppConfig{Services: "reaper, http,worker"}
	assert.Equal(t, []string{"http", "worker", "reaper"}, GetEnabledServices(cfg))

	assert.Empty(t, GetEnabledServices(&config.AppConfig{Services: "bogus"}))
	assert.Empty(t, GetEnabledServices(nil))
}

func TestValidateServiceConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.AppConfig
		wantErr string
	}{
		{name: "nil config", wantErr: "service config is required"},
		{name: "unknown service", cfg: &config.AppConfig{Services: "scheduler"}, wantErr: "invalid service configuration"},
		{name: "http without secret", cfg: &config.AppConfig{Services: "http"}, wantErr: "AUTH_JWT_SECRET"},
		{name: "http without secret in dev", cfg: &config.AppConfig{Services: "http", IsDev: true}},
		{name: "worker needs no secret", cfg: &config.AppConfig{Services: "worker,reaper"}},
		{
			name:    "http with short secret",
			cfg:     &config.AppConfig{Services: "http", Auth: config.AuthConfig{JWTSecret: "s"}},
			wantErr: "at least 32 bytes",
		},
		{
			name: "http with secret",
			cfg:  &config.AppConfig{Services: "http", Auth: config.AuthConfig{JWTSecret: testJWTSecret}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServiceConfig(tt.cfg)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestApplyLogLevel(t *testing.T) {
	t.Cleanup(func() { ApplyLogLevel("info") })

	ApplyLogLevel("DEBUG")
	assert.Equal(t, slog.LevelDebug, logLevel.Level())
	ApplyLogLevel("warn")
	assert.Equal(t, slog.LevelWarn, logLevel.Level())
	ApplyLogLevel("nonsense")
	assert.Equal(t, slog.LevelInfo, logLevel.Level())
}

func TestNewServices_RequiresInfrastructure(t *testing.T) {
	_, err := NewServices(context.Background(), nil)
	require.ErrorContains(t, err, "config are required")

	_, err = NewServices(context.Background(), &ServiceDeps{Config: &config.AppConfig{}})
	require.ErrorContains(t, err, "database connection is required")
}

func TestLaunchBackground_ReportsFailure(t *testing.T) {
	errCh := make(chan error, 1)
	deps := &serviceStartupDeps{
		ctx:             context.Background(),
		logger:          quietLogger(),
		enabledServices: map[config.ServiceMode]bool{config.ServiceModeWorker: true},
		errCh:           errCh,
	}

	done := launchBackground(deps.ctx, deps, backgroundService{
		mode:  config.ServiceModeWorker,
		name:  "worker",
		start: func(context.Context) error { return errors.New("boom") },
	})
	require.NotNil(t, done)
	<-done

	select {
	case err := <-errCh:
		require.ErrorContains(t, err, "worker failed: boom")
	default:
		t.Fatal("expected background failure on errCh")
	}
}

func TestLaunchBackground_SkipsDisabledModes(t *testing.T) {
	deps := &serviceStartupDeps{
		ctx:             context.Background(),
		logger:          quietLogger(),
		enabledServices: map[config.ServiceMode]bool{config.ServiceModeHTTP: true},
		errCh:           make(chan error, 1),
	}
	done := launchBackground(deps.ctx, deps, backgroundService{
		mode:  config.ServiceModeReaper,
		name:  "reaper",
		start: func(context.Context) error { t.Fatal("disabled service started"); return nil },
	})
	assert.Nil(t, done)
}

func TestGracefulStop_CancelsBackgroundServices(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	deps := &serviceStartupDeps{
		ctx:             ctx,
		logger:          quietLogger(),
		enabledServices: map[config.ServiceMode]bool{config.ServiceModeWorker: true},
		errCh:           make(chan error, 1),
	}
	handles := startBackgroundServices(deps, []backgroundService{{
		mode: config.ServiceModeWorker,
		name: "worker",
		start: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}})
	require.Len(t, handles, 1)

	start := time.Now()
	require.NoError(t, gracefulStop(shutdownConfig{
		ctx:         ctx,
		cancel:      cancel,
		logger:      quietLogger(),
		backgrounds: handles,
	}))
	assert.Less(t, time.Since(start), shutdownWaitTimeout)
	assert.Empty(t, deps.errCh, "cancellation is not reported as a failure")
}
