package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/redis/go-redis/v9"

	"github.com/target/jobqueue/config"
	"github.com/target/jobqueue/internal/migrate"
)

const connectTimeout = 5 * time.Second

// processingKeySuffix mirrors the dispatch queue's in-flight list name.
const processingKeySuffix = ":processing"

// Infrastructure holds the process-wide clients: Postgres backs the job
// store, Redis backs the limiter, dispatch queue, job events and sessions.
type Infrastructure struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

// InfrastructureConfig selects which stores to connect.
type InfrastructureConfig struct {
	Config    *config.AppConfig
	WantDB    bool
	WantRedis bool
	Logger    *slog.Logger
}

// ConnectInfrastructure checks the Redis key layout, then connects the
// requested stores. Partially opened connections are closed on failure.
func ConnectInfrastructure(ctx context.Context, cfg InfrastructureConfig) (*Infrastructure, error) {
	if cfg.Config == nil {
		return nil, errors.New("infrastructure config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	infra := &Infrastructure{}
	if cfg.WantDB {
		db, err := connectJobStore(ctx, cfg.Config.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		infra.DB = db
	}

	if cfg.WantRedis {
		if err := ValidateRedisKeys(cfg.Config); err != nil {
			return nil, errors.Join(err, infra.Close())
		}
		client, err := connectRedis(ctx, cfg.Config.Redis, logger)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("connect redis: %w", err), infra.Close())
		}
		infra.Redis = client
	}

	return infra, nil
}

// Close closes every open connection.
func (i *Infrastructure) Close() error {
	if i == nil {
		return nil
	}
	var errs []error
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		i.Redis = nil
	}
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		i.DB = nil
	}
	return errors.Join(errs...)
}

// postgresDSN builds the pgx connection URL. url.URL escapes credentials.
func postgresDSN(cfg config.DBConfig) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
	}
	q := u.Query()
	q.Set("sslmode", cfg.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

func connectJobStore(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", postgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close database connection: %w", closeErr))
		}
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	logger.InfoContext(ctx, "job store connected",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Name,
		"max_open_conns", cfg.MaxOpenConns,
	)
	return db, nil
}

// PrepareJobStore applies pending migrations when DB_RUN_MIGRATIONS_ON_START
// is set. Otherwise it only reports migrations that have not been applied yet.
func PrepareJobStore(ctx context.Context, db *sql.DB, cfg config.DBConfig, logger *slog.Logger) error {
	if cfg.RunMigrationsOnStart {
		return RunMigrations(ctx, db, logger)
	}

	pending, err := pendingMigrations(ctx, db)
	if err != nil {
		logger.WarnContext(ctx, "skipping migrations; could not read applied versions", "error", err)
		return nil
	}
	if len(pending) > 0 {
		logger.WarnContext(ctx, "skipping migrations with pending versions",
			"reason", "disabled via config",
			"pending", pending,
		)
		return nil
	}
	logger.InfoContext(ctx, "skipping migrations; schema is current", "reason", "disabled via config")
	return nil
}

// RunMigrations applies every embedded migration not yet recorded.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := migrate.Run(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed")
	}
	return nil
}

func pendingMigrations(ctx context.Context, db *sql.DB) ([]string, error) {
	files, err := migrate.Files()
	if err != nil {
		return nil, err
	}
	applied, err := migrate.Applied(ctx, db)
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, f := range files {
		if version := strings.TrimSuffix(f, ".sql"); !slices.Contains(applied, version) {
			pending = append(pending, version)
		}
	}
	return pending, nil
}

// ValidateRedisKeys rejects key layouts where the limiter counters, token
// sessions and the dispatch lists could overwrite each other.
func ValidateRedisKeys(cfg *config.AppConfig) error {
	prefixes := []struct{ env, value string }{
		{"RATE_LIMIT_KEY_PREFIX", cfg.RateLimit.KeyPrefix},
		{"AUTH_SESSION_PREFIX", cfg.Auth.SessionPrefix},
	}
	queueKeys := []string{cfg.Jobs.QueueKey, cfg.Jobs.QueueKey + processingKeySuffix}

	for i, p := range prefixes {
		if strings.TrimSpace(p.value) == "" {
			return fmt.Errorf("%s must not be empty", p.env)
		}
		for _, q := range prefixes[i+1:] {
			if strings.HasPrefix(p.value, q.value) || strings.HasPrefix(q.value, p.value) {
				return fmt.Errorf("%s %q overlaps %s %q", p.env, p.value, q.env, q.value)
			}
		}
		for _, key := range queueKeys {
			if strings.HasPrefix(key, p.value) {
				return fmt.Errorf("JOBS_QUEUE_KEY %q falls under %s %q", cfg.Jobs.QueueKey, p.env, p.value)
			}
		}
	}
	return nil
}

// redisOptions maps RedisConfig onto go-redis universal options and returns a
// credential-free address description for logs.
func redisOptions(cfg config.RedisConfig) (*redis.UniversalOptions, string, error) {
	switch {
	case cfg.UseCluster:
		if nodes := normalizeAddrs(cfg.ClusterNodes); len(nodes) > 0 {
			return &redis.UniversalOptions{Addrs: nodes, Password: cfg.Password},
				"cluster:" + strings.Join(nodes, ","), nil
		}
		opts, err := redisURIOptions(cfg)
		if err != nil {
			return nil, "", fmt.Errorf("redis cluster: %w", err)
		}
		return opts, "cluster:" + opts.Addrs[0], nil
	case cfg.UseSentinel:
		nodes := normalizeAddrs(cfg.SentinelNodes)
		if len(nodes) == 0 {
			return nil, "", errors.New("redis sentinel mode requires at least one sentinel node")
		}
		master := strings.TrimSpace(cfg.SentinelMasterName)
		if master == "" {
			return nil, "", errors.New("redis sentinel mode requires a master name")
		}
		return &redis.UniversalOptions{
			MasterName:       master,
			Addrs:            nodes,
			Password:         cfg.Password,
			SentinelPassword: cfg.SentinelPassword,
		}, "sentinel:" + master, nil
	default:
		opts, err := redisURIOptions(cfg)
		if err != nil {
			return nil, "", err
		}
		return opts, opts.Addrs[0], nil
	}
}

// redisURIOptions accepts either host:port or a redis:// / rediss:// URL.
// A password in the URL wins over REDIS_PASSWORD.
func redisURIOptions(cfg config.RedisConfig) (*redis.UniversalOptions, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, errors.New("REDIS_URI is required")
	}
	if !strings.HasPrefix(uri, "redis://") && !strings.HasPrefix(uri, "rediss://") {
		return &redis.UniversalOptions{Addrs: []string{uri}, Password: cfg.Password}, nil
	}

	opt, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	password := cfg.Password
	if opt.Password != "" {
		password = opt.Password
	}
	return &redis.UniversalOptions{
		Addrs:     []string{opt.Addr},
		Username:  opt.Username,
		Password:  password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}

//nolint:ireturn // single, sentinel and cluster clients share redis.UniversalClient.
func newRedisClient(cfg config.RedisConfig) (redis.UniversalClient, string, error) {
	opts, desc, err := redisOptions(cfg)
	if err != nil {
		return nil, "", err
	}
	// NewUniversalClient only picks cluster mode for multiple addresses.
	if cfg.UseCluster {
		return redis.NewClusterClient(opts.Cluster()), desc, nil
	}
	return redis.NewUniversalClient(opts), desc, nil
}

//nolint:ireturn // see newRedisClient.
func connectRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (redis.UniversalClient, error) {
	client, desc, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if pingErr := client.Ping(pingCtx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis: %w", pingErr)
	}

	logger.InfoContext(ctx, "redis connected", "addr", desc)
	return client, nil
}

func normalizeAddrs(raw []string) []string {
	result := make([]string, 0, len(raw))
	for _, addr := range raw {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
