package data

import (
	"database/sql"
	"log/slog"

	"github.com/google/uuid"

	"github.com/target/jobqueue/internal/domain/model"
)

// ErrJobNotFound is returned when a job is missing or soft-deleted.
var ErrJobNotFound = model.ErrJobNotFound

// RepoConfig holds configuration options for the repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for the job lifecycle.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "job_repo"),
	}
}

// jobColumns matches the db tags on model.Job so rows can be collected by name.
const jobColumns = `
  id::text AS id,
  owner_id::text AS owner_id,
  operation,
  input,
  status,
  result,
  dispatch_count,
  created_at,
  updated_at,
  started_at,
  completed_at,
  deleted,
  deleted_at
`

// validID reports whether id can be a jobs/users primary key.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
