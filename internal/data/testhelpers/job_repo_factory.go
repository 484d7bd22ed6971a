// Package testhelpers builds data-layer repositories wired for deterministic tests.
package testhelpers

import (
	"database/sql"

	"github.com/target/jobqueue/internal/data"
)

// NewJobRepoWithTimeProvider creates a JobRepo with the provided TimeProvider for tests.
func NewJobRepoWithTimeProvider(db *sql.DB, cfg data.RepoConfig, tp data.TimeProvider) *data.JobRepo {
	cfg.TimeProvider = tp
	return data.NewJobRepo(db, cfg)
}

// NewUserRepoWithTimeProvider creates a UserRepo with the provided TimeProvider for tests.
func NewUserRepoWithTimeProvider(db *sql.DB, cfg data.RepoConfig, tp data.TimeProvider) *data.UserRepo {
	cfg.TimeProvider = tp
	return data.NewUserRepo(db, cfg)
}
