package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/target/jobqueue/internal/data/pgxutil"
	"github.com/target/jobqueue/internal/domain/model"
)

// Advisory lock namespace for maintenance sweeps.
// Using two-arg pg_advisory_xact_lock(major, minor) for namespacing.
const (
	advisoryLockMaintenanceMajor = 2100
	advisoryLockRetention        = 1 // minor key for SoftDeleteSucceededBefore
)

const softDeleteBatchSQL = `
  UPDATE jobs
  SET deleted = TRUE,
      deleted_at = $1
  WHERE id IN (
    SELECT id FROM jobs
    WHERE status = 'SUCCESS'
      AND NOT deleted
      AND created_at < $2
    ORDER BY created_at
    LIMIT $3
  )`

// SoftDeleteSucceededBefore flags every SUCCESS job created before cutoff as deleted.
// Work is split into transactions of at most batchSize rows so a large backlog never
// holds row locks for long. Concurrent callers serialise on an advisory lock per batch.
// Only the deleted flag and deleted_at change; rows are never removed.
func (r *JobRepo) SoftDeleteSucceededBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be >= 1, got %d", batchSize)
	}

	var total int64
	for {
		n, err := r.softDeleteBatch(ctx, cutoff, batchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < int64(batchSize) {
			return total, nil
		}
	}
}

func (r *JobRepo) softDeleteBatch(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	var affected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1, $2)",
				advisoryLockMaintenanceMajor, advisoryLockRetention); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}

			res, err := tx.ExecContext(ctx, softDeleteBatchSQL, r.timeProvider.Now(), cutoff.UTC(), batchSize)
			if err != nil {
				return fmt.Errorf("soft delete succeeded jobs: %w", err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			affected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// ListStalePending returns PENDING jobs not touched since olderThan, oldest first.
func (r *JobRepo) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*model.Job, error) {
	if limit < 1 {
		return []*model.Job{}, nil
	}
	jobs, err := r.queryMany(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE status = 'PENDING'
		  AND NOT deleted
		  AND updated_at < $1
		ORDER BY updated_at, id
		LIMIT $2`, olderThan.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending jobs: %w", err)
	}
	return jobs, nil
}

// MarkDispatched bumps dispatch_count and updated_at for a job that is still PENDING,
// which also restarts its staleness clock.
func (r *JobRepo) MarkDispatched(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrJobNotFound
	}
	_, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET dispatch_count = dispatch_count + 1,
		    updated_at = $2
		WHERE id = $1 AND status = 'PENDING' AND NOT deleted`,
		id, r.timeProvider.Now())
	if err != nil {
		return fmt.Errorf("mark job dispatched: %w", err)
	}
	return nil
}
