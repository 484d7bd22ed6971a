package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/target/jobqueue/internal/domain/model"
)

// listJobsSQL orders by (created_at, id) descending so pages are stable when
// several jobs share a timestamp.
const listJobsSQL = `
  SELECT ` + jobColumns + `
  FROM jobs
  WHERE owner_id = $1
    AND NOT deleted
    AND ($2::text IS NULL OR status = $2::text)
  ORDER BY created_at DESC, id DESC
  LIMIT $3 OFFSET $4`

// List returns one page of an owner's jobs, excluding soft-deleted jobs.
func (r *JobRepo) List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	if opts.Page < 1 {
		return nil, errors.New("page must be >= 1")
	}
	if opts.PageSize < 1 {
		return nil, errors.New("page size must be >= 1")
	}
	if !validID(opts.OwnerID) {
		return []*model.Job{}, nil
	}

	var status *string
	if opts.Status != nil {
		s := string(*opts.Status)
		status = &s
	}

	jobs, err := r.queryMany(ctx, listJobsSQL, opts.OwnerID, status, opts.PageSize, opts.Offset())
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// CountByStatus returns per-status totals for an owner, excluding soft-deleted jobs.
func (r *JobRepo) CountByStatus(ctx context.Context, ownerID string) (model.JobStatusCounts, error) {
	var counts model.JobStatusCounts
	if !validID(ownerID) {
		return counts, nil
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT status, count(*)
		FROM jobs
		WHERE owner_id = $1 AND NOT deleted
		GROUP BY status`, ownerID)
	if err != nil {
		return counts, fmt.Errorf("count jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return counts, fmt.Errorf("scan job count: %w", err)
		}
		counts.Add(model.JobStatus(status), n)
	}
	if err := rows.Err(); err != nil {
		return counts, fmt.Errorf("iterate job counts: %w", err)
	}
	return counts, nil
}
