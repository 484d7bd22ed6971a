package data

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/target/jobqueue/internal/data/pgxutil"
	"github.com/target/jobqueue/internal/domain/model"
)

const insertJobSQL = `
  INSERT INTO jobs (id, owner_id, operation, input, status, created_at, updated_at)
  VALUES ($1, $2, $3, $4, 'PENDING', $5, $5)
  RETURNING ` + jobColumns

const getJobSQL = `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1 AND NOT deleted`

// transitionJobSQL is the compare-and-swap: the WHERE clause only matches when the stored
// status still equals the expected one, so at most one concurrent writer wins.
const transitionJobSQL = `
  UPDATE jobs
  SET status = $3,
      result = $4,
      updated_at = $5,
      started_at = CASE WHEN $3 = 'IN_PROGRESS' THEN $5 ELSE started_at END,
      completed_at = CASE WHEN $3 IN ('SUCCESS', 'FAILED') THEN $5 ELSE completed_at END
  WHERE id = $1
    AND status = $2
    AND NOT deleted
  RETURNING ` + jobColumns

// Create inserts a new PENDING job owned by req.OwnerID.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if !validID(req.OwnerID) {
		return nil, fmt.Errorf("invalid owner id %q", req.OwnerID)
	}
	if req.Operation == "" {
		return nil, errors.New("operation is required")
	}
	if len(req.Input) == 0 {
		return nil, errors.New("input is required")
	}

	now := r.timeProvider.Now()
	job, err := r.queryOne(ctx, insertJobSQL,
		uuid.NewString(),
		req.OwnerID,
		string(req.Operation),
		slices.Clone(req.Input),
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// GetByID returns the job with the given id. Soft-deleted jobs are reported as not found.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	if !validID(id) {
		return nil, ErrJobNotFound
	}
	job, err := r.queryOne(ctx, getJobSQL, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Transition moves a job from req.From to req.To if and only if its stored status is req.From.
// A lost race, a missing job, or a soft-deleted job all return model.ErrTransitionConflict.
func (r *JobRepo) Transition(ctx context.Context, req model.TransitionRequest) (*model.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !validID(req.ID) {
		return nil, model.ErrTransitionConflict
	}

	job, err := r.queryOne(ctx, transitionJobSQL,
		req.ID,
		string(req.From),
		string(req.To),
		req.Result,
		r.timeProvider.Now(),
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrTransitionConflict
	}
	if err != nil {
		return nil, fmt.Errorf("transition job %s %s->%s: %w", req.ID, req.From, req.To, err)
	}
	return job, nil
}

// queryOne runs a statement returning at most one job row.
func (r *JobRepo) queryOne(ctx context.Context, query string, args ...any) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		job, err = pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.Job])
		return err
	})
	return job, err
}

// queryMany runs a statement returning any number of job rows.
func (r *JobRepo) queryMany(ctx context.Context, query string, args ...any) ([]*model.Job, error) {
	var jobs []*model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		jobs, err = pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.Job])
		return err
	})
	if jobs == nil && err == nil {
		jobs = []*model.Job{}
	}
	return jobs, err
}
