package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/jobqueue/internal/core"
	domainauth "github.com/target/jobqueue/internal/domain/auth"
	"github.com/target/jobqueue/internal/domain/model"
	apperrors "github.com/target/jobqueue/internal/errors"
)

// DefaultPageSize is the listing page size used when none is configured.
const DefaultPageSize = 10

// JobQueryServiceOptions groups dependencies for JobQueryService.
type JobQueryServiceOptions struct {
	Repo     core.JobRepository // Required: job store
	PageSize int                // Optional: defaults to DefaultPageSize
	Logger   *slog.Logger       // Optional: structured logger
}

// JobQueryService answers status, result and listing queries for a principal.
type JobQueryService struct {
	repo     core.JobRepository
	pageSize int
	logger   *slog.Logger
}

// NewJobQueryService constructs a new JobQueryService.
func NewJobQueryService(opts JobQueryServiceOptions) (*JobQueryService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	pageSize := opts.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobQueryService{
		repo:     opts.Repo,
		pageSize: pageSize,
		logger:   logger.With("component", "job_query_service"),
	}, nil
}

// PageSize returns the fixed listing page size.
func (s *JobQueryService) PageSize() int { return s.pageSize }

// GetStatus returns the job's status. Missing and soft-deleted jobs are
// NotFound; jobs owned by someone else are Forbidden unless principal is admin.
func (s *JobQueryService) GetStatus(
	ctx context.Context,
	principal domainauth.Principal,
	id string,
) (model.JobStatusView, error) {
	job, err := s.authorizedJob(ctx, principal, id)
	if err != nil {
		return model.JobStatusView{}, err
	}
	return job.StatusView(), nil
}

// GetResult returns the job's status and, for SUCCESS jobs, its result.
func (s *JobQueryService) GetResult(
	ctx context.Context,
	principal domainauth.Principal,
	id string,
) (model.JobResultView, error) {
	job, err := s.authorizedJob(ctx, principal, id)
	if err != nil {
		return model.JobResultView{}, err
	}
	return job.ResultView(), nil
}

func (s *JobQueryService) authorizedJob(ctx context.Context, principal domainauth.Principal, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, model.ErrJobNotFound) {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", apperrors.MapDBError(err))
	}
	if !principal.CanAccess(job.OwnerID) {
		return nil, apperrors.Forbidden("job belongs to another user")
	}
	return job, nil
}

// List returns one page of the principal's own jobs, newest first.
// statusFilter is "all" or a job status; page is 1-indexed.
func (s *JobQueryService) List(
	ctx context.Context,
	principal domainauth.Principal,
	statusFilter string,
	page int,
) (*model.JobPage, error) {
	if principal.UserID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	if page < 1 {
		return nil, apperrors.ValidationField("page", "page must be 1 or greater")
	}
	status, err := model.ParseStatusFilter(statusFilter)
	if err != nil {
		return nil, apperrors.ValidationField("status", err.Error())
	}

	jobs, err := s.repo.List(ctx, model.JobListOptions{
		OwnerID:  principal.UserID,
		Status:   status,
		Page:     page,
		PageSize: s.pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", apperrors.MapDBError(err))
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}

	label := model.StatusFilterAll
	if status != nil {
		label = string(*status)
	}
	return &model.JobPage{
		Page:     page,
		PageSize: s.pageSize,
		Status:   label,
		Jobs:     jobs,
	}, nil
}

// Stats returns the principal's job counts by status.
func (s *JobQueryService) Stats(ctx context.Context, principal domainauth.Principal) (model.JobStatusCounts, error) {
	if principal.UserID == "" {
		return model.JobStatusCounts{}, apperrors.Unauthorized("authentication required")
	}
	counts, err := s.repo.CountByStatus(ctx, principal.UserID)
	if err != nil {
		return model.JobStatusCounts{}, fmt.Errorf("count jobs: %w", apperrors.MapDBError(err))
	}
	return counts, nil
}
