// Package httpx provides the HTTP API for job admission, queries and maintenance.
package httpx

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/target/jobqueue/internal/domain/model"
	apperrors "github.com/target/jobqueue/internal/errors"
	"github.com/target/jobqueue/internal/service"
)

// JobHandlers provides HTTP handlers for job-related operations.
type JobHandlers struct {
	Admission *service.AdmissionService
	Queries   *service.JobQueryService
	Retention *service.RetentionService
	Logger    *slog.Logger
}

type submitJobResponse struct {
	JobID  string          `json:"job_id"`
	Status model.JobStatus `json:"status"`
}

// Submit admits a new job.
// POST /jobs {"operation": "square_sum", "data": [2, 3]}.
func (h *JobHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Admission.Submit(r.Context(), PrincipalFromContext(r.Context()), req)
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, submitJobResponse{JobID: job.ID, Status: job.Status})
}

// Status returns the job's status.
// GET /jobs/{id}/status.
func (h *JobHandlers) Status(w http.ResponseWriter, r *http.Request) {
	view, err := h.Queries.GetStatus(r.Context(), PrincipalFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// Result returns the job's status and result; result is null unless the job succeeded.
// GET /jobs/{id}/result.
func (h *JobHandlers) Result(w http.ResponseWriter, r *http.Request) {
	view, err := h.Queries.GetResult(r.Context(), PrincipalFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// List returns one page of the caller's jobs.
// GET /jobs/{status}/{page} where status is "all" or a job status.
func (h *JobHandlers) List(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.PathValue("page"))
	if err != nil {
		RenderError(w, r, h.Logger, apperrors.ValidationField("page", "page must be an integer"))
		return
	}

	result, err := h.Queries.List(r.Context(), PrincipalFromContext(r.Context()), r.PathValue("status"), page)
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// Stats returns the caller's job counts by status.
// GET /jobs/stats.
func (h *JobHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Queries.Stats(r.Context(), PrincipalFromContext(r.Context()))
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, counts)
}

type cleanupRequest struct {
	RetentionHours *float64 `json:"retention_hours"`
}

// Cleanup soft-deletes SUCCESS jobs older than the retention window.
// POST /admin/jobs/cleanup {"retention_hours": 24} (body optional).
func (h *JobHandlers) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if !DecodeOptionalJSON(w, r, &req) {
		return
	}

	result, err := h.Retention.Cleanup(r.Context(), PrincipalFromContext(r.Context()), req.RetentionHours)
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}
