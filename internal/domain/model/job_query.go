package model

import (
	"fmt"
	"strings"
)

// StatusFilterAll selects every status when listing.
const StatusFilterAll = "all"

// JobListOptions groups parameters for listing a principal's jobs.
type JobListOptions struct {
	OwnerID  string
	Status   *JobStatus // nil means all statuses
	Page     int        // 1-indexed
	PageSize int
}

// Offset returns the row offset for the requested page.
func (o JobListOptions) Offset() int {
	if o.Page < 1 {
		return 0
	}
	return (o.Page - 1) * o.PageSize
}

// ParseStatusFilter maps "all" (any case) to nil and any other value to a validated status.
func ParseStatusFilter(raw string) (*JobStatus, error) {
	v := strings.TrimSpace(raw)
	if v == "" || strings.EqualFold(v, StatusFilterAll) {
		return nil, nil
	}
	var s JobStatus
	if err := s.UnmarshalText([]byte(v)); err != nil {
		return nil, fmt.Errorf("status filter must be %q or one of %v", StatusFilterAll, AllJobStatuses())
	}
	return &s, nil
}

// JobPage is one page of listing results.
type JobPage struct {
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Status   string `json:"status"`
	Jobs     []*Job `json:"jobs"`
}

// JobStatusCounts holds per-status totals for one owner, excluding soft-deleted jobs.
type JobStatusCounts struct {
	Pending    int64 `json:"pending"`
	InProgress int64 `json:"in_progress"`
	Success    int64 `json:"success"`
	Failed     int64 `json:"failed"`
}

// Add increments the counter for status by n.
func (c *JobStatusCounts) Add(status JobStatus, n int64) {
	switch status {
	case JobStatusPending:
		c.Pending += n
	case JobStatusInProgress:
		c.InProgress += n
	case JobStatusSuccess:
		c.Success += n
	case JobStatusFailed:
		c.Failed += n
	}
}

// Total returns the sum across statuses.
func (c JobStatusCounts) Total() int64 {
	return c.Pending + c.InProgress + c.Success + c.Failed
}

// JobStatusView is the body of a status lookup.
type JobStatusView struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
}

// JobResultView is the body of a result lookup. Result is null unless the job succeeded.
type JobResultView struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
	Result *float64  `json:"result"`
}

// StatusView projects the job onto a status lookup.
func (j *Job) StatusView() JobStatusView {
	return JobStatusView{JobID: j.ID, Status: j.Status}
}

// ResultView projects the job onto a result lookup.
func (j *Job) ResultView() JobResultView {
	view := JobResultView{JobID: j.ID, Status: j.Status}
	if j.Status == JobStatusSuccess && j.Result != nil {
		v := *j.Result
		view.Result = &v
	}
	return view
}
