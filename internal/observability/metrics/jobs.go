// Package metrics holds the metric names and tag conventions for the job lifecycle.
package metrics

import (
	"maps"
	"time"

	obserrors "github.com/target/jobqueue/internal/observability/errors"
	"github.com/target/jobqueue/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultNoop     = "noop"
	ResultRejected = "rejected"
)

// Metric names.
const (
	NameAdmission       = "jobs.admission"
	NameClaim           = "jobs.claim"
	NameExecute         = "jobs.execute"
	NameExecuteDuration = "jobs.execute.duration"
	NameTransition      = "jobs.transition"
	NameReaperSweep     = "reaper.sweep"
	NameReaperRequeued  = "reaper.requeued"
	NameRetentionSwept  = "retention.soft_deleted"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Operation  string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits a jobs.transition counter and, when Duration is set, a jobs.execute.duration timing.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}
	tags := withErrorClass(map[string]string{
		"operation":  in.Operation,
		"transition": in.Transition,
		"result":     in.Result,
	}, in.Result, in.Err)

	sink.Count(NameTransition, 1, tags)
	if in.Duration > 0 {
		sink.Timing(NameExecuteDuration, in.Duration, maps.Clone(tags))
	}
}

// EmitCount emits a single counter tagged with result and any extra tags.
func EmitCount(sink statsd.Sink, name, result string, err error, extra map[string]string) {
	if sink == nil {
		return
	}
	tags := maps.Clone(extra)
	if tags == nil {
		tags = map[string]string{}
	}
	tags["result"] = result
	sink.Count(name, 1, withErrorClass(tags, result, err))
}

// EmitSweep records a background sweep: one counter for the sweep and a gauge of items handled.
func EmitSweep(sink statsd.Sink, name string, handled int64, duration time.Duration, err error) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	tags := withErrorClass(map[string]string{"result": result}, result, err)
	sink.Count(name, 1, tags)
	sink.Gauge(name+".items", float64(handled), maps.Clone(tags))
	if duration > 0 {
		sink.Timing(name+".duration", duration, maps.Clone(tags))
	}
}

func withErrorClass(tags map[string]string, result string, err error) map[string]string {
	if err != nil && result == ResultError {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}
	return tags
}
