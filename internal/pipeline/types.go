package pipeline

import (
	"strings"
	"time"

	"github.com/openaviary/birdfeed/pkg/errors"
)

// RegionState is the state of a region within a run.
// Transitions: Pending -> Fetching -> {Succeeded, Failed}.
type RegionState string

const (
	RegionPending   RegionState = "pending"
	RegionFetching  RegionState = "fetching"
	RegionSucceeded RegionState = "succeeded"
	RegionFailed    RegionState = "failed"
)

// ResourceResult reports the outcome of loading one resource.
type ResourceResult struct {
	// Resource is the resource/table name.
	Resource string
	// Rows is the number of rows written this run.
	Rows int64
	// Err is the captured failure message, empty on success. A non-empty
	// Err can coexist with Rows > 0: records yielded before a mid-sequence
	// failure are still written.
	Err string

	// fatal carries a batch-fatal error out of the resource loop.
	fatal error
}

// RunResult summarizes a single region's run.
type RunResult struct {
	// RunID uniquely identifies the run for log correlation.
	RunID string
	// Region is the region code this run was scoped to.
	Region string
	// State is the region's terminal state.
	State RegionState
	// Resources reports each resource in load order.
	Resources []ResourceResult
	// TableCounts maps resource table names to their post-run row counts
	// in the destination, including rows from prior runs.
	TableCounts map[string]int64
	// StartedAt is when the run began.
	StartedAt time.Time
	// Duration is the run's wall-clock duration.
	Duration time.Duration
}

// FailedResources returns the names of resources that failed.
func (r *RunResult) FailedResources() []string {
	var failed []string
	for _, res := range r.Resources {
		if res.Err != "" {
			failed = append(failed, res.Resource)
		}
	}
	return failed
}

// Err builds the region-level error for a failed run, nil otherwise.
func (r *RunResult) Err() error {
	if r.State != RegionFailed {
		return nil
	}
	var msgs []string
	for _, res := range r.Resources {
		if res.Err != "" {
			msgs = append(msgs, res.Resource+": "+res.Err)
		}
	}
	return errors.Newf(errors.ErrorTypeRegion, "region %s: %s", r.Region, strings.Join(msgs, "; "))
}

// RegionOutcome pairs a region with its terminal state in a batch.
type RegionOutcome struct {
	Region string
	State  RegionState
	// Result is the run summary; nil only if the run aborted before
	// producing one.
	Result *RunResult
	// Err is the captured region error for failed regions.
	Err error
}

// BatchResult aggregates a multi-region run. Regions execute sequentially
// in listed order and fail independently: one region's failure never
// prevents subsequent regions from being fetched.
type BatchResult struct {
	// Outcomes holds one entry per region, in execution order.
	Outcomes []RegionOutcome
	// SucceededCount is the number of regions that reached Succeeded.
	SucceededCount int
	// TotalCount is the number of regions attempted.
	TotalCount int
	// Duration is the batch's wall-clock duration.
	Duration time.Duration
}
