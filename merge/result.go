package merge

import (
	"fmt"
	"time"
)

// JobState is the final state of one job in a batch.
type JobState string

const (
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobSkipped   JobState = "skipped"
)

// JobStatus records the outcome of one job.
type JobStatus struct {
	Index    int
	ID       string
	State    JobState
	Kind     ErrorKind
	Err      error
	Outputs  []ArtifactRef
	Warnings []string
	Duration time.Duration
}

// BatchResult summarises a batch run. Skipped jobs were never scheduled and
// are not counted as attempted.
type BatchResult struct {
	BatchID     string
	Attempted   int
	Succeeded   int
	Failed      int
	Skipped     int
	Jobs        []JobStatus
	StartedAt   time.Time
	CompletedAt time.Time
}

// Summary returns the user-facing summary line.
func (r BatchResult) Summary() string {
	summary := fmt.Sprintf("exported %d of %d documents", r.Succeeded, r.Attempted)
	if r.Skipped > 0 {
		summary += fmt.Sprintf(" (%d skipped)", r.Skipped)
	}
	return summary
}

// FailureFor returns the recorded failure for a job identifier, or nil.
func (r BatchResult) FailureFor(id string) error {
	for _, job := range r.Jobs {
		if job.ID == id && job.State == JobFailed {
			return job.Err
		}
	}
	return nil
}

// Outputs returns every stored output in job order.
func (r BatchResult) Outputs() []ArtifactRef {
	var out []ArtifactRef
	for _, job := range r.Jobs {
		out = append(out, job.Outputs...)
	}
	return out
}

func (r *BatchResult) record(status JobStatus) {
	r.Jobs[status.Index] = status
	switch status.State {
	case JobSucceeded:
		r.Attempted++
		r.Succeeded++
	case JobFailed:
		r.Attempted++
		r.Failed++
	case JobSkipped:
		r.Skipped++
	}
}
