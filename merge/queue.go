package merge

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// JobOutcome is what an ExecuteFunc produces for a successful job.
type JobOutcome struct {
	Outputs  []ArtifactRef
	Warnings []string
}

// ExecuteFunc runs one job. report publishes stage labels for that job.
type ExecuteFunc func(ctx context.Context, job ExportJob, report func(Stage)) (JobOutcome, error)

// Orchestrator runs batches on a single-worker queue: jobs execute one at a
// time in submission order and a failed job never stops the batch.
type Orchestrator struct {
	BatchID  string
	Logger   Logger
	Progress ProgressFunc
	Now      func() time.Time
}

// RunBatch executes jobs sequentially and returns the summary once the last
// job has finished. Cancelling ctx stops scheduling: the job in flight runs to
// completion and the remaining jobs are marked skipped.
func (o *Orchestrator) RunBatch(ctx context.Context, jobs []ExportJob, execute ExecuteFunc) BatchResult {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := loggerOrNop(o.Logger)
	result := BatchResult{
		BatchID:   o.BatchID,
		Jobs:      make([]JobStatus, len(jobs)),
		StartedAt: o.now(),
	}

	queue := make(chan int, len(jobs))
	var group errgroup.Group
	group.SetLimit(1)
	group.Go(func() error {
		for idx := range queue {
			job := jobs[idx]
			if err := ctx.Err(); err != nil {
				result.record(JobStatus{Index: idx, ID: job.ID, State: JobSkipped, Kind: KindCanceled, Err: err})
				continue
			}
			status := o.runJob(context.WithoutCancel(ctx), idx, len(jobs), job, execute)
			if status.State == JobFailed {
				logger.Errorf("batch %s: job %d (%q) failed: %v", result.BatchID, idx+1, job.ID, status.Err)
			} else {
				logger.Debugf("batch %s: job %d (%q) done in %s", result.BatchID, idx+1, job.ID, status.Duration)
			}
			result.record(status)
		}
		return nil
	})

	for idx := range jobs {
		queue <- idx
	}
	close(queue)
	_ = group.Wait()

	result.CompletedAt = o.now()
	logger.Infof("batch %s: %s", result.BatchID, result.Summary())
	o.Progress.emit(ProgressEvent{Stage: StageBatchComplete, Total: len(jobs), Result: &result})
	return result
}

func (o *Orchestrator) runJob(ctx context.Context, idx, total int, job ExportJob, execute ExecuteFunc) (status JobStatus) {
	start := o.now()
	status = JobStatus{Index: idx, ID: job.ID}
	defer func() {
		if recovered := recover(); recovered != nil {
			status.State = JobFailed
			status.Err = NewError(KindInternal, fmt.Sprintf("job panicked: %v", recovered), nil)
			status.Kind = KindInternal
		}
		status.Duration = o.now().Sub(start)
	}()

	report := func(stage Stage) {
		o.Progress.emit(ProgressEvent{Stage: stage, JobID: job.ID, Index: idx, Total: total})
	}
	if execute == nil {
		status.State = JobFailed
		status.Err = NewError(KindInternal, "execute function is required", nil)
		status.Kind = KindInternal
		return status
	}

	outcome, err := execute(ctx, job, report)
	if err != nil {
		status.State = JobFailed
		status.Err = err
		status.Kind = KindFromError(err)
		return status
	}
	status.State = JobSucceeded
	status.Outputs = outcome.Outputs
	status.Warnings = outcome.Warnings
	report(StageDone)
	return status
}

func (o *Orchestrator) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}
