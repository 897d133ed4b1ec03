package merge

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
)

func TestOrchestratorRunsSequentially(t *testing.T) {
	var running, maxRunning int32
	var order []string
	jobs := []ExportJob{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	var events []ProgressEvent
	orch := &Orchestrator{BatchID: "batch-1", Progress: func(e ProgressEvent) { events = append(events, e) }}
	result := orch.RunBatch(context.Background(), jobs, func(ctx context.Context, job ExportJob, report func(Stage)) (JobOutcome, error) {
		n := atomic.AddInt32(&running, 1)
		if n > atomic.LoadInt32(&maxRunning) {
			atomic.StoreInt32(&maxRunning, n)
		}
		defer atomic.AddInt32(&running, -1)
		order = append(order, job.ID)
		report(StageFilling)
		if job.ID == "b" {
			return JobOutcome{}, NewTemplateRenderError(job.ID, errors.New("bad xml"))
		}
		return JobOutcome{Outputs: []ArtifactRef{{Key: job.ID + ".docx"}}}, nil
	})

	if maxRunning != 1 {
		t.Fatalf("expected one job at a time, saw %d", maxRunning)
	}
	if !reflect.DeepEqual(order, []string{"a", "b", "c"}) {
		t.Fatalf("expected submission order, got %v", order)
	}
	if result.Attempted != 3 || result.Succeeded != 2 || result.Failed != 1 || result.Skipped != 0 {
		t.Fatalf("unexpected counts %+v", result)
	}
	if result.Summary() != "exported 2 of 3 documents" {
		t.Fatalf("unexpected summary %q", result.Summary())
	}
	if KindFromError(result.FailureFor("b")) != KindTemplateRender || result.Jobs[1].Kind != KindTemplateRender {
		t.Fatalf("expected template_render failure for b, got %v", result.FailureFor("b"))
	}
	if result.FailureFor("a") != nil {
		t.Fatalf("expected no failure for a")
	}
	if got := len(result.Outputs()); got != 2 {
		t.Fatalf("expected 2 outputs, got %d", got)
	}

	last := events[len(events)-1]
	if last.Stage != StageBatchComplete || last.Result == nil || last.Result.BatchID != "batch-1" {
		t.Fatalf("expected final batch complete event, got %+v", last)
	}
	done := 0
	for _, e := range events {
		if e.Stage == StageDone {
			done++
		}
	}
	if done != 2 {
		t.Fatalf("expected done events for successful jobs only, got %d", done)
	}
}

func TestOrchestratorCancellationSkipsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	jobs := []ExportJob{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	var sawCanceled bool
	result := (&Orchestrator{}).RunBatch(ctx, jobs, func(jobCtx context.Context, job ExportJob, report func(Stage)) (JobOutcome, error) {
		cancel()
		sawCanceled = jobCtx.Err() != nil
		return JobOutcome{}, nil
	})

	if sawCanceled {
		t.Fatalf("expected the job in flight to keep a live context")
	}
	if result.Succeeded != 1 || result.Skipped != 2 || result.Attempted != 1 {
		t.Fatalf("unexpected counts %+v", result)
	}
	if result.Jobs[2].State != JobSkipped || result.Jobs[2].Kind != KindCanceled {
		t.Fatalf("expected canceled skip, got %+v", result.Jobs[2])
	}
	if result.Summary() != "exported 1 of 1 documents (2 skipped)" {
		t.Fatalf("unexpected summary %q", result.Summary())
	}
}

func TestOrchestratorRecoversPanics(t *testing.T) {
	result := (&Orchestrator{}).RunBatch(context.Background(), []ExportJob{{ID: "a"}, {ID: "b"}}, func(ctx context.Context, job ExportJob, report func(Stage)) (JobOutcome, error) {
		if job.ID == "a" {
			panic("boom")
		}
		return JobOutcome{}, nil
	})
	if result.Jobs[0].State != JobFailed || result.Jobs[0].Kind != KindInternal {
		t.Fatalf("expected panic recorded as internal failure, got %+v", result.Jobs[0])
	}
	if result.Jobs[1].State != JobSucceeded {
		t.Fatalf("expected batch to continue after panic")
	}
}

func TestOrchestratorEmptyBatch(t *testing.T) {
	result := (&Orchestrator{}).RunBatch(context.Background(), nil, nil)
	if result.Attempted != 0 || result.Summary() != "exported 0 of 0 documents" {
		t.Fatalf("unexpected empty batch result %+v", result)
	}
}
