package command

import (
	"context"

	gcmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-docmerge/merge"
	"github.com/goliatone/go-errors"
)

// RunBatchHandler runs batch merges.
type RunBatchHandler struct {
	Service merge.Service
}

func NewRunBatchHandler(svc merge.Service) *RunBatchHandler {
	return &RunBatchHandler{Service: svc}
}

// Execute returns an error only when the batch aborts before any job runs;
// per-job failures are reported in the result.
func (h *RunBatchHandler) Execute(ctx context.Context, msg RunBatch) error {
	if h == nil || h.Service == nil {
		return errors.New("merge service is required", errors.CategoryInternal).
			WithTextCode("SERVICE_REQUIRED")
	}
	result, err := h.Service.RunBatch(ctx, msg.Request)
	if err != nil {
		return err
	}
	store(ctx, msg.Result, result)
	return nil
}

// FillManualHandler runs single manual fills.
type FillManualHandler struct {
	Service merge.Service
}

func NewFillManualHandler(svc merge.Service) *FillManualHandler {
	return &FillManualHandler{Service: svc}
}

func (h *FillManualHandler) Execute(ctx context.Context, msg FillManual) error {
	if h == nil || h.Service == nil {
		return errors.New("merge service is required", errors.CategoryInternal).
			WithTextCode("SERVICE_REQUIRED")
	}
	result, err := h.Service.FillManual(ctx, msg.Request)
	if err != nil {
		return err
	}
	store(ctx, msg.Result, result)
	return nil
}

func store(ctx context.Context, dst *merge.BatchResult, result merge.BatchResult) {
	if dst != nil {
		*dst = result
	}
	if res := gcmd.ResultFromContext[merge.BatchResult](ctx); res != nil {
		res.Store(result)
	}
}
