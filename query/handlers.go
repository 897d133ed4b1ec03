package query

import (
	"context"

	"github.com/goliatone/go-docmerge/merge"
	"github.com/goliatone/go-errors"
)

func serviceRequired() error {
	return errors.New("merge service is required", errors.CategoryInternal).
		WithTextCode("SERVICE_REQUIRED")
}

// ListPlaceholdersHandler scans templates.
type ListPlaceholdersHandler struct {
	Service merge.Service
}

func NewListPlaceholdersHandler(svc merge.Service) *ListPlaceholdersHandler {
	return &ListPlaceholdersHandler{Service: svc}
}

func (h *ListPlaceholdersHandler) Query(ctx context.Context, msg ListPlaceholders) (merge.Placeholders, error) {
	if h == nil || h.Service == nil {
		return merge.Placeholders{}, serviceRequired()
	}
	return h.Service.Placeholders(ctx, msg.Template)
}

// ReconcileFieldsHandler reports how placeholders bind to headers.
type ReconcileFieldsHandler struct {
	Service merge.Service
}

func NewReconcileFieldsHandler(svc merge.Service) *ReconcileFieldsHandler {
	return &ReconcileFieldsHandler{Service: svc}
}

func (h *ReconcileFieldsHandler) Query(ctx context.Context, msg ReconcileFields) (merge.Reconciliation, error) {
	if h == nil || h.Service == nil {
		return merge.Reconciliation{}, serviceRequired()
	}
	return h.Service.Reconcile(ctx, msg.Template, msg.Dataset)
}

// ManualFormHandler returns manual entry fields.
type ManualFormHandler struct {
	Service merge.Service
}

func NewManualFormHandler(svc merge.Service) *ManualFormHandler {
	return &ManualFormHandler{Service: svc}
}

func (h *ManualFormHandler) Query(ctx context.Context, msg ManualForm) ([]merge.FieldSpec, error) {
	if h == nil || h.Service == nil {
		return nil, serviceRequired()
	}
	return h.Service.ManualForm(ctx, msg.Template)
}

// ListBatchesHandler returns batch history.
type ListBatchesHandler struct {
	Service merge.Service
}

func NewListBatchesHandler(svc merge.Service) *ListBatchesHandler {
	return &ListBatchesHandler{Service: svc}
}

func (h *ListBatchesHandler) Query(ctx context.Context, msg ListBatches) ([]merge.BatchRecord, error) {
	if h == nil || h.Service == nil {
		return nil, serviceRequired()
	}
	return h.Service.History(ctx, msg.Filter)
}

// GetBatchHandler returns one recorded batch.
type GetBatchHandler struct {
	Service merge.Service
}

func NewGetBatchHandler(svc merge.Service) *GetBatchHandler {
	return &GetBatchHandler{Service: svc}
}

func (h *GetBatchHandler) Query(ctx context.Context, msg GetBatch) (merge.BatchRecord, error) {
	if h == nil || h.Service == nil {
		return merge.BatchRecord{}, serviceRequired()
	}
	return h.Service.Batch(ctx, msg.BatchID)
}
