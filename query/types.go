package query

import (
	"github.com/goliatone/go-docmerge/merge"
	"github.com/goliatone/go-errors"
)

// ListPlaceholders requests the placeholders of a template.
type ListPlaceholders struct {
	Template *merge.Template
}

func (ListPlaceholders) Type() string { return "docmerge:placeholders" }

func (msg ListPlaceholders) Validate() error {
	return requireTemplate(msg.Template)
}

// ReconcileFields compares template placeholders with dataset headers.
type ReconcileFields struct {
	Template *merge.Template
	Dataset  *merge.Dataset
}

func (ReconcileFields) Type() string { return "docmerge:reconcile" }

func (msg ReconcileFields) Validate() error {
	if err := requireTemplate(msg.Template); err != nil {
		return err
	}
	if msg.Dataset == nil {
		return errors.New("dataset is required", errors.CategoryValidation).
			WithTextCode("DATASET_REQUIRED")
	}
	return nil
}

// ManualForm requests the manual entry fields of a template.
type ManualForm struct {
	Template *merge.Template
}

func (ManualForm) Type() string { return "docmerge:manual_form" }

func (msg ManualForm) Validate() error {
	return requireTemplate(msg.Template)
}

// ListBatches requests recorded batch history.
type ListBatches struct {
	Filter merge.HistoryFilter
}

func (ListBatches) Type() string { return "docmerge:history" }

func (msg ListBatches) Validate() error {
	if msg.Filter.Limit < 0 {
		return errors.New("limit must not be negative", errors.CategoryValidation).
			WithTextCode("LIMIT_INVALID")
	}
	return nil
}

// GetBatch requests one recorded batch with its jobs.
type GetBatch struct {
	BatchID string
}

func (GetBatch) Type() string { return "docmerge:batch" }

func (msg GetBatch) Validate() error {
	if msg.BatchID == "" {
		return errors.New("batch ID is required", errors.CategoryValidation).
			WithTextCode("BATCH_ID_REQUIRED")
	}
	return nil
}

func requireTemplate(tmpl *merge.Template) error {
	if tmpl == nil {
		return errors.New("template is required", errors.CategoryValidation).
			WithTextCode("TEMPLATE_REQUIRED")
	}
	return nil
}
