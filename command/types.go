package command

import (
	"github.com/goliatone/go-docmerge/merge"
	"github.com/goliatone/go-errors"
)

// RunBatch merges the selected dataset records into a template.
type RunBatch struct {
	Request merge.BatchRequest
	Result  *merge.BatchResult
}

func (RunBatch) Type() string { return "docmerge:run_batch" }

func (msg RunBatch) Validate() error {
	if msg.Request.Template == nil {
		return errors.New("template is required", errors.CategoryValidation).
			WithTextCode("TEMPLATE_REQUIRED")
	}
	if msg.Request.Dataset == nil {
		return errors.New("dataset is required", errors.CategoryValidation).
			WithTextCode("DATASET_REQUIRED")
	}
	if msg.Request.NameColumn == "" {
		return errors.New("name column is required", errors.CategoryValidation).
			WithTextCode("NAME_COLUMN_REQUIRED")
	}
	return nil
}

// FillManual fills a template once from manually entered values.
type FillManual struct {
	Request merge.ManualRequest
	Result  *merge.BatchResult
}

func (FillManual) Type() string { return "docmerge:fill_manual" }

func (msg FillManual) Validate() error {
	if msg.Request.Template == nil {
		return errors.New("template is required", errors.CategoryValidation).
			WithTextCode("TEMPLATE_REQUIRED")
	}
	return nil
}
