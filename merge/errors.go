package merge

import (
	"context"
	"errors"
	"fmt"
	"time"

	errorslib "github.com/goliatone/go-errors"
)

// ErrorKind defines merge error kinds.
type ErrorKind string

const (
	KindTemplateParse  ErrorKind = "template_parse"
	KindRowNotFound    ErrorKind = "row_not_found"
	KindTemplateRender ErrorKind = "template_render"
	KindRenderTimeout  ErrorKind = "render_timeout"
	KindExport         ErrorKind = "export"
	KindValidation     ErrorKind = "validation"
	KindNotFound       ErrorKind = "not_found"
	KindTimeout        ErrorKind = "timeout"
	KindCanceled       ErrorKind = "canceled"
	KindInternal       ErrorKind = "internal"
)

// MergeError wraps errors with a kind and, for job-scoped failures, the
// identifier of the record being processed.
type MergeError struct {
	Kind     ErrorKind
	Msg      string
	RecordID string
	Err      error
}

func (e *MergeError) Error() string {
	msg := e.Msg
	if e.RecordID != "" {
		msg = fmt.Sprintf("%s [record %q]", msg, e.RecordID)
	}
	if e.Err == nil {
		return msg
	}
	return msg + ": " + e.Err.Error()
}

func (e *MergeError) Unwrap() error {
	return e.Err
}

// NewError creates a new merge error.
func NewError(kind ErrorKind, msg string, err error) *MergeError {
	return &MergeError{Kind: kind, Msg: msg, Err: err}
}

// NewTemplateParseError reports an unreadable template. It aborts the whole
// operation before any job runs.
func NewTemplateParseError(name string, err error) *MergeError {
	msg := "template could not be parsed"
	if name != "" {
		msg = fmt.Sprintf("template %q could not be parsed", name)
	}
	return &MergeError{Kind: KindTemplateParse, Msg: msg, Err: err}
}

// NewRowNotFoundError reports a selected identifier with no matching record.
func NewRowNotFoundError(column, id string) *MergeError {
	return &MergeError{
		Kind:     KindRowNotFound,
		Msg:      fmt.Sprintf("no record with %s = %q", column, id),
		RecordID: id,
	}
}

// NewTemplateRenderError reports a substitution engine failure for one record.
func NewTemplateRenderError(recordID string, err error) *MergeError {
	return &MergeError{Kind: KindTemplateRender, Msg: "template fill failed", RecordID: recordID, Err: err}
}

// NewRenderTimeout reports a resource wait that ran out of time. It marks a
// degraded success and is logged rather than returned from a job.
func NewRenderTimeout(recordID, resource string, timeout time.Duration) *MergeError {
	return &MergeError{
		Kind:     KindRenderTimeout,
		Msg:      fmt.Sprintf("%s did not settle within %s", resource, timeout),
		RecordID: recordID,
		Err:      context.DeadlineExceeded,
	}
}

// NewExportError reports a rasterization or encoding failure after the
// document was rendered.
func NewExportError(recordID, msg string, err error) *MergeError {
	return &MergeError{Kind: KindExport, Msg: msg, RecordID: recordID, Err: err}
}

// AsGoError maps an error into a go-errors error.
func AsGoError(err error) *errorslib.Error {
	if err == nil {
		return nil
	}

	var ge *errorslib.Error
	if errors.As(err, &ge) {
		return ge
	}

	kind := KindFromError(err)
	msg := err.Error()

	var mergeErr *MergeError
	if errors.As(err, &mergeErr) && mergeErr.Msg != "" {
		msg = mergeErr.Error()
	}

	switch kind {
	case KindTemplateParse:
		return errorslib.New(msg, errorslib.CategoryValidation).WithTextCode("template_parse")
	case KindValidation:
		return errorslib.New(msg, errorslib.CategoryValidation).WithTextCode("validation")
	case KindRowNotFound:
		return errorslib.New(msg, errorslib.CategoryNotFound).WithTextCode("row_not_found")
	case KindNotFound:
		return errorslib.New(msg, errorslib.CategoryNotFound).WithTextCode("not_found")
	case KindTemplateRender:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode("template_render")
	case KindRenderTimeout:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode("render_timeout")
	case KindExport:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode("export")
	case KindTimeout:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode("timeout")
	case KindCanceled:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode("canceled")
	default:
		return errorslib.New(msg, errorslib.CategoryInternal).WithTextCode("internal")
	}
}

// KindFromError maps an error to its merge error kind.
func KindFromError(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var mergeErr *MergeError
	if errors.As(err, &mergeErr) {
		return mergeErr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}

	return KindInternal
}

// RecordIDFromError returns the record identifier attached to err, if any.
func RecordIDFromError(err error) string {
	var mergeErr *MergeError
	if errors.As(err, &mergeErr) {
		return mergeErr.RecordID
	}
	return ""
}
