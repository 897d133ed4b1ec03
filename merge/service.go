package merge

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Service coordinates template scanning, binding and batch export.
type Service interface {
	Placeholders(ctx context.Context, tmpl *Template) (Placeholders, error)
	Reconcile(ctx context.Context, tmpl *Template, dataset *Dataset) (Reconciliation, error)
	ManualForm(ctx context.Context, tmpl *Template) ([]FieldSpec, error)
	RunBatch(ctx context.Context, req BatchRequest) (BatchResult, error)
	FillManual(ctx context.Context, req ManualRequest) (BatchResult, error)
	History(ctx context.Context, filter HistoryFilter) ([]BatchRecord, error)
	Batch(ctx context.Context, batchID string) (BatchRecord, error)
}

// BatchRequest selects dataset records to merge into a template.
type BatchRequest struct {
	Template   *Template
	Dataset    *Dataset
	NameColumn string
	// Selected lists record identifiers (name-column values). Empty selects
	// every record.
	Selected []string
	Formats  []Format
	Extras   Extras
	Progress ProgressFunc
	// Source labels the dataset origin in batch history.
	Source string
}

// ManualRequest fills a template from manually entered values.
type ManualRequest struct {
	Template   *Template
	Values     map[string]string
	Images     []ImageAttachment
	Formats    []Format
	Identifier string
	Progress   ProgressFunc
}

// ServiceConfig supplies dependencies for Service.
type ServiceConfig struct {
	Scanner         TemplateScanner
	Engine          Engine
	Pipeline        *Pipeline
	Store           ArtifactStore
	History         BatchHistory
	Binder          *Binder
	Logger          Logger
	FilenamePattern string
	Scripts         []ScriptRange
	Now             func() time.Time
	IDGenerator     func() string
}

type service struct {
	scanner         TemplateScanner
	engine          Engine
	pipeline        *Pipeline
	store           ArtifactStore
	history         BatchHistory
	binder          *Binder
	logger          Logger
	filenamePattern string
	scripts         []ScriptRange
	now             func() time.Time
	idGenerator     func() string
}

// NewService creates a Service with the provided configuration.
func NewService(cfg ServiceConfig) Service {
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	idGen := cfg.IDGenerator
	if idGen == nil {
		idGen = uuid.NewString
	}
	logger := loggerOrNop(cfg.Logger)

	binder := cfg.Binder
	if binder == nil {
		binder = NewBinder()
		binder.Now = nowFn
	}
	if binder.Now == nil {
		binder.Now = nowFn
	}
	if binder.Logger == nil {
		binder.Logger = logger
	}

	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	if cfg.Pipeline != nil && cfg.Pipeline.Logger == nil {
		cfg.Pipeline.Logger = logger
	}

	return &service{
		scanner:         cfg.Scanner,
		engine:          cfg.Engine,
		pipeline:        cfg.Pipeline,
		store:           store,
		history:         cfg.History,
		binder:          binder,
		logger:          logger,
		filenamePattern: cfg.FilenamePattern,
		scripts:         cfg.Scripts,
		now:             nowFn,
		idGenerator:     idGen,
	}
}

func (s *service) Placeholders(ctx context.Context, tmpl *Template) (Placeholders, error) {
	return ScanPlaceholders(ctx, s.scanner, tmpl)
}

func (s *service) Reconcile(ctx context.Context, tmpl *Template, dataset *Dataset) (Reconciliation, error) {
	placeholders, err := s.Placeholders(ctx, tmpl)
	if err != nil {
		return Reconciliation{}, err
	}
	if dataset == nil {
		return Reconciliation{}, NewError(KindValidation, "dataset is required", nil)
	}
	return Reconcile(placeholders, dataset.Headers, s.computedNames()), nil
}

// computedNames lists the names the binder fills without a column.
func (s *service) computedNames() []string {
	names := append([]string(nil), s.binder.DateAliases...)
	for _, field := range s.binder.Computed {
		names = append(names, field.Name)
	}
	return names
}

func (s *service) ManualForm(ctx context.Context, tmpl *Template) ([]FieldSpec, error) {
	placeholders, err := s.Placeholders(ctx, tmpl)
	if err != nil {
		return nil, err
	}
	return ManualForm(placeholders), nil
}

// RunBatch validates the request, binds every selected record and runs the
// jobs on the single-worker queue. The returned error is non-nil only when
// the operation aborts before any job runs.
func (s *service) RunBatch(ctx context.Context, req BatchRequest) (BatchResult, error) {
	if req.Dataset == nil {
		return BatchResult{}, NewError(KindValidation, "dataset is required", nil)
	}
	if req.NameColumn == "" {
		return BatchResult{}, NewError(KindValidation, "name column is required", nil)
	}
	if !req.Dataset.HasHeader(req.NameColumn) {
		return BatchResult{}, NewError(KindValidation, fmt.Sprintf("name column %q is not a dataset header", req.NameColumn), nil)
	}
	placeholders, err := s.Placeholders(ctx, req.Template)
	if err != nil {
		return BatchResult{}, err
	}
	formats, err := normalizeFormats(req.Formats)
	if err != nil {
		return BatchResult{}, err
	}

	selected := req.Selected
	if len(selected) == 0 {
		selected = req.Dataset.Column(req.NameColumn)
	}

	if unresolved := Reconcile(placeholders, req.Dataset.Headers, s.computedNames()).Unresolved(); len(unresolved) > 0 {
		s.logger.Warnf("placeholders without a matching column: %v", unresolved)
	}

	jobs := make([]ExportJob, 0, len(selected))
	for _, id := range selected {
		job := ExportJob{ID: id, Formats: formats}
		if rec, ok := req.Dataset.Find(req.NameColumn, id); ok {
			job.Record = &rec
			job.Data = s.binder.Bind(rec, placeholders, req.Extras)
		}
		jobs = append(jobs, job)
	}

	now := s.now()
	exec := &jobExecutor{
		service:  s,
		template: req.Template,
		column:   req.NameColumn,
		filename: func(id, ext string) (string, error) {
			return OutputFilename(s.filenamePattern, id, ext, now, s.scripts...)
		},
	}
	result := s.orchestrator(req.Progress).RunBatch(ctx, jobs, exec.execute)
	s.remember(req.Template, req.Source, result)
	return result, nil
}

// FillManual fills the template once from manually entered values. Values
// for auto-filled fields are ignored when empty so the current date applies;
// ISO dates in date fields are re-formatted for the binder locale.
func (s *service) FillManual(ctx context.Context, req ManualRequest) (BatchResult, error) {
	placeholders, err := s.Placeholders(ctx, req.Template)
	if err != nil {
		return BatchResult{}, err
	}
	formats, err := normalizeFormats(req.Formats)
	if err != nil {
		return BatchResult{}, err
	}

	headers, values := s.manualRecord(placeholders, req.Values)
	rec := NewRecord(headers, values)

	now := s.now()
	id := req.Identifier
	filename := func(_ string, ext string) (string, error) {
		return fmt.Sprintf("%s.%s", ManualIdentifier(now), ext), nil
	}
	if id == "" {
		id = ManualIdentifier(now)
	} else {
		filename = func(id, ext string) (string, error) {
			return OutputFilename(s.filenamePattern, id, ext, now, s.scripts...)
		}
	}

	job := ExportJob{
		ID:      id,
		Record:  &rec,
		Data:    s.binder.Bind(rec, placeholders, Extras{Images: req.Images}),
		Formats: formats,
	}
	exec := &jobExecutor{
		service:  s,
		template: req.Template,
		column:   "manual",
		filename: filename,
	}
	result := s.orchestrator(req.Progress).RunBatch(ctx, []ExportJob{job}, exec.execute)
	s.remember(req.Template, "manual", result)
	return result, nil
}

// History lists recorded batches.
func (s *service) History(ctx context.Context, filter HistoryFilter) ([]BatchRecord, error) {
	if s.history == nil {
		return nil, NewError(KindValidation, "batch history is not configured", nil)
	}
	return s.history.List(ctx, filter)
}

// Batch returns one recorded batch with its jobs.
func (s *service) Batch(ctx context.Context, batchID string) (BatchRecord, error) {
	if s.history == nil {
		return BatchRecord{}, NewError(KindValidation, "batch history is not configured", nil)
	}
	if batchID == "" {
		return BatchRecord{}, NewError(KindValidation, "batch id is required", nil)
	}
	return s.history.Get(ctx, batchID)
}

// remember writes the batch to history. The caller context may already be
// canceled, so the write uses its own.
func (s *service) remember(tmpl *Template, source string, result BatchResult) {
	if s.history == nil {
		return
	}
	name := ""
	if tmpl != nil {
		name = tmpl.Name
	}
	if err := s.history.Record(context.Background(), NewBatchRecord(name, source, result)); err != nil {
		s.logger.Warnf("batch %s: history write failed: %v", result.BatchID, err)
	}
}

func (s *service) manualRecord(placeholders Placeholders, values map[string]string) ([]string, []string) {
	headers := []string{}
	out := []string{}
	seen := map[string]bool{}
	add := func(name, value string) {
		if seen[name] {
			return
		}
		seen[name] = true
		if IsAutoFilled(name) && CleanValue(value) == "" {
			return
		}
		if ClassifyField(name) == FieldDate {
			value = ReformatDate(value, s.binder.Locale)
		}
		headers = append(headers, name)
		out = append(out, CleanValue(value))
	}
	for _, name := range placeholders.Names {
		if value, ok := values[name]; ok {
			add(name, value)
		}
	}
	extra := make([]string, 0, len(values))
	for name := range values {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		add(name, values[name])
	}
	return headers, out
}

func (s *service) orchestrator(progress ProgressFunc) *Orchestrator {
	return &Orchestrator{
		BatchID:  s.idGenerator(),
		Logger:   s.logger,
		Progress: progress,
		Now:      s.now,
	}
}

type jobExecutor struct {
	service  *service
	template *Template
	column   string
	filename func(id, ext string) (string, error)
}

func (e *jobExecutor) execute(ctx context.Context, job ExportJob, report func(Stage)) (JobOutcome, error) {
	s := e.service
	if job.Record == nil {
		return JobOutcome{}, NewRowNotFoundError(e.column, job.ID)
	}

	report(StageFilling)
	filled, err := Fill(ctx, s.engine, e.template, job.ID, job.Data)
	if err != nil {
		return JobOutcome{}, err
	}

	outcome, err := e.export(ctx, job, filled, report)
	if err != nil {
		e.discard(job.ID, outcome.Outputs)
		return JobOutcome{}, err
	}
	return outcome, nil
}

// export writes one output per requested format. On error the outputs
// already stored are returned so the caller can remove them.
func (e *jobExecutor) export(ctx context.Context, job ExportJob, filled FilledDocument, report func(Stage)) (JobOutcome, error) {
	s := e.service
	var outcome JobOutcome
	for _, format := range job.Formats {
		var payload []byte
		ext := string(format)
		switch format {
		case FormatDOCX:
			payload = filled.Data
			ext = e.template.Ext
		case FormatPDF:
			if s.pipeline == nil {
				return outcome, NewExportError(job.ID, "pdf output requires a render pipeline", nil)
			}
			rendered, err := s.pipeline.Export(ctx, filled, report)
			if err != nil {
				return outcome, err
			}
			for _, degraded := range rendered.Degraded {
				outcome.Warnings = append(outcome.Warnings, degraded.Error())
			}
			payload = rendered.Output
		default:
			return outcome, NewExportError(job.ID, fmt.Sprintf("unsupported format %q", format), nil)
		}

		report(StageSaving)
		name, err := e.filename(job.ID, ext)
		if err != nil {
			return outcome, NewExportError(job.ID, "output name failed", err)
		}
		ref, err := s.store.Put(ctx, name, bytes.NewReader(payload), ArtifactMeta{
			ContentType: ContentType(format),
			Filename:    name,
			RecordID:    job.ID,
			CreatedAt:   s.now(),
		})
		if err != nil {
			return outcome, NewExportError(job.ID, "storing output failed", err)
		}
		outcome.Outputs = append(outcome.Outputs, ref)
	}
	return outcome, nil
}

// discard removes the outputs of a failed job so no partial result stays
// in the store.
func (e *jobExecutor) discard(id string, refs []ArtifactRef) {
	for _, ref := range refs {
		if err := e.service.store.Delete(context.Background(), ref.Key); err != nil {
			e.service.logger.Warnf("job %s: removing output %s failed: %v", id, ref.Key, err)
		}
	}
}

func normalizeFormats(formats []Format) ([]Format, error) {
	values := make([]string, 0, len(formats))
	for _, format := range formats {
		values = append(values, string(format))
	}
	return ParseFormats(values)
}
