package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
)

// textScanner treats the template bytes as plain text.
type textScanner struct{}

func (textScanner) ScanText(ctx context.Context, tmpl *Template) (string, error) {
	if tmpl.Size() == 0 {
		return "", errors.New("empty archive")
	}
	return string(tmpl.Data()), nil
}

// textEngine substitutes string values into plain-text templates.
func textEngine() Engine {
	return EngineFunc(func(ctx context.Context, tmpl *Template, data TemplateDataMap) ([]byte, error) {
		text := string(tmpl.Data())
		for _, token := range ScanTokens(text, tmpl.Delimiters, "") {
			if value, ok := data.String(token.Name); ok {
				text = strings.Replace(text, tmpl.Delimiters.Start+token.Name+tmpl.Delimiters.End, value, 1)
			}
		}
		return []byte(text), nil
	})
}

type failingHistory struct{ MemoryHistory }

func (h *failingHistory) Record(context.Context, BatchRecord) error {
	return errors.New("disk full")
}

func newTestService(t *testing.T, engine Engine) (Service, *MemoryStore, *MemoryHistory) {
	t.Helper()
	store := NewMemoryStore()
	history := NewMemoryHistory()
	svc := NewService(ServiceConfig{
		Scanner:     textScanner{},
		Engine:      engine,
		Store:       store,
		History:     history,
		Now:         func() time.Time { return fixedNow },
		IDGenerator: func() string { return "batch-1" },
	})
	return svc, store, history
}

func readOutput(t *testing.T, store *MemoryStore, key string) string {
	t.Helper()
	reader, _, err := store.Open(context.Background(), key)
	if err != nil {
		t.Fatalf("open %s: %v", key, err)
	}
	defer reader.Close()
	data, _ := io.ReadAll(reader)
	return string(data)
}

func peopleDataset(t *testing.T) *Dataset {
	t.Helper()
	dataset, err := LoadDataset(StringRows([][]string{
		{"Full Name", "City (main)"},
		{"Ada Lovelace", "London"},
		{"Grace Hopper", ""},
	}), 0)
	if err != nil {
		t.Fatalf("load dataset: %v", err)
	}
	return dataset
}

func TestServiceRunBatchEndToEnd(t *testing.T) {
	svc, store, history := newTestService(t, textEngine())
	tmpl := NewTemplate([]byte("Dear <<Full Name>> from <<City>> on <<Date>>"), TemplateOptions{Name: "letter.docx"})

	var events []ProgressEvent
	result, err := svc.RunBatch(context.Background(), BatchRequest{
		Template:   tmpl,
		Dataset:    peopleDataset(t),
		NameColumn: "Full Name",
		Selected:   []string{"Ada Lovelace", "Nobody", "Grace Hopper"},
		Formats:    []Format{FormatDOCX},
		Progress:   func(e ProgressEvent) { events = append(events, e) },
		Source:     "people.xlsx",
	})
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if result.Summary() != "exported 2 of 3 documents" {
		t.Fatalf("unexpected summary %q", result.Summary())
	}
	failure := result.FailureFor("Nobody")
	if KindFromError(failure) != KindRowNotFound || RecordIDFromError(failure) != "Nobody" {
		t.Fatalf("expected row_not_found for Nobody, got %v", failure)
	}

	if got := readOutput(t, store, "Ada_Lovelace.docx"); got != "Dear Ada Lovelace from London on 5.3.2024" {
		t.Fatalf("unexpected Ada output %q", got)
	}
	if got := readOutput(t, store, "Grace_Hopper.docx"); got != "Dear Grace Hopper from  on 5.3.2024" {
		t.Fatalf("expected Grace output without Ada's values, got %q", got)
	}
	if len(events) == 0 || events[len(events)-1].Stage != StageBatchComplete {
		t.Fatalf("expected progress ending with batch complete")
	}

	record, err := svc.Batch(context.Background(), "batch-1")
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if record.Template != "letter.docx" || record.Source != "people.xlsx" || record.Failed != 1 || len(record.Jobs) != 3 {
		t.Fatalf("unexpected history record %+v", record)
	}
	if record.Jobs[0].Outputs[0] != "Ada_Lovelace.docx" || record.Jobs[1].Kind != KindRowNotFound {
		t.Fatalf("unexpected job records %+v", record.Jobs)
	}
	if list, _ := history.List(context.Background(), HistoryFilter{}); len(list) != 1 {
		t.Fatalf("expected one recorded batch, got %d", len(list))
	}
}

func TestServiceRunBatchAllRecords(t *testing.T) {
	svc, store, _ := newTestService(t, textEngine())
	tmpl := NewTemplate([]byte("<<Full Name>>"), TemplateOptions{Name: "t.docx"})

	result, err := svc.RunBatch(context.Background(), BatchRequest{Template: tmpl, Dataset: peopleDataset(t), NameColumn: "Full Name"})
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if result.Succeeded != 2 || len(store.Keys()) != 2 {
		t.Fatalf("expected every record exported, got %+v keys %v", result, store.Keys())
	}
}

func TestServiceRunBatchValidation(t *testing.T) {
	svc, _, _ := newTestService(t, textEngine())
	tmpl := NewTemplate([]byte("<<Full Name>>"), TemplateOptions{})
	dataset := peopleDataset(t)

	tests := []struct {
		name string
		req  BatchRequest
		kind ErrorKind
	}{
		{name: "no dataset", req: BatchRequest{Template: tmpl, NameColumn: "Full Name"}, kind: KindValidation},
		{name: "no name column", req: BatchRequest{Template: tmpl, Dataset: dataset}, kind: KindValidation},
		{name: "unknown name column", req: BatchRequest{Template: tmpl, Dataset: dataset, NameColumn: "Email"}, kind: KindValidation},
		{name: "no template", req: BatchRequest{Dataset: dataset, NameColumn: "Full Name"}, kind: KindTemplateParse},
		{name: "bad format", req: BatchRequest{Template: tmpl, Dataset: dataset, NameColumn: "Full Name", Formats: []Format{"odt"}}, kind: KindValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RunBatch(context.Background(), tc.req)
			if KindFromError(err) != tc.kind {
				t.Fatalf("expected %s, got %v", tc.kind, err)
			}
		})
	}
}

func TestServiceEngineFailureIsPerJob(t *testing.T) {
	engine := EngineFunc(func(ctx context.Context, tmpl *Template, data TemplateDataMap) ([]byte, error) {
		if data["Full Name"] == "Ada Lovelace" {
			return nil, errors.New("broken run properties")
		}
		return []byte("ok"), nil
	})
	svc, _, _ := newTestService(t, engine)
	tmpl := NewTemplate([]byte("<<Full Name>>"), TemplateOptions{})

	result, err := svc.RunBatch(context.Background(), BatchRequest{Template: tmpl, Dataset: peopleDataset(t), NameColumn: "Full Name"})
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	failure := result.FailureFor("Ada Lovelace")
	if KindFromError(failure) != KindTemplateRender || RecordIDFromError(failure) != "Ada Lovelace" {
		t.Fatalf("expected template_render for Ada, got %v", failure)
	}
	if result.Succeeded != 1 {
		t.Fatalf("expected Grace to succeed, got %+v", result)
	}
}

func TestServicePDFWithoutPipelineFails(t *testing.T) {
	svc, _, _ := newTestService(t, textEngine())
	tmpl := NewTemplate([]byte("<<Full Name>>"), TemplateOptions{})

	result, err := svc.RunBatch(context.Background(), BatchRequest{
		Template:   tmpl,
		Dataset:    peopleDataset(t),
		NameColumn: "Full Name",
		Selected:   []string{"Ada Lovelace"},
		Formats:    []Format{FormatPDF},
	})
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if KindFromError(result.FailureFor("Ada Lovelace")) != KindExport {
		t.Fatalf("expected export failure, got %v", result.FailureFor("Ada Lovelace"))
	}
}

func TestServiceRunBatchWithPipeline(t *testing.T) {
	store := NewMemoryStore()
	surface := &fakeSurface{raster: Raster{PNG: []byte("png"), Width: 10, Height: 10}}
	pipeline, _ := newTestPipeline(surface)
	svc := NewService(ServiceConfig{
		Scanner:  textScanner{},
		Engine:   textEngine(),
		Pipeline: pipeline,
		Store:    store,
		Now:      func() time.Time { return fixedNow },
	})
	tmpl := NewTemplate([]byte("<<Full Name>>"), TemplateOptions{Name: "t.docx"})

	result, err := svc.RunBatch(context.Background(), BatchRequest{
		Template:   tmpl,
		Dataset:    peopleDataset(t),
		NameColumn: "Full Name",
		Selected:   []string{"Ada Lovelace"},
		Formats:    []Format{FormatDOCX, FormatPDF},
	})
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if result.Succeeded != 1 {
		t.Fatalf("expected success, got %v", result.FailureFor("Ada Lovelace"))
	}
	if got := strings.Join(store.Keys(), ","); got != "Ada_Lovelace.docx,Ada_Lovelace.pdf" {
		t.Fatalf("unexpected outputs %q", got)
	}
	if got := readOutput(t, store, "Ada_Lovelace.pdf"); got != "%PDF-stub" {
		t.Fatalf("unexpected pdf payload %q", got)
	}
}

func TestServiceCanceledBatchSkipsJobs(t *testing.T) {
	svc, _, history := newTestService(t, textEngine())
	tmpl := NewTemplate([]byte("<<Full Name>>"), TemplateOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.RunBatch(ctx, BatchRequest{Template: tmpl, Dataset: peopleDataset(t), NameColumn: "Full Name"})
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if result.Skipped != 2 || result.Attempted != 0 {
		t.Fatalf("expected every job skipped, got %+v", result)
	}
	if _, err := history.Get(context.Background(), "batch-1"); err != nil {
		t.Fatalf("expected canceled batch recorded, got %v", err)
	}
}

func TestServiceFillManual(t *testing.T) {
	svc, store, history := newTestService(t, textEngine())
	tmpl := NewTemplate([]byte("<<Full Name>> / <<Birth Date>> / <<Today>> / <<Notes>>"), TemplateOptions{Name: "form.docx"})

	fields, err := svc.ManualForm(context.Background(), tmpl)
	if err != nil || len(fields) != 4 || fields[1].Kind != FieldDate || fields[2].Kind != FieldAuto {
		t.Fatalf("unexpected manual form %+v (%v)", fields, err)
	}

	result, err := svc.FillManual(context.Background(), ManualRequest{
		Template: tmpl,
		Values: map[string]string{
			"Full Name":  " Ada  Lovelace ",
			"Birth Date": "1815-12-10",
			"Today":      "",
			"Notes":      "first<br>programmer",
		},
	})
	if err != nil {
		t.Fatalf("fill manual: %v", err)
	}
	if result.Succeeded != 1 {
		t.Fatalf("expected success, got %+v", result)
	}
	key := "document_2024-03-05.docx"
	if got := readOutput(t, store, key); got != "Ada Lovelace / 10.12.1815 / 5.3.2024 / first programmer" {
		t.Fatalf("unexpected manual output %q", got)
	}

	result, err = svc.FillManual(context.Background(), ManualRequest{
		Template:   tmpl,
		Values:     map[string]string{"Full Name": "Grace"},
		Identifier: "grace letter",
	})
	if err != nil || result.Jobs[0].Outputs[0].Key != "grace_letter.docx" {
		t.Fatalf("expected identified output, got %+v (%v)", result, err)
	}

	records, _ := history.List(context.Background(), HistoryFilter{})
	if len(records) != 1 || records[0].Source != "manual" {
		t.Fatalf("expected manual batches recorded under one id, got %+v", records)
	}
}

func TestServiceHistoryFailureIsLogged(t *testing.T) {
	svc := NewService(ServiceConfig{
		Scanner: textScanner{},
		Engine:  textEngine(),
		History: &failingHistory{},
	})
	tmpl := NewTemplate([]byte("<<Full Name>>"), TemplateOptions{})
	result, err := svc.RunBatch(context.Background(), BatchRequest{Template: tmpl, Dataset: peopleDataset(t), NameColumn: "Full Name"})
	if err != nil || result.Succeeded != 2 {
		t.Fatalf("expected history failure not to affect result, got %+v (%v)", result, err)
	}
}

func TestServiceHistoryNotConfigured(t *testing.T) {
	svc := NewService(ServiceConfig{Scanner: textScanner{}, Engine: textEngine()})
	if _, err := svc.History(context.Background(), HistoryFilter{}); KindFromError(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Batch(context.Background(), "x"); KindFromError(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestServiceReconcile(t *testing.T) {
	svc, _, _ := newTestService(t, textEngine())
	tmpl := NewTemplate([]byte("<<Full Name>> <<City>> <<Zip>>"), TemplateOptions{})
	rec, err := svc.Reconcile(context.Background(), tmpl, peopleDataset(t))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if got := strings.Join(rec.Unresolved(), ","); got != "Zip" {
		t.Fatalf("expected Zip unresolved, got %q", got)
	}
}

func TestServiceSingleRecordScenario(t *testing.T) {
	svc, store, _ := newTestService(t, textEngine())
	tmpl := NewTemplate([]byte("<<Name>> was born on <<Date>>"), TemplateOptions{Name: "bio.docx"})
	dataset, err := LoadDataset([][]any{{"Name", "Date"}, {"Ada Lovelace", "1815-12-10"}}, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	result, err := svc.RunBatch(context.Background(), BatchRequest{
		Template:   tmpl,
		Dataset:    dataset,
		NameColumn: "Name",
		Selected:   []string{"Ada Lovelace"},
	})
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if result.Attempted != 1 || result.Succeeded != 1 || result.Failed != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := readOutput(t, store, "Ada_Lovelace.docx"); got != "Ada Lovelace was born on 1815-12-10" {
		t.Fatalf("expected record date to win over the date alias, got %q", got)
	}
}

type recordingLogger struct {
	NopLogger
	warnings []string
}

func (l *recordingLogger) Warnf(format string, args ...any) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

func TestServiceFailedFormatRemovesEarlierOutputs(t *testing.T) {
	store := NewMemoryStore()
	surface := &fakeSurface{captureFn: func() (Raster, error) {
		return Raster{}, errors.New("screenshot failed")
	}}
	pipeline, _ := newTestPipeline(surface)
	svc := NewService(ServiceConfig{
		Scanner:  textScanner{},
		Engine:   textEngine(),
		Pipeline: pipeline,
		Store:    store,
		Now:      func() time.Time { return fixedNow },
	})
	tmpl := NewTemplate([]byte("<<Full Name>>"), TemplateOptions{Name: "t.docx"})

	result, err := svc.RunBatch(context.Background(), BatchRequest{
		Template:   tmpl,
		Dataset:    peopleDataset(t),
		NameColumn: "Full Name",
		Selected:   []string{"Ada Lovelace"},
		Formats:    []Format{FormatDOCX, FormatPDF},
	})
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if result.Failed != 1 || len(result.Jobs[0].Outputs) != 0 {
		t.Fatalf("expected a failed job without outputs, got %+v", result)
	}
	if keys := store.Keys(); len(keys) != 0 {
		t.Fatalf("expected docx output removed after pdf failure, got %v", keys)
	}
	if refs := store.ForRecord("Ada Lovelace"); len(refs) != 0 {
		t.Fatalf("expected no outputs indexed for the record, got %v", refs)
	}
}

func TestServiceRunBatchWarnsOnlyForUnfilledPlaceholders(t *testing.T) {
	log := &recordingLogger{}
	binder := NewBinder()
	fields, err := CompileComputedFields(map[string]string{"Initial": `record["Full Name"]`})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	binder.Computed = fields
	svc := NewService(ServiceConfig{
		Scanner: textScanner{},
		Engine:  textEngine(),
		Binder:  binder,
		Logger:  log,
	})
	tmpl := NewTemplate([]byte("<<Full Name>> <<Initial>> <<Today>> <<Zip>>"), TemplateOptions{})

	if _, err := svc.RunBatch(context.Background(), BatchRequest{Template: tmpl, Dataset: peopleDataset(t), NameColumn: "Full Name"}); err != nil {
		t.Fatalf("run batch: %v", err)
	}
	var unresolved []string
	for _, w := range log.warnings {
		if strings.HasPrefix(w, "placeholders without a matching column") {
			unresolved = append(unresolved, w)
		}
	}
	if len(unresolved) != 1 || unresolved[0] != "placeholders without a matching column: [Zip]" {
		t.Fatalf("expected a single warning naming Zip, got %v", log.warnings)
	}
}

func TestServiceFillManualUsesFilenamePattern(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(ServiceConfig{
		Scanner:         textScanner{},
		Engine:          textEngine(),
		Store:           store,
		FilenamePattern: "{{.ID}}_{{.Date}}",
		Now:             func() time.Time { return fixedNow },
	})
	tmpl := NewTemplate([]byte("<<Full Name>>"), TemplateOptions{Name: "form.docx"})

	result, err := svc.FillManual(context.Background(), ManualRequest{
		Template:   tmpl,
		Values:     map[string]string{"Full Name": "Grace"},
		Identifier: "grace",
	})
	if err != nil {
		t.Fatalf("fill manual: %v", err)
	}
	if got := result.Jobs[0].Outputs[0].Key; got != "grace_2024_03_05.docx" {
		t.Fatalf("expected configured pattern applied, got %q", got)
	}
	if refs := store.ForRecord("grace"); len(refs) != 1 || refs[0].Key != "grace_2024_03_05.docx" {
		t.Fatalf("expected output indexed under the identifier, got %v", refs)
	}
}
