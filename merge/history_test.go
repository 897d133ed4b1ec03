package merge

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewBatchRecord(t *testing.T) {
	result := BatchResult{
		BatchID:   "b1",
		Attempted: 2,
		Succeeded: 1,
		Failed:    1,
		Skipped:   1,
		Jobs: []JobStatus{
			{Index: 0, ID: "Ada", State: JobSucceeded, Outputs: []ArtifactRef{{Key: "Ada.docx"}, {Key: "Ada.pdf"}}, Warnings: []string{"fonts slow"}, Duration: 1500 * time.Millisecond},
			{Index: 1, ID: "Nobody", State: JobFailed, Kind: KindRowNotFound, Err: errors.New("no record")},
			{Index: 2, ID: "Grace", State: JobSkipped, Kind: KindCanceled, Err: context.Canceled},
		},
		StartedAt: fixedNow,
	}
	record := NewBatchRecord("letter.docx", "people.xlsx", result)
	if record.Summary() != result.Summary() {
		t.Fatalf("expected matching summaries, got %q vs %q", record.Summary(), result.Summary())
	}
	if len(record.Jobs) != 3 || record.Jobs[0].DurationMS != 1500 || len(record.Jobs[0].Outputs) != 2 {
		t.Fatalf("unexpected first job %+v", record.Jobs[0])
	}
	if record.Jobs[1].Kind != KindRowNotFound || record.Jobs[1].Error != "no record" {
		t.Fatalf("unexpected failed job %+v", record.Jobs[1])
	}
	if record.Jobs[2].Kind != KindCanceled {
		t.Fatalf("unexpected skipped job %+v", record.Jobs[2])
	}
	if record.Jobs[0].Kind != "" {
		t.Fatalf("expected no kind for successful job")
	}
}

func TestMemoryHistory(t *testing.T) {
	ctx := context.Background()
	history := NewMemoryHistory()
	for i, tmpl := range []string{"a.docx", "b.docx", "a.docx"} {
		record := BatchRecord{
			BatchID:   string(rune('1' + i)),
			Template:  tmpl,
			StartedAt: fixedNow.Add(time.Duration(i) * time.Hour),
		}
		if err := history.Record(ctx, record); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	list, err := history.List(ctx, HistoryFilter{})
	if err != nil || len(list) != 3 || list[0].BatchID != "3" {
		t.Fatalf("expected newest first, got %+v (%v)", list, err)
	}
	list, _ = history.List(ctx, HistoryFilter{Template: "a.docx", Limit: 1})
	if len(list) != 1 || list[0].BatchID != "3" {
		t.Fatalf("expected filtered and limited list, got %+v", list)
	}
	list, _ = history.List(ctx, HistoryFilter{Since: fixedNow.Add(30 * time.Minute)})
	if len(list) != 2 {
		t.Fatalf("expected since filter, got %+v", list)
	}

	if err := history.Record(ctx, BatchRecord{BatchID: "1", Template: "c.docx"}); err != nil {
		t.Fatalf("re-record: %v", err)
	}
	record, err := history.Get(ctx, "1")
	if err != nil || record.Template != "c.docx" {
		t.Fatalf("expected replaced record, got %+v (%v)", record, err)
	}
	if _, err := history.Get(ctx, "missing"); KindFromError(err) != KindNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
	if err := history.Record(ctx, BatchRecord{}); KindFromError(err) != KindValidation {
		t.Fatalf("expected validation error for empty id, got %v", err)
	}
}
