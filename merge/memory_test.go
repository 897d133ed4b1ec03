package merge

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestMemoryStoreIndexesOutputsByRecord(t *testing.T) {
	store := NewMemoryStore()
	store.Now = func() time.Time { return fixedNow }
	ctx := context.Background()

	ref, err := store.Put(ctx, "Ada_Lovelace.docx", strings.NewReader("doc"), ArtifactMeta{RecordID: "Ada Lovelace"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if ref.Meta.Size != 3 || ref.Meta.Filename != "Ada_Lovelace.docx" || !ref.Meta.CreatedAt.Equal(fixedNow) {
		t.Fatalf("unexpected meta %+v", ref.Meta)
	}
	if ref.Meta.ContentType != ContentType(FormatDOCX) {
		t.Fatalf("expected content type from extension, got %q", ref.Meta.ContentType)
	}
	if _, err := store.Put(ctx, "Ada_Lovelace.pdf", strings.NewReader("pdf"), ArtifactMeta{RecordID: "Ada Lovelace"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	refs := store.ForRecord("Ada Lovelace")
	if len(refs) != 2 || refs[0].Key != "Ada_Lovelace.docx" || refs[1].Key != "Ada_Lovelace.pdf" {
		t.Fatalf("expected both outputs in store order, got %v", refs)
	}

	// same filename from another record moves the output
	if _, err := store.Put(ctx, "Ada_Lovelace.pdf", strings.NewReader("other"), ArtifactMeta{RecordID: "Ada  Lovelace"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if got := len(store.ForRecord("Ada Lovelace")); got != 1 {
		t.Fatalf("expected overwritten output removed from first record, got %d", got)
	}
	if got := readOutput(t, store, "Ada_Lovelace.pdf"); got != "other" {
		t.Fatalf("expected later output to win, got %q", got)
	}

	if err := store.Delete(ctx, "Ada_Lovelace.docx"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if refs := store.ForRecord("Ada Lovelace"); len(refs) != 0 {
		t.Fatalf("expected record index cleared, got %v", refs)
	}
	if _, _, err := store.Open(ctx, "Ada_Lovelace.docx"); KindFromError(err) != KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if got := strings.Join(store.Keys(), ","); got != "Ada_Lovelace.pdf" {
		t.Fatalf("unexpected keys %q", got)
	}
}

func TestMemoryStoreRejectsInvalidPuts(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Put(context.Background(), "", strings.NewReader("x"), ArtifactMeta{}); KindFromError(err) != KindValidation {
		t.Fatalf("expected validation error for empty filename, got %v", err)
	}
	if _, err := store.Put(context.Background(), "a.docx", nil, ArtifactMeta{}); KindFromError(err) != KindValidation {
		t.Fatalf("expected validation error for missing content, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Put(ctx, "a.docx", strings.NewReader("x"), ArtifactMeta{}); KindFromError(err) != KindCanceled {
		t.Fatalf("expected canceled, got %v", err)
	}
}
