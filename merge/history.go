package merge

import (
	"context"
	"sync"
	"time"
)

// JobRecord is the persisted form of a JobStatus.
type JobRecord struct {
	Index      int       `json:"index"`
	ID         string    `json:"id"`
	State      JobState  `json:"state"`
	Kind       ErrorKind `json:"kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	Outputs    []string  `json:"outputs,omitempty"`
	Warnings   []string  `json:"warnings,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}

// BatchRecord is the persisted form of a BatchResult.
type BatchRecord struct {
	BatchID     string      `json:"batch_id"`
	Template    string      `json:"template"`
	Source      string      `json:"source,omitempty"`
	Attempted   int         `json:"attempted"`
	Succeeded   int         `json:"succeeded"`
	Failed      int         `json:"failed"`
	Skipped     int         `json:"skipped"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt time.Time   `json:"completed_at"`
	Jobs        []JobRecord `json:"jobs,omitempty"`
}

// Summary returns the same line as BatchResult.Summary.
func (r BatchRecord) Summary() string {
	return BatchResult{Attempted: r.Attempted, Succeeded: r.Succeeded, Skipped: r.Skipped}.Summary()
}

// HistoryFilter narrows BatchHistory.List.
type HistoryFilter struct {
	Template string
	Since    time.Time
	Limit    int
}

// DefaultHistoryLimit caps List when no limit is given.
const DefaultHistoryLimit = 50

// BatchHistory persists completed batches.
type BatchHistory interface {
	Record(ctx context.Context, record BatchRecord) error
	Get(ctx context.Context, batchID string) (BatchRecord, error)
	List(ctx context.Context, filter HistoryFilter) ([]BatchRecord, error)
}

// NewBatchRecord converts a BatchResult for storage.
func NewBatchRecord(template, source string, result BatchResult) BatchRecord {
	record := BatchRecord{
		BatchID:     result.BatchID,
		Template:    template,
		Source:      source,
		Attempted:   result.Attempted,
		Succeeded:   result.Succeeded,
		Failed:      result.Failed,
		Skipped:     result.Skipped,
		StartedAt:   result.StartedAt,
		CompletedAt: result.CompletedAt,
		Jobs:        make([]JobRecord, 0, len(result.Jobs)),
	}
	for _, job := range result.Jobs {
		jr := JobRecord{
			Index:      job.Index,
			ID:         job.ID,
			State:      job.State,
			Warnings:   append([]string(nil), job.Warnings...),
			DurationMS: job.Duration.Milliseconds(),
		}
		if job.Err != nil {
			jr.Kind = job.Kind
			jr.Error = job.Err.Error()
		}
		for _, ref := range job.Outputs {
			jr.Outputs = append(jr.Outputs, ref.Key)
		}
		record.Jobs = append(record.Jobs, jr)
	}
	return record
}

// MemoryHistory keeps batch records in memory.
type MemoryHistory struct {
	mu      sync.RWMutex
	records []BatchRecord
}

// NewMemoryHistory creates an empty in-memory history.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

func (h *MemoryHistory) Record(ctx context.Context, record BatchRecord) error {
	if h == nil {
		return NewError(KindInternal, "history is nil", nil)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.BatchID == "" {
		return NewError(KindValidation, "batch id is required", nil)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, existing := range h.records {
		if existing.BatchID == record.BatchID {
			h.records[i] = record
			return nil
		}
	}
	h.records = append(h.records, record)
	return nil
}

func (h *MemoryHistory) Get(ctx context.Context, batchID string) (BatchRecord, error) {
	_ = ctx
	if h == nil {
		return BatchRecord{}, NewError(KindInternal, "history is nil", nil)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, record := range h.records {
		if record.BatchID == batchID {
			return record, nil
		}
	}
	return BatchRecord{}, NewError(KindNotFound, "batch not found", nil)
}

func (h *MemoryHistory) List(ctx context.Context, filter HistoryFilter) ([]BatchRecord, error) {
	_ = ctx
	if h == nil {
		return nil, NewError(KindInternal, "history is nil", nil)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := []BatchRecord{}
	for i := len(h.records) - 1; i >= 0 && len(out) < limit; i-- {
		record := h.records[i]
		if filter.Template != "" && record.Template != filter.Template {
			continue
		}
		if !filter.Since.IsZero() && record.StartedAt.Before(filter.Since) {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}
