package historybun

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/goliatone/go-docmerge/merge"
)

// Store keeps batch history in a Bun-backed database.
type Store struct {
	DB *bun.DB
}

var _ merge.BatchHistory = (*Store)(nil)

// NewStore creates a Bun-backed history store.
func NewStore(db *bun.DB) *Store {
	return &Store{DB: db}
}

// Open connects to a SQLite database and creates the history tables.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, merge.NewError(merge.KindValidation, "history dsn is required", nil)
	}
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	store := NewStore(bun.NewDB(sqldb, sqlitedialect.New()))
	if err := store.CreateSchema(ctx); err != nil {
		_ = store.DB.Close()
		return nil, err
	}
	return store, nil
}

// CreateSchema creates the batch and job tables when missing.
func (s *Store) CreateSchema(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	for _, model := range []any{(*batchModel)(nil), (*jobModel)(nil)} {
		if _, err := s.DB.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create history schema: %w", err)
		}
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Record stores a batch and its jobs in one transaction, replacing any
// earlier record with the same batch ID.
func (s *Store) Record(ctx context.Context, record merge.BatchRecord) error {
	if err := s.check(); err != nil {
		return err
	}
	if record.BatchID == "" {
		return merge.NewError(merge.KindValidation, "batch id is required", nil)
	}

	batch := modelFromRecord(record)
	jobs := make([]jobModel, 0, len(record.Jobs))
	for _, job := range record.Jobs {
		model, err := modelFromJob(record.BatchID, job)
		if err != nil {
			return err
		}
		jobs = append(jobs, model)
	}

	return s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*jobModel)(nil)).Where("batch_id = ?", record.BatchID).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*batchModel)(nil)).Where("batch_id = ?", record.BatchID).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(&batch).Exec(ctx); err != nil {
			return err
		}
		if len(jobs) == 0 {
			return nil
		}
		_, err := tx.NewInsert().Model(&jobs).Exec(ctx)
		return err
	})
}

// Get returns a batch with its jobs.
func (s *Store) Get(ctx context.Context, batchID string) (merge.BatchRecord, error) {
	if err := s.check(); err != nil {
		return merge.BatchRecord{}, err
	}
	if batchID == "" {
		return merge.BatchRecord{}, merge.NewError(merge.KindValidation, "batch id is required", nil)
	}

	batch := new(batchModel)
	err := s.DB.NewSelect().Model(batch).Where("batch_id = ?", batchID).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return merge.BatchRecord{}, merge.NewError(merge.KindNotFound, fmt.Sprintf("batch %q not found", batchID), nil)
		}
		return merge.BatchRecord{}, err
	}

	jobs := make([]jobModel, 0)
	if err := s.DB.NewSelect().Model(&jobs).Where("batch_id = ?", batchID).Order("job_index ASC").Scan(ctx); err != nil {
		return merge.BatchRecord{}, err
	}

	record := batch.toRecord()
	record.Jobs = make([]merge.JobRecord, 0, len(jobs))
	for _, job := range jobs {
		jr, err := job.toRecord()
		if err != nil {
			return merge.BatchRecord{}, err
		}
		record.Jobs = append(record.Jobs, jr)
	}
	return record, nil
}

// List returns batches newest first. Jobs are not loaded; use Get.
func (s *Store) List(ctx context.Context, filter merge.HistoryFilter) ([]merge.BatchRecord, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = merge.DefaultHistoryLimit
	}

	models := make([]batchModel, 0)
	query := s.DB.NewSelect().Model(&models)
	if filter.Template != "" {
		query = query.Where("template = ?", filter.Template)
	}
	if !filter.Since.IsZero() {
		query = query.Where("started_at >= ?", filter.Since)
	}
	query = query.Order("started_at DESC").Limit(limit)

	if err := query.Scan(ctx); err != nil {
		return nil, err
	}

	records := make([]merge.BatchRecord, 0, len(models))
	for _, model := range models {
		records = append(records, model.toRecord())
	}
	return records, nil
}

func (s *Store) check() error {
	if s == nil || s.DB == nil {
		return merge.NewError(merge.KindInternal, "history database not configured", nil)
	}
	return nil
}

type batchModel struct {
	bun.BaseModel `bun:"table:docmerge_batches,alias:b"`

	BatchID     string    `bun:"batch_id,pk"`
	Template    string    `bun:"template,notnull"`
	Source      string    `bun:"source"`
	Attempted   int       `bun:"attempted"`
	Succeeded   int       `bun:"succeeded"`
	Failed      int       `bun:"failed"`
	Skipped     int       `bun:"skipped"`
	StartedAt   time.Time `bun:"started_at,nullzero"`
	CompletedAt time.Time `bun:"completed_at,nullzero"`
}

type jobModel struct {
	bun.BaseModel `bun:"table:docmerge_jobs,alias:j"`

	BatchID    string `bun:"batch_id,pk"`
	Index      int    `bun:"job_index,pk"`
	RecordID   string `bun:"record_id"`
	State      string `bun:"state,notnull"`
	Kind       string `bun:"kind"`
	Error      string `bun:"error"`
	Outputs    []byte `bun:"outputs"`
	Warnings   []byte `bun:"warnings"`
	DurationMS int64  `bun:"duration_ms"`
}

func modelFromRecord(record merge.BatchRecord) batchModel {
	return batchModel{
		BatchID:     record.BatchID,
		Template:    record.Template,
		Source:      record.Source,
		Attempted:   record.Attempted,
		Succeeded:   record.Succeeded,
		Failed:      record.Failed,
		Skipped:     record.Skipped,
		StartedAt:   record.StartedAt,
		CompletedAt: record.CompletedAt,
	}
}

func (m batchModel) toRecord() merge.BatchRecord {
	return merge.BatchRecord{
		BatchID:     m.BatchID,
		Template:    m.Template,
		Source:      m.Source,
		Attempted:   m.Attempted,
		Succeeded:   m.Succeeded,
		Failed:      m.Failed,
		Skipped:     m.Skipped,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}
}

func modelFromJob(batchID string, job merge.JobRecord) (jobModel, error) {
	outputs, err := json.Marshal(job.Outputs)
	if err != nil {
		return jobModel{}, err
	}
	warnings, err := json.Marshal(job.Warnings)
	if err != nil {
		return jobModel{}, err
	}
	return jobModel{
		BatchID:    batchID,
		Index:      job.Index,
		RecordID:   job.ID,
		State:      string(job.State),
		Kind:       string(job.Kind),
		Error:      job.Error,
		Outputs:    outputs,
		Warnings:   warnings,
		DurationMS: job.DurationMS,
	}, nil
}

func (m jobModel) toRecord() (merge.JobRecord, error) {
	record := merge.JobRecord{
		Index:      m.Index,
		ID:         m.RecordID,
		State:      merge.JobState(m.State),
		Kind:       merge.ErrorKind(m.Kind),
		Error:      m.Error,
		DurationMS: m.DurationMS,
	}
	if len(m.Outputs) > 0 {
		if err := json.Unmarshal(m.Outputs, &record.Outputs); err != nil {
			return merge.JobRecord{}, err
		}
	}
	if len(m.Warnings) > 0 {
		if err := json.Unmarshal(m.Warnings, &record.Warnings); err != nil {
			return merge.JobRecord{}, err
		}
	}
	return record, nil
}
