package sqlitesource

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/goliatone/go-docmerge/merge"
)

// Source reads dataset rows from a query against a SQLite database file.
// The first row returned is the column names.
type Source struct {
	Path  string
	Query string
	Args  []any
	// DB, when set, is used instead of opening Path.
	DB *sql.DB
}

var _ merge.RowSource = (*Source)(nil)

// NewSource creates a SQLite row source.
func NewSource(path, query string, args ...any) *Source {
	return &Source{Path: path, Query: query, Args: args}
}

// Rows runs the query and returns the header row followed by data rows.
func (s *Source) Rows(ctx context.Context) ([][]any, error) {
	if s == nil {
		return nil, merge.NewError(merge.KindInternal, "sqlite source is nil", nil)
	}
	query := strings.TrimSpace(s.Query)
	if query == "" {
		return nil, merge.NewError(merge.KindValidation, "sqlite query is required", nil)
	}
	if !readOnlyQuery(query) {
		return nil, merge.NewError(merge.KindValidation, "sqlite query must be a SELECT", nil)
	}

	db := s.DB
	if db == nil {
		if s.Path == "" {
			return nil, merge.NewError(merge.KindValidation, "sqlite path is required", nil)
		}
		opened, err := sql.Open("sqlite", readOnlyDSN(s.Path))
		if err != nil {
			return nil, merge.NewError(merge.KindInternal, "sqlite open failed", err)
		}
		defer func() {
			_ = opened.Close()
		}()
		db = opened
	}

	rows, err := db.QueryContext(ctx, query, s.Args...)
	if err != nil {
		return nil, merge.NewError(merge.KindValidation, "sqlite query failed", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	header := make([]any, len(columns))
	for i, column := range columns {
		header[i] = column
	}
	out := [][]any{header}

	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]any, len(columns))
		for i, value := range values {
			row[i] = cellValue(value)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func readOnlyQuery(query string) bool {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH", "VALUES":
		return true
	}
	return false
}

func readOnlyDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return fmt.Sprintf("file:%s?mode=ro", (&url.URL{Path: path}).EscapedPath())
}

func cellValue(value any) any {
	switch v := value.(type) {
	case nil:
		return ""
	case []byte:
		return string(v)
	default:
		return v
	}
}
