package merge

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Record is one dataset row keyed by header. Every header of the owning
// dataset has a value; absent cells are stored as "".
type Record struct {
	headers []string
	values  map[string]string
}

// NewRecord builds a record from parallel header/value slices. Missing values
// become "".
func NewRecord(headers []string, values []string) Record {
	rec := Record{
		headers: append([]string(nil), headers...),
		values:  make(map[string]string, len(headers)),
	}
	for i, header := range headers {
		value := ""
		if i < len(values) {
			value = values[i]
		}
		rec.values[header] = value
	}
	return rec
}

// Headers returns the record headers in dataset order.
func (r Record) Headers() []string {
	return append([]string(nil), r.headers...)
}

// Get returns the value for header and whether the header exists.
func (r Record) Get(header string) (string, bool) {
	value, ok := r.values[header]
	return value, ok
}

// Value returns the value for header, or "" when absent.
func (r Record) Value(header string) string {
	return r.values[header]
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.headers)
}

// Map returns a copy of the record as a plain map.
func (r Record) Map() map[string]string {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Dataset is an ordered header list plus records.
type Dataset struct {
	Headers []string
	Records []Record
}

// Len returns the record count.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// HasHeader reports whether header is a dataset header.
func (d *Dataset) HasHeader(header string) bool {
	if d == nil {
		return false
	}
	for _, h := range d.Headers {
		if h == header {
			return true
		}
	}
	return false
}

// Find returns the first record whose column value equals id exactly.
func (d *Dataset) Find(column, id string) (Record, bool) {
	if d == nil {
		return Record{}, false
	}
	for _, rec := range d.Records {
		if value, ok := rec.Get(column); ok && value == id {
			return rec, true
		}
	}
	return Record{}, false
}

// Column returns the values of column for every record, in order.
func (d *Dataset) Column(column string) []string {
	if d == nil {
		return nil
	}
	out := make([]string, 0, len(d.Records))
	for _, rec := range d.Records {
		out = append(out, rec.Value(column))
	}
	return out
}

// LoadDataset turns raw rows into a Dataset. When the row at headerRowOffset
// exists and has a non-blank cell it is the header row and data starts right
// after it; otherwise row 0 is the header row. Repeated headers (compared by
// their normalized form) get " 2", " 3", ... suffixes. Cell values are cleaned
// before storage.
func LoadDataset(rows [][]any, headerRowOffset int) (*Dataset, error) {
	if len(rows) == 0 {
		return nil, NewError(KindValidation, "dataset has no rows", nil)
	}
	if headerRowOffset < 0 {
		return nil, NewError(KindValidation, "header row offset must not be negative", nil)
	}

	headerIdx := 0
	if headerRowOffset < len(rows) && !blankRow(rows[headerRowOffset]) {
		headerIdx = headerRowOffset
	}
	if blankRow(rows[headerIdx]) {
		return nil, NewError(KindValidation, "dataset header row is empty", nil)
	}

	headers := dedupeHeaders(rows[headerIdx])
	dataset := &Dataset{Headers: headers}
	for _, raw := range rows[headerIdx+1:] {
		if blankRow(raw) {
			continue
		}
		values := make([]string, len(headers))
		for i := range headers {
			if i < len(raw) {
				values[i] = CleanValue(stringifyCell(raw[i]))
			}
		}
		dataset.Records = append(dataset.Records, NewRecord(headers, values))
	}
	return dataset, nil
}

// ReadDataset loads a dataset from a row source.
func ReadDataset(ctx context.Context, src RowSource, headerRowOffset int) (*Dataset, error) {
	if src == nil {
		return nil, NewError(KindValidation, "row source is required", nil)
	}
	rows, err := src.Rows(ctx)
	if err != nil {
		return nil, err
	}
	return LoadDataset(rows, headerRowOffset)
}

// StringRows adapts string rows (as produced by spreadsheet and CSV readers)
// to the raw row shape accepted by LoadDataset.
func StringRows(rows [][]string) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		cells := make([]any, len(row))
		for j, cell := range row {
			cells[j] = cell
		}
		out[i] = cells
	}
	return out
}

func dedupeHeaders(raw []any) []string {
	headers := make([]string, len(raw))
	counts := map[string]int{}
	used := map[string]bool{}
	for i, cell := range raw {
		header := CleanValue(stringifyCell(cell))
		if header == "" {
			header = fmt.Sprintf("Column %d", i+1)
		}
		key := Normalize(header)
		counts[key]++
		if counts[key] > 1 || used[header] {
			n := counts[key]
			if n < 2 {
				n = 2
			}
			candidate := fmt.Sprintf("%s %d", header, n)
			for used[candidate] {
				n++
				candidate = fmt.Sprintf("%s %d", header, n)
			}
			header = candidate
		}
		used[header] = true
		headers[i] = header
	}
	return headers
}

func blankRow(row []any) bool {
	for _, cell := range row {
		if CleanValue(stringifyCell(cell)) != "" {
			return false
		}
	}
	return true
}

func stringifyCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case time.Time:
		return v.Format("2006-01-02")
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
