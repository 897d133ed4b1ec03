package csvsource

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/goliatone/go-docmerge/merge"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Source reads rows from a delimited text file. Rows may have differing
// field counts.
type Source struct {
	Path string
	// Data, when set, is read instead of Path.
	Data  []byte
	Comma rune
}

var _ merge.RowSource = (*Source)(nil)

// NewSource creates a comma-separated row source for path.
func NewSource(path string) *Source {
	return &Source{Path: path, Comma: ','}
}

// Rows returns every record of the file.
func (s *Source) Rows(ctx context.Context) ([][]any, error) {
	if s == nil {
		return nil, merge.NewError(merge.KindInternal, "csv source is nil", nil)
	}
	data := s.Data
	if len(data) == 0 {
		if s.Path == "" {
			return nil, merge.NewError(merge.KindValidation, "csv path is required", nil)
		}
		raw, err := os.ReadFile(s.Path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, merge.NewError(merge.KindNotFound, fmt.Sprintf("csv file %q not found", s.Path), err)
			}
			return nil, err
		}
		data = raw
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	if s.Comma != 0 {
		reader.Comma = s.Comma
	}

	var rows [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, merge.NewError(merge.KindValidation, "csv could not be parsed", err)
		}
		rows = append(rows, record)
	}
	return merge.StringRows(rows), nil
}
