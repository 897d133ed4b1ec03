package xlsxsource

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/goliatone/go-docmerge/merge"
)

// Source reads rows from one worksheet of an XLSX workbook. Cell values are
// the formatted strings the spreadsheet displays.
type Source struct {
	Path string
	// Data, when set, is read instead of Path.
	Data []byte
	// Sheet names the worksheet; empty selects the first sheet.
	Sheet string
}

var _ merge.RowSource = (*Source)(nil)

// NewSource creates a workbook row source for path.
func NewSource(path, sheet string) *Source {
	return &Source{Path: path, Sheet: sheet}
}

// Rows returns every row of the selected worksheet.
func (s *Source) Rows(ctx context.Context) ([][]any, error) {
	file, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = file.Close()
	}()

	sheet := s.Sheet
	if sheet == "" {
		sheet = file.GetSheetName(0)
	}
	if index, err := file.GetSheetIndex(sheet); err != nil || index < 0 {
		return nil, merge.NewError(merge.KindValidation, fmt.Sprintf("worksheet %q not found", sheet), err)
	}

	rows, err := file.GetRows(sheet)
	if err != nil {
		return nil, merge.NewError(merge.KindValidation, "reading worksheet failed", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return merge.StringRows(rows), nil
}

// Sheets lists the workbook's worksheet names in order.
func (s *Source) Sheets(ctx context.Context) ([]string, error) {
	file, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = file.Close()
	}()
	return file.GetSheetList(), nil
}

func (s *Source) open(ctx context.Context) (*excelize.File, error) {
	if s == nil {
		return nil, merge.NewError(merge.KindInternal, "xlsx source is nil", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var r io.Reader
	switch {
	case len(s.Data) > 0:
		r = bytes.NewReader(s.Data)
	case s.Path != "":
		f, err := os.Open(s.Path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, merge.NewError(merge.KindNotFound, fmt.Sprintf("workbook %q not found", s.Path), err)
			}
			return nil, err
		}
		defer f.Close()
		r = f
	default:
		return nil, merge.NewError(merge.KindValidation, "workbook path is required", nil)
	}

	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, merge.NewError(merge.KindValidation, "workbook could not be read", err)
	}
	return file, nil
}
