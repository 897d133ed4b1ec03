package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/goliatone/go-docmerge/merge"
	csvsource "github.com/goliatone/go-docmerge/sources/csv"
	sqlitesource "github.com/goliatone/go-docmerge/sources/sqlite"
	xlsxsource "github.com/goliatone/go-docmerge/sources/xlsx"
)

// DataOptions selects and shapes a tabular data file.
type DataOptions struct {
	Path      string
	Sheet     string
	Query     string
	HeaderRow int
	Comma     rune
}

// RowSource picks a row source from the data file extension.
func RowSource(opts DataOptions) (merge.RowSource, error) {
	if opts.Path == "" {
		return nil, merge.NewError(merge.KindValidation, "a data file is required", nil)
	}
	switch strings.ToLower(filepath.Ext(opts.Path)) {
	case ".xlsx", ".xlsm":
		return xlsxsource.NewSource(opts.Path, opts.Sheet), nil
	case ".csv":
		src := csvsource.NewSource(opts.Path)
		if opts.Comma != 0 {
			src.Comma = opts.Comma
		}
		return src, nil
	case ".db", ".sqlite", ".sqlite3":
		if opts.Query == "" {
			return nil, merge.NewError(merge.KindValidation, "--query is required for sqlite data files", nil)
		}
		return sqlitesource.NewSource(opts.Path, opts.Query), nil
	}
	return nil, merge.NewError(merge.KindValidation, fmt.Sprintf("unsupported data file %q", filepath.Base(opts.Path)), nil)
}

// LoadData reads the dataset described by opts.
func LoadData(ctx context.Context, opts DataOptions) (*merge.Dataset, error) {
	src, err := RowSource(opts)
	if err != nil {
		return nil, err
	}
	return merge.ReadDataset(ctx, src, opts.HeaderRow)
}

// ParseAssignments parses repeated key=value flags. Keys keep their spelling
// and later assignments win.
func ParseAssignments(values []string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, raw := range values {
		key, value, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, merge.NewError(merge.KindValidation, fmt.Sprintf("invalid assignment %q, expected key=value", raw), nil)
		}
		out[key] = value
	}
	return out, nil
}

// LoadImages reads --image flags of the form path[:caption].
func LoadImages(values []string) ([]merge.ImageAttachment, error) {
	images := make([]merge.ImageAttachment, 0, len(values))
	for i, raw := range values {
		path, caption := splitImageFlag(raw)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, merge.NewError(merge.KindNotFound, fmt.Sprintf("image %q not found", path), err)
			}
			return nil, err
		}
		contentType := http.DetectContentType(data)
		if !strings.HasPrefix(contentType, "image/") {
			return nil, merge.NewError(merge.KindValidation, fmt.Sprintf("%q is not an image", path), nil)
		}
		images = append(images, merge.ImageAttachment{
			ID:          fmt.Sprintf("image-%d", i+1),
			Filename:    filepath.Base(path),
			ContentType: contentType,
			Caption:     caption,
			Data:        data,
		})
	}
	return images, nil
}

// splitImageFlag splits path[:caption], leaving Windows drive letters alone.
func splitImageFlag(raw string) (string, string) {
	start := 0
	if len(raw) > 2 && raw[1] == ':' && (raw[2] == '\\' || raw[2] == '/') {
		start = 2
	}
	idx := strings.Index(raw[start:], ":")
	if idx < 0 {
		return raw, ""
	}
	idx += start
	return raw[:idx], strings.TrimSpace(raw[idx+1:])
}
