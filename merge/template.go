package merge

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
)

// TemplateOptions configures template loading.
type TemplateOptions struct {
	Name        string
	Ext         string
	Delimiters  Delimiters
	ImagePrefix string
}

// LoadTemplate reads a template archive. The archive is validated by scanner
// when one is provided, so an unreadable template fails here rather than in
// the middle of a batch.
func LoadTemplate(ctx context.Context, r io.Reader, opts TemplateOptions, scanner TemplateScanner) (*Template, error) {
	if r == nil {
		return nil, NewTemplateParseError(opts.Name, NewError(KindValidation, "template reader is required", nil))
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, NewTemplateParseError(opts.Name, err)
	}
	if buf.Len() == 0 {
		return nil, NewTemplateParseError(opts.Name, NewError(KindValidation, "template is empty", nil))
	}

	ext := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(opts.Ext)), ".")
	if ext == "" {
		ext = strings.TrimPrefix(strings.ToLower(filepath.Ext(opts.Name)), ".")
	}
	if ext == "" {
		ext = string(FormatDOCX)
	}
	prefix := opts.ImagePrefix
	if prefix == "" {
		prefix = DefaultImagePrefix
	}

	tmpl := &Template{
		Name:        opts.Name,
		Ext:         ext,
		Delimiters:  opts.Delimiters.withDefaults(),
		ImagePrefix: prefix,
		data:        buf.Bytes(),
	}

	if scanner != nil {
		if _, err := scanner.ScanText(ctx, tmpl); err != nil {
			return nil, NewTemplateParseError(opts.Name, err)
		}
	}
	return tmpl, nil
}

// NewTemplate wraps archive bytes without validation. The bytes are copied.
func NewTemplate(data []byte, opts TemplateOptions) *Template {
	copied := make([]byte, len(data))
	copy(copied, data)
	ext := strings.TrimPrefix(strings.ToLower(opts.Ext), ".")
	if ext == "" {
		ext = string(FormatDOCX)
	}
	prefix := opts.ImagePrefix
	if prefix == "" {
		prefix = DefaultImagePrefix
	}
	return &Template{
		Name:        opts.Name,
		Ext:         ext,
		Delimiters:  opts.Delimiters.withDefaults(),
		ImagePrefix: prefix,
		data:        copied,
	}
}

// ScanPlaceholders extracts placeholders from a template through scanner.
// An empty result with a nil error means the template has no placeholders.
func ScanPlaceholders(ctx context.Context, scanner TemplateScanner, tmpl *Template) (Placeholders, error) {
	if tmpl == nil {
		return Placeholders{}, NewTemplateParseError("", NewError(KindValidation, "template is required", nil))
	}
	if scanner == nil {
		return Placeholders{}, NewError(KindInternal, "template scanner is required", nil)
	}
	text, err := scanner.ScanText(ctx, tmpl)
	if err != nil {
		return Placeholders{}, NewTemplateParseError(tmpl.Name, err)
	}
	return Placeholders{
		Names:  ExtractPlaceholders(text, tmpl.Delimiters),
		Images: ExtractImagePlaceholders(text, tmpl.Delimiters, tmpl.ImagePrefix),
	}, nil
}
