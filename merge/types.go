package merge

import (
	"context"
	"io"
	"time"
)

// Format is a merge output format.
type Format string

const (
	FormatDOCX Format = "docx"
	FormatPDF  Format = "pdf"
)

// Delimiters is the start/end marker pair bounding placeholder tokens.
type Delimiters struct {
	Start string
	End   string
}

// DefaultDelimiters are the markers used when none are configured.
var DefaultDelimiters = Delimiters{Start: "<<", End: ">>"}

// DefaultImagePrefix marks image-valued placeholders (%<<name>>).
const DefaultImagePrefix = "%"

// Template is a loaded document archive plus its marker convention.
// It is immutable once loaded.
type Template struct {
	Name        string
	Ext         string
	Delimiters  Delimiters
	ImagePrefix string
	data        []byte
}

// Data returns a copy of the template archive bytes.
func (t *Template) Data() []byte {
	if t == nil {
		return nil
	}
	out := make([]byte, len(t.data))
	copy(out, t.data)
	return out
}

// Size returns the archive size in bytes.
func (t *Template) Size() int {
	if t == nil {
		return 0
	}
	return len(t.data)
}

// Placeholders is the result of scanning a template.
type Placeholders struct {
	Names  []string
	Images []string
}

// IsImage reports whether name was declared with the image prefix.
func (p Placeholders) IsImage(name string) bool {
	for _, img := range p.Images {
		if img == name {
			return true
		}
	}
	return false
}

// ImageAttachment is an image supplied for image placeholders.
type ImageAttachment struct {
	ID          string
	Placeholder string
	Filename    string
	ContentType string
	Caption     string
	Data        []byte
}

// TemplateDataMap is the substitution map handed to the engine. Values are
// strings, except image placeholders which hold []ImageAttachment.
type TemplateDataMap map[string]any

// String returns the string value stored under key.
func (m TemplateDataMap) String(key string) (string, bool) {
	value, ok := m[key]
	if !ok {
		return "", false
	}
	str, ok := value.(string)
	return str, ok
}

// Images returns the images stored under key.
func (m TemplateDataMap) Images(key string) []ImageAttachment {
	value, ok := m[key]
	if !ok {
		return nil
	}
	images, _ := value.([]ImageAttachment)
	return images
}

// FilledDocument is a template after substitution.
type FilledDocument struct {
	RecordID string
	Ext      string
	Data     []byte
}

// RenderedDocument is the visual tree handed to a rendering surface.
type RenderedDocument struct {
	RecordID string
	HTML     []byte
	Images   int
}

// Raster is a captured full-height image of a rendered document.
type Raster struct {
	PNG    []byte
	Width  int
	Height int
}

// ExportJob is one record to fill and export.
type ExportJob struct {
	ID      string
	Record  *Record
	Data    TemplateDataMap
	Formats []Format
}

// ArtifactMeta describes a stored output.
type ArtifactMeta struct {
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size"`
	Filename    string    `json:"filename,omitempty"`
	RecordID    string    `json:"record_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ArtifactRef references a stored output.
type ArtifactRef struct {
	Key  string
	Meta ArtifactMeta
}

// ArtifactStore stores merge outputs.
type ArtifactStore interface {
	Put(ctx context.Context, key string, r io.Reader, meta ArtifactMeta) (ArtifactRef, error)
	Open(ctx context.Context, key string) (io.ReadCloser, ArtifactMeta, error)
	Delete(ctx context.Context, key string) error
}

// TemplateScanner reads the textual content of a template archive.
type TemplateScanner interface {
	ScanText(ctx context.Context, tmpl *Template) (string, error)
}

// Engine substitutes a data map into a template archive.
type Engine interface {
	Fill(ctx context.Context, tmpl *Template, data TemplateDataMap) ([]byte, error)
}

// EngineFunc adapts a function to an Engine.
type EngineFunc func(ctx context.Context, tmpl *Template, data TemplateDataMap) ([]byte, error)

func (f EngineFunc) Fill(ctx context.Context, tmpl *Template, data TemplateDataMap) ([]byte, error) {
	return f(ctx, tmpl, data)
}

// DocumentRenderer converts a filled document into a visual tree.
type DocumentRenderer interface {
	RenderDocument(ctx context.Context, doc FilledDocument) (RenderedDocument, error)
}

// PageContent is the HTML fragments of a rendered document before they are
// wrapped into a full page.
type PageContent struct {
	Title     string
	Lang      string
	Dir       string
	Header    string
	Body      string
	Footer    string
	WidthMM   float64
	PaddingMM float64
}

// PageShell wraps rendered fragments into a standalone HTML page.
type PageShell interface {
	WrapPage(ctx context.Context, content PageContent) ([]byte, error)
}

// Assembler turns a raster into a paginated output document.
type Assembler interface {
	Assemble(ctx context.Context, raster Raster, layout PageLayout) ([]byte, error)
}

// RowSource yields raw tabular rows, header rows included, for LoadDataset.
type RowSource interface {
	Rows(ctx context.Context) ([][]any, error)
}

// RowSourceFunc adapts a function to a RowSource.
type RowSourceFunc func(ctx context.Context) ([][]any, error)

func (f RowSourceFunc) Rows(ctx context.Context) ([][]any, error) {
	return f(ctx)
}

// Logger is a minimal logging interface.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// NopLogger is a no-op logger.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Warnf(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}

func loggerOrNop(logger Logger) Logger {
	if logger == nil {
		return NopLogger{}
	}
	return logger
}
