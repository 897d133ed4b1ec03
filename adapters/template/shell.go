package mergetemplate

import (
	"bytes"
	"context"
	"strconv"

	"github.com/goliatone/go-docmerge/merge"
)

// DefaultPageTemplate is the template name executed by Shell.
const DefaultPageTemplate = "page"

// Shell wraps rendered fragments into a standalone page.
type Shell struct {
	Templates    TemplateExecutor
	TemplateName string
	Stylesheet   string
}

var _ merge.PageShell = Shell{}

// NewShell returns a shell backed by a pongo2 executor. dir optionally holds
// page template overrides.
func NewShell(dir string) (Shell, error) {
	executor, err := NewPongoExecutor(dir)
	if err != nil {
		return Shell{}, err
	}
	return Shell{Templates: executor, TemplateName: DefaultPageTemplate}, nil
}

// WrapPage executes the page template with content.
func (s Shell) WrapPage(ctx context.Context, content merge.PageContent) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Templates == nil {
		return nil, merge.NewError(merge.KindValidation, "page shell requires templates", nil)
	}
	name := s.TemplateName
	if name == "" {
		name = DefaultPageTemplate
	}

	var buf bytes.Buffer
	if err := s.Templates.ExecuteTemplate(&buf, name, pageData(content, s.Stylesheet)); err != nil {
		return nil, merge.NewError(merge.KindInternal, "page template failed", err)
	}
	return buf.Bytes(), nil
}

func pageData(content merge.PageContent, stylesheet string) map[string]any {
	lang := content.Lang
	if lang == "" {
		lang = "en"
	}
	dir := content.Dir
	if dir == "" {
		dir = "ltr"
	}
	return map[string]any{
		"title":      content.Title,
		"lang":       lang,
		"dir":        dir,
		"header":     content.Header,
		"body":       content.Body,
		"footer":     content.Footer,
		"width_mm":   formatMM(content.WidthMM, 210),
		"padding_mm": formatMM(content.PaddingMM, 0),
		"stylesheet": stylesheet,
	}
}

func formatMM(value, fallback float64) string {
	if value <= 0 {
		value = fallback
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

const defaultPage = `<!DOCTYPE html>
<html lang="{{ lang }}" dir="{{ dir }}">
<head>
<meta charset="utf-8">
<title>{{ title }}</title>
<style>
html, body { margin: 0; padding: 0; background: #fff; }
.page { width: {{ width_mm }}mm; padding: {{ padding_mm }}mm; box-sizing: border-box; font-family: Arial, "David", "Segoe UI", sans-serif; font-size: 11pt; line-height: 1.4; color: #000; }
.page p { margin: 0 0 6pt 0; white-space: pre-wrap; }
.page .tab { white-space: pre; display: inline-block; min-width: 1.25cm; }
.page table { border-collapse: collapse; width: 100%; margin: 6pt 0; }
.page td { border: 1px solid #000; padding: 4pt; vertical-align: top; }
.page img { max-width: 100%; height: auto; }
.page-header { margin-bottom: 12pt; }
.page-footer { margin-top: 12pt; }
{{ stylesheet|safe }}
</style>
</head>
<body>
<div class="page">
{% if header %}<header class="page-header">{{ header|safe }}</header>{% endif %}
<main class="page-body">{{ body|safe }}</main>
{% if footer %}<footer class="page-footer">{{ footer|safe }}</footer>{% endif %}
</div>
</body>
</html>
`
