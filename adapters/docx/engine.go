package mergedocx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wyatsahar/docx"

	"github.com/goliatone/go-docmerge/merge"
)

const (
	DefaultLang          = "he"
	DefaultPageWidthMM   = 210.0
	DefaultPagePaddingMM = 20.0
)

// Options configures the DOCX engine.
type Options struct {
	MissingKeys      MissingPolicy
	MaxImageWidthEMU int64
	RenderHeaders    bool
	RenderFooters    bool
	RenderNotes      bool
	Shell            merge.PageShell
	Lang             string
	PageWidthMM      float64
	PagePaddingMM    float64
	Logger           merge.Logger
}

// DefaultOptions returns the engine defaults: missing keys render empty,
// headers and footers are rendered and notes are not.
func DefaultOptions() Options {
	return Options{
		MissingKeys:      MissingEmpty,
		MaxImageWidthEMU: defaultMaxImageWidthEMU,
		RenderHeaders:    true,
		RenderFooters:    true,
		Lang:             DefaultLang,
		PageWidthMM:      DefaultPageWidthMM,
		PagePaddingMM:    DefaultPagePaddingMM,
	}
}

// Engine scans, fills and renders DOCX templates. It implements
// merge.TemplateScanner, merge.Engine and merge.DocumentRenderer.
type Engine struct {
	opts Options
}

var (
	_ merge.TemplateScanner  = (*Engine)(nil)
	_ merge.Engine           = (*Engine)(nil)
	_ merge.DocumentRenderer = (*Engine)(nil)
)

// NewEngine creates an engine. Zero values in opts fall back to defaults.
func NewEngine(opts Options) *Engine {
	defaults := DefaultOptions()
	if opts.MissingKeys == "" {
		opts.MissingKeys = defaults.MissingKeys
	}
	if opts.MaxImageWidthEMU <= 0 {
		opts.MaxImageWidthEMU = defaults.MaxImageWidthEMU
	}
	if opts.Lang == "" {
		opts.Lang = defaults.Lang
	}
	if opts.PageWidthMM <= 0 {
		opts.PageWidthMM = defaults.PageWidthMM
	}
	if opts.PagePaddingMM < 0 {
		opts.PagePaddingMM = defaults.PagePaddingMM
	}
	return &Engine{opts: opts}
}

// ScanText returns the visible text of the document body, headers and
// footers, one line per paragraph.
func (e *Engine) ScanText(ctx context.Context, tmpl *merge.Template) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if tmpl == nil {
		return "", fmt.Errorf("template is nil")
	}
	raw := tmpl.Data()
	doc, err := docx.LoadFromReader(bytes.NewReader(raw), int64(len(raw)), libraryConfig(tmpl.Delimiters))
	if err != nil {
		return "", fmt.Errorf("read docx archive: %w", err)
	}
	doc.Close()

	a, err := openArchive(raw)
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for _, part := range a.textParts() {
		data, _ := a.get(part)
		text, err := extractText(part, data)
		if err != nil {
			return "", err
		}
		out.WriteString(text)
	}
	return out.String(), nil
}

// Fill substitutes placeholders and returns the new archive. Plain values
// go through the docx library; image placeholders and multi-line values
// are left for a second pass that writes pictures and line breaks.
func (e *Engine) Fill(ctx context.Context, tmpl *merge.Template, data merge.TemplateDataMap) ([]byte, error) {
	if tmpl == nil {
		return nil, fmt.Errorf("template is nil")
	}
	raw := tmpl.Data()
	tokens, err := partTokens(raw, tmpl.Delimiters, tmpl.ImagePrefix)
	if err != nil {
		return nil, err
	}

	plan, err := e.plan(tokens, data)
	if err != nil {
		var unresolved *UnresolvedTagError
		if errors.As(err, &unresolved) {
			logger(e.opts.Logger).Debugf("docx: %v", unresolved)
		}
		return nil, err
	}

	doc, err := docx.LoadFromReader(bytes.NewReader(raw), int64(len(raw)), libraryConfig(tmpl.Delimiters))
	if err != nil {
		return nil, fmt.Errorf("read docx archive: %w", err)
	}
	defer doc.Close()
	for _, name := range plan.names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc.SetValue(name, plan.values[name])
	}
	buf, err := doc.SaveToBuffer()
	if err != nil {
		return nil, fmt.Errorf("save docx: %w", err)
	}
	out := buf.Bytes()
	if !plan.deferred {
		return out, nil
	}
	return e.fillDeferred(ctx, out, tmpl, data)
}

type fillPlan struct {
	names    []string
	values   map[string]string
	deferred bool
}

// plan decides the library substitutions. Names used by image tokens are
// never set as text so the image marker survives for the second pass.
func (e *Engine) plan(tokens []partToken, data merge.TemplateDataMap) (fillPlan, error) {
	plan := fillPlan{values: map[string]string{}}
	imageNames := map[string]bool{}
	for _, pt := range tokens {
		if pt.token.Image {
			imageNames[pt.token.Name] = true
		}
	}
	for _, pt := range tokens {
		name := pt.token.Name
		if _, done := plan.values[name]; done {
			continue
		}
		if imageNames[name] || len(data.Images(name)) > 0 {
			plan.deferred = true
			continue
		}
		value, ok := data.String(name)
		switch {
		case ok && strings.ContainsAny(value, "\r\n"):
			plan.deferred = true
			continue
		case ok:
		case e.opts.MissingKeys == MissingKeep:
			continue
		case e.opts.MissingKeys == MissingError:
			return fillPlan{}, &UnresolvedTagError{Part: pt.part, Name: name}
		default:
			value = ""
		}
		plan.values[name] = value
		plan.names = append(plan.names, name)
	}
	return plan, nil
}

func (e *Engine) fillDeferred(ctx context.Context, filled []byte, tmpl *merge.Template, data merge.TemplateDataMap) ([]byte, error) {
	a, err := openArchive(filled)
	if err != nil {
		return nil, err
	}
	for _, part := range a.textParts() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, _ := a.get(part)
		filler := &partFiller{
			part:   part,
			src:    src,
			data:   data,
			delims: tmpl.Delimiters,
			prefix: tmpl.ImagePrefix,
		}
		if part == documentPart {
			filler.images = newMediaSink(a, part, e.opts.MaxImageWidthEMU)
		}
		out, err := filler.fill()
		if err != nil {
			return nil, err
		}
		a.set(part, out)
	}
	return a.bytes()
}

// RenderDocument converts a filled document to a standalone HTML page.
func (e *Engine) RenderDocument(ctx context.Context, doc merge.FilledDocument) (merge.RenderedDocument, error) {
	if err := ctx.Err(); err != nil {
		return merge.RenderedDocument{}, err
	}
	a, err := openArchive(doc.Data)
	if err != nil {
		return merge.RenderedDocument{}, err
	}
	parts, err := renderArchive(a, renderSettings{
		headers: e.opts.RenderHeaders,
		footers: e.opts.RenderFooters,
		notes:   e.opts.RenderNotes,
	})
	if err != nil {
		return merge.RenderedDocument{}, err
	}

	content := merge.PageContent{
		Title:     doc.RecordID,
		Lang:      e.opts.Lang,
		Dir:       direction(e.opts.Lang, parts.rtl),
		Header:    parts.header,
		Body:      parts.body + parts.notes,
		Footer:    parts.footer,
		WidthMM:   e.opts.PageWidthMM,
		PaddingMM: e.opts.PagePaddingMM,
	}
	var page []byte
	if e.opts.Shell != nil {
		page, err = e.opts.Shell.WrapPage(ctx, content)
		if err != nil {
			return merge.RenderedDocument{}, err
		}
	} else {
		page = barePage(content)
	}
	return merge.RenderedDocument{RecordID: doc.RecordID, HTML: page, Images: parts.images}, nil
}

func direction(lang string, rtl bool) string {
	if rtl {
		return "rtl"
	}
	base, _, _ := strings.Cut(strings.ToLower(lang), "-")
	switch base {
	case "he", "ar", "fa", "ur", "yi":
		return "rtl"
	}
	return "ltr"
}

// barePage is used when no page shell is configured.
func barePage(c merge.PageContent) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, `<!DOCTYPE html><html lang="%s" dir="%s"><head><meta charset="utf-8"></head>`, c.Lang, c.Dir)
	fmt.Fprintf(&b, `<body><div class="page" style="width:%gmm;padding:%gmm;box-sizing:border-box">`, c.WidthMM, c.PaddingMM)
	if c.Header != "" {
		b.WriteString(`<header>` + c.Header + `</header>`)
	}
	b.WriteString(`<main>` + c.Body + `</main>`)
	if c.Footer != "" {
		b.WriteString(`<footer>` + c.Footer + `</footer>`)
	}
	b.WriteString(`</div></body></html>`)
	return []byte(b.String())
}

func libraryConfig(delims merge.Delimiters) docx.Config {
	if delims.Start == "" || delims.End == "" {
		delims = merge.DefaultDelimiters
	}
	return docx.Config{PlaceholderPrefix: delims.Start, PlaceholderSuffix: delims.End}
}

type partToken struct {
	part  string
	token merge.Token
}

// partTokens lists the tokens of every text part in part order.
func partTokens(raw []byte, delims merge.Delimiters, prefix string) ([]partToken, error) {
	a, err := openArchive(raw)
	if err != nil {
		return nil, err
	}
	var out []partToken
	for _, part := range a.textParts() {
		data, _ := a.get(part)
		text, err := extractText(part, data)
		if err != nil {
			return nil, err
		}
		for _, token := range merge.ScanTokens(text, delims, prefix) {
			out = append(out, partToken{part: part, token: token})
		}
	}
	return out, nil
}

func logger(l merge.Logger) merge.Logger {
	if l == nil {
		return merge.NopLogger{}
	}
	return l
}
