package mergetemplate

import (
	"context"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goliatone/go-docmerge/merge"
)

func TestShell_MissingTemplates(t *testing.T) {
	_, err := Shell{}.WrapPage(context.Background(), merge.PageContent{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if merge.KindFromError(err) != merge.KindValidation {
		t.Fatalf("expected validation error, got %v", merge.KindFromError(err))
	}
}

func TestShell_DefaultPage(t *testing.T) {
	shell, err := NewShell("")
	if err != nil {
		t.Fatalf("new shell: %v", err)
	}
	page, err := shell.WrapPage(context.Background(), merge.PageContent{
		Title:     "Ada <Lovelace>",
		Lang:      "he",
		Dir:       "rtl",
		Header:    "<p>head</p>",
		Body:      `<p class="p"><strong>body</strong></p>`,
		WidthMM:   210,
		PaddingMM: 20,
	})
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	out := string(page)
	for _, want := range []string{
		`<html lang="he" dir="rtl">`,
		`width: 210mm; padding: 20mm;`,
		`<header class="page-header"><p>head</p></header>`,
		`<strong>body</strong>`,
		`Ada &lt;Lovelace&gt;`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in page:\n%s", want, out)
		}
	}
	if strings.Contains(out, "<footer") {
		t.Fatalf("expected no footer element without footer content")
	}

	page, err = shell.WrapPage(context.Background(), merge.PageContent{Body: "x", Footer: "<p>foot</p>"})
	if err != nil {
		t.Fatalf("wrap with footer: %v", err)
	}
	if !strings.Contains(string(page), `<footer class="page-footer"><p>foot</p></footer>`) {
		t.Fatalf("expected footer element when footer content is set:\n%s", page)
	}
}

func TestShell_StylesheetAppended(t *testing.T) {
	shell, err := NewShell("")
	if err != nil {
		t.Fatalf("new shell: %v", err)
	}
	shell.Stylesheet = ".page { font-size: 12pt; }"
	page, err := shell.WrapPage(context.Background(), merge.PageContent{Body: "x"})
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if !strings.Contains(string(page), ".page { font-size: 12pt; }") {
		t.Fatalf("expected stylesheet in page")
	}
	if !strings.Contains(string(page), `lang="en" dir="ltr"`) {
		t.Fatalf("expected default lang and dir")
	}
}

func TestShell_TemplateDirOverride(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "letter.html"), []byte(`<main>{{ body|safe }}</main>`), 0o600); err != nil {
		t.Fatalf("write template: %v", err)
	}
	shell, err := NewShell(dir)
	if err != nil {
		t.Fatalf("new shell: %v", err)
	}
	shell.TemplateName = "letter.html"
	page, err := shell.WrapPage(context.Background(), merge.PageContent{Body: "<b>hi</b>"})
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if got := string(page); got != "<main><b>hi</b></main>" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestShell_UnknownTemplate(t *testing.T) {
	shell, err := NewShell(t.TempDir())
	if err != nil {
		t.Fatalf("new shell: %v", err)
	}
	shell.TemplateName = "missing.html"
	if _, err := shell.WrapPage(context.Background(), merge.PageContent{}); err == nil {
		t.Fatalf("expected error for missing template")
	}
}

func TestShell_HTMLTemplateExecutor(t *testing.T) {
	tmpl := template.Must(template.New("page").Parse(`<div dir="{{.dir}}">{{.title}}</div>`))
	shell := Shell{Templates: tmpl}
	page, err := shell.WrapPage(context.Background(), merge.PageContent{Title: "a&b", Dir: "rtl"})
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if got := string(page); got != `<div dir="rtl">a&amp;b</div>` {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestPongoExecutor_Register(t *testing.T) {
	executor, err := NewPongoExecutor("")
	if err != nil {
		t.Fatalf("executor: %v", err)
	}
	if err := executor.Register("greeting", "Hello {{ name }}"); err != nil {
		t.Fatalf("register: %v", err)
	}
	var buf strings.Builder
	if err := executor.ExecuteTemplate(&buf, "greeting", map[string]any{"name": "Ada"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if buf.String() != "Hello Ada" {
		t.Fatalf("unexpected output: %q", buf.String())
	}
	if err := executor.Register("broken", "{% if %}"); err == nil {
		t.Fatalf("expected compile error")
	}
}
