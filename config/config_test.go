package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mergedocx "github.com/goliatone/go-docmerge/adapters/docx"
	"github.com/goliatone/go-docmerge/merge"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	return dir
}

func TestDefaults_AreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	layout, err := cfg.PageLayout()
	require.NoError(t, err)
	assert.Equal(t, "A4", layout.Size)
	assert.False(t, layout.Landscape)

	opts, err := cfg.RenderOptions()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, opts.FontTimeout)
	assert.Equal(t, 5*time.Second, opts.ImageTimeout)
	assert.Equal(t, time.Second, opts.SettleDelay)

	width, padding, err := cfg.PageGeometry()
	require.NoError(t, err)
	assert.Equal(t, 210.0, width)
	assert.Equal(t, 20.0, padding)

	assert.Equal(t, int64(5486400), cfg.MaxImageWidthEMU())
	assert.Equal(t, merge.DefaultDelimiters, cfg.Delimiters())
	assert.Equal(t, []merge.ScriptRange{merge.HebrewRange}, cfg.Scripts())
	assert.True(t, cfg.Render.Headers)
	assert.False(t, cfg.Render.Notes)
	assert.Empty(t, cfg.History.DSN)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults().Output, cfg.Output)
	assert.Equal(t, 60*time.Second, cfg.Chromium.Timeout)
}

func TestLoad_File(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "docmerge.yaml")
	content := `
templates:
  start_delimiter: "{{"
  end_delimiter: "}}"
  predefined:
    - id: welcome
      path: templates/welcome.docx
      names:
        en: Welcome letter
        he: מכתב ברוכים הבאים
fill:
  locale: en-US
  missing_keys: keep
  computed:
    - name: Greeting
      expr: '"Dear " + record["Full Name"]'
render:
  font_wait: 2s
  page_padding: 1cm
pdf:
  page_size: letter
  landscape: true
output:
  formats: [docx, pdf]
history:
  dsn: file:history.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, merge.Delimiters{Start: "{{", End: "}}"}, cfg.Delimiters())
	policy, err := cfg.MissingPolicy()
	require.NoError(t, err)
	assert.Equal(t, mergedocx.MissingKeep, policy)
	assert.Equal(t, 2*time.Second, cfg.Render.FontWait)
	assert.Equal(t, 5*time.Second, cfg.Render.ImageWait)
	assert.Equal(t, "file:history.db", cfg.History.DSN)

	_, padding, err := cfg.PageGeometry()
	require.NoError(t, err)
	assert.Equal(t, 10.0, padding)

	formats, err := cfg.Formats()
	require.NoError(t, err)
	assert.Equal(t, []merge.Format{merge.FormatDOCX, merge.FormatPDF}, formats)

	reg, err := cfg.Registry()
	require.NoError(t, err)
	entry, err := reg.Resolve("welcome")
	require.NoError(t, err)
	assert.Equal(t, "מכתב ברוכים הבאים", entry.DisplayName("he"))

	binder, err := cfg.Binder()
	require.NoError(t, err)
	assert.Equal(t, "en-US", binder.Locale)
	require.Len(t, binder.Computed, 1)
	assert.Equal(t, "Greeting", binder.Computed[0].Name)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("DOCMERGE_PDF_PAGE_SIZE", "A5")
	t.Setenv("DOCMERGE_CHROMIUM_TIMEOUT", "15s")
	t.Setenv("DOCMERGE_HISTORY_DSN", "file:env.db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "A5", cfg.PDF.PageSize)
	assert.Equal(t, 15*time.Second, cfg.Chromium.Timeout)
	assert.Equal(t, "file:env.db", cfg.History.DSN)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DOCMERGE_FILL_LOCALE=de-DE\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("DOCMERGE_FILL_LOCALE") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "de-DE", cfg.Fill.Locale)
}

func TestLoad_Errors(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("fill:\n  missing_keys: sometimes\n"), 0o644))
	_, err = Load(bad)
	assert.Equal(t, merge.KindValidation, merge.KindFromError(err))

	bad = filepath.Join(dir, "size.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("pdf:\n  page_size: B9\n"), 0o644))
	_, err = Load(bad)
	assert.Equal(t, merge.KindValidation, merge.KindFromError(err))
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Data.HeaderRow = -1
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Data.Comma = ";;"
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Data.Comma = ";"
	assert.Equal(t, ';', cfg.Comma())

	cfg = Defaults()
	cfg.Output.Formats = []string{"odt"}
	assert.Error(t, cfg.Validate())
}
