package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	mergechromium "github.com/goliatone/go-docmerge/adapters/chromium"
	mergedocx "github.com/goliatone/go-docmerge/adapters/docx"
	historybun "github.com/goliatone/go-docmerge/adapters/history/bun"
	mergepdf "github.com/goliatone/go-docmerge/adapters/pdf"
	storefs "github.com/goliatone/go-docmerge/adapters/store/fs"
	mergetemplate "github.com/goliatone/go-docmerge/adapters/template"
	"github.com/goliatone/go-docmerge/config"
	"github.com/goliatone/go-docmerge/internal/logger"
	"github.com/goliatone/go-docmerge/merge"
)

// App holds the state shared by every command.
type App struct {
	Config config.Config
	Logger *zap.Logger
	Out    io.Writer
	Err    io.Writer

	// NewSurfaceProvider overrides the Chromium surface provider.
	NewSurfaceProvider func(cfg config.Config, log merge.Logger) (merge.SurfaceProvider, io.Closer, error)

	closers []io.Closer
}

func (a *App) log() merge.Logger {
	return logger.Adapt(a.Logger)
}

// Close releases resources opened while building the service.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return first
}

// Engine builds the DOCX engine from configuration.
func (a *App) Engine() (*mergedocx.Engine, error) {
	cfg := a.Config
	policy, err := cfg.MissingPolicy()
	if err != nil {
		return nil, err
	}
	width, padding, err := cfg.PageGeometry()
	if err != nil {
		return nil, err
	}
	shell, err := mergetemplate.NewShell(cfg.Render.TemplateDir)
	if err != nil {
		return nil, err
	}
	if cfg.Render.Stylesheet != "" {
		css, err := os.ReadFile(cfg.Render.Stylesheet)
		if err != nil {
			return nil, fmt.Errorf("read stylesheet: %w", err)
		}
		shell.Stylesheet = string(css)
	}
	return mergedocx.NewEngine(mergedocx.Options{
		MissingKeys:      policy,
		MaxImageWidthEMU: cfg.MaxImageWidthEMU(),
		RenderHeaders:    cfg.Render.Headers,
		RenderFooters:    cfg.Render.Footers,
		RenderNotes:      cfg.Render.Notes,
		Shell:            shell,
		Lang:             cfg.Render.Lang,
		PageWidthMM:      width,
		PagePaddingMM:    padding,
		Logger:           a.log(),
	}), nil
}

// LoadTemplate reads a template from path, or from the predefined template
// registered under id.
func (a *App) LoadTemplate(ctx context.Context, engine *mergedocx.Engine, path, id string) (*merge.Template, error) {
	if path == "" && id != "" {
		reg, err := a.Config.Registry()
		if err != nil {
			return nil, err
		}
		entry, err := reg.Resolve(id)
		if err != nil {
			return nil, err
		}
		path = entry.Path
	}
	if path == "" {
		return nil, merge.NewError(merge.KindValidation, "a template path or template id is required", nil)
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, merge.NewError(merge.KindNotFound, fmt.Sprintf("template %q not found", path), err)
		}
		return nil, err
	}
	defer f.Close()
	return merge.LoadTemplate(ctx, f, merge.TemplateOptions{
		Name:        filepath.Base(path),
		Delimiters:  a.Config.Delimiters(),
		ImagePrefix: a.Config.Templates.ImagePrefix,
	}, engine)
}

// Service builds the merge service writing to outDir. The render pipeline
// and its browser are only created when formats include PDF.
func (a *App) Service(ctx context.Context, engine *mergedocx.Engine, outDir string, formats []merge.Format) (merge.Service, error) {
	cfg := a.Config
	log := a.log()

	binder, err := cfg.Binder()
	if err != nil {
		return nil, err
	}
	if outDir == "" {
		outDir = cfg.Output.Dir
	}

	svcCfg := merge.ServiceConfig{
		Scanner:         engine,
		Engine:          engine,
		Store:           storefs.NewStore(outDir),
		Binder:          binder,
		Logger:          log,
		FilenamePattern: cfg.Fill.FilenamePattern,
		Scripts:         cfg.Scripts(),
	}

	if wantsPDF(formats) {
		pipeline, err := a.pipeline(engine, log)
		if err != nil {
			return nil, err
		}
		svcCfg.Pipeline = pipeline
	}

	history, err := a.History(ctx)
	if err != nil {
		return nil, err
	}
	if history != nil {
		svcCfg.History = history
	}
	return merge.NewService(svcCfg), nil
}

// History opens the configured batch history, or returns nil when none is
// configured.
func (a *App) History(ctx context.Context) (merge.BatchHistory, error) {
	if a.Config.History.DSN == "" {
		return nil, nil
	}
	store, err := historybun.Open(ctx, a.Config.History.DSN)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store)
	return store, nil
}

func (a *App) pipeline(engine *mergedocx.Engine, log merge.Logger) (*merge.Pipeline, error) {
	cfg := a.Config
	opts, err := cfg.RenderOptions()
	if err != nil {
		return nil, err
	}

	newProvider := a.NewSurfaceProvider
	if newProvider == nil {
		newProvider = chromiumProvider
	}
	provider, closer, err := newProvider(cfg, log)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	return &merge.Pipeline{
		Renderer: engine,
		Surfaces: merge.NewSurfacePool(provider),
		Assembler: mergepdf.Assembler{
			MaxRasterBytes: cfg.PDF.MaxRasterBytes,
			Logger:         log,
		},
		Options: opts,
		Logger:  log,
	}, nil
}

func chromiumProvider(cfg config.Config, log merge.Logger) (merge.SurfaceProvider, io.Closer, error) {
	width, _, err := cfg.PageGeometry()
	if err != nil {
		return nil, nil, err
	}
	browser := &mergechromium.Browser{
		BrowserPath:   cfg.Chromium.Path,
		Headless:      cfg.Chromium.Headless,
		Timeout:       cfg.Chromium.Timeout,
		Args:          cfg.Chromium.Args,
		DeviceScale:   cfg.Chromium.DeviceScale,
		PageWidthMM:   width,
		BlockExternal: cfg.Chromium.BlockExternal,
		Logger:        log,
	}
	return browser, browser, nil
}

func wantsPDF(formats []merge.Format) bool {
	for _, format := range formats {
		if format == merge.FormatPDF {
			return true
		}
	}
	return false
}

// ParseFormatFlag accepts comma separated and repeated --format values.
func ParseFormatFlag(values []string, fallback []string) ([]merge.Format, error) {
	var parts []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				parts = append(parts, part)
			}
		}
	}
	if len(parts) == 0 {
		parts = fallback
	}
	return merge.ParseFormats(parts)
}
