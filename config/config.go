package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	mergedocx "github.com/goliatone/go-docmerge/adapters/docx"
	mergepdf "github.com/goliatone/go-docmerge/adapters/pdf"
	"github.com/goliatone/go-docmerge/merge"
)

// EnvPrefix prefixes environment overrides, e.g. DOCMERGE_CHROMIUM_PATH.
const EnvPrefix = "DOCMERGE"

// Config holds the docmerge configuration.
type Config struct {
	Templates TemplatesConfig `mapstructure:"templates"`
	Data      DataConfig      `mapstructure:"data"`
	Fill      FillConfig      `mapstructure:"fill"`
	Render    RenderConfig    `mapstructure:"render"`
	Chromium  ChromiumConfig  `mapstructure:"chromium"`
	PDF       PDFConfig       `mapstructure:"pdf"`
	Output    OutputConfig    `mapstructure:"output"`
	History   HistoryConfig   `mapstructure:"history"`
	Log       LogConfig       `mapstructure:"log"`
}

// TemplatesConfig holds marker conventions and predefined templates.
type TemplatesConfig struct {
	StartDelimiter string                `mapstructure:"start_delimiter"`
	EndDelimiter   string                `mapstructure:"end_delimiter"`
	ImagePrefix    string                `mapstructure:"image_prefix"`
	Predefined     []merge.TemplateEntry `mapstructure:"predefined"`
}

// DataConfig holds dataset loading settings.
type DataConfig struct {
	HeaderRow int    `mapstructure:"header_row"`
	Sheet     string `mapstructure:"sheet"`
	Comma     string `mapstructure:"comma"`
}

// FillConfig holds binding and substitution settings.
type FillConfig struct {
	Locale          string           `mapstructure:"locale"`
	MissingKeys     string           `mapstructure:"missing_keys"`
	DateAliases     []string         `mapstructure:"date_aliases"`
	Computed        []ComputedConfig `mapstructure:"computed"`
	MaxImageWidthPx int              `mapstructure:"max_image_width_px"`
	FilenamePattern string           `mapstructure:"filename_pattern"`
	FilenameNative  bool             `mapstructure:"filename_native"`
}

// ComputedConfig is an expression field evaluated per record. Listed rather
// than keyed because configuration keys are case-folded.
type ComputedConfig struct {
	Name string `mapstructure:"name"`
	Expr string `mapstructure:"expr"`
}

// RenderConfig holds document-to-HTML settings.
type RenderConfig struct {
	Headers     bool          `mapstructure:"headers"`
	Footers     bool          `mapstructure:"footers"`
	Notes       bool          `mapstructure:"notes"`
	Lang        string        `mapstructure:"lang"`
	PageWidth   string        `mapstructure:"page_width"`
	PagePadding string        `mapstructure:"page_padding"`
	TemplateDir string        `mapstructure:"template_dir"`
	Stylesheet  string        `mapstructure:"stylesheet"`
	FontWait    time.Duration `mapstructure:"font_wait"`
	ImageWait   time.Duration `mapstructure:"image_wait"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// ChromiumConfig holds rendering surface settings.
type ChromiumConfig struct {
	Path          string        `mapstructure:"path"`
	Headless      bool          `mapstructure:"headless"`
	DeviceScale   float64       `mapstructure:"device_scale"`
	Timeout       time.Duration `mapstructure:"timeout"`
	BlockExternal bool          `mapstructure:"block_external"`
	Args          []string      `mapstructure:"args"`
}

// PDFConfig holds output page settings.
type PDFConfig struct {
	PageSize       string `mapstructure:"page_size"`
	Landscape      bool   `mapstructure:"landscape"`
	MaxRasterBytes int64  `mapstructure:"max_raster_bytes"`
}

// OutputConfig holds output location and format settings.
type OutputConfig struct {
	Dir     string   `mapstructure:"dir"`
	Formats []string `mapstructure:"formats"`
}

// HistoryConfig holds batch history settings. An empty DSN disables history.
type HistoryConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	Debug bool   `mapstructure:"debug"`
}

// Defaults returns a Config with the documented defaults.
func Defaults() Config {
	return Config{
		Templates: TemplatesConfig{
			StartDelimiter: merge.DefaultDelimiters.Start,
			EndDelimiter:   merge.DefaultDelimiters.End,
			ImagePrefix:    merge.DefaultImagePrefix,
		},
		Data: DataConfig{
			HeaderRow: 0,
			Comma:     ",",
		},
		Fill: FillConfig{
			Locale:          merge.DefaultLocale,
			MissingKeys:     string(mergedocx.MissingEmpty),
			DateAliases:     append([]string(nil), merge.DefaultDateAliases...),
			MaxImageWidthPx: 576,
			FilenamePattern: merge.DefaultFilenamePattern,
			FilenameNative:  true,
		},
		Render: RenderConfig{
			Headers:     true,
			Footers:     true,
			Notes:       false,
			Lang:        mergedocx.DefaultLang,
			PageWidth:   "210mm",
			PagePadding: "20mm",
			FontWait:    5 * time.Second,
			ImageWait:   5 * time.Second,
			SettleDelay: time.Second,
		},
		Chromium: ChromiumConfig{
			Headless:    true,
			DeviceScale: 2,
			Timeout:     60 * time.Second,
		},
		PDF: PDFConfig{
			PageSize:       "A4",
			MaxRasterBytes: mergepdf.DefaultMaxRasterBytes,
		},
		Output: OutputConfig{
			Dir:     "./out",
			Formats: []string{string(merge.FormatDOCX)},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from .env files, an optional YAML file and
// DOCMERGE_* environment variables, on top of Defaults. With an empty path
// the file is searched as .docmerge.yaml in the working directory and then
// $HOME/.docmerge; a missing file is not an error.
func Load(path string) (Config, error) {
	loadEnvFiles()

	v := viper.New()
	setDefaults(v, Defaults())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(".docmerge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".docmerge"))
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that are parsed later by adapters.
func (c Config) Validate() error {
	if _, err := c.MissingPolicy(); err != nil {
		return err
	}
	if _, err := c.PageLayout(); err != nil {
		return err
	}
	if _, err := c.Formats(); err != nil {
		return err
	}
	if _, _, err := c.PageGeometry(); err != nil {
		return err
	}
	if c.Data.HeaderRow < 0 {
		return merge.NewError(merge.KindValidation, "data.header_row must not be negative", nil)
	}
	if len([]rune(c.Data.Comma)) > 1 {
		return merge.NewError(merge.KindValidation, "data.comma must be a single character", nil)
	}
	if _, err := c.Binder(); err != nil {
		return err
	}
	if c.Templates.StartDelimiter == "" || c.Templates.EndDelimiter == "" {
		return merge.NewError(merge.KindValidation, "template delimiters must not be empty", nil)
	}
	return nil
}

// Delimiters returns the configured marker pair.
func (c Config) Delimiters() merge.Delimiters {
	return merge.Delimiters{Start: c.Templates.StartDelimiter, End: c.Templates.EndDelimiter}
}

// MissingPolicy parses fill.missing_keys.
func (c Config) MissingPolicy() (mergedocx.MissingPolicy, error) {
	return mergedocx.ParseMissingPolicy(c.Fill.MissingKeys)
}

// PageLayout resolves pdf.page_size and pdf.landscape.
func (c Config) PageLayout() (merge.PageLayout, error) {
	return mergepdf.Layout(c.PDF.PageSize, c.PDF.Landscape)
}

// PageGeometry parses the rendered page width and padding in millimetres.
func (c Config) PageGeometry() (float64, float64, error) {
	width, err := mergepdf.ParseLengthMM(c.Render.PageWidth)
	if err != nil {
		return 0, 0, err
	}
	padding, err := mergepdf.ParseLengthMM(c.Render.PagePadding)
	if err != nil {
		return 0, 0, err
	}
	return width, padding, nil
}

// Formats parses output.formats.
func (c Config) Formats() ([]merge.Format, error) {
	return merge.ParseFormats(c.Output.Formats)
}

// RenderOptions returns the render pipeline settings.
func (c Config) RenderOptions() (merge.RenderOptions, error) {
	layout, err := c.PageLayout()
	if err != nil {
		return merge.RenderOptions{}, err
	}
	return merge.RenderOptions{
		FontTimeout:  c.Render.FontWait,
		ImageTimeout: c.Render.ImageWait,
		SettleDelay:  c.Render.SettleDelay,
		Layout:       layout,
	}, nil
}

// Registry builds the predefined template registry.
func (c Config) Registry() (*merge.TemplateRegistry, error) {
	reg := merge.NewTemplateRegistry()
	for _, entry := range c.Templates.Predefined {
		if err := reg.Register(entry); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Binder builds the record binder, compiling computed fields.
func (c Config) Binder() (*merge.Binder, error) {
	binder := merge.NewBinder()
	if c.Fill.Locale != "" {
		binder.Locale = c.Fill.Locale
	}
	if len(c.Fill.DateAliases) > 0 {
		binder.DateAliases = append([]string(nil), c.Fill.DateAliases...)
	}
	exprs := make(map[string]string, len(c.Fill.Computed))
	for _, field := range c.Fill.Computed {
		if field.Name == "" {
			return nil, merge.NewError(merge.KindValidation, "computed field name is required", nil)
		}
		exprs[field.Name] = field.Expr
	}
	computed, err := merge.CompileComputedFields(exprs)
	if err != nil {
		return nil, err
	}
	binder.Computed = computed
	return binder, nil
}

// MaxImageWidthEMU converts fill.max_image_width_px to drawing units.
func (c Config) MaxImageWidthEMU() int64 {
	return int64(c.Fill.MaxImageWidthPx) * mergedocx.EMUPerPixel
}

// Scripts returns the native-script ranges allowed in output filenames.
func (c Config) Scripts() []merge.ScriptRange {
	if !c.Fill.FilenameNative {
		return nil
	}
	return []merge.ScriptRange{merge.HebrewRange}
}

// Comma returns the CSV field separator.
func (c Config) Comma() rune {
	if r := []rune(c.Data.Comma); len(r) == 1 {
		return r[0]
	}
	return ','
}

func setDefaults(v *viper.Viper, cfg Config) {
	defaults := map[string]any{
		"templates.start_delimiter": cfg.Templates.StartDelimiter,
		"templates.end_delimiter":   cfg.Templates.EndDelimiter,
		"templates.image_prefix":    cfg.Templates.ImagePrefix,
		"templates.predefined":      cfg.Templates.Predefined,
		"data.header_row":           cfg.Data.HeaderRow,
		"data.sheet":                cfg.Data.Sheet,
		"data.comma":                cfg.Data.Comma,
		"fill.locale":               cfg.Fill.Locale,
		"fill.missing_keys":         cfg.Fill.MissingKeys,
		"fill.date_aliases":         cfg.Fill.DateAliases,
		"fill.computed":             cfg.Fill.Computed,
		"fill.max_image_width_px":   cfg.Fill.MaxImageWidthPx,
		"fill.filename_pattern":     cfg.Fill.FilenamePattern,
		"fill.filename_native":      cfg.Fill.FilenameNative,
		"render.headers":            cfg.Render.Headers,
		"render.footers":            cfg.Render.Footers,
		"render.notes":              cfg.Render.Notes,
		"render.lang":               cfg.Render.Lang,
		"render.page_width":         cfg.Render.PageWidth,
		"render.page_padding":       cfg.Render.PagePadding,
		"render.template_dir":       cfg.Render.TemplateDir,
		"render.stylesheet":         cfg.Render.Stylesheet,
		"render.font_wait":          cfg.Render.FontWait,
		"render.image_wait":         cfg.Render.ImageWait,
		"render.settle_delay":       cfg.Render.SettleDelay,
		"chromium.path":             cfg.Chromium.Path,
		"chromium.headless":         cfg.Chromium.Headless,
		"chromium.device_scale":     cfg.Chromium.DeviceScale,
		"chromium.timeout":          cfg.Chromium.Timeout,
		"chromium.block_external":   cfg.Chromium.BlockExternal,
		"chromium.args":             cfg.Chromium.Args,
		"pdf.page_size":             cfg.PDF.PageSize,
		"pdf.landscape":             cfg.PDF.Landscape,
		"pdf.max_raster_bytes":      cfg.PDF.MaxRasterBytes,
		"output.dir":                cfg.Output.Dir,
		"output.formats":            cfg.Output.Formats,
		"history.dsn":               cfg.History.DSN,
		"log.level":                 cfg.Log.Level,
		"log.debug":                 cfg.Log.Debug,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}
