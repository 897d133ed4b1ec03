package mergechromium

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/goliatone/go-docmerge/merge"
)

const (
	DefaultDeviceScale = 2.0
	DefaultTimeout     = 60 * time.Second

	cssPixelsPerInch = 96.0
	mmPerInch        = 25.4
)

// Browser opens surfaces on a shared headless Chromium instance.
type Browser struct {
	BrowserPath string
	Headless    bool
	// Timeout bounds every browser operation on a surface.
	Timeout       time.Duration
	Args          []string
	DeviceScale   float64
	PageWidthMM   float64
	BaseURL       string
	BlockExternal bool
	Logger        merge.Logger

	initOnce      sync.Once
	initErr       error
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	surfaces      atomic.Int64
}

var _ merge.SurfaceProvider = (*Browser)(nil)

// OpenSurface opens a new tab sized to the page width.
func (b *Browser) OpenSurface(ctx context.Context) (merge.Surface, error) {
	if b == nil {
		return nil, merge.NewError(merge.KindInternal, "chromium browser is nil", nil)
	}
	if err := b.ensureBrowser(); err != nil {
		return nil, merge.NewError(merge.KindInternal, "chromium browser init failed", err)
	}

	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	s := &surface{
		browser: b,
		tabCtx:  tabCtx,
		cancel:  cancel,
		styleID: fmt.Sprintf("docmerge-surface-%d", b.surfaces.Add(1)),
	}

	// the target is bound to the first context it runs on
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, merge.NewError(merge.KindInternal, "chromium tab open failed", err)
	}

	if err := s.run(ctx, b.tabActions()...); err != nil {
		cancel()
		return nil, merge.NewError(merge.KindInternal, "chromium tab init failed", err)
	}
	return s, nil
}

// Close releases Chromium resources if they have been initialized.
func (b *Browser) Close() error {
	if b == nil {
		return nil
	}
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	return nil
}

func (b *Browser) ensureBrowser() error {
	b.initOnce.Do(func() {
		options := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		if b.BrowserPath != "" {
			options = append(options, chromedp.ExecPath(b.BrowserPath))
		}
		options = append(options, chromedp.Flag("headless", b.Headless))
		options = append(options, allocatorOptionsFromArgs(b.Args)...)

		b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), options...)
		b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)
		b.initErr = chromedp.Run(b.browserCtx)
	})
	if b.initErr != nil {
		return b.initErr
	}
	if b.allocCtx == nil || b.browserCtx == nil {
		return errors.New("chromium allocator unavailable")
	}
	return nil
}

func (b *Browser) deviceScale() float64 {
	if b.DeviceScale <= 0 {
		return DefaultDeviceScale
	}
	return b.DeviceScale
}

func (b *Browser) pageWidthMM() float64 {
	if b.PageWidthMM <= 0 {
		return merge.DefaultPageLayout.WidthMM
	}
	return b.PageWidthMM
}

func (b *Browser) timeout() time.Duration {
	if b.Timeout <= 0 {
		return DefaultTimeout
	}
	return b.Timeout
}

func (b *Browser) logger() merge.Logger {
	if b.Logger == nil {
		return merge.NopLogger{}
	}
	return b.Logger
}

// viewportPixels returns the CSS pixel viewport for a page width, with an
// initial height of one A-series page.
// externalPatterns are the URL patterns blocked when BlockExternal is set.
// Data URLs and the page itself are not network requests and stay allowed.
var externalPatterns = []string{"http://*:*/*", "https://*:*/*"}

// tabActions prepares a new tab: viewport emulation, and request blocking
// when external assets are disabled.
func (b *Browser) tabActions() []chromedp.Action {
	width, height := viewportPixels(b.pageWidthMM())
	actions := []chromedp.Action{
		chromedp.EmulateViewport(width, height, chromedp.EmulateScale(b.deviceScale())),
	}
	if !b.BlockExternal {
		return actions
	}
	return append(actions, network.Enable(), network.SetBlockedURLs().WithURLPatterns(blockPatterns()))
}

func blockPatterns() []*network.BlockPattern {
	out := make([]*network.BlockPattern, 0, len(externalPatterns))
	for _, pattern := range externalPatterns {
		out = append(out, &network.BlockPattern{URLPattern: pattern, Block: true})
	}
	return out
}

func viewportPixels(widthMM float64) (int64, int64) {
	width := int64(math.Round(widthMM / mmPerInch * cssPixelsPerInch))
	height := int64(math.Round(float64(width) * math.Sqrt2))
	return width, height
}

type surface struct {
	browser *Browser
	tabCtx  context.Context
	cancel  context.CancelFunc
	styleID string

	mu      sync.Mutex
	mounted bool
	closed  bool
}

// run executes actions on the tab. The actions stop when ctx is done or the
// browser timeout elapses, whichever is first.
func (s *surface) run(ctx context.Context, actions ...chromedp.Action) error {
	if ctx == nil {
		ctx = context.Background()
	}
	execCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-execCtx.Done():
		}
	}()
	execCtx, cancelTimeout := context.WithTimeout(execCtx, s.browser.timeout())
	defer cancelTimeout()

	err := chromedp.Run(execCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *surface) Mount(ctx context.Context, doc merge.RenderedDocument) error {
	prepared, err := prepareDocument(doc.HTML, s.styleID, s.browser.BaseURL)
	if err != nil {
		return err
	}
	s.browser.logger().Debugf("chromium: mounting %q (%d images)", doc.RecordID, prepared.Images)

	err = s.run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, prepared.HTML).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.mounted = true
	s.mu.Unlock()
	return nil
}

const waitFontsScript = `document.fonts ? document.fonts.ready.then(() => true) : true`

const waitImagesScript = `Promise.all(Array.from(document.images)
	.filter((img) => !img.complete)
	.map((img) => new Promise((resolve) => {
		img.addEventListener('load', resolve, { once: true });
		img.addEventListener('error', resolve, { once: true });
	}))).then(() => document.images.length)`

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

func (s *surface) WaitFonts(ctx context.Context) error {
	var ready bool
	return s.run(ctx, chromedp.Evaluate(waitFontsScript, &ready, awaitPromise))
}

func (s *surface) WaitImages(ctx context.Context) error {
	var count int
	if err := s.run(ctx, chromedp.Evaluate(waitImagesScript, &count, awaitPromise)); err != nil {
		return err
	}
	s.browser.logger().Debugf("chromium: %d images settled", count)
	return nil
}

func (s *surface) Capture(ctx context.Context) (merge.Raster, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return merge.Raster{}, err
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		return merge.Raster{}, fmt.Errorf("decode capture: %w", err)
	}
	if format != "png" {
		return merge.Raster{}, fmt.Errorf("unexpected capture format %q", format)
	}
	return merge.Raster{PNG: buf, Width: cfg.Width, Height: cfg.Height}, nil
}

// Close removes the scoped style element and closes the tab.
func (s *surface) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	mounted := s.mounted
	s.mu.Unlock()

	var err error
	if mounted {
		var removed bool
		err = s.run(context.Background(), chromedp.Evaluate(removeStyleScript(s.styleID), &removed))
		if err != nil {
			s.browser.logger().Warnf("chromium: removing surface style failed: %v", err)
		}
	}
	s.cancel()
	return err
}

func removeStyleScript(id string) string {
	return fmt.Sprintf(`(() => { const el = document.getElementById(%q); if (el) { el.remove(); return true; } return false; })()`, id)
}

func allocatorOptionsFromArgs(args []string) []chromedp.ExecAllocatorOption {
	options := make([]chromedp.ExecAllocatorOption, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		arg = strings.TrimPrefix(arg, "--")
		if arg == "" {
			continue
		}
		if name, value, ok := strings.Cut(arg, "="); ok {
			options = append(options, chromedp.Flag(name, value))
			continue
		}
		options = append(options, chromedp.Flag(arg, true))
	}
	return options
}
