package merge

import (
	"context"
	"errors"
	"time"
)

// State is a render pipeline state.
type State string

const (
	StateIdle              State = "idle"
	StateContainerAcquired State = "container_acquired"
	StateDocumentRendered  State = "document_rendered"
	StateResourcesSettled  State = "resources_settled"
	StateCaptured          State = "captured"
	StateReleased          State = "released"
	StateFailed            State = "failed"
)

// RenderOptions holds the render pipeline knobs.
type RenderOptions struct {
	FontTimeout  time.Duration
	ImageTimeout time.Duration
	SettleDelay  time.Duration
	Layout       PageLayout
}

// DefaultRenderOptions returns the documented default set.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		FontTimeout:  5 * time.Second,
		ImageTimeout: 5 * time.Second,
		SettleDelay:  time.Second,
		Layout:       DefaultPageLayout,
	}
}

// RenderResult is the outcome of one pipeline run.
type RenderResult struct {
	Output   []byte
	Pages    int
	Degraded []error
	Trace    []State
}

// Pipeline renders a filled document on a pooled surface and assembles a
// paginated output from the captured raster.
type Pipeline struct {
	Renderer  DocumentRenderer
	Surfaces  *SurfacePool
	Assembler Assembler
	Options   RenderOptions
	Logger    Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// Export runs the state machine for one document. The surface is released on
// every exit path. Resource waits that time out are recorded in
// RenderResult.Degraded and do not fail the run.
func (p *Pipeline) Export(ctx context.Context, doc FilledDocument, progress func(Stage)) (RenderResult, error) {
	result := RenderResult{Trace: []State{StateIdle}}
	if p == nil || p.Renderer == nil || p.Surfaces == nil || p.Assembler == nil {
		result.Trace = append(result.Trace, StateFailed)
		return result, NewExportError(doc.RecordID, "render pipeline is not configured", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	logger := loggerOrNop(p.Logger)
	opts := p.options()
	stage := func(s Stage) {
		if progress != nil {
			progress(s)
		}
	}

	acquired := false
	stage(StageCreatingSurface)
	err := p.Surfaces.With(ctx, func(ctx context.Context, surface Surface) error {
		acquired = true
		result.Trace = append(result.Trace, StateContainerAcquired)

		stage(StageRendering)
		rendered, err := p.Renderer.RenderDocument(ctx, doc)
		if err != nil {
			return NewExportError(doc.RecordID, "document render failed", err)
		}
		if rendered.RecordID == "" {
			rendered.RecordID = doc.RecordID
		}
		if err := surface.Mount(ctx, rendered); err != nil {
			return NewExportError(doc.RecordID, "document mount failed", err)
		}
		result.Trace = append(result.Trace, StateDocumentRendered)

		stage(StageWaitingFonts)
		if err := p.settle(ctx, doc.RecordID, "fonts", opts.FontTimeout, surface.WaitFonts, &result); err != nil {
			return err
		}
		stage(StageWaitingImages)
		if err := p.settle(ctx, doc.RecordID, "images", opts.ImageTimeout, surface.WaitImages, &result); err != nil {
			return err
		}
		if err := p.wait(ctx, opts.SettleDelay); err != nil {
			return err
		}
		result.Trace = append(result.Trace, StateResourcesSettled)

		stage(StageGenerating)
		raster, err := surface.Capture(ctx)
		if err != nil {
			return NewExportError(doc.RecordID, "capture failed", err)
		}
		if raster.Width <= 0 || raster.Height <= 0 || len(raster.PNG) == 0 {
			return NewExportError(doc.RecordID, "rendered document is empty", nil)
		}
		output, err := p.Assembler.Assemble(ctx, raster, opts.Layout)
		if err != nil {
			return NewExportError(doc.RecordID, "output assembly failed", err)
		}
		result.Output = output
		pageWidth, pageHeight := opts.Layout.Dimensions()
		result.Pages = len(Paginate(ScaledHeight(raster.Width, raster.Height, pageWidth), pageHeight))
		result.Trace = append(result.Trace, StateCaptured)
		stage(StageCleaningUp)
		return nil
	})

	if err != nil {
		result.Trace = append(result.Trace, StateFailed)
		result.Output = nil
	}
	if acquired {
		result.Trace = append(result.Trace, StateReleased)
	}
	if err != nil {
		if KindFromError(err) != KindExport {
			err = NewExportError(doc.RecordID, "render pipeline failed", err)
		}
		logger.Errorf("render %q failed: %v", doc.RecordID, err)
		return result, err
	}
	return result, nil
}

// settle runs one bounded resource wait. A wait that exceeds its own timeout
// while the job context is still live is a degraded success.
func (p *Pipeline) settle(ctx context.Context, recordID, resource string, timeout time.Duration, wait func(context.Context) error, result *RenderResult) error {
	waitCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	err := wait(waitCtx)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && (errors.Is(err, context.DeadlineExceeded) || waitCtx.Err() != nil) {
		degraded := NewRenderTimeout(recordID, resource, timeout)
		loggerOrNop(p.Logger).Warnf("%v; continuing with partially loaded content", degraded)
		result.Degraded = append(result.Degraded, degraded)
		return nil
	}
	return NewExportError(recordID, "waiting for "+resource+" failed", err)
}

func (p *Pipeline) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) options() RenderOptions {
	opts := p.Options
	if opts.Layout.WidthMM <= 0 || opts.Layout.HeightMM <= 0 {
		opts.Layout = DefaultPageLayout
	}
	return opts
}
