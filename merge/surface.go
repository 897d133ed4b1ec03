package merge

import (
	"context"
	"sync"
)

// Surface is a rendering surface checked out for one job.
type Surface interface {
	// Mount loads the rendered document into the surface.
	Mount(ctx context.Context, doc RenderedDocument) error
	// WaitFonts blocks until web fonts are ready or ctx is done.
	WaitFonts(ctx context.Context) error
	// WaitImages blocks until every image has loaded or failed, or ctx is done.
	WaitImages(ctx context.Context) error
	// Capture rasterizes the full document.
	Capture(ctx context.Context) (Raster, error)
	// Close tears the surface down, removing any injected global state.
	Close() error
}

// SurfaceProvider creates surfaces.
type SurfaceProvider interface {
	OpenSurface(ctx context.Context) (Surface, error)
}

// SurfaceProviderFunc adapts a function to a SurfaceProvider.
type SurfaceProviderFunc func(ctx context.Context) (Surface, error)

func (f SurfaceProviderFunc) OpenSurface(ctx context.Context) (Surface, error) {
	return f(ctx)
}

// SurfacePool is an arena with a single checked-out slot. At most one
// surface is live at any time; Acquire blocks until the previous lease has
// been released.
type SurfacePool struct {
	provider SurfaceProvider
	slot     chan struct{}

	mu       sync.Mutex
	live     int
	acquired int
}

// NewSurfacePool creates a single-slot pool over provider.
func NewSurfacePool(provider SurfaceProvider) *SurfacePool {
	return &SurfacePool{
		provider: provider,
		slot:     make(chan struct{}, 1),
	}
}

// SurfaceLease is a checked-out surface. Release is idempotent.
type SurfaceLease struct {
	pool    *SurfacePool
	surface Surface
	once    sync.Once
	err     error
}

// Acquire checks out the slot and opens a fresh surface.
func (p *SurfacePool) Acquire(ctx context.Context) (*SurfaceLease, error) {
	if p == nil || p.provider == nil {
		return nil, NewError(KindInternal, "surface provider is required", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case p.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	surface, err := p.provider.OpenSurface(ctx)
	if err != nil {
		<-p.slot
		return nil, err
	}
	if surface == nil {
		<-p.slot
		return nil, NewError(KindInternal, "surface provider returned nil surface", nil)
	}

	p.mu.Lock()
	p.live++
	p.acquired++
	p.mu.Unlock()

	return &SurfaceLease{pool: p, surface: surface}, nil
}

// Surface returns the leased surface.
func (l *SurfaceLease) Surface() Surface {
	if l == nil {
		return nil
	}
	return l.surface
}

// Release closes the surface and frees the slot.
func (l *SurfaceLease) Release() error {
	if l == nil {
		return nil
	}
	l.once.Do(func() {
		l.err = l.surface.Close()
		l.pool.mu.Lock()
		l.pool.live--
		l.pool.mu.Unlock()
		<-l.pool.slot
	})
	return l.err
}

// With runs fn with a leased surface, releasing it on every exit path
// including panics.
func (p *SurfacePool) With(ctx context.Context, fn func(ctx context.Context, surface Surface) error) (err error) {
	lease, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			_ = lease.Release()
			panic(recovered)
		}
		if releaseErr := lease.Release(); releaseErr != nil && err == nil {
			err = NewError(KindInternal, "surface release failed", releaseErr)
		}
	}()
	return fn(ctx, lease.Surface())
}

// Live returns the number of surfaces currently checked out (0 or 1).
func (p *SurfacePool) Live() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// Acquired returns the number of leases handed out so far.
func (p *SurfacePool) Acquired() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired
}
