package merge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSurface struct {
	mu        sync.Mutex
	calls     []string
	closed    bool
	fontWait  func(ctx context.Context) error
	imageWait func(ctx context.Context) error
	raster    Raster
	mountErr  error
	captureFn func() (Raster, error)
}

func (s *fakeSurface) record(call string) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}

func (s *fakeSurface) Mount(ctx context.Context, doc RenderedDocument) error {
	s.record("mount:" + doc.RecordID)
	return s.mountErr
}

func (s *fakeSurface) WaitFonts(ctx context.Context) error {
	s.record("fonts")
	if s.fontWait != nil {
		return s.fontWait(ctx)
	}
	return nil
}

func (s *fakeSurface) WaitImages(ctx context.Context) error {
	s.record("images")
	if s.imageWait != nil {
		return s.imageWait(ctx)
	}
	return nil
}

func (s *fakeSurface) Capture(ctx context.Context) (Raster, error) {
	s.record("capture")
	if s.captureFn != nil {
		return s.captureFn()
	}
	return s.raster, nil
}

func (s *fakeSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.calls = append(s.calls, "close")
	return nil
}

func TestSurfacePoolSingleSlot(t *testing.T) {
	opened := 0
	pool := NewSurfacePool(SurfaceProviderFunc(func(ctx context.Context) (Surface, error) {
		opened++
		return &fakeSurface{}, nil
	}))

	lease, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if pool.Live() != 1 {
		t.Fatalf("expected one live surface, got %d", pool.Live())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := pool.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected second acquire to block until deadline, got %v", err)
	}

	if err := lease.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := lease.Release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if pool.Live() != 0 {
		t.Fatalf("expected no live surface after release, got %d", pool.Live())
	}
	if !lease.Surface().(*fakeSurface).closed {
		t.Fatalf("expected surface closed on release")
	}

	next, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	_ = next.Release()
	if opened != 2 || pool.Acquired() != 2 {
		t.Fatalf("expected a fresh surface per lease, opened %d acquired %d", opened, pool.Acquired())
	}
}

func TestSurfacePoolWithReleasesOnPanic(t *testing.T) {
	surface := &fakeSurface{}
	pool := NewSurfacePool(SurfaceProviderFunc(func(context.Context) (Surface, error) {
		return surface, nil
	}))

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = pool.With(context.Background(), func(context.Context, Surface) error {
			panic("boom")
		})
	}()

	if pool.Live() != 0 || !surface.closed {
		t.Fatalf("expected surface released after panic, live=%d closed=%v", pool.Live(), surface.closed)
	}
}

func TestSurfacePoolProviderErrorFreesSlot(t *testing.T) {
	fail := true
	pool := NewSurfacePool(SurfaceProviderFunc(func(context.Context) (Surface, error) {
		if fail {
			return nil, errors.New("launch failed")
		}
		return &fakeSurface{}, nil
	}))
	if _, err := pool.Acquire(context.Background()); err == nil {
		t.Fatalf("expected provider error")
	}
	fail = false
	lease, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("expected slot to be free after provider error, got %v", err)
	}
	_ = lease.Release()

	if _, err := (&SurfacePool{}).Acquire(context.Background()); KindFromError(err) != KindInternal {
		t.Fatalf("expected internal error without provider, got %v", err)
	}
}
