package merge

import (
	"math"
	"testing"
)

func TestPaginate(t *testing.T) {
	bands := Paginate(2500, 1000)
	if len(bands) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(bands))
	}
	for i, offset := range []float64{0, 1000, 2000} {
		if bands[i].Offset != offset || bands[i].Page != i+1 {
			t.Fatalf("band %d: expected offset %v, got %+v", i, offset, bands[i])
		}
	}
	last := bands[2]
	if last.Height != 500 || last.Padding != 500 {
		t.Fatalf("expected padded 500 unit remainder, got %+v", last)
	}
}

func TestPaginateEdges(t *testing.T) {
	tests := []struct {
		h, p float64
		want int
	}{
		{h: 1000, p: 1000, want: 1},
		{h: 2000, p: 1000, want: 2},
		{h: 1, p: 1000, want: 1},
		{h: 2000.0000000001, p: 1000, want: 2},
		{h: 0, p: 1000, want: 0},
		{h: 100, p: 0, want: 0},
		{h: math.Inf(1), p: 1000, want: 0},
	}
	for _, tc := range tests {
		if got := len(Paginate(tc.h, tc.p)); got != tc.want {
			t.Fatalf("Paginate(%v, %v): expected %d pages, got %d", tc.h, tc.p, tc.want, got)
		}
	}
}

func TestScaledHeight(t *testing.T) {
	if got := ScaledHeight(100, 300, 210); got != 630 {
		t.Fatalf("expected 630, got %v", got)
	}
	if got := ScaledHeight(0, 300, 210); got != 0 {
		t.Fatalf("expected 0 for empty width, got %v", got)
	}
	w, h := PageLayout{WidthMM: 210, HeightMM: 297, Landscape: true}.Dimensions()
	if w != 297 || h != 210 {
		t.Fatalf("expected swapped landscape dimensions, got %vx%v", w, h)
	}
}
