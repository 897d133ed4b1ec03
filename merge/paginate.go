package merge

import "math"

// PageLayout describes the output page in millimetres.
type PageLayout struct {
	Size      string
	WidthMM   float64
	HeightMM  float64
	Landscape bool
}

// DefaultPageLayout is A4 portrait.
var DefaultPageLayout = PageLayout{Size: "A4", WidthMM: 210, HeightMM: 297}

// Dimensions returns the page width and height, swapped for landscape.
func (l PageLayout) Dimensions() (float64, float64) {
	if l.Landscape {
		return l.HeightMM, l.WidthMM
	}
	return l.WidthMM, l.HeightMM
}

// Band is the slice of a raster shown on one page. Offset and Height are in
// the same unit as the raster height passed to Paginate; Padding is the blank
// space left below the content on the final page.
type Band struct {
	Page    int
	Offset  float64
	Height  float64
	Padding float64
}

const paginateEpsilon = 1e-9

// Paginate slices a raster of height h into pages of height p. It returns
// ceil(h/p) bands at offsets 0, p, 2p, ...; the final band holds the
// remainder and is padded, never stretched.
func Paginate(h, p float64) []Band {
	if h <= 0 || p <= 0 || math.IsNaN(h) || math.IsNaN(p) || math.IsInf(h, 0) || math.IsInf(p, 0) {
		return nil
	}
	pages := int(math.Ceil(h/p - paginateEpsilon))
	if pages < 1 {
		pages = 1
	}
	bands := make([]Band, 0, pages)
	for i := 0; i < pages; i++ {
		offset := float64(i) * p
		height := math.Min(p, h-offset)
		bands = append(bands, Band{
			Page:    i + 1,
			Offset:  offset,
			Height:  height,
			Padding: p - height,
		})
	}
	return bands
}

// ScaledHeight returns the height of a width×height raster drawn at
// pageWidth, keeping the aspect ratio.
func ScaledHeight(width, height int, pageWidth float64) float64 {
	if width <= 0 {
		return 0
	}
	return float64(height) * pageWidth / float64(width)
}
