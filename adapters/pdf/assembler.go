package mergepdf

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/goliatone/go-docmerge/merge"
)

// DefaultMaxRasterBytes guards in-memory raster buffering.
const DefaultMaxRasterBytes int64 = 128 * 1024 * 1024

const rasterImageName = "docmerge-raster"

// Assembler builds a paginated PDF from a PNG raster.
type Assembler struct {
	Title          string
	Creator        string
	MaxRasterBytes int64
	Logger         merge.Logger
}

var _ merge.Assembler = Assembler{}

// Assemble draws the raster at page width across as many pages as its scaled
// height needs.
func (a Assembler) Assemble(ctx context.Context, raster merge.Raster, layout merge.PageLayout) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(raster.PNG) == 0 || raster.Width <= 0 || raster.Height <= 0 {
		return nil, merge.NewError(merge.KindValidation, "raster is empty", nil)
	}
	maxBytes := a.MaxRasterBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRasterBytes
	}
	if int64(len(raster.PNG)) > maxBytes {
		return nil, merge.NewError(merge.KindValidation, "raster exceeds max bytes", nil)
	}
	if layout.WidthMM <= 0 || layout.HeightMM <= 0 {
		resolved, err := Layout(layout.Size, layout.Landscape)
		if err != nil {
			return nil, err
		}
		layout = resolved
	}

	pageW, pageH := layout.Dimensions()
	imgH := merge.ScaledHeight(raster.Width, raster.Height, pageW)
	bands := merge.Paginate(imgH, pageH)
	if len(bands) == 0 {
		return nil, merge.NewError(merge.KindValidation, "raster has no printable height", nil)
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           gofpdf.SizeType{Wd: pageW, Ht: pageH},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	if a.Title != "" {
		pdf.SetTitle(a.Title, true)
	}
	creator := a.Creator
	if creator == "" {
		creator = "docmerge"
	}
	pdf.SetCreator(creator, true)

	opts := gofpdf.ImageOptions{ImageType: "PNG", AllowNegativePosition: true}
	pdf.RegisterImageOptionsReader(rasterImageName, opts, bytes.NewReader(raster.PNG))
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("register raster: %w", err)
	}

	for _, band := range bands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pdf.AddPage()
		pdf.ImageOptions(rasterImageName, 0, -band.Offset, pageW, imgH, false, opts, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	if a.Logger != nil {
		a.Logger.Debugf("pdf: %d page(s) from %dx%d raster", len(bands), raster.Width, raster.Height)
	}
	return buf.Bytes(), nil
}
