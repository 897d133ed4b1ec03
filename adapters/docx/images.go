package mergedocx

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"strings"

	"github.com/goliatone/go-docmerge/merge"
)

const (
	// EMUPerPixel converts CSS pixels to drawing units.
	EMUPerPixel = 9525
	// 15.24cm, the text width of an A4 page with default margins.
	defaultMaxImageWidthEMU = 5486400
)

var imageExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpeg",
	"image/jpg":  "jpeg",
	"image/gif":  "gif",
}

// mediaSink embeds images into the archive and produces inline drawing
// markup for them. Drawings are only valid in the main document part.
type mediaSink struct {
	archive  *archive
	part     string
	maxWidth int64
	next     int
}

func newMediaSink(a *archive, part string, maxWidth int64) *mediaSink {
	if maxWidth <= 0 {
		maxWidth = defaultMaxImageWidthEMU
	}
	next := 1
	for _, p := range a.parts {
		if strings.HasPrefix(p.name, "word/media/mergeimage") {
			next++
		}
	}
	return &mediaSink{archive: a, part: part, maxWidth: maxWidth, next: next}
}

// pieces embeds every attachment and returns the markup for them, each image
// followed by its caption on a new line.
func (m *mediaSink) pieces(images []merge.ImageAttachment) ([]piece, error) {
	var out []piece
	for i, img := range images {
		if len(img.Data) == 0 {
			continue
		}
		drawing, err := m.embed(img)
		if err != nil {
			return nil, err
		}
		if i > 0 && len(out) > 0 {
			out = append(out, piece{markup: "<{w}br/>"})
		}
		out = append(out, piece{markup: drawing})
		if img.Caption != "" {
			out = append(out, piece{markup: "<{w}br/>"}, piece{text: img.Caption})
		}
	}
	return out, nil
}

func (m *mediaSink) embed(img merge.ImageAttachment) (string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return "", fmt.Errorf("decode image %q: %w", img.Filename, err)
	}
	ext := imageExtensions[strings.ToLower(img.ContentType)]
	if ext == "" {
		ext = format
	}
	if ext == "jpg" {
		ext = "jpeg"
	}

	id := m.next
	m.next++
	target := fmt.Sprintf("media/mergeimage%d.%s", id, ext)
	m.archive.set(path.Join("word", target), img.Data)
	if err := ensureContentType(m.archive, ext, "image/"+ext); err != nil {
		return "", err
	}
	relID, err := addRelationship(m.archive, m.part, imageRelType, target)
	if err != nil {
		return "", err
	}

	cx, cy := fitExtent(cfg.Width, cfg.Height, m.maxWidth)
	name := img.Filename
	if name == "" {
		name = fmt.Sprintf("image%d", id)
	}
	return drawingMarkup(relID, id, xmlEscape(name), cx, cy), nil
}

// fitExtent converts pixel dimensions to EMU, scaling down to maxWidth while
// keeping the aspect ratio.
func fitExtent(width, height int, maxWidth int64) (int64, int64) {
	cx := int64(width) * EMUPerPixel
	cy := int64(height) * EMUPerPixel
	if cx > maxWidth && cx > 0 {
		cy = cy * maxWidth / cx
		cx = maxWidth
	}
	return cx, cy
}

func drawingMarkup(relID string, id int, name string, cx, cy int64) string {
	const (
		wpNS  = "http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"
		aNS   = "http://schemas.openxmlformats.org/drawingml/2006/main"
		picNS = "http://schemas.openxmlformats.org/drawingml/2006/picture"
	)
	return fmt.Sprintf(`</{w}r><{w}r><{w}drawing>`+
		`<wp:inline xmlns:wp="%[1]s" distT="0" distB="0" distL="0" distR="0">`+
		`<wp:extent cx="%[4]d" cy="%[5]d"/>`+
		`<wp:docPr id="%[6]d" name="%[7]s"/>`+
		`<a:graphic xmlns:a="%[2]s"><a:graphicData uri="%[3]s">`+
		`<pic:pic xmlns:pic="%[3]s">`+
		`<pic:nvPicPr><pic:cNvPr id="%[6]d" name="%[7]s"/><pic:cNvPicPr/></pic:nvPicPr>`+
		`<pic:blipFill><a:blip xmlns:r="%[8]s" r:embed="%[9]s"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill>`+
		`<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%[4]d" cy="%[5]d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr>`+
		`</pic:pic></a:graphicData></a:graphic></wp:inline>`+
		`</{w}drawing></{w}r><{w}r>`,
		wpNS, aNS, picNS, cx, cy, 10000+id, name, relsNamespace, relID)
}
