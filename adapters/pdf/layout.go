package mergepdf

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goliatone/go-docmerge/merge"
)

var lengthPattern = regexp.MustCompile(`^\s*([0-9]+(?:\.[0-9]+)?)\s*([a-zA-Z]*)\s*$`)

var pageSizesMM = map[string]struct {
	width  float64
	height float64
}{
	"A3":     {width: 297, height: 420},
	"A4":     {width: 210, height: 297},
	"A5":     {width: 148, height: 210},
	"LETTER": {width: 215.9, height: 279.4},
	"LEGAL":  {width: 215.9, height: 355.6},
}

// Layout resolves a named page size to a merge.PageLayout.
func Layout(size string, landscape bool) (merge.PageLayout, error) {
	name := strings.ToUpper(strings.TrimSpace(size))
	if name == "" {
		name = "A4"
	}
	dims, ok := pageSizesMM[name]
	if !ok {
		return merge.PageLayout{}, merge.NewError(merge.KindValidation, fmt.Sprintf("unsupported page size: %s", size), nil)
	}
	return merge.PageLayout{Size: name, WidthMM: dims.width, HeightMM: dims.height, Landscape: landscape}, nil
}

// ParseLengthMM parses a CSS-style length ("20mm", "2cm", "1in", "72pt",
// "96px") into millimetres. A bare number is millimetres.
func ParseLengthMM(value string) (float64, error) {
	matches := lengthPattern.FindStringSubmatch(value)
	if len(matches) != 3 {
		return 0, merge.NewError(merge.KindValidation, fmt.Sprintf("invalid length: %s", value), nil)
	}

	unit := strings.ToLower(matches[2])
	if unit == "" {
		unit = "mm"
	}
	amount, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, merge.NewError(merge.KindValidation, fmt.Sprintf("invalid length: %s", value), err)
	}

	switch unit {
	case "mm":
		return amount, nil
	case "cm":
		return amount * 10, nil
	case "in":
		return amount * 25.4, nil
	case "pt":
		return amount * 25.4 / 72.0, nil
	case "px":
		return amount * 25.4 / 96.0, nil
	default:
		return 0, merge.NewError(merge.KindValidation, fmt.Sprintf("unsupported length unit: %s", unit), nil)
	}
}
