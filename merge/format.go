package merge

import (
	"fmt"
	"strings"
)

// NormalizeFormat coerces format values into known aliases with defaults applied.
func NormalizeFormat(format Format) Format {
	normalized := strings.ToLower(strings.TrimSpace(string(format)))
	normalized = strings.TrimPrefix(normalized, ".")
	switch normalized {
	case "", string(FormatDOCX), "word", "doc", "document":
		return FormatDOCX
	default:
		return Format(normalized)
	}
}

// ParseFormats parses a list of format names, dropping duplicates.
func ParseFormats(values []string) ([]Format, error) {
	out := make([]Format, 0, len(values))
	seen := map[Format]bool{}
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			format := NormalizeFormat(Format(part))
			if format != FormatDOCX && format != FormatPDF {
				return nil, NewError(KindValidation, fmt.Sprintf("unsupported format: %s", part), nil)
			}
			if seen[format] {
				continue
			}
			seen[format] = true
			out = append(out, format)
		}
	}
	if len(out) == 0 {
		out = append(out, FormatDOCX)
	}
	return out, nil
}

// ContentType returns the MIME type for a format.
func ContentType(format Format) string {
	switch NormalizeFormat(format) {
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
