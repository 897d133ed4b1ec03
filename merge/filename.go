package merge

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"
	"unicode"
)

// DefaultFilenamePattern names outputs after the record identifier.
const DefaultFilenamePattern = "{{.ID}}"

// ScriptRange is an inclusive rune range allowed in output filenames.
type ScriptRange struct {
	Lo rune
	Hi rune
}

// HebrewRange is the native-script range allowed by default.
var HebrewRange = ScriptRange{Lo: 0x0590, Hi: 0x05FF}

type filenameData struct {
	ID     string
	Format string
	Date   string
}

// SanitizeIdentifier replaces every character outside ASCII alphanumerics
// and the allowed script ranges with an underscore.
func SanitizeIdentifier(id string, scripts ...ScriptRange) string {
	if len(scripts) == 0 {
		scripts = []ScriptRange{HebrewRange}
	}
	var b strings.Builder
	for _, r := range id {
		if allowedFilenameRune(r, scripts) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

func allowedFilenameRune(r rune, scripts []ScriptRange) bool {
	if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
		return true
	}
	for _, script := range scripts {
		if r >= script.Lo && r <= script.Hi {
			return true
		}
	}
	return false
}

// OutputFilename renders pattern for a job and appends the output extension.
// The rendered name is sanitized; an empty result becomes "document".
func OutputFilename(pattern, id, ext string, now time.Time, scripts ...ScriptRange) (string, error) {
	if pattern == "" {
		pattern = DefaultFilenamePattern
	}
	tmpl, err := template.New("filename").Parse(pattern)
	if err != nil {
		return "", NewError(KindValidation, "invalid filename pattern", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, filenameData{
		ID:     id,
		Format: ext,
		Date:   now.Format(isoDateLayout),
	}); err != nil {
		return "", NewError(KindValidation, "filename pattern failed", err)
	}

	name := SanitizeIdentifier(strings.TrimSpace(buf.String()), scripts...)
	if strings.Trim(name, "_") == "" {
		name = "document"
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return name, nil
	}
	return fmt.Sprintf("%s.%s", name, ext), nil
}

// ManualIdentifier is the default identifier for manually filled documents.
func ManualIdentifier(now time.Time) string {
	return "document_" + now.Format(isoDateLayout)
}
