package merge

import "strings"

// FieldKind is the input kind inferred from a placeholder name.
type FieldKind string

const (
	FieldText     FieldKind = "text"
	FieldDate     FieldKind = "date"
	FieldTextarea FieldKind = "textarea"
	FieldImage    FieldKind = "image"
	FieldAuto     FieldKind = "auto"
)

var (
	dateWords     = []string{"date", "תאריך"}
	currentWords  = []string{"current", "today", "נוכחי", "היום"}
	autoFillNames = []string{"current date", "today", "תאריך נוכחי", "תאריך היום"}
	textareaWords = []string{"note", "comment", "remark", "description", "הערות", "הערה", "תיאור", "פירוט"}
	imageWords    = []string{"image", "photo", "picture", "תמונ", "צילום"}
)

// FieldSpec describes one manual-entry field.
type FieldSpec struct {
	Name     string
	Kind     FieldKind
	Required bool
}

// IsAutoFilled reports whether a placeholder is filled with the current date
// rather than by the user.
func IsAutoFilled(name string) bool {
	lower := strings.ToLower(Normalize(name))
	for _, auto := range autoFillNames {
		if lower == auto {
			return true
		}
	}
	return containsAny(lower, dateWords) && containsAny(lower, currentWords)
}

// ClassifyField infers the input kind of a placeholder from its name.
func ClassifyField(name string) FieldKind {
	if IsAutoFilled(name) {
		return FieldAuto
	}
	lower := strings.ToLower(Normalize(name))
	switch {
	case containsAny(lower, imageWords):
		return FieldImage
	case containsAny(lower, dateWords):
		return FieldDate
	case containsAny(lower, textareaWords):
		return FieldTextarea
	default:
		return FieldText
	}
}

// ManualForm returns the entry fields for a scanned template. Image
// placeholders are image fields regardless of their name.
func ManualForm(placeholders Placeholders) []FieldSpec {
	out := make([]FieldSpec, 0, len(placeholders.Names))
	for _, name := range placeholders.Names {
		kind := ClassifyField(name)
		if placeholders.IsImage(name) {
			kind = FieldImage
		}
		out = append(out, FieldSpec{
			Name:     name,
			Kind:     kind,
			Required: kind != FieldAuto && kind != FieldImage,
		})
	}
	return out
}

func containsAny(s string, words []string) bool {
	for _, word := range words {
		if strings.Contains(s, word) {
			return true
		}
	}
	return false
}
