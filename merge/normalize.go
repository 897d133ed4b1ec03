package merge

import (
	"regexp"
	"strings"
)

var (
	lineBreakMarkupPattern = regexp.MustCompile(`(?i)<br\s*/?>`)
	controlSpacePattern    = regexp.MustCompile(`[\r\n\t]`)
	parenthesizedPattern   = regexp.MustCompile(`\([^()]*\)`)
	markupTagPattern       = regexp.MustCompile(`<[^>]*>`)
	whitespaceRunPattern   = regexp.MustCompile(`[\s\p{Z}]+`)
)

// Normalize reduces a header or placeholder to its canonical comparable form.
// It is total and idempotent. Removed parts leave a space so neighbouring
// words stay apart.
func Normalize(s string) string {
	s = cleanBreaks(s)
	for parenthesizedPattern.MatchString(s) {
		s = parenthesizedPattern.ReplaceAllString(s, " ")
	}
	return collapse(markupTagPattern.ReplaceAllString(s, " "))
}

// CleanValue applies the whitespace and markup cleanup used for stored cell
// values. Parenthesized text is kept.
func CleanValue(s string) string {
	s = cleanBreaks(s)
	return collapse(markupTagPattern.ReplaceAllString(s, " "))
}

func cleanBreaks(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = lineBreakMarkupPattern.ReplaceAllString(s, " ")
	return controlSpacePattern.ReplaceAllString(s, " ")
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRunPattern.ReplaceAllString(s, " "))
}
