package merge

import (
	"strings"
	"time"

	"golang.org/x/text/language"
)

// DefaultLocale is used when no locale is configured.
const DefaultLocale = "he-IL"

const isoDateLayout = "2006-01-02"

var dateLayoutsByBase = map[string]string{
	"he": "2.1.2006",
	"de": "02.01.2006",
	"ru": "02.01.2006",
	"pl": "02.01.2006",
	"tr": "02.01.2006",
	"fi": "2.1.2006",
	"nb": "02.01.2006",
	"fr": "02/01/2006",
	"es": "2/1/2006",
	"it": "2/1/2006",
	"pt": "02/01/2006",
	"ar": "2/1/2006",
	"nl": "2-1-2006",
	"ja": "2006/01/02",
	"zh": "2006/1/2",
}

var monthFirstRegions = map[string]bool{
	"US": true,
	"PH": true,
}

// DateLayout returns the short date layout for a BCP 47 locale. Unknown or
// unparsable locales use ISO dates.
func DateLayout(locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return isoDateLayout
	}
	tag, err := language.Parse(locale)
	if err != nil || tag.IsRoot() {
		return isoDateLayout
	}
	base, _ := tag.Base()
	if base.String() == "en" {
		region, _ := tag.Region()
		if monthFirstRegions[region.String()] {
			return "1/2/2006"
		}
		return "02/01/2006"
	}
	if layout, ok := dateLayoutsByBase[base.String()]; ok {
		return layout
	}
	return isoDateLayout
}

// FormatDate formats t as a short date for locale.
func FormatDate(t time.Time, locale string) string {
	return t.Format(DateLayout(locale))
}

// ReformatDate re-formats an ISO date (YYYY-MM-DD, optionally with a time
// part) for locale. Values that are not ISO dates are returned unchanged.
func ReformatDate(value, locale string) string {
	trimmed := strings.TrimSpace(value)
	for _, layout := range []string{isoDateLayout, time.RFC3339, "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return FormatDate(t, locale)
		}
	}
	return value
}
