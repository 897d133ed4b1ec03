package merge

import (
	"time"
)

// DefaultDateAliases are the keys that receive the current date.
var DefaultDateAliases = []string{
	"תאריך",
	"date",
	"Date",
	"current date",
	"Current Date",
	"today",
	"Today",
	"תאריך נוכחי",
	"תאריך היום",
}

// Extras carries binder inputs that do not come from the record.
type Extras struct {
	Images []ImageAttachment
}

// Binder builds the substitution map for one record.
//
// Precedence, highest first: original record headers, normalized fallbacks
// of those headers, computed fields (expressions, then the current-date
// aliases and auto-filled placeholders), then image lists for image
// placeholders. Every tier below the first only adds keys that are absent.
type Binder struct {
	Locale      string
	DateAliases []string
	Computed    []ComputedField
	Logger      Logger
	Now         func() time.Time
}

// NewBinder creates a binder with the default locale and date aliases.
func NewBinder() *Binder {
	return &Binder{
		Locale:      DefaultLocale,
		DateAliases: append([]string(nil), DefaultDateAliases...),
		Logger:      NopLogger{},
		Now:         time.Now,
	}
}

// Bind builds the TemplateDataMap for rec. Placeholders without a matching
// key stay absent from the map.
func (b *Binder) Bind(rec Record, placeholders Placeholders, extras Extras) TemplateDataMap {
	if b == nil {
		b = NewBinder()
	}
	data := TemplateDataMap{}

	headers := rec.Headers()
	for _, header := range headers {
		data[header] = rec.Value(header)
	}
	for _, header := range headers {
		addIfAbsent(data, Normalize(header), rec.Value(header))
	}

	now := b.now()
	for _, field := range b.Computed {
		value, err := field.Eval(rec, now, b.Locale)
		if err != nil {
			loggerOrNop(b.Logger).Warnf("computed field %q skipped: %v", field.Name, err)
			continue
		}
		addIfAbsent(data, field.Name, value)
	}

	today := FormatDate(now, b.Locale)
	for _, alias := range b.DateAliases {
		addIfAbsent(data, alias, today)
	}
	for _, name := range placeholders.Names {
		if IsAutoFilled(name) {
			addIfAbsent(data, name, today)
		}
	}

	for _, name := range placeholders.Images {
		images := imagesFor(name, extras.Images)
		if len(images) == 0 {
			continue
		}
		if _, ok := data[name]; ok {
			continue
		}
		data[name] = images
	}

	return data
}

// Unresolved returns the placeholders that have no key in data.
func Unresolved(data TemplateDataMap, placeholders Placeholders) []string {
	out := []string{}
	for _, name := range placeholders.Names {
		if _, ok := data[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

func (b *Binder) now() time.Time {
	if b.Now == nil {
		return time.Now()
	}
	return b.Now()
}

func addIfAbsent(data TemplateDataMap, key string, value any) {
	if key == "" {
		return
	}
	if _, ok := data[key]; ok {
		return
	}
	data[key] = value
}

// imagesFor returns images addressed to name plus images with no
// placeholder, which are shared by every image placeholder.
func imagesFor(name string, images []ImageAttachment) []ImageAttachment {
	var out []ImageAttachment
	for _, img := range images {
		if img.Placeholder == "" || img.Placeholder == name || Normalize(img.Placeholder) == Normalize(name) {
			out = append(out, img)
		}
	}
	return out
}
