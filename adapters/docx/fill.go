package mergedocx

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/goliatone/go-docmerge/merge"
)

// MissingPolicy controls placeholders with no value in the data map.
type MissingPolicy string

const (
	MissingEmpty MissingPolicy = "empty"
	MissingKeep  MissingPolicy = "keep"
	MissingError MissingPolicy = "error"
)

// ParseMissingPolicy parses a policy name, defaulting to MissingEmpty.
func ParseMissingPolicy(value string) (MissingPolicy, error) {
	switch MissingPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", MissingEmpty:
		return MissingEmpty, nil
	case MissingKeep:
		return MissingKeep, nil
	case MissingError, "strict":
		return MissingError, nil
	default:
		return "", merge.NewError(merge.KindValidation, fmt.Sprintf("unknown missing-key policy %q", value), nil)
	}
}

// UnresolvedTagError is returned under MissingError when a placeholder has no
// value.
type UnresolvedTagError struct {
	Part string
	Name string
}

func (e *UnresolvedTagError) Error() string {
	return fmt.Sprintf("unresolved tag %q in %s", e.Name, e.Part)
}

// textSegment is one <w:t> element located in the raw part bytes.
type textSegment struct {
	tagStart    int
	tagEnd      int
	textStart   int
	textEnd     int
	text        string
	selfClosing bool
}

type edit struct {
	start int
	end   int
	with  string
}

// piece is a fragment of a segment's new content: plain text or raw markup
// that must be written outside the text element.
type piece struct {
	text   string
	markup string
}

// partFiller writes what the docx library cannot: pictures for image
// placeholders and line breaks for multi-line values.
type partFiller struct {
	part   string
	src    []byte
	data   merge.TemplateDataMap
	delims merge.Delimiters
	prefix string
	images *mediaSink
}

// fill rewrites the remaining placeholders in one XML part. Placeholders
// split across runs are merged into the run holding their first character.
func (f *partFiller) fill() ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(f.src))
	var (
		paragraphs [][]textSegment
		current    *textSegment
		edits      []edit
	)
	for {
		before := int(dec.InputOffset())
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", f.part, err)
		}
		after := int(dec.InputOffset())

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordNamespace {
				continue
			}
			switch t.Name.Local {
			case "p":
				paragraphs = append(paragraphs, nil)
			case "t":
				if len(paragraphs) == 0 {
					continue
				}
				seg := textSegment{tagStart: before, tagEnd: after, textStart: after, textEnd: after}
				seg.selfClosing = after >= 2 && f.src[after-2] == '/'
				current = &seg
			}
		case xml.CharData:
			if current != nil {
				if current.text == "" {
					current.textStart = before
				}
				current.text += string(t)
				current.textEnd = after
			}
		case xml.EndElement:
			if t.Name.Space != wordNamespace {
				continue
			}
			switch t.Name.Local {
			case "t":
				if current != nil {
					last := len(paragraphs) - 1
					paragraphs[last] = append(paragraphs[last], *current)
					current = nil
				}
			case "p":
				if len(paragraphs) == 0 {
					continue
				}
				last := len(paragraphs) - 1
				paraEdits, err := f.paragraph(paragraphs[last])
				if err != nil {
					return nil, err
				}
				edits = append(edits, paraEdits...)
				paragraphs = paragraphs[:last]
			}
		}
	}

	if len(edits) == 0 {
		return f.src, nil
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].start > edits[j].start })
	out := append([]byte(nil), f.src...)
	for _, e := range edits {
		out = append(out[:e.start], append([]byte(e.with), out[e.end:]...)...)
	}
	return out, nil
}

func (f *partFiller) paragraph(segments []textSegment) ([]edit, error) {
	if len(segments) == 0 {
		return nil, nil
	}
	var combined strings.Builder
	bounds := make([]int, len(segments)+1)
	for i, seg := range segments {
		bounds[i] = combined.Len()
		combined.WriteString(seg.text)
	}
	bounds[len(segments)] = combined.Len()
	text := combined.String()

	tokens := merge.ScanTokens(text, f.delims, f.prefix)
	if len(tokens) == 0 {
		return nil, nil
	}

	type replacement struct {
		start  int
		end    int
		pieces []piece
	}
	var replacements []replacement
	for _, token := range tokens {
		pieces, keep, err := f.resolve(token)
		if err != nil {
			return nil, err
		}
		if keep {
			continue
		}
		replacements = append(replacements, replacement{start: token.Start, end: token.End, pieces: pieces})
	}
	if len(replacements) == 0 {
		return nil, nil
	}

	var edits []edit
	for i, seg := range segments {
		segStart, segEnd := bounds[i], bounds[i+1]
		if segStart == segEnd {
			continue
		}
		var pieces []piece
		changed := false
		pos := segStart
		for _, r := range replacements {
			if r.end <= segStart || r.start >= segEnd {
				continue
			}
			changed = true
			if r.start > pos {
				pieces = append(pieces, piece{text: text[pos:r.start]})
			}
			if r.start >= segStart {
				pieces = append(pieces, r.pieces...)
			}
			if r.end > pos {
				pos = r.end
			}
		}
		if !changed {
			continue
		}
		if pos < segEnd {
			pieces = append(pieces, piece{text: text[pos:segEnd]})
		}
		edits = append(edits, f.rewrite(seg, pieces))
	}
	return edits, nil
}

// resolve returns the replacement pieces for a token. keep reports that the
// token is left untouched.
func (f *partFiller) resolve(token merge.Token) ([]piece, bool, error) {
	if images := f.data.Images(token.Name); len(images) > 0 {
		if token.Image && f.images != nil {
			pieces, err := f.images.pieces(images)
			return pieces, false, err
		}
		return captionPieces(images), false, nil
	}
	if token.Image {
		return nil, false, nil
	}
	if value, ok := f.data.String(token.Name); ok && strings.ContainsAny(value, "\r\n") {
		return linePieces(value), false, nil
	}
	return nil, true, nil
}

func linePieces(value string) []piece {
	value = strings.ReplaceAll(value, "\r\n", "\n")
	lines := strings.Split(value, "\n")
	out := make([]piece, 0, len(lines)*2)
	for i, line := range lines {
		if i > 0 {
			out = append(out, piece{markup: "<{w}br/>"})
		}
		if line != "" {
			out = append(out, piece{text: line})
		}
	}
	return out
}

func captionPieces(images []merge.ImageAttachment) []piece {
	var captions []string
	for _, img := range images {
		if img.Caption != "" {
			captions = append(captions, img.Caption)
		}
	}
	if len(captions) == 0 {
		return nil
	}
	return []piece{{text: strings.Join(captions, " ")}}
}

// rewrite replaces a <w:t> element's start tag and content. Markup pieces
// close the text element, are emitted, and reopen a text element.
func (f *partFiller) rewrite(seg textSegment, pieces []piece) edit {
	prefix := elementPrefix(f.src[seg.tagStart:seg.tagEnd])
	openTag := preserveSpace(string(f.src[seg.tagStart:seg.tagEnd]))
	if seg.selfClosing {
		openTag = strings.TrimSuffix(strings.TrimSuffix(openTag, ">"), "/") + ">"
	}

	var b strings.Builder
	b.WriteString(openTag)
	for _, p := range pieces {
		if p.markup == "" {
			b.WriteString(xmlEscape(p.text))
			continue
		}
		b.WriteString("</" + qualified(prefix, "t") + ">")
		b.WriteString(strings.ReplaceAll(p.markup, "{w}", qualified(prefix, "")))
		b.WriteString("<" + qualified(prefix, "t") + ` xml:space="preserve">`)
	}

	end := seg.textEnd
	if seg.selfClosing {
		b.WriteString("</" + qualified(prefix, "t") + ">")
		end = seg.tagEnd
	}
	return edit{start: seg.tagStart, end: end, with: b.String()}
}

func elementPrefix(tag []byte) string {
	name := strings.TrimPrefix(string(tag), "<")
	if idx := strings.IndexAny(name, " \t\r\n/>"); idx >= 0 {
		name = name[:idx]
	}
	if prefix, _, ok := strings.Cut(name, ":"); ok {
		return prefix
	}
	return ""
}

func qualified(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}

func preserveSpace(tag string) string {
	if strings.Contains(tag, "xml:space") {
		return tag
	}
	if strings.HasSuffix(tag, "/>") {
		return strings.TrimSuffix(tag, "/>") + ` xml:space="preserve"/>`
	}
	return strings.TrimSuffix(tag, ">") + ` xml:space="preserve">`
}
