package mergedocx

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"mime"
	"path"
	"strings"
)

const (
	drawingMainNS = "http://schemas.openxmlformats.org/drawingml/2006/main"
	vmlNS         = "urn:schemas-microsoft-com:vml"
)

// node is a parsed XML element. Text holds character data of leaf text
// elements only.
type node struct {
	name     xml.Name
	attrs    []xml.Attr
	children []*node
	text     strings.Builder
}

func (n *node) attr(space, local string) string {
	for _, a := range n.attrs {
		if a.Name.Local == local && (space == "" || a.Name.Space == space) {
			return a.Value
		}
	}
	return ""
}

func (n *node) child(local string) *node {
	for _, c := range n.children {
		if c.name.Space == wordNamespace && c.name.Local == local {
			return c
		}
	}
	return nil
}

func (n *node) is(local string) bool {
	return n.name.Space == wordNamespace && n.name.Local == local
}

func parseTree(part string, data []byte) (*node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	root := &node{}
	stack := []*node{root}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", part, err)
		}
		top := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name, attrs: append([]xml.Attr(nil), t.Attr...)}
			top.children = append(top.children, n)
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if top.is("t") {
				top.text.Write(t)
			}
		}
	}
	return root, nil
}

// htmlWriter renders one part's tree to HTML.
type htmlWriter struct {
	archive *archive
	part    string
	rels    map[string]relationship
	out     strings.Builder
	images  int
	rtl     bool
}

func newHTMLWriter(a *archive, part string) (*htmlWriter, error) {
	rels, err := readRelationships(a, part)
	if err != nil {
		return nil, err
	}
	return &htmlWriter{archive: a, part: part, rels: rels}, nil
}

func (w *htmlWriter) blocks(nodes []*node) {
	for _, n := range nodes {
		switch {
		case n.is("p"):
			w.paragraph(n)
		case n.is("tbl"):
			w.table(n)
		case n.is("sdt"):
			if content := n.child("sdtContent"); content != nil {
				w.blocks(content.children)
			}
		}
	}
}

func (w *htmlWriter) paragraph(p *node) {
	var styles []string
	classes := []string{"p"}
	dir := ""
	if props := p.child("pPr"); props != nil {
		if jc := props.child("jc"); jc != nil {
			switch jc.attr(wordNamespace, "val") {
			case "center":
				styles = append(styles, "text-align:center")
			case "right", "end":
				styles = append(styles, "text-align:right")
			case "left", "start":
				styles = append(styles, "text-align:left")
			case "both", "distribute":
				styles = append(styles, "text-align:justify")
			}
		}
		if bidi := props.child("bidi"); bidi != nil && onOff(bidi) {
			dir = "rtl"
			w.rtl = true
		}
		if style := props.child("pStyle"); style != nil {
			if val := style.attr(wordNamespace, "val"); val != "" {
				classes = append(classes, "style-"+strings.ToLower(val))
			}
		}
	}

	w.out.WriteString(`<p class="` + strings.Join(classes, " ") + `"`)
	if dir != "" {
		w.out.WriteString(` dir="` + dir + `"`)
	}
	if len(styles) > 0 {
		w.out.WriteString(` style="` + strings.Join(styles, ";") + `"`)
	}
	w.out.WriteString(">")
	empty := w.out.Len()
	w.inline(p.children)
	if w.out.Len() == empty {
		w.out.WriteString("<br>")
	}
	w.out.WriteString("</p>")
}

func (w *htmlWriter) inline(nodes []*node) {
	for _, n := range nodes {
		switch {
		case n.is("r"):
			w.run(n)
		case n.is("hyperlink"), n.is("ins"), n.is("smartTag"), n.is("fldSimple"):
			w.inline(n.children)
		case n.is("sdt"):
			if content := n.child("sdtContent"); content != nil {
				w.inline(content.children)
			}
		}
	}
}

func (w *htmlWriter) run(r *node) {
	var open, closing []string
	if props := r.child("rPr"); props != nil {
		if b := props.child("b"); b != nil && onOff(b) {
			open, closing = append(open, "<strong>"), append([]string{"</strong>"}, closing...)
		}
		if i := props.child("i"); i != nil && onOff(i) {
			open, closing = append(open, "<em>"), append([]string{"</em>"}, closing...)
		}
		if u := props.child("u"); u != nil && u.attr(wordNamespace, "val") != "none" {
			open, closing = append(open, "<u>"), append([]string{"</u>"}, closing...)
		}
		if rtl := props.child("rtl"); rtl != nil && onOff(rtl) {
			w.rtl = true
		}
	}

	var body strings.Builder
	for _, c := range r.children {
		switch {
		case c.is("t"):
			body.WriteString(html.EscapeString(c.text.String()))
		case c.is("tab"):
			body.WriteString(`<span class="tab">&#9;</span>`)
		case c.is("br"), c.is("cr"):
			body.WriteString("<br>")
		case c.is("drawing"), c.is("pict"):
			body.WriteString(w.picture(c))
		}
	}
	if body.Len() == 0 {
		return
	}
	w.out.WriteString(strings.Join(open, ""))
	w.out.WriteString(body.String())
	w.out.WriteString(strings.Join(closing, ""))
}

// picture renders every image referenced under a drawing or VML picture.
func (w *htmlWriter) picture(n *node) string {
	var out strings.Builder
	var walk func(*node)
	walk = func(cur *node) {
		var relID string
		switch {
		case cur.name.Space == drawingMainNS && cur.name.Local == "blip":
			relID = cur.attr(relsNamespace, "embed")
		case cur.name.Space == vmlNS && cur.name.Local == "imagedata":
			relID = cur.attr(relsNamespace, "id")
		}
		if relID != "" {
			out.WriteString(w.image(relID, extentWidth(n)))
		}
		for _, c := range cur.children {
			walk(c)
		}
	}
	walk(n)
	return out.String()
}

func (w *htmlWriter) image(relID string, widthPx int) string {
	rel, ok := w.rels[relID]
	if !ok || rel.TargetMode == "External" {
		return ""
	}
	target := resolveTarget(w.part, rel.Target)
	data, ok := w.archive.get(target)
	if !ok {
		return ""
	}
	contentType := mime.TypeByExtension(path.Ext(target))
	if contentType == "" {
		contentType = "image/" + strings.TrimPrefix(path.Ext(target), ".")
	}
	w.images++
	style := "max-width:100%"
	if widthPx > 0 {
		style = fmt.Sprintf("width:%dpx;max-width:100%%", widthPx)
	}
	return fmt.Sprintf(`<img src="data:%s;base64,%s" style="%s" alt="">`,
		contentType, base64.StdEncoding.EncodeToString(data), style)
}

func extentWidth(n *node) int {
	var width int
	var walk func(*node)
	walk = func(cur *node) {
		if width > 0 {
			return
		}
		if cur.name.Local == "extent" {
			var cx int64
			if _, err := fmt.Sscan(cur.attr("", "cx"), &cx); err == nil && cx > 0 {
				width = int(cx / EMUPerPixel)
				return
			}
		}
		for _, c := range cur.children {
			walk(c)
		}
	}
	walk(n)
	return width
}

func (w *htmlWriter) table(tbl *node) {
	w.out.WriteString(`<table class="tbl">`)
	for _, row := range tbl.children {
		if !row.is("tr") {
			continue
		}
		w.out.WriteString("<tr>")
		for _, cell := range row.children {
			if !cell.is("tc") {
				continue
			}
			span := ""
			if props := cell.child("tcPr"); props != nil {
				if vmerge := props.child("vMerge"); vmerge != nil && vmerge.attr(wordNamespace, "val") != "restart" {
					continue
				}
				if grid := props.child("gridSpan"); grid != nil {
					if val := grid.attr(wordNamespace, "val"); val != "" && val != "1" {
						span = ` colspan="` + html.EscapeString(val) + `"`
					}
				}
			}
			w.out.WriteString("<td" + span + ">")
			w.blocks(cell.children)
			w.out.WriteString("</td>")
		}
		w.out.WriteString("</tr>")
	}
	w.out.WriteString("</table>")
}

// onOff reads a boolean toggle property; absent val means on.
func onOff(n *node) bool {
	switch n.attr(wordNamespace, "val") {
	case "0", "false", "off":
		return false
	default:
		return true
	}
}

type renderedParts struct {
	header string
	body   string
	footer string
	notes  string
	images int
	rtl    bool
}

type renderSettings struct {
	headers bool
	footers bool
	notes   bool
}

func renderArchive(a *archive, settings renderSettings) (renderedParts, error) {
	var out renderedParts
	data, _ := a.get(documentPart)
	tree, err := parseTree(documentPart, data)
	if err != nil {
		return out, err
	}
	body := findBody(tree)
	if body == nil {
		return out, fmt.Errorf("%s has no body", documentPart)
	}

	doc, err := newHTMLWriter(a, documentPart)
	if err != nil {
		return out, err
	}
	doc.blocks(body.children)
	out.body = doc.out.String()
	out.images += doc.images
	out.rtl = doc.rtl

	var section *node
	for _, c := range body.children {
		if c.is("sectPr") {
			section = c
		}
	}
	if section != nil {
		if settings.headers {
			if out.header, err = renderReference(a, doc, section, "headerReference", &out); err != nil {
				return out, err
			}
		}
		if settings.footers {
			if out.footer, err = renderReference(a, doc, section, "footerReference", &out); err != nil {
				return out, err
			}
		}
	}

	if settings.notes {
		for _, spec := range []struct{ part, element string }{{footnotesPart, "footnote"}, {endnotesPart, "endnote"}} {
			rendered, err := renderNotes(a, spec.part, spec.element, &out)
			if err != nil {
				return out, err
			}
			out.notes += rendered
		}
	}
	return out, nil
}

func findBody(tree *node) *node {
	for _, doc := range tree.children {
		if doc.is("document") {
			return doc.child("body")
		}
	}
	return nil
}

// renderReference renders the default header or footer of a section.
func renderReference(a *archive, doc *htmlWriter, section *node, element string, out *renderedParts) (string, error) {
	for _, ref := range section.children {
		if !ref.is(element) {
			continue
		}
		if kind := ref.attr(wordNamespace, "type"); kind != "" && kind != "default" {
			continue
		}
		rel, ok := doc.rels[ref.attr(relsNamespace, "id")]
		if !ok {
			continue
		}
		part := resolveTarget(documentPart, rel.Target)
		data, ok := a.get(part)
		if !ok {
			continue
		}
		tree, err := parseTree(part, data)
		if err != nil {
			return "", err
		}
		writer, err := newHTMLWriter(a, part)
		if err != nil {
			return "", err
		}
		for _, root := range tree.children {
			writer.blocks(root.children)
		}
		out.images += writer.images
		return writer.out.String(), nil
	}
	return "", nil
}

func renderNotes(a *archive, part, element string, out *renderedParts) (string, error) {
	data, ok := a.get(part)
	if !ok {
		return "", nil
	}
	tree, err := parseTree(part, data)
	if err != nil {
		return "", err
	}
	writer, err := newHTMLWriter(a, part)
	if err != nil {
		return "", err
	}
	for _, root := range tree.children {
		for _, note := range root.children {
			if !note.is(element) || note.attr(wordNamespace, "type") != "" {
				continue
			}
			writer.out.WriteString(`<div class="note">`)
			writer.blocks(note.children)
			writer.out.WriteString("</div>")
		}
	}
	out.images += writer.images
	return writer.out.String(), nil
}
