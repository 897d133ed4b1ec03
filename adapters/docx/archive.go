package mergedocx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strings"
)

const (
	documentPart     = "word/document.xml"
	contentTypesPart = "[Content_Types].xml"
	footnotesPart    = "word/footnotes.xml"
	endnotesPart     = "word/endnotes.xml"

	wordNamespace = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	relsNamespace = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	imageRelType  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"
)

var headerFooterPattern = regexp.MustCompile(`^word/(header|footer)[0-9]*\.xml$`)

type archivePart struct {
	name   string
	method uint16
	data   []byte
}

// archive is an in-memory DOCX package. Part order is preserved on write.
type archive struct {
	parts []*archivePart
	index map[string]*archivePart
}

func openArchive(data []byte) (*archive, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read docx archive: %w", err)
	}
	a := &archive{index: make(map[string]*archivePart, len(reader.File))}
	for _, file := range reader.File {
		if strings.HasSuffix(file.Name, "/") {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", file.Name, err)
		}
		content, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file.Name, err)
		}
		part := &archivePart{name: file.Name, method: file.Method, data: content}
		a.parts = append(a.parts, part)
		a.index[file.Name] = part
	}
	if _, ok := a.index[documentPart]; !ok {
		return nil, fmt.Errorf("docx archive has no %s", documentPart)
	}
	return a, nil
}

func (a *archive) get(name string) ([]byte, bool) {
	part, ok := a.index[name]
	if !ok {
		return nil, false
	}
	return part.data, true
}

func (a *archive) set(name string, data []byte) {
	if part, ok := a.index[name]; ok {
		part.data = data
		return
	}
	part := &archivePart{name: name, method: zip.Deflate, data: data}
	a.parts = append(a.parts, part)
	a.index[name] = part
}

func (a *archive) bytes() ([]byte, error) {
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	for _, part := range a.parts {
		w, err := writer.CreateHeader(&zip.FileHeader{Name: part.name, Method: part.method})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(part.data); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// textParts returns the parts that may carry placeholders: the main
// document first, then headers and footers in name order.
func (a *archive) textParts() []string {
	out := []string{documentPart}
	var extra []string
	for _, part := range a.parts {
		if headerFooterPattern.MatchString(part.name) {
			extra = append(extra, part.name)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// relsPath returns the relationships part for a part name.
func relsPath(part string) string {
	dir, file := path.Split(part)
	return dir + "_rels/" + file + ".rels"
}

// resolveTarget resolves a relationship target relative to its source part.
func resolveTarget(part, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean(path.Join(path.Dir(part), target))
}
