package mergedocx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

type relationship struct {
	ID         string `xml:"Id,attr"`
	Type       string `xml:"Type,attr"`
	Target     string `xml:"Target,attr"`
	TargetMode string `xml:"TargetMode,attr"`
}

type relationshipSet struct {
	XMLName       xml.Name       `xml:"Relationships"`
	Relationships []relationship `xml:"Relationship"`
}

const emptyRelationships = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`

// readRelationships parses the relationships of part. A missing rels part is
// an empty set.
func readRelationships(a *archive, part string) (map[string]relationship, error) {
	out := map[string]relationship{}
	data, ok := a.get(relsPath(part))
	if !ok {
		return out, nil
	}
	var set relationshipSet
	if err := xml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse %s: %w", relsPath(part), err)
	}
	for _, rel := range set.Relationships {
		out[rel.ID] = rel
	}
	return out, nil
}

// addRelationship appends a relationship to the rels part of part and
// returns the new relationship ID.
func addRelationship(a *archive, part, relType, target string) (string, error) {
	existing, err := readRelationships(a, part)
	if err != nil {
		return "", err
	}
	id := ""
	for n := len(existing) + 1; ; n++ {
		candidate := fmt.Sprintf("rIdMerge%d", n)
		if _, taken := existing[candidate]; !taken {
			id = candidate
			break
		}
	}

	data, ok := a.get(relsPath(part))
	if !ok {
		data = []byte(emptyRelationships)
	}
	entry := fmt.Sprintf(`<Relationship Id="%s" Type="%s" Target="%s"/>`, id, relType, xmlEscape(target))
	closing := []byte("</Relationships>")
	idx := bytes.LastIndex(data, closing)
	if idx < 0 {
		return "", fmt.Errorf("%s is malformed", relsPath(part))
	}
	updated := make([]byte, 0, len(data)+len(entry))
	updated = append(updated, data[:idx]...)
	updated = append(updated, entry...)
	updated = append(updated, data[idx:]...)
	a.set(relsPath(part), updated)
	return id, nil
}

// ensureContentType registers a default content type for ext.
func ensureContentType(a *archive, ext, contentType string) error {
	data, ok := a.get(contentTypesPart)
	if !ok {
		return fmt.Errorf("docx archive has no %s", contentTypesPart)
	}
	if bytes.Contains(bytes.ToLower(data), []byte(`extension="`+strings.ToLower(ext)+`"`)) {
		return nil
	}
	closing := []byte("</Types>")
	idx := bytes.LastIndex(data, closing)
	if idx < 0 {
		return fmt.Errorf("%s is malformed", contentTypesPart)
	}
	entry := fmt.Sprintf(`<Default Extension="%s" ContentType="%s"/>`, ext, contentType)
	updated := make([]byte, 0, len(data)+len(entry))
	updated = append(updated, data[:idx]...)
	updated = append(updated, entry...)
	updated = append(updated, data[idx:]...)
	a.set(contentTypesPart, updated)
	return nil
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
