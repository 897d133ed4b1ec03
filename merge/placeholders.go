package merge

import "strings"

// Token is one placeholder occurrence in a text.
type Token struct {
	Name  string
	Start int
	End   int
	Image bool
}

// ScanTokens returns every non-overlapping placeholder occurrence in text, in
// order. Empty names and names spanning lines are skipped. A token preceded by
// imagePrefix is flagged as an image token and its Start includes the prefix.
func ScanTokens(text string, delims Delimiters, imagePrefix string) []Token {
	delims = delims.withDefaults()
	var tokens []Token
	pos := 0
	for pos < len(text) {
		open := strings.Index(text[pos:], delims.Start)
		if open < 0 {
			break
		}
		open += pos
		inner := open + len(delims.Start)
		closeIdx := strings.Index(text[inner:], delims.End)
		if closeIdx < 0 {
			break
		}
		closeIdx += inner

		// restart at the innermost start marker: "<<a <<b>>" yields "b"
		if nested := strings.LastIndex(text[inner:closeIdx], delims.Start); nested >= 0 {
			open = inner + nested
			inner = open + len(delims.Start)
		}

		end := closeIdx + len(delims.End)
		name := text[inner:closeIdx]
		if name == "" || strings.ContainsAny(name, "\r\n") {
			pos = end
			continue
		}

		token := Token{Name: name, Start: open, End: end}
		if imagePrefix != "" && open >= len(imagePrefix) && text[open-len(imagePrefix):open] == imagePrefix {
			token.Image = true
			token.Start = open - len(imagePrefix)
		}
		tokens = append(tokens, token)
		pos = end
	}
	return tokens
}

// ExtractPlaceholders returns the unique placeholder names in text in
// first-occurrence order. Names are returned exactly as written.
func ExtractPlaceholders(text string, delims Delimiters) []string {
	return uniqueNames(ScanTokens(text, delims, ""), false)
}

// ExtractImagePlaceholders returns the unique names of image placeholders.
func ExtractImagePlaceholders(text string, delims Delimiters, imagePrefix string) []string {
	if imagePrefix == "" {
		return []string{}
	}
	return uniqueNames(ScanTokens(text, delims, imagePrefix), true)
}

func uniqueNames(tokens []Token, imagesOnly bool) []string {
	out := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if imagesOnly && !token.Image {
			continue
		}
		if _, ok := seen[token.Name]; ok {
			continue
		}
		seen[token.Name] = struct{}{}
		out = append(out, token.Name)
	}
	return out
}

func (d Delimiters) withDefaults() Delimiters {
	if d.Start == "" {
		d.Start = DefaultDelimiters.Start
	}
	if d.End == "" {
		d.End = DefaultDelimiters.End
	}
	return d
}
