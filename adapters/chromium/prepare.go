package mergechromium

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// surfaceStyle neutralises browser defaults that would leak into captures.
const surfaceStyle = `html,body{margin:0;padding:0;background:#fff;}` +
	`*{-webkit-print-color-adjust:exact;print-color-adjust:exact;}` +
	`body{-webkit-font-smoothing:antialiased;}`

// preparedDocument is the HTML mounted on a surface.
type preparedDocument struct {
	HTML    string
	Images  int
	StyleID string
}

// prepareDocument injects the scoped style element and, when baseURL is set
// and the document has none, a base element.
func prepareDocument(input []byte, styleID, baseURL string) (preparedDocument, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(input))
	if err != nil {
		return preparedDocument{}, fmt.Errorf("parse rendered document: %w", err)
	}

	head := doc.Find("head").First()
	baseURL = strings.TrimSpace(baseURL)
	if baseURL != "" && doc.Find("base").Length() == 0 {
		head.PrependHtml(fmt.Sprintf(`<base href="%s">`, html.EscapeString(baseURL)))
	}
	head.AppendHtml(fmt.Sprintf(`<style id="%s">%s</style>`, html.EscapeString(styleID), surfaceStyle))

	out, err := doc.Html()
	if err != nil {
		return preparedDocument{}, fmt.Errorf("serialize rendered document: %w", err)
	}
	return preparedDocument{
		HTML:    out,
		Images:  doc.Find("img").Length(),
		StyleID: styleID,
	}, nil
}
