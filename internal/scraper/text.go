package scraper

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ExtractText concatenates the text nodes under n, skipping script and style.
func ExtractText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
		return ""
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(ExtractText(c))
		if c.Type == html.ElementNode && blockElements[c.Data] {
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}

var blockElements = map[string]bool{
	"p": true, "div": true, "li": true, "br": true, "tr": true, "td": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "ul": true, "ol": true,
}

// PlainText renders an HTML fragment as whitespace-collapsed text.
func PlainText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return collapse(fragment)
	}
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return collapse(fragment)
	}
	return collapse(ExtractText(doc))
}

// MainText returns the readable text of a page: the main/article region when
// present, the body otherwise, with chrome and scripts removed.
func MainText(body []byte, limit int) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, svg, nav, footer, header, iframe").Remove()

	region := doc.Find("main").First()
	if region.Length() == 0 {
		region = doc.Find("article").First()
	}
	if region.Length() == 0 {
		region = doc.Find("body")
	}

	var text string
	if len(region.Nodes) > 0 {
		text = collapse(ExtractText(region.Nodes[0]))
	}
	if r := []rune(text); limit > 0 && len(r) > limit {
		text = string(r[:limit])
	}
	return text
}
