package main

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	xhtml "golang.org/x/net/html"
)

// page is a parsed conversation page.
type page struct {
	doc *goquery.Document
}

// parsePage parses raw HTML. The tokenizer is lenient, so an error here means
// the input could not be read at all.
func parsePage(htmlSrc string) (*page, error) {
	root, err := xhtml.Parse(strings.NewReader(htmlSrc))
	if err != nil {
		return nil, err
	}
	return &page{doc: goquery.NewDocumentFromNode(root)}, nil
}

// title returns the document title with whitespace collapsed, like a browser
// reports it.
func (p *page) title() string {
	t := p.doc.Find("title").First()
	if t.Length() == 0 {
		return ""
	}
	return strings.Join(strings.Fields(t.Text()), " ")
}

// scriptText returns the text of the first script matching selector.
func (p *page) scriptText(selector string) (string, bool) {
	s := p.doc.Find(selector).First()
	if s.Length() == 0 || goquery.NodeName(s) != "script" {
		return "", false
	}
	return s.Text(), true
}

// scripts returns the text content of every inline script in document order.
// Script bodies are raw text, so nothing is unescaped.
func (p *page) scripts() []string {
	var out []string
	p.doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if text := s.Text(); text != "" {
			out = append(out, text)
		}
	})
	return out
}
