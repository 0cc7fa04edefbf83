package crawler

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is the link-relevant content of one HTML page.
type Document struct {
	// Title is the text of the first <title> element.
	Title string

	// BaseHref is the href of the first <base> element, if any.
	BaseHref string

	// Hrefs are the raw href values of the anchors in the main document,
	// in document order. Anchors without an href attribute are skipped.
	Hrefs []string
}

// skippedElements hold embedded documents or inert content whose anchors do
// not belong to the page itself.
var skippedElements = map[atom.Atom]bool{
	atom.Iframe:   true,
	atom.Frame:    true,
	atom.Frameset: true,
	atom.Object:   true,
	atom.Embed:    true,
	atom.Template: true,
	atom.Svg:      true,
}

// ParseDocument scans HTML for anchors in the main document.
//
// Design decision: We use golang.org/x/net/html for parsing rather than
// regex because:
//  1. It correctly handles malformed HTML common on the web
//  2. Nested frames and templates can be skipped structurally
//  3. Attribute values are already entity-decoded
func ParseDocument(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	doc := &Document{Hrefs: make([]string, 0)}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skippedElements[n.DataAtom] {
				return
			}
			switch n.DataAtom {
			case atom.A, atom.Area:
				if href, ok := getAttr(n, "href"); ok {
					doc.Hrefs = append(doc.Hrefs, href)
				}
			case atom.Base:
				if href, ok := getAttr(n, "href"); ok && doc.BaseHref == "" {
					doc.BaseHref = strings.TrimSpace(href)
				}
			case atom.Title:
				if doc.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					doc.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return doc, nil
}

// getAttr returns the value of the named attribute.
func getAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Namespace == "" && attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}
