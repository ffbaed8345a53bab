// Package extract turns fetched HTML into plain text, one line per block.
package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// nonContentSelectors lists elements whose text never reaches the output.
const nonContentSelectors = "script, style, noscript, template, head"

// blockElements start and end a text line.
var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Caption: true, atom.Dd: true, atom.Details: true, atom.Div: true,
	atom.Dl: true, atom.Dt: true, atom.Fieldset: true, atom.Figcaption: true,
	atom.Figure: true, atom.Footer: true, atom.Form: true, atom.H1: true,
	atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Li: true, atom.Main: true,
	atom.Nav: true, atom.Ol: true, atom.P: true, atom.Pre: true,
	atom.Section: true, atom.Summary: true, atom.Table: true, atom.Tbody: true,
	atom.Td: true, atom.Tfoot: true, atom.Th: true, atom.Thead: true,
	atom.Title: true, atom.Tr: true, atom.Ul: true, atom.Option: true,
}

// Extractor converts HTML documents to line-oriented text.
type Extractor struct{}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract returns the visible text of raw. Each block-level element and
// each <br> ends a line; runs of whitespace collapse to one space and
// empty lines are dropped.
func (e *Extractor) Extract(raw []byte) (string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return "", errors.Wrap(err, "parse html")
	}
	doc.Find(nonContentSelectors).Remove()

	root := doc.Find("body").First()
	if root.Length() == 0 {
		root = doc.Selection
	}

	w := &lineWriter{}
	for _, n := range root.Nodes {
		w.walk(n)
	}
	w.flush()

	return strings.Join(w.lines, "\n"), nil
}

type lineWriter struct {
	cur   strings.Builder
	lines []string
}

func (w *lineWriter) flush() {
	text := strings.Join(strings.Fields(w.cur.String()), " ")
	if text != "" {
		w.lines = append(w.lines, text)
	}
	w.cur.Reset()
}

func (w *lineWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.cur.WriteString(n.Data)
		return
	case html.ElementNode:
		if n.DataAtom == atom.Br {
			w.flush()
			return
		}
		if n.DataAtom == atom.Img {
			if alt := attr(n, "alt"); alt != "" {
				w.cur.WriteString(" " + alt + " ")
			}
			return
		}
	case html.CommentNode:
		return
	}

	block := n.Type == html.ElementNode && blockElements[n.DataAtom]
	if block {
		w.flush()
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
	if block {
		w.flush()
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
