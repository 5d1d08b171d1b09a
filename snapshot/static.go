package snapshot

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Static is a Snapshot over parsed HTML. It is the offline accessor: no
// browser, no JS execution, layout-independent visibility heuristics.
type Static struct {
	pageURL string
	doc     *goquery.Document
	views   []ElementView
}

var hiddenStyleRe = regexp.MustCompile(`(?i)display\s*:\s*none|visibility\s*:\s*hidden`)

// NewStatic parses an HTML document and harvests its element views.
func NewStatic(r io.Reader, pageURL string) (*Static, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("snapshot: parse: %w", err)
	}
	s := &Static{pageURL: pageURL, doc: doc}
	s.views = harvest(doc)
	Annotate(s.views)
	return s, nil
}

// URL returns the page address the snapshot was taken from.
func (s *Static) URL() string { return s.pageURL }

// Elements returns the harvested views.
func (s *Static) Elements(_ context.Context) ([]ElementView, error) {
	return s.views, nil
}

// MatchCount counts matches of a CSS selector in the document.
func (s *Static) MatchCount(_ context.Context, selector string) (int, error) {
	return s.doc.Find(selector).Length(), nil
}

// OuterHTML returns the outer HTML of the first selector match, or "" when
// nothing matches.
func (s *Static) OuterHTML(_ context.Context, selector string) (string, error) {
	sel := s.doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", nil
	}
	return goquery.OuterHtml(sel)
}

// harvest walks body in preorder and builds element views.
func harvest(doc *goquery.Document) []ElementView {
	body := doc.Find("body").First()
	if body.Length() == 0 {
		return nil
	}

	var views []ElementView
	var walk func(n *html.Node, parent, depth int, visible bool)
	walk = func(n *html.Node, parent, depth int, visible bool) {
		if n.Type != html.ElementNode {
			return
		}

		idx := len(views)
		v := ElementView{
			Index:   idx,
			Parent:  parent,
			Depth:   depth,
			Tag:     n.Data,
			Visible: visible,
		}

		for _, a := range n.Attr {
			switch a.Key {
			case "class":
				v.Classes = strings.Fields(a.Val)
			case "style":
				if hiddenStyleRe.MatchString(a.Val) {
					v.Visible = false
				}
				attr(&v, a.Key, a.Val)
			case "hidden":
				v.Visible = false
			default:
				attr(&v, a.Key, a.Val)
			}
		}

		var own strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				t := strings.TrimSpace(c.Data)
				if t != "" {
					if own.Len() > 0 {
						own.WriteByte(' ')
					}
					own.WriteString(t)
				}
			case html.ElementNode:
				v.ChildCount++
			}
		}
		v.OwnText = truncate(own.String(), 300)

		text := collectText(n)
		if text == "" && v.OwnText != "" {
			// script/style bodies: keep the raw text visible on the
			// element itself so the ranker's syntax guard can see it.
			text = own.String()
		}
		v.TextLen = len(text)
		v.Text = truncate(text, 600)

		views = append(views, v)

		// Hidden subtrees stay hidden: layout removal cascades.
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, idx, depth+1, v.Visible)
		}
	}

	for c := body.Nodes[0].FirstChild; c != nil; c = c.NextSibling {
		walk(c, -1, 0, true)
	}
	return views
}

func attr(v *ElementView, key, val string) {
	if v.Attrs == nil {
		v.Attrs = make(map[string]string)
	}
	v.Attrs[key] = val
}

// collectText gathers all descendant text, whitespace-normalised.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		if n.Type == html.TextNode {
			t := strings.TrimSpace(n.Data)
			if t != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
