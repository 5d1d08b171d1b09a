// Package snapshot defines the read-only view of a rendered document that
// the detection pipeline consumes.
//
// Two implementations exist: Static in this package parses raw HTML for
// tests, cached pages and non-JS sites; package browser harvests the same
// element views from a live Chrome tab. The analysis code never touches a
// DOM directly — it works on []ElementView plus selector re-queries, so it
// cannot hold stale references across oracle calls.
package snapshot

import (
	"context"
	"regexp"
	"strings"

	"github.com/hazyhaar/glane/price"
)

// ElementView is a read-only projection of one document element.
// Views are immutable for the duration of one analysis pass.
type ElementView struct {
	Index      int               `json:"index"`  // document-order position
	Parent     int               `json:"parent"` // index of parent view, -1 at the root
	Depth      int               `json:"depth"`
	Tag        string            `json:"tag"`
	Classes    []string          `json:"classes"` // first class is primary
	Text       string            `json:"text"`    // descendant text, trimmed, capped
	TextLen    int               `json:"text_len"`
	OwnText    string            `json:"own_text"` // text excluding descendants
	Attrs      map[string]string `json:"attrs,omitempty"`
	ChildCount int               `json:"child_count"`
	Visible    bool              `json:"visible"`

	// Derived signal flags, filled by Annotate.
	OwnPrice bool `json:"own_price"` // own text matches the price pattern
	HasPrice bool `json:"has_price"` // descendant-or-self price text
	HasLink  bool `json:"has_link"`  // descendant-or-self <a href>
	HasImage bool `json:"has_image"` // descendant-or-self <img src>
}

// PrimaryClass returns the element's first class, or "".
func (v *ElementView) PrimaryClass() string {
	if len(v.Classes) == 0 {
		return ""
	}
	return v.Classes[0]
}

// Attr returns a named attribute value, or "".
func (v *ElementView) Attr(name string) string {
	return v.Attrs[name]
}

// Snapshot is the accessor contract. MatchCount and OuterHTML hit the
// underlying document, so they take a context; Elements returns the views
// harvested when the snapshot was taken.
type Snapshot interface {
	// URL is the page address the snapshot was taken from.
	URL() string

	// Elements returns every element view under body, in document order.
	Elements(ctx context.Context) ([]ElementView, error)

	// MatchCount re-runs a CSS selector against the document and returns
	// a fresh match count.
	MatchCount(ctx context.Context, selector string) (int, error)

	// OuterHTML returns the outer HTML of the first selector match.
	// Used only to prepare oracle samples.
	OuterHTML(ctx context.Context, selector string) (string, error)
}

// Annotate fills the derived signal flags in place. OwnPrice is local to
// each element's own text; price, link and image presence propagate to
// every ancestor, so a container's Has* flag means "somewhere in this
// subtree".
func Annotate(views []ElementView) {
	for i := range views {
		views[i].OwnPrice = price.Match(views[i].OwnText)
	}
	for i := range views {
		v := &views[i]
		link := v.Tag == "a" && v.Attr("href") != ""
		image := v.Tag == "img" && v.Attr("src") != ""
		priced := v.OwnPrice
		if !link && !image && !priced {
			continue
		}
		for j := i; j != -1; j = views[j].Parent {
			if link {
				views[j].HasLink = true
			}
			if image {
				views[j].HasImage = true
			}
			if priced {
				views[j].HasPrice = true
			}
		}
	}
}

// classNameRe accepts class names usable in a selector descriptor.
// Generated or hashed names with leading digits or punctuation are skipped.
var classNameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

// FirstValidClass returns the first selector-safe class of a view, or "".
func FirstValidClass(v *ElementView) string {
	for _, c := range v.Classes {
		if classNameRe.MatchString(c) {
			return c
		}
	}
	return ""
}

// Descriptor builds the "tag.class" selector for a view, falling back to
// the bare tag when no selector-safe class exists.
func Descriptor(v *ElementView) string {
	if c := FirstValidClass(v); c != "" {
		return v.Tag + "." + c
	}
	return v.Tag
}

// SplitSelector parses a "tag.class" or bare "tag" selector descriptor.
func SplitSelector(sel string) (tag, class string) {
	sel = strings.TrimSpace(sel)
	if sel == "" {
		return "", ""
	}
	if i := strings.IndexByte(sel, '.'); i >= 0 {
		return sel[:i], sel[i+1:]
	}
	return sel, ""
}

// MatchesSelector reports whether a view matches a "tag.class" descriptor.
// An empty tag part (".card") matches any tag with the class.
func MatchesSelector(v *ElementView, sel string) bool {
	tag, class := SplitSelector(sel)
	if tag != "" && v.Tag != tag {
		return false
	}
	if class == "" {
		return true
	}
	for _, c := range v.Classes {
		if c == class {
			return true
		}
	}
	return false
}

// MatchIndices returns the indices of all views matching the descriptor,
// in document order.
func MatchIndices(views []ElementView, sel string) []int {
	var out []int
	for i := range views {
		if MatchesSelector(&views[i], sel) {
			out = append(out, i)
		}
	}
	return out
}

// Subtree returns the indices of root's descendants (excluding root) in
// document order. Views are a preorder sequence, so the subtree is the
// contiguous run of deeper elements directly after root.
func Subtree(views []ElementView, root int) []int {
	var out []int
	for i := root + 1; i < len(views) && views[i].Depth > views[root].Depth; i++ {
		out = append(out, i)
	}
	return out
}
