package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/glane/snapshot"
)

// harvestScript projects every element under body into the view shape
// the analysis side consumes. The walk mirrors the offline parser: body's
// children start at depth 0 with parent -1, hidden subtrees stay hidden,
// own text is the element's direct text nodes, and script/style bodies
// stay visible on the element itself.
const harvestScript = `() => {
	const views = [];
	const keep = ['href','src','content','itemprop','property','id','alt','title'];
	const walk = (el, parent, depth, visible) => {
		let vis = visible;
		if (vis) {
			const st = window.getComputedStyle(el);
			if (st.display === 'none' || st.visibility === 'hidden' || el.hidden) vis = false;
		}
		const idx = views.length;
		const attrs = {};
		for (const name of keep) {
			const v = el.getAttribute(name);
			if (v) attrs[name] = v;
		}
		let own = '';
		for (const n of el.childNodes) {
			if (n.nodeType === 3) {
				const t = n.textContent.trim();
				if (t) own += (own ? ' ' : '') + t;
			}
		}
		let text = (el.innerText || '').trim().replace(/\s+/g, ' ');
		if (!text && own) text = own;
		views.push({
			index: idx,
			parent: parent,
			depth: depth,
			tag: el.tagName.toLowerCase(),
			classes: Array.from(el.classList),
			text: text.slice(0, 600),
			text_len: text.length,
			own_text: own.slice(0, 300),
			attrs: attrs,
			child_count: el.children.length,
			visible: vis,
		});
		for (const c of el.children) walk(c, idx, depth + 1, vis);
	};
	if (document.body) {
		for (const c of document.body.children) walk(c, -1, 0, true);
	}
	return JSON.stringify(views);
}`

// Live is a Snapshot over an open tab. Element views are harvested once
// on first use; selector queries always go to the live document.
type Live struct {
	tab   *Tab
	views []snapshot.ElementView
}

// NewLive wraps an open tab as a document snapshot.
func NewLive(tab *Tab) *Live {
	return &Live{tab: tab}
}

// URL returns the page address the snapshot was taken from.
func (l *Live) URL() string { return l.tab.PageURL }

// Elements harvests element views from the rendered page. The harvest
// runs once; repeated calls return the same views so one analysis pass
// never sees two different documents.
func (l *Live) Elements(ctx context.Context) ([]snapshot.ElementView, error) {
	if l.views != nil {
		return l.views, nil
	}
	res, err := l.tab.Page.Context(ctx).Eval(harvestScript)
	if err != nil {
		return nil, fmt.Errorf("browser: harvest: %w", err)
	}
	var views []snapshot.ElementView
	if err := json.Unmarshal([]byte(res.Value.Str()), &views); err != nil {
		return nil, fmt.Errorf("browser: decode harvest: %w", err)
	}
	snapshot.Annotate(views)
	l.views = views
	return views, nil
}

// MatchCount re-runs a CSS selector against the live document.
func (l *Live) MatchCount(ctx context.Context, selector string) (int, error) {
	res, err := l.tab.Page.Context(ctx).Eval(`(sel) => {
		try {
			return document.querySelectorAll(sel).length;
		} catch (e) {
			return 0;
		}
	}`, selector)
	if err != nil {
		return 0, fmt.Errorf("browser: match count %q: %w", selector, err)
	}
	return res.Value.Int(), nil
}

// OuterHTML returns the outer HTML of the first selector match, or ""
// when nothing matches.
func (l *Live) OuterHTML(ctx context.Context, selector string) (string, error) {
	res, err := l.tab.Page.Context(ctx).Eval(`(sel) => {
		try {
			const el = document.querySelector(sel);
			return el ? el.outerHTML : '';
		} catch (e) {
			return '';
		}
	}`, selector)
	if err != nil {
		return "", fmt.Errorf("browser: outer html %q: %w", selector, err)
	}
	return res.Value.Str(), nil
}
