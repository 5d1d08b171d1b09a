package snapshot

import (
	"context"
	"strings"
	"testing"
)

const samplePage = `<html><head><title>t</title></head><body>
<div class="wrap">
  <div class="card special">
    <h3>Widget</h3>
    <span class="price">19.99 zł</span>
    <a href="/p/1"><img src="/i/1.jpg"></a>
  </div>
  <div class="card">
    <h3>Gadget</h3>
    <span class="price">24.99 zł</span>
    <a href="/p/2"><img src="/i/2.jpg"></a>
  </div>
</div>
</body></html>`

func mustStatic(t *testing.T, page string) *Static {
	t.Helper()
	s, err := NewStatic(strings.NewReader(page), "https://shop.example.pl/list")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNewStatic_Views(t *testing.T) {
	// WHAT: Harvest produces preorder views with depth and parent links.
	// WHY: All downstream analysis assumes preorder + correct depths.
	s := mustStatic(t, samplePage)
	views, err := s.Elements(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(views) == 0 {
		t.Fatal("no views harvested")
	}
	if views[0].Tag != "div" || views[0].PrimaryClass() != "wrap" {
		t.Fatalf("first view = %s.%s, want div.wrap", views[0].Tag, views[0].PrimaryClass())
	}
	for i, v := range views {
		if v.Index != i {
			t.Fatalf("views[%d].Index = %d", i, v.Index)
		}
		if v.Parent >= i {
			t.Fatalf("views[%d].Parent = %d, not before child", i, v.Parent)
		}
	}
}

func TestAnnotate_Signals(t *testing.T) {
	// WHAT: Price flags come from own text; link/image flags propagate up.
	// WHY: Container candidates are found through ancestor signal flags.
	s := mustStatic(t, samplePage)
	views, _ := s.Elements(context.Background())

	cards := MatchIndices(views, "div.card")
	if len(cards) != 2 {
		t.Fatalf("div.card matches = %d, want 2", len(cards))
	}
	for _, i := range cards {
		v := views[i]
		if v.OwnPrice {
			t.Error("container OwnPrice should be false: price is in a descendant's own text")
		}
		if !v.HasPrice || !v.HasLink || !v.HasImage {
			t.Errorf("container signals price=%v link=%v image=%v, want all true",
				v.HasPrice, v.HasLink, v.HasImage)
		}
	}

	prices := MatchIndices(views, "span.price")
	for _, i := range prices {
		if !views[i].OwnPrice {
			t.Error("span.price should carry the own-text price signal")
		}
	}
}

func TestMatchCount(t *testing.T) {
	s := mustStatic(t, samplePage)
	n, err := s.MatchCount(context.Background(), "div.card")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("MatchCount(div.card) = %d, want 2", n)
	}
}

func TestSubtree(t *testing.T) {
	// WHAT: Subtree returns the contiguous preorder run under a node.
	s := mustStatic(t, samplePage)
	views, _ := s.Elements(context.Background())
	cards := MatchIndices(views, "div.card")
	sub := Subtree(views, cards[0])
	// h3, span.price, a, img
	if len(sub) != 4 {
		t.Fatalf("subtree size = %d, want 4", len(sub))
	}
	for _, i := range sub {
		if views[i].Depth <= views[cards[0]].Depth {
			t.Fatal("subtree contains non-descendant")
		}
	}
}

func TestOuterHTML(t *testing.T) {
	s := mustStatic(t, samplePage)
	h, err := s.OuterHTML(context.Background(), "div.card")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(h, "Widget") || !strings.Contains(h, "19.99") {
		t.Fatalf("outer HTML missing card content: %q", h)
	}
}

func TestHiddenElements(t *testing.T) {
	// WHAT: display:none and the hidden attribute mark views invisible.
	page := `<html><body><div style="display:none" class="x">a</div><div hidden class="y">b</div><div class="z">c</div></body></html>`
	s := mustStatic(t, page)
	views, _ := s.Elements(context.Background())
	for _, v := range views {
		switch v.PrimaryClass() {
		case "x", "y":
			if v.Visible {
				t.Errorf("%s should be invisible", v.PrimaryClass())
			}
		case "z":
			if !v.Visible {
				t.Error("z should be visible")
			}
		}
	}
}

func TestMatchesSelector(t *testing.T) {
	v := ElementView{Tag: "div", Classes: []string{"card", "special"}}
	cases := []struct {
		sel  string
		want bool
	}{
		{"div.card", true},
		{"div.special", true},
		{"div", true},
		{".card", true},
		{"span.card", false},
		{"div.other", false},
	}
	for _, c := range cases {
		if got := MatchesSelector(&v, c.sel); got != c.want {
			t.Errorf("MatchesSelector(%q) = %v, want %v", c.sel, got, c.want)
		}
	}
}
