package detect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hazyhaar/glane/oracle"
	"github.com/hazyhaar/glane/snapshot"
)

// productPage builds a synthetic listing: n product cards under one grid,
// each with a heading, a price span, and a linked image.
func productPage(n int) string {
	var sb strings.Builder
	sb.WriteString(`<html><body><div class="grid">`)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, `<div class="card">
			<h3>Organic Wildflower Honey Jar %d with a rather long label</h3>
			<span class="price">%d.99 zł</span>
			<a href="/p/%d"><img src="/i/%d.jpg"></a>
		</div>`, i, 10+i, i, i)
	}
	sb.WriteString(`</div></body></html>`)
	return sb.String()
}

func snap(t *testing.T, page string) snapshot.Snapshot {
	t.Helper()
	s, err := snapshot.NewStatic(strings.NewReader(page), "https://shop.example.pl/list")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func views(t *testing.T, s snapshot.Snapshot) []snapshot.ElementView {
	t.Helper()
	v, err := s.Elements(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestAnalyze_DepthProfile(t *testing.T) {
	// WHAT: Price peak and co-location land on the card-content depth.
	// WHY: The recommended depth steers candidate ranking.
	s := snap(t, productPage(7))
	st := Analyze(views(t, s))

	if st.PricePeakDepth != 2 {
		t.Errorf("PricePeakDepth = %d, want 2", st.PricePeakDepth)
	}
	if st.CoLocationDepth != 2 {
		t.Errorf("CoLocationDepth = %d, want 2", st.CoLocationDepth)
	}
	if st.RecommendedDepth != 2 {
		t.Errorf("RecommendedDepth = %d, want 2", st.RecommendedDepth)
	}
	if st.DepthConfidence <= 0 {
		t.Errorf("DepthConfidence = %v, want > 0", st.DepthConfidence)
	}
	if st.ClassFreq["card"] != 7 {
		t.Errorf("ClassFreq[card] = %d, want 7", st.ClassFreq["card"])
	}
}

func TestAnalyze_EmptyPage(t *testing.T) {
	// WHAT: An empty body reports depth none, confidence 0.
	// WHY: "Nothing to extract" is a legitimate outcome, not an error.
	s := snap(t, `<html><body></body></html>`)
	st := Analyze(views(t, s))
	if st.PricePeakDepth != -1 {
		t.Errorf("PricePeakDepth = %d, want -1", st.PricePeakDepth)
	}
	if st.RecommendedDepth != -1 || st.DepthConfidence != 0 {
		t.Errorf("recommended = %d conf %v, want -1/0", st.RecommendedDepth, st.DepthConfidence)
	}
}

func TestAnalyze_NoPriceFallsBackToMedian(t *testing.T) {
	// WHAT: Without price signals the median of remaining signal depths wins.
	page := `<html><body><ul class="nav">` +
		strings.Repeat(`<li class="n"><a href="/x"><img src="/x.jpg"></a></li>`, 6) +
		`</ul></body></html>`
	s := snap(t, page)
	st := Analyze(views(t, s))
	if st.PricePeakDepth != -1 {
		t.Fatalf("PricePeakDepth = %d, want -1", st.PricePeakDepth)
	}
	if st.RecommendedDepth < 0 {
		t.Fatal("expected a fallback recommended depth")
	}
}

func TestSignals_CapAndOrder(t *testing.T) {
	// WHAT: The signal scan stops at MaxSignals, earliest first.
	// WHY: Bounds worst-case work on adversarially large pages.
	s := snap(t, productPage(120))
	sig := Signals(views(t, s))
	if len(sig) != MaxSignals {
		t.Fatalf("signals = %d, want %d", len(sig), MaxSignals)
	}
	for i := 1; i < len(sig); i++ {
		if sig[i] <= sig[i-1] {
			t.Fatal("signals not in document order")
		}
	}
}

func TestSignals_SkipsHidden(t *testing.T) {
	page := `<html><body>` +
		strings.Repeat(`<div class="tmpl" style="display:none"><span>9.99 zł</span></div>`, 6) +
		`</body></html>`
	s := snap(t, page)
	for _, i := range Signals(views(t, s)) {
		_ = i
		t.Fatal("hidden elements must not be signals")
	}
}

func TestBuildCandidates_ClustersRepeatingCards(t *testing.T) {
	s := snap(t, productPage(7))
	v := views(t, s)
	cache := NewPageCache()
	cands, err := BuildCandidates(context.Background(), s, v, Signals(v), cache)
	if err != nil {
		t.Fatal(err)
	}
	var card *Candidate
	for i := range cands {
		if cands[i].Selector == "div.card" {
			card = &cands[i]
		}
	}
	if card == nil {
		t.Fatalf("div.card not among candidates: %+v", cands)
	}
	if card.MatchCount != 7 || card.ClusterSize != 7 {
		t.Errorf("card match=%d cluster=%d, want 7/7", card.MatchCount, card.ClusterSize)
	}
	if !card.Signature.HasPrice || !card.Signature.HasLink || !card.Signature.HasImage {
		t.Errorf("card signature = %+v, want full structure", card.Signature)
	}
}

func TestBuildCandidates_BelowThreshold(t *testing.T) {
	// WHAT: 4 repetitions of a card class produce no candidate.
	// WHY: MinRepetition guards against accidental small matches.
	s := snap(t, productPage(4))
	v := views(t, s)
	cands, err := BuildCandidates(context.Background(), s, v, Signals(v), NewPageCache())
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range cands {
		if c.Selector == "div.card" {
			t.Fatal("div.card should not be a candidate at 4 repetitions")
		}
	}
}

func TestRank_HardRejects(t *testing.T) {
	st := &Stats{ClassFreq: map[string]int{"card": 7}, CoLocationDepth: 2}
	cands := []Candidate{
		{Selector: "div.styles", MatchCount: 9, ClassCount: 1,
			Signature: Signature{Tag: "div", ClassCount: 1, HasPrice: true},
			SampleText: "display: block; margin: 0 auto; color: red;"},
		{Selector: "div.js", MatchCount: 9, ClassCount: 1,
			Signature: Signature{Tag: "div", ClassCount: 1, HasPrice: true},
			SampleText: "function init() { if (x) { loop(); } }"},
		{Selector: "div", MatchCount: 9, ClassCount: 0,
			Signature: Signature{Tag: "div", HasPrice: true}, SampleText: "ok 9.99 zł"},
		{Selector: "div.few", MatchCount: 3, ClassCount: 1,
			Signature: Signature{Tag: "div", ClassCount: 1, HasPrice: true}, SampleText: "ok"},
		{Selector: "div.noprice", MatchCount: 9, ClassCount: 1,
			Signature: Signature{Tag: "div", ClassCount: 1, HasLink: true}, SampleText: "ok"},
	}
	ranked := Rank(cands, st)
	for _, c := range ranked {
		if c.Rejected == "" {
			t.Errorf("%s: expected hard reject, score %v", c.Selector, c.Score)
		}
		if c.Score != rejectedScore {
			t.Errorf("%s: score = %v, want %v", c.Selector, c.Score, rejectedScore)
		}
	}
	if _, ok := Best(ranked); ok {
		t.Fatal("Best should find nothing among rejects")
	}
}

func TestRank_StructureDominates(t *testing.T) {
	// WHAT: A full price+link+image candidate outranks a price-only one.
	// WHY: Structure completeness is the strongest additive term.
	st := &Stats{ClassFreq: map[string]int{"full": 10, "bare": 10}, CoLocationDepth: 3}
	cands := []Candidate{
		{Selector: "div.bare", MatchCount: 10, ClassCount: 1, Depth: 3, rep: 0,
			Signature: Signature{Tag: "div", ClassCount: 1, HasPrice: true}},
		{Selector: "div.full", MatchCount: 10, ClassCount: 1, Depth: 3, rep: 1,
			Signature: Signature{Tag: "div", ClassCount: 1, HasPrice: true, HasLink: true, HasImage: true}},
	}
	ranked := Rank(cands, st)
	if ranked[0].Selector != "div.full" {
		t.Fatalf("ranked[0] = %s, want div.full", ranked[0].Selector)
	}
}

func TestDetect_SelectsRepeatingContainer(t *testing.T) {
	// WHAT: One repeating class of 7 full cards is detected confidently.
	d := New(Config{}, nil)
	det, err := d.Detect(context.Background(), snap(t, productPage(7)), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if det.Selector != "div.card" {
		t.Fatalf("selector = %q, want div.card (reason %q)", det.Selector, det.Reason)
	}
	if det.MatchCount != 7 {
		t.Errorf("match count = %d, want 7", det.MatchCount)
	}
	if det.Confidence <= 0.5 {
		t.Errorf("confidence = %v, want > 0.5", det.Confidence)
	}
	if det.Method != MethodStatistical {
		t.Errorf("method = %q", det.Method)
	}
}

func TestDetect_NoSignal(t *testing.T) {
	// WHAT: Fewer than 5 signal elements -> no selection, confidence 0.
	page := `<html><body>` +
		strings.Repeat(`<span class="p">9.99 zł</span>`, 3) +
		`</body></html>`
	d := New(Config{}, nil)
	det, err := d.Detect(context.Background(), snap(t, page), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if det.Found() {
		t.Fatalf("unexpected selection %q", det.Selector)
	}
	if det.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", det.Confidence)
	}
	if det.Reason != ReasonNoSignal {
		t.Errorf("reason = %q, want %q", det.Reason, ReasonNoSignal)
	}
}

func TestDetect_NoCluster(t *testing.T) {
	// WHAT: Signals without a repeating ancestor class -> no-cluster.
	det, err := New(Config{}, nil).Detect(context.Background(), snap(t, productPage(4)), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if det.Found() || det.Reason != ReasonNoCluster {
		t.Fatalf("detection = %+v, want no-cluster", det)
	}
}

func TestDetect_Idempotent(t *testing.T) {
	// WHAT: Two runs over one unchanged snapshot agree exactly.
	// WHY: Cluster maps iterate randomly; ordering must not leak through.
	s := snap(t, productPage(9))
	d := New(Config{}, nil)
	a, err := d.Detect(context.Background(), s, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.Detect(context.Background(), s, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("detections differ: %+v vs %+v", a, b)
	}
}

// vetoOracle rejects every candidate.
type vetoOracle struct{}

func (vetoOracle) JudgeContainers(_ context.Context, cands []oracle.Candidate, _ string) ([]oracle.Verdict, error) {
	out := make([]oracle.Verdict, len(cands))
	for i, c := range cands {
		out[i] = oracle.Verdict{Selector: c.Selector, IsValid: false, Confidence: 0.9, Rationale: "not a product container"}
	}
	return out, nil
}
func (vetoOracle) MatchItems(context.Context, []oracle.Item, []string) ([]bool, error) {
	return nil, oracle.ErrUnavailable
}

// downOracle fails every call.
type downOracle struct{}

func (downOracle) JudgeContainers(context.Context, []oracle.Candidate, string) ([]oracle.Verdict, error) {
	return nil, errors.New("connection refused")
}
func (downOracle) MatchItems(context.Context, []oracle.Item, []string) ([]bool, error) {
	return nil, oracle.ErrUnavailable
}

func TestDetect_OracleVeto(t *testing.T) {
	// WHAT: A unanimous oracle rejection overrides any statistical score.
	d := New(Config{}, vetoOracle{})
	det, err := d.Detect(context.Background(), snap(t, productPage(7)), "grab products", nil)
	if err != nil {
		t.Fatal(err)
	}
	if det.Found() {
		t.Fatalf("oracle veto ignored, selected %q", det.Selector)
	}
	if det.Reason != ReasonOracleVeto {
		t.Errorf("reason = %q, want %q", det.Reason, ReasonOracleVeto)
	}
	if det.Method != MethodWithOracle {
		t.Errorf("method = %q, want %q", det.Method, MethodWithOracle)
	}
}

func TestDetect_OracleDownFallsOpen(t *testing.T) {
	// WHAT: An unreachable oracle degrades to statistics, never fails.
	d := New(Config{}, downOracle{})
	det, err := d.Detect(context.Background(), snap(t, productPage(7)), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if det.Selector != "div.card" {
		t.Fatalf("selector = %q, want div.card", det.Selector)
	}
	if det.Method != MethodStatistical {
		t.Errorf("method = %q, want statistical fallback", det.Method)
	}
}
