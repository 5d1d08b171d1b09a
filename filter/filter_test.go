package filter

import (
	"context"
	"errors"
	"testing"

	"github.com/hazyhaar/glane/criteria"
	"github.com/hazyhaar/glane/extract"
	"github.com/hazyhaar/glane/oracle"
)

func priced(name string, price float64, text string) extract.Entity {
	p := price
	return extract.Entity{Name: name, Price: &p, Text: text}
}

func checkMonotonic(t *testing.T, r Report) {
	t.Helper()
	for _, s := range r.Stages {
		if s.Output > s.Input {
			t.Errorf("stage %s: output %d > input %d", s.Name, s.Output, s.Input)
		}
		if len(s.Rejections) != s.Input-s.Output {
			t.Errorf("stage %s: %d rejections for %d dropped",
				s.Name, len(s.Rejections), s.Input-s.Output)
		}
	}
}

// WHAT: seven 19.99 entities against "under 20" all pass, against
// "under 10" none do, and the numeric stage report shows the full drop.
func TestApply_NumericThreshold(t *testing.T) {
	var ents []extract.Entity
	for i := 0; i < 7; i++ {
		ents = append(ents, priced("Item", 19.99, ""))
	}
	f := New(Config{})

	r := f.Apply(context.Background(), ents, criteria.Parse("under 20 zł"))
	checkMonotonic(t, r)
	if len(r.Survivors) != 7 {
		t.Errorf("under 20: %d survivors, want 7", len(r.Survivors))
	}

	r = f.Apply(context.Background(), ents, criteria.Parse("under 10 zł"))
	checkMonotonic(t, r)
	if len(r.Survivors) != 0 {
		t.Errorf("under 10: %d survivors, want 0", len(r.Survivors))
	}
	var num *Stage
	for i := range r.Stages {
		if r.Stages[i].Name == StageNumeric {
			num = &r.Stages[i]
		}
	}
	if num == nil || num.Input != 7 || num.Output != 0 {
		t.Fatalf("numeric stage record = %+v, want input 7 output 0", num)
	}
}

// WHAT: weight and volume are parsed out of entity text before the
// numeric stage sees them.
func TestApply_EnrichesBeforeNumeric(t *testing.T) {
	ents := []extract.Entity{
		priced("Almonds", 30, "Organic almonds 500 g bag"),
		priced("Flour", 12, "Wheat flour 2 kg"),
		priced("Juice", 8, "Apple juice 0,7 l bottle"),
	}
	f := New(Config{})

	r := f.Apply(context.Background(), ents, criteria.Parse("over 1 kg"))
	checkMonotonic(t, r)
	if len(r.Survivors) != 1 || r.Survivors[0].Name != "Flour" {
		t.Fatalf("over 1 kg: survivors = %+v, want just Flour", r.Survivors)
	}
	if w := r.Survivors[0].WeightG; w == nil || *w != 2000 {
		t.Errorf("Flour weight = %v, want 2000 g", w)
	}

	r = f.Apply(context.Background(), ents, criteria.Parse("at least 0.5 l"))
	if len(r.Survivors) != 1 || r.Survivors[0].Name != "Juice" {
		t.Fatalf("volume filter: survivors = %+v, want just Juice", r.Survivors)
	}
}

// WHAT: an entity with no extractable value for the field is rejected,
// not passed through.
func TestApply_MissingFieldRejects(t *testing.T) {
	ents := []extract.Entity{priced("Mystery", 10, "no sizes here")}
	r := New(Config{}).Apply(context.Background(), ents, criteria.Parse("under 1 kg"))
	checkMonotonic(t, r)
	if len(r.Survivors) != 0 {
		t.Fatalf("survivors = %+v, want none", r.Survivors)
	}
}

// WHAT: without an oracle, semantic tags match against attributes
// enriched from text.
func TestApply_SemanticFallback(t *testing.T) {
	ents := []extract.Entity{
		priced("Tofu", 9, "Smoked vegan tofu block"),
		priced("Ham", 15, "Country smoked ham"),
	}
	r := New(Config{}).Apply(context.Background(), ents, criteria.Parse("vegan"))
	checkMonotonic(t, r)
	if len(r.Survivors) != 1 || r.Survivors[0].Name != "Tofu" {
		t.Fatalf("survivors = %+v, want just Tofu", r.Survivors)
	}
}

// WHAT: with OR, the numeric stage defers and either leg rescues an
// entity; only entities failing both are dropped.
func TestApply_OrCombinator(t *testing.T) {
	ents := []extract.Entity{
		priced("Cheap", 5, "plain crackers"),
		priced("Vegan", 19.99, "vegan protein bar"),
		priced("Neither", 19.99, "milk chocolate"),
	}
	r := New(Config{}).Apply(context.Background(), ents, criteria.Parse("under 10 zł or vegan"))
	checkMonotonic(t, r)
	if len(r.Survivors) != 2 {
		t.Fatalf("survivors = %+v, want Cheap and Vegan", r.Survivors)
	}
	for i := range r.Stages {
		if r.Stages[i].Name == StageNumeric && r.Stages[i].Output != r.Stages[i].Input {
			t.Errorf("numeric stage dropped entities despite OR deferral: %+v", r.Stages[i])
		}
	}
}

type stubMatcher struct {
	ok  []bool
	err error
}

func (s *stubMatcher) JudgeContainers(context.Context, []oracle.Candidate, string) ([]oracle.Verdict, error) {
	return nil, errors.New("not used")
}

func (s *stubMatcher) MatchItems(_ context.Context, items []oracle.Item, _ []string) ([]bool, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.ok[:len(items)], nil
}

// WHAT: the oracle's per-item verdicts override attribute matching, and
// an oracle failure falls back to attributes instead of erroring.
func TestApply_SemanticOracle(t *testing.T) {
	ents := []extract.Entity{
		priced("A", 5, "nothing relevant"),
		priced("B", 5, "nothing relevant"),
	}

	f := New(Config{Oracle: &stubMatcher{ok: []bool{true, false}}})
	r := f.Apply(context.Background(), ents, criteria.Parse("vegan"))
	checkMonotonic(t, r)
	if len(r.Survivors) != 1 || r.Survivors[0].Name != "A" {
		t.Fatalf("oracle verdicts ignored: survivors = %+v", r.Survivors)
	}

	f = New(Config{Oracle: &stubMatcher{err: oracle.ErrUnavailable}})
	r = f.Apply(context.Background(), ents, criteria.Parse("vegan"))
	checkMonotonic(t, r)
	if len(r.Survivors) != 0 {
		t.Errorf("fallback should reject untagged entities, got %+v", r.Survivors)
	}
}

// WHAT: an empty criteria set passes everything through with clean
// stage records.
func TestApply_EmptySet(t *testing.T) {
	ents := []extract.Entity{priced("A", 5, ""), priced("B", 10, "")}
	r := New(Config{}).Apply(context.Background(), ents, criteria.Parse("anything goes"))
	checkMonotonic(t, r)
	if len(r.Survivors) != 2 {
		t.Errorf("survivors = %d, want 2", len(r.Survivors))
	}
	if len(r.Stages) != 3 {
		t.Errorf("stages = %d, want 3", len(r.Stages))
	}
}
