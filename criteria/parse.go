package criteria

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	numPat  = `(\d+(?:[.,]\d+)?)`
	symPat  = `(zł|€|\$|£|¥|₹|kč|kr)`
	unitPat = `(zł|€|\$|£|¥|₹|kč|kr|usd|eur|pln|gbp|czk|sek|nok|dkk|jpy|chf|cad|aud|inr|kilograms?|kilos?|kg|grams?|g|milliliters?|ml|liters?|litres?|l)`
)

var (
	// The trailing unit is anchored with an explicit delimiter class
	// because \b in RE2 is ASCII-only and never fires after "zł".
	endPat   = `(?:[\s.,;:!?)]|$)`
	betweenRe = regexp.MustCompile(
		`\bbetween\s+(?:` + symPat + `\s*)?` + numPat + `\s+and\s+(?:` + symPat + `\s*)?` + numPat + `\s*(?:` + unitPat + endPat + `)?`)
	compareRe = regexp.MustCompile(
		`\b(under|below|cheaper than|less than|at most|no more than|up to|over|above|more than|at least|exactly)\s+(?:` + symPat + `\s*)?` + numPat + `\s*(?:` + unitPat + endPat + `)?`)
	orRe = regexp.MustCompile(`\bor\b`)
)

var comparators = map[string]Operator{
	"under":        OpLT,
	"below":        OpLT,
	"cheaper than": OpLT,
	"less than":    OpLT,
	"at most":      OpLTE,
	"no more than": OpLTE,
	"up to":        OpLTE,
	"over":         OpGT,
	"above":        OpGT,
	"more than":    OpGT,
	"at least":     OpGTE,
	"exactly":      OpEQ,
}

// vocab maps instruction phrases to canonical semantic tags. Multi-word
// phrases are listed before their single-word prefixes so the longest
// form wins.
var vocab = []struct {
	phrase string
	tag    string
}{
	{"gluten-free", "gluten-free"},
	{"gluten free", "gluten-free"},
	{"sugar-free", "sugar-free"},
	{"sugar free", "sugar-free"},
	{"lactose-free", "lactose-free"},
	{"lactose free", "lactose-free"},
	{"eco-friendly", "eco-friendly"},
	{"eco friendly", "eco-friendly"},
	{"vegetarian", "vegetarian"},
	{"vegan", "vegan"},
	{"organic", "organic"},
	{"bio", "organic"},
	{"natural", "natural"},
	{"fresh", "fresh"},
	{"handmade", "handmade"},
	{"premium", "premium"},
}

// Parse extracts numeric and semantic criteria from a free-text
// instruction. Unrecognized text is ignored rather than rejected, so an
// instruction with no recognizable criteria yields an empty set.
func Parse(instruction string) Set {
	text := strings.ToLower(strings.TrimSpace(instruction))
	set := Set{LogicalOp: OpAnd}
	if text == "" {
		return set
	}

	consumed := text
	for _, m := range betweenRe.FindAllStringSubmatch(text, -1) {
		min := parseAmount(m[2])
		max := parseAmount(m[4])
		if max < min {
			min, max = max, min
		}
		field, unit, mult := resolveUnit(m[5], m[1], m[3])
		n := &Numeric{
			Field: field, Op: OpBetween,
			Min: min * mult, Max: max * mult, Unit: unit,
			OriginalMin: min * mult, OriginalMax: max * mult, OriginalUnit: unit,
		}
		set.Criteria = append(set.Criteria, Criterion{Numeric: n})
		consumed = strings.Replace(consumed, m[0], " ", 1)
	}
	for _, m := range compareRe.FindAllStringSubmatch(consumed, -1) {
		op, ok := comparators[m[1]]
		if !ok {
			continue
		}
		v := parseAmount(m[3])
		field, unit, mult := resolveUnit(m[4], m[2])
		n := &Numeric{
			Field: field, Op: op, Value: v * mult, Unit: unit,
			OriginalValue: v * mult, OriginalUnit: unit,
		}
		set.Criteria = append(set.Criteria, Criterion{Numeric: n})
	}

	if tags := MatchTags(text); len(tags) > 0 {
		set.Criteria = append(set.Criteria, Criterion{Semantic: &Semantic{Tags: tags}})
	}

	if len(set.Criteria) > 1 && orRe.MatchString(text) {
		set.LogicalOp = OpOr
	}
	return set
}

// MatchTags scans free text for vocabulary phrases and returns the
// canonical tags, deduplicated, in vocabulary order. The filter's
// enrichment stage uses it on entity text with the same vocabulary the
// instruction parser uses, so tags compare equal across the two sides.
func MatchTags(text string) []string {
	text = strings.ToLower(text)
	var tags []string
	seen := map[string]bool{}
	for _, v := range vocab {
		if !seen[v.tag] && containsPhrase(text, v.phrase) {
			seen[v.tag] = true
			tags = append(tags, v.tag)
		}
	}
	return tags
}

func parseAmount(s string) float64 {
	v, _ := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	return v
}

// resolveUnit picks the field, canonical unit and value multiplier for a
// trailing unit token, falling back to a currency symbol seen before the
// amount. An empty result unit means "price in an unknown currency"; the
// normalizer later adopts the page currency for it.
func resolveUnit(unit string, symbols ...string) (Field, string, float64) {
	tok := unit
	if tok == "" {
		for _, s := range symbols {
			if s != "" {
				tok = s
				break
			}
		}
	}
	switch tok {
	case "":
		return FieldPrice, "", 1
	case "kg", "kilo", "kilos", "kilogram", "kilograms":
		return FieldWeight, "g", 1000
	case "g", "gram", "grams":
		return FieldWeight, "g", 1
	case "l", "liter", "liters", "litre", "litres":
		return FieldVolume, "ml", 1000
	case "ml", "milliliter", "milliliters":
		return FieldVolume, "ml", 1
	}
	if code, ok := CurrencyCode(tok); ok {
		return FieldPrice, code, 1
	}
	return FieldPrice, "", 1
}

func containsPhrase(text, phrase string) bool {
	for i := 0; ; {
		j := strings.Index(text[i:], phrase)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(phrase)
		if (start == 0 || boundary(text[start-1])) && (end == len(text) || boundary(text[end])) {
			return true
		}
		i = end
	}
}

func boundary(b byte) bool {
	return !(b >= 'a' && b <= 'z' || b >= '0' && b <= '9')
}
