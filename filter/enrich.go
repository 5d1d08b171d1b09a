package filter

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hazyhaar/glane/criteria"
	"github.com/hazyhaar/glane/extract"
)

var (
	weightRe = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(kilograms?|kg|grams?|g)\b`)
	volumeRe = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(milliliters?|ml|liters?|litres?|l)\b`)
)

// enrich fills in weight, volume and attribute fields from the entity's
// container text when extraction left them empty. It works on copies; the
// caller's slice is not touched.
func enrich(entities []extract.Entity) []extract.Entity {
	out := make([]extract.Entity, len(entities))
	copy(out, entities)
	for i := range out {
		e := &out[i]
		if e.WeightG == nil {
			if v, ok := scanAmount(weightRe, e.Text, "k"); ok {
				e.WeightG = &v
			}
		}
		if e.VolumeML == nil {
			if v, ok := scanAmount(volumeRe, e.Text, "l"); ok {
				e.VolumeML = &v
			}
		}
		for _, tag := range criteria.MatchTags(e.Text) {
			if !contains(e.Attributes, tag) {
				e.Attributes = append(e.Attributes, tag)
			}
		}
	}
	return out
}

// scanAmount returns the first matched amount converted to the canonical
// unit. bigUnit is the lowercase first letter of the unit that carries a
// x1000 factor (kg, l).
func scanAmount(re *regexp.Regexp, text, bigUnit string) (float64, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return 0, false
	}
	unit := strings.ToLower(m[2])
	if strings.HasPrefix(unit, bigUnit) {
		v *= 1000
	}
	return v, true
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
