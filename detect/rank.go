package detect

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Hard-reject guards. Style and script blocks injected into body can
// repeat with perfect regularity, so textual syntax checks run before any
// scoring.
var (
	cssSyntaxRe    = regexp.MustCompile(`[a-z-]{3,}\s*:\s*[^;{}]{1,60};`)
	scriptSyntaxRe = regexp.MustCompile(`\bfunction\s*\w*\s*\(|\bvar\s+\w+\s*=|\bif\s*\(|\belse\s*\{`)
)

// genericTags are container tags too common to select on without a class.
var genericTags = map[string]bool{
	"div": true, "span": true, "article": true, "section": true, "li": true,
}

// Keyword tie-breakers. Unit strings suggest product data, promotional
// copy suggests marketing blocks. Kept small so structure and
// specificity dominate the score.
var (
	specTokenRe = regexp.MustCompile(`(?i)\b\d+\s*(?:ml|g|kg|l|szt|pcs|pack)\b`)
	noiseTokens = []string{
		"newsletter", "subscribe", "cookie", "sign up", "free shipping",
		"promo code", "advertisement",
	}
)

const rejectedScore = -100

// Rank scores candidates in place and returns them ordered best-first.
// Hard-rejected candidates sink to the bottom with a recorded reason.
func Rank(cands []Candidate, stats *Stats) []Candidate {
	meanFreq := meanClassFreq(stats)

	for i := range cands {
		c := &cands[i]
		if reason := hardReject(c); reason != "" {
			c.Score = rejectedScore
			c.Rejected = reason
			continue
		}
		c.Score = score(c, stats, meanFreq)
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		return cands[i].rep < cands[j].rep
	})
	return cands
}

// Best returns the ranked winner when it clears the score floor.
func Best(ranked []Candidate) (Candidate, bool) {
	if len(ranked) == 0 || ranked[0].Rejected != "" || ranked[0].Score < ScoreFloor {
		return Candidate{}, false
	}
	return ranked[0], true
}

func hardReject(c *Candidate) string {
	switch {
	case len(cssSyntaxRe.FindAllString(c.SampleText, 2)) >= 2:
		// One "word: text;" run can be prose; two is a style block.
		return "css-like sample text"
	case scriptSyntaxRe.MatchString(c.SampleText):
		return "script-like sample text"
	case c.ClassCount == 0 && genericTags[c.Signature.Tag]:
		return "classless generic tag"
	case c.MatchCount < MinRepetition:
		return "below repetition threshold"
	case !c.Signature.HasPrice:
		return "no price signal"
	}
	return ""
}

func score(c *Candidate, stats *Stats, meanFreq float64) float64 {
	var s float64

	// Specificity.
	switch {
	case c.ClassCount >= 2:
		s += 35
	case c.ClassCount == 1:
		s += 30
	default:
		s -= 20
	}

	// Size: more repetitions, capped at 50.
	s += math.Min(float64(c.MatchCount)/50, 1) * 25

	// Structure completeness. Price is guaranteed past the hard rejects.
	s += 25
	if c.Signature.HasLink {
		s += 15
	}
	if c.Signature.HasImage {
		s += 10
	}
	if c.Signature.HasLink && c.Signature.HasImage {
		s += 15
	}

	// Depth alignment with the price/link/image co-location depth.
	if stats.CoLocationDepth >= 0 {
		s += math.Max(0, 20-2*math.Abs(float64(c.Depth-stats.CoLocationDepth)))
	}

	// Text-length sweet spot: item cards are neither crumbs nor walls.
	if c.AvgTextLen >= 50 && c.AvgTextLen <= 500 {
		s += 5
	}

	// Class frequency relative to the page mean.
	if meanFreq > 0 {
		_, class := splitSelector(c.Selector)
		if freq := stats.ClassFreq[class]; freq > 0 {
			s += math.Min(float64(freq)/meanFreq, 2) * 10
		}
	}

	// Keyword tie-breakers.
	sample := strings.ToLower(c.SampleText)
	if specTokenRe.MatchString(sample) {
		s += 8
	}
	for _, tok := range noiseTokens {
		if strings.Contains(sample, tok) {
			s -= 8
			break
		}
	}

	return s
}

func meanClassFreq(stats *Stats) float64 {
	if len(stats.ClassFreq) == 0 {
		return 0
	}
	freqs := make([]float64, 0, len(stats.ClassFreq))
	for _, f := range stats.ClassFreq {
		freqs = append(freqs, float64(f))
	}
	return stat.Mean(freqs, nil)
}

func splitSelector(sel string) (tag, class string) {
	if i := strings.IndexByte(sel, '.'); i >= 0 {
		return sel[:i], sel[i+1:]
	}
	return sel, ""
}
