package detect

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/hazyhaar/glane/snapshot"
)

// Depth score weights. Price presence dominates; co-location of
// price+link+image is next; text-length consistency and raw element count
// are weaker hints.
const (
	weightPricePeak      = 50.0
	weightCoLocation     = 40.0
	weightConsistentText = 30.0
	weightElementPeak    = 20.0
)

// DepthBucket aggregates per-depth counts from one traversal.
type DepthBucket struct {
	Elements     int
	PriceSignals int
	Links        int
	Images       int
	TextLens     []float64 // sampled lengths in (0,500)
}

// Stats is the page-wide statistical profile consumed by clustering and
// ranking. Built once per page, read-only afterwards.
type Stats struct {
	Depths    map[int]*DepthBucket
	ClassFreq map[string]int // primary class -> occurrences

	PricePeakDepth      int // -1 when absent
	CoLocationDepth     int
	ConsistentTextDepth int
	ElementPeakDepth    int

	RecommendedDepth int     // -1 when the page carries no signal at all
	DepthConfidence  float64 // normalized gap between the two best depths
}

// Analyze walks the views once and derives the depth profile.
func Analyze(views []snapshot.ElementView) *Stats {
	s := &Stats{
		Depths:    make(map[int]*DepthBucket),
		ClassFreq: make(map[string]int),
	}

	for i := range views {
		v := &views[i]
		b := s.Depths[v.Depth]
		if b == nil {
			b = &DepthBucket{}
			s.Depths[v.Depth] = b
		}
		b.Elements++
		if v.OwnPrice {
			b.PriceSignals++
		}
		switch v.Tag {
		case "a":
			if v.Attr("href") != "" {
				b.Links++
			}
		case "img":
			if v.Attr("src") != "" {
				b.Images++
			}
		}
		if v.TextLen > 0 && v.TextLen < 500 {
			b.TextLens = append(b.TextLens, float64(v.TextLen))
		}
		if c := v.PrimaryClass(); c != "" {
			s.ClassFreq[c]++
		}
	}

	s.PricePeakDepth = s.argmax(func(b *DepthBucket) float64 { return float64(b.PriceSignals) })
	s.CoLocationDepth = s.argmax(func(b *DepthBucket) float64 {
		return float64(3*b.PriceSignals + 2*b.Links + b.Images)
	})
	s.ElementPeakDepth = s.argmax(func(b *DepthBucket) float64 { return float64(b.Elements) })
	s.ConsistentTextDepth = s.minVarianceDepth()

	s.recommend()
	return s
}

// argmax returns the depth maximizing f, or -1 when f is zero everywhere.
func (s *Stats) argmax(f func(*DepthBucket) float64) int {
	best, bestDepth := 0.0, -1
	for _, depth := range s.sortedDepths() {
		v := f(s.Depths[depth])
		if v > best {
			best, bestDepth = v, depth
		}
	}
	return bestDepth
}

// minVarianceDepth finds the depth with the most uniform text lengths.
// Depths with fewer than 3 samples are skipped: variance over one or two
// values says nothing about layout regularity.
func (s *Stats) minVarianceDepth() int {
	bestDepth := -1
	var bestVar float64
	for _, depth := range s.sortedDepths() {
		b := s.Depths[depth]
		if len(b.TextLens) < 3 {
			continue
		}
		v := stat.PopVariance(b.TextLens, nil)
		if bestDepth == -1 || v < bestVar {
			bestDepth, bestVar = depth, v
		}
	}
	return bestDepth
}

func (s *Stats) sortedDepths() []int {
	depths := make([]int, 0, len(s.Depths))
	for d := range s.Depths {
		depths = append(depths, d)
	}
	sort.Ints(depths)
	return depths
}

// recommend scores each signal depth with fixed weights and keeps the
// winner. Without any price signal the median of the remaining signal
// depths is used; without any signal at all the page is declared empty
// (depth -1, confidence 0).
func (s *Stats) recommend() {
	scores := make(map[int]float64)
	add := func(depth int, w float64) {
		if depth >= 0 {
			scores[depth] += w
		}
	}
	add(s.PricePeakDepth, weightPricePeak)
	add(s.CoLocationDepth, weightCoLocation)
	add(s.ConsistentTextDepth, weightConsistentText)
	add(s.ElementPeakDepth, weightElementPeak)

	if len(scores) == 0 {
		s.RecommendedDepth = -1
		s.DepthConfidence = 0
		return
	}

	type ds struct {
		depth int
		score float64
	}
	ranked := make([]ds, 0, len(scores))
	for d, sc := range scores {
		ranked = append(ranked, ds{d, sc})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].depth < ranked[j].depth
	})

	if s.PricePeakDepth == -1 {
		// No price anywhere: the weighted vote is too weak to trust, so
		// fall back to the median of the signal depths that do exist.
		depths := make([]int, 0, len(scores))
		for d := range scores {
			depths = append(depths, d)
		}
		sort.Ints(depths)
		s.RecommendedDepth = depths[len(depths)/2]
	} else {
		s.RecommendedDepth = ranked[0].depth
	}

	if len(ranked) == 1 {
		s.DepthConfidence = 1.0
		return
	}
	s.DepthConfidence = (ranked[0].score - ranked[1].score) / ranked[0].score
}
