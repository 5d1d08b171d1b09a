package detect

import (
	"context"

	"github.com/hazyhaar/glane/snapshot"
)

// PageCache memoizes per-page derived data: selector match counts, the
// depth profile, and oracle verdicts. Its lifecycle is one page analysis;
// it is passed explicitly through the pipeline and never shared between
// concurrent runs, so it needs no locking.
type PageCache struct {
	matchCounts map[string]int
	stats       *Stats
	verdicts    map[string]bool // selector -> oracle is_valid
}

// NewPageCache creates an empty cache for one page analysis.
func NewPageCache() *PageCache {
	return &PageCache{
		matchCounts: make(map[string]int),
		verdicts:    make(map[string]bool),
	}
}

// MatchCount returns the document-wide match count for a selector,
// querying the snapshot at most once per selector.
func (c *PageCache) MatchCount(ctx context.Context, snap snapshot.Snapshot, selector string) (int, error) {
	if n, ok := c.matchCounts[selector]; ok {
		return n, nil
	}
	n, err := snap.MatchCount(ctx, selector)
	if err != nil {
		return 0, err
	}
	c.matchCounts[selector] = n
	return n, nil
}

// StatsFor returns the memoized depth profile, computing it on first use.
func (c *PageCache) StatsFor(views []snapshot.ElementView) *Stats {
	if c.stats == nil {
		c.stats = Analyze(views)
	}
	return c.stats
}

// RecordVerdict stores an oracle judgment for a selector.
func (c *PageCache) RecordVerdict(selector string, isValid bool) {
	c.verdicts[selector] = isValid
}

// Verdict returns a cached oracle judgment, if any.
func (c *PageCache) Verdict(selector string) (isValid, ok bool) {
	isValid, ok = c.verdicts[selector]
	return isValid, ok
}
