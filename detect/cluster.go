package detect

import (
	"context"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/hazyhaar/glane/snapshot"
)

func signatureOf(v *snapshot.ElementView) Signature {
	return Signature{
		Tag:        v.Tag,
		ClassCount: len(v.Classes),
		HasPrice:   v.HasPrice,
		HasLink:    v.HasLink,
		HasImage:   v.HasImage,
	}
}

type cluster struct {
	rep      int // first-seen member, the representative
	selector string
	count    int // document-wide matches of the representative selector
	members  map[int]bool
}

// BuildCandidates walks up to AncestorWindow levels above each signal
// element, keeps ancestors whose selector repeats document-wide, and
// groups them by structural signature. Both filters use MinRepetition:
// the selector count rejects one-off matches, the cluster size rewards
// genuinely repeating layout patterns.
func BuildCandidates(ctx context.Context, snap snapshot.Snapshot, views []snapshot.ElementView, signals []int, cache *PageCache) ([]Candidate, error) {
	clusters := make(map[Signature]*cluster)

	for _, sig := range signals {
		node := views[sig].Parent
		for level := 0; level < AncestorWindow && node >= 0; level++ {
			v := &views[node]
			parent := v.Parent
			cls := snapshot.FirstValidClass(v)
			if cls == "" {
				node = parent
				continue
			}
			selector := v.Tag + "." + cls
			count, err := cache.MatchCount(ctx, snap, selector)
			if err != nil {
				return nil, fmt.Errorf("detect: match count %q: %w", selector, err)
			}
			if count < MinRepetition {
				node = parent
				continue
			}

			key := signatureOf(v)
			cl := clusters[key]
			if cl == nil {
				cl = &cluster{rep: node, selector: selector, count: count, members: make(map[int]bool)}
				clusters[key] = cl
			}
			cl.members[node] = true
			node = parent
		}
	}

	var out []Candidate
	for key, cl := range clusters {
		if len(cl.members) < MinRepetition {
			continue
		}
		rep := &views[cl.rep]
		lens := make([]float64, 0, len(cl.members))
		for m := range cl.members {
			lens = append(lens, float64(views[m].TextLen))
		}
		out = append(out, Candidate{
			Selector:    cl.selector,
			MatchCount:  cl.count,
			ClusterSize: len(cl.members),
			Depth:       rep.Depth,
			Signature:   key,
			ClassCount:  len(rep.Classes),
			AvgTextLen:  stat.Mean(lens, nil),
			SampleText:  rep.Text,
			rep:         cl.rep,
		})
	}

	// Map iteration order is random; candidate order must be stable so a
	// repeated run over the same snapshot selects the same container.
	sort.Slice(out, func(i, j int) bool { return out[i].rep < out[j].rep })
	return out, nil
}
