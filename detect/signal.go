package detect

import "github.com/hazyhaar/glane/snapshot"

// Signals returns the indices of signal elements in document order, capped
// at MaxSignals. A signal is an element whose own text carries a price, or
// one containing both a link and an image in its subtree. Invisible
// elements are skipped: hidden templates repeat just as regularly as real
// listings.
func Signals(views []snapshot.ElementView) []int {
	var out []int
	for i := range views {
		v := &views[i]
		if !v.Visible {
			continue
		}
		if v.OwnPrice || (v.HasLink && v.HasImage) {
			out = append(out, i)
			if len(out) >= MaxSignals {
				break
			}
		}
	}
	return out
}
