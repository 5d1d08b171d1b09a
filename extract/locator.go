package extract

import (
	"strings"

	"github.com/hazyhaar/glane/price"
	"github.com/hazyhaar/glane/snapshot"
)

// nameTags are preferred hosts for the item name, in no particular order;
// document position breaks ties.
var nameTags = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"strong": true, "b": true, "a": true,
}

// Completeness thresholds. name/price/url are the fields that make a
// record useful; image is a bonus and not counted.
const locatedFields = 3

// Locate inspects one representative container instance and derives up to
// four field locators. The returned completeness is foundFields/3 over
// name, price and url; callers should not bulk-extract below 0.5.
func Locate(views []snapshot.ElementView, container int) ([]FieldLocator, float64) {
	descendants := snapshot.Subtree(views, container)

	var locs []FieldLocator
	found := 0

	if loc, ok := locatePrice(views, descendants); ok {
		locs = append(locs, loc)
		found++
	}
	if loc, ok := locateName(views, descendants); ok {
		locs = append(locs, loc)
		found++
	}
	if loc, ok := locateURL(views, descendants); ok {
		locs = append(locs, loc)
		found++
	}
	if loc, ok := locateImage(views, descendants); ok {
		locs = append(locs, loc)
	}

	return locs, float64(found) / locatedFields
}

// locatePrice takes the first short own-text price in document order.
// Long price-bearing texts are skipped: they are usually sentences that
// merely mention an amount.
func locatePrice(views []snapshot.ElementView, descendants []int) (FieldLocator, bool) {
	for _, i := range descendants {
		v := &views[i]
		if v.OwnPrice && len(v.OwnText) < 50 {
			return FieldLocator{
				Field:    FieldPrice,
				Selector: snapshot.Descriptor(v),
				Strategy: StrategyTextPattern,
			}, true
		}
	}
	return FieldLocator{}, false
}

// locateName prefers heading/strong/anchor elements in the (10,200) text
// band; failing that, the longest qualifying own text wins.
func locateName(views []snapshot.ElementView, descendants []int) (FieldLocator, bool) {
	for _, i := range descendants {
		v := &views[i]
		if nameTags[v.Tag] && nameBand(v) {
			return FieldLocator{
				Field:    FieldName,
				Selector: snapshot.Descriptor(v),
				Strategy: StrategyOwnText,
			}, true
		}
	}

	best := -1
	for _, i := range descendants {
		v := &views[i]
		if nameBand(v) && (best == -1 || len(v.OwnText) > len(views[best].OwnText)) {
			best = i
		}
	}
	if best == -1 {
		return FieldLocator{}, false
	}
	return FieldLocator{
		Field:    FieldName,
		Selector: snapshot.Descriptor(&views[best]),
		Strategy: StrategyOwnText,
	}, true
}

func nameBand(v *snapshot.ElementView) bool {
	n := len(v.OwnText)
	return n > 10 && n < 200 && !price.Match(v.OwnText)
}

// locateURL takes the first real link: anchors to "#..." fragments and
// javascript: pseudo-URLs carry no destination.
func locateURL(views []snapshot.ElementView, descendants []int) (FieldLocator, bool) {
	for _, i := range descendants {
		v := &views[i]
		if v.Tag != "a" {
			continue
		}
		href := v.Attr("href")
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			continue
		}
		return FieldLocator{
			Field:    FieldURL,
			Selector: snapshot.Descriptor(v),
			Strategy: StrategyHref,
		}, true
	}
	return FieldLocator{}, false
}

func locateImage(views []snapshot.ElementView, descendants []int) (FieldLocator, bool) {
	for _, i := range descendants {
		v := &views[i]
		if v.Tag == "img" && v.Attr("src") != "" {
			return FieldLocator{
				Field:    FieldImage,
				Selector: snapshot.Descriptor(v),
				Strategy: StrategySrc,
			}, true
		}
	}
	return FieldLocator{}, false
}
