package extract

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/hazyhaar/glane/price"
	"github.com/hazyhaar/glane/snapshot"
)

// MaxItems bounds one extraction batch. Listing pages are untrusted and
// can repeat a container thousands of times.
const MaxItems = 50

// Config configures an Extractor.
type Config struct {
	// MaxItems caps extracted records per run. Values above the package
	// bound are clamped. Default: 50.
	MaxItems int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxItems <= 0 || c.MaxItems > MaxItems {
		c.MaxItems = MaxItems
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Extractor applies field locators to every container instance.
type Extractor struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Extractor.
func New(cfg Config) *Extractor {
	cfg.defaults()
	return &Extractor{cfg: cfg, logger: cfg.Logger}
}

// Extract pulls one Entity per container matching the selector. A field
// that fails for one instance is simply omitted there; only records with
// a name or a parsed price are returned.
func (e *Extractor) Extract(ctx context.Context, snap snapshot.Snapshot, selector string, locators []FieldLocator) ([]Entity, error) {
	views, err := snap.Elements(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract: elements: %w", err)
	}

	base, _ := url.Parse(snap.URL())

	instances := snapshot.MatchIndices(views, selector)
	if len(instances) > e.cfg.MaxItems {
		instances = instances[:e.cfg.MaxItems]
	}

	entities := make([]Entity, 0, len(instances))
	dropped := 0
	for _, inst := range instances {
		ent := e.extractOne(views, inst, locators, base)
		if ent.Keep() {
			entities = append(entities, ent)
		} else {
			dropped++
		}
	}

	e.logger.Debug("extract: batch done", "url", snap.URL(), "selector", selector,
		"instances", len(instances), "kept", len(entities), "dropped", dropped)
	return entities, nil
}

func (e *Extractor) extractOne(views []snapshot.ElementView, container int, locators []FieldLocator, base *url.URL) Entity {
	ent := Entity{Text: views[container].Text}
	descendants := snapshot.Subtree(views, container)

	for _, loc := range locators {
		target := findRelative(views, descendants, loc.Selector)

		var raw string
		if target >= 0 {
			raw = read(&views[target], loc.Strategy)
		}
		if raw == "" && loc.Field == FieldPrice {
			// Selector miss: re-search the container's full text with the
			// locator's pattern before giving up on this instance.
			raw = price.Find(views[container].Text)
		}
		if raw == "" {
			continue
		}

		switch loc.Field {
		case FieldName:
			ent.Name = strings.TrimSpace(raw)
		case FieldPrice:
			if v, ok := price.Parse(raw); ok {
				ent.Price = &v
			}
		case FieldURL:
			ent.URL = absolutize(base, raw)
		case FieldImage:
			ent.Image = absolutize(base, raw)
		}
	}
	return ent
}

// findRelative returns the first descendant matching a relative selector,
// or -1.
func findRelative(views []snapshot.ElementView, descendants []int, selector string) int {
	for _, i := range descendants {
		if snapshot.MatchesSelector(&views[i], selector) {
			return i
		}
	}
	return -1
}

func read(v *snapshot.ElementView, strategy Strategy) string {
	switch strategy {
	case StrategyOwnText:
		return v.OwnText
	case StrategyTextPattern:
		return price.Find(v.OwnText)
	case StrategyHref:
		return v.Attr("href")
	case StrategySrc:
		return v.Attr("src")
	}
	return ""
}

func absolutize(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
