// Package extract turns a detected container selector into structured
// records: it locates the name/price/url/image slots on one representative
// instance, then applies those locators to every matching container.
package extract

// Field names a locatable slot inside an item container.
type Field string

const (
	FieldName  Field = "name"
	FieldPrice Field = "price"
	FieldURL   Field = "url"
	FieldImage Field = "image"
)

// Strategy says how a located element's value is read.
type Strategy string

const (
	StrategyOwnText     Strategy = "ownText"
	StrategyTextPattern Strategy = "textPattern"
	StrategyHref        Strategy = "hrefAttribute"
	StrategySrc         Strategy = "srcAttribute"
)

// FieldLocator binds a field to a container-relative selector and a read
// strategy. Built once from a representative instance, reused for every
// matched container.
type FieldLocator struct {
	Field    Field    `json:"field"`
	Selector string   `json:"selector"` // relative "tag.class" or "tag"
	Strategy Strategy `json:"strategy"`
}

// Entity is one extracted record. Numeric fields are pointers: a missing
// price and a zero price are different facts, and the filter needs to
// tell them apart.
type Entity struct {
	Name       string   `json:"name,omitempty"`
	Price      *float64 `json:"price,omitempty"`
	URL        string   `json:"url,omitempty"`
	Image      string   `json:"image,omitempty"`
	WeightG    *float64 `json:"weight_g,omitempty"`  // grams
	VolumeML   *float64 `json:"volume_ml,omitempty"` // milliliters
	Attributes []string `json:"attributes,omitempty"`
	Text       string   `json:"-"` // container text, for enrichment and semantic matching
}

// Keep reports whether the record carries enough to be worth returning:
// a name or a parsed price.
func (e *Entity) Keep() bool {
	return e.Name != "" || e.Price != nil
}
