// Package criteria turns a free-text instruction into typed filter
// criteria and normalizes the money amounts in them to the page's
// currency.
package criteria

// Operator is a numeric comparison.
type Operator string

const (
	OpLT      Operator = "lt"
	OpGT      Operator = "gt"
	OpLTE     Operator = "lte"
	OpGTE     Operator = "gte"
	OpEQ      Operator = "eq"
	OpBetween Operator = "between"
)

// Field is a numeric filter domain.
type Field string

const (
	FieldPrice  Field = "price"
	FieldWeight Field = "weight" // canonical unit: grams
	FieldVolume Field = "volume" // canonical unit: milliliters
)

// LogicalOp combines all criteria of one instruction.
type LogicalOp string

const (
	OpAnd LogicalOp = "AND"
	OpOr  LogicalOp = "OR"
)

// Numeric is a comparison against one numeric entity field. For OpBetween
// the Min/Max pair is used instead of Value. The Original* fields keep the
// pre-conversion amount for the audit trail; they equal the live values
// until currency normalization touches the criterion.
type Numeric struct {
	Field Field    `json:"field"`
	Op    Operator `json:"op"`
	Value float64  `json:"value,omitempty"`
	Min   float64  `json:"min,omitempty"`
	Max   float64  `json:"max,omitempty"`
	Unit  string   `json:"unit"` // ISO currency code, "g" or "ml"; "" = unknown

	OriginalValue float64 `json:"original_value,omitempty"`
	OriginalMin   float64 `json:"original_min,omitempty"`
	OriginalMax   float64 `json:"original_max,omitempty"`
	OriginalUnit  string  `json:"original_unit,omitempty"`
	Converted     bool    `json:"converted,omitempty"`
}

// Semantic is a set of tags the entity must satisfy.
type Semantic struct {
	Tags []string `json:"tags"`
}

// Criterion is the tagged variant: exactly one of Numeric or Semantic is
// set.
type Criterion struct {
	Numeric  *Numeric  `json:"numeric,omitempty"`
	Semantic *Semantic `json:"semantic,omitempty"`
}

// Set is the parsed instruction.
type Set struct {
	Criteria  []Criterion `json:"criteria"`
	LogicalOp LogicalOp   `json:"logical_op"`
}

// Empty reports whether the instruction produced no criteria at all.
func (s *Set) Empty() bool { return len(s.Criteria) == 0 }

// SemanticTags returns the union of all semantic tags in the set.
func (s Set) SemanticTags() []string {
	var tags []string
	for _, c := range s.Criteria {
		if c.Semantic != nil {
			tags = append(tags, c.Semantic.Tags...)
		}
	}
	return tags
}

// Numerics returns all numeric criteria in the set.
func (s Set) Numerics() []*Numeric {
	var out []*Numeric
	for _, c := range s.Criteria {
		if c.Numeric != nil {
			out = append(out, c.Numeric)
		}
	}
	return out
}
