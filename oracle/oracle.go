// Package oracle is the semantic judgment client: a language model asked to
// confirm container candidates and to match extracted items against
// free-text tags.
//
// The oracle is strictly optional. Every caller must treat a timeout, a
// transport error or a malformed reply the same as "oracle absent" and fall
// back to its statistical result. Nothing in this package returns an error
// the pipeline is allowed to die on.
package oracle

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable is returned when the oracle cannot be reached or replies
// with something unusable. Callers fail open on it.
var ErrUnavailable = errors.New("oracle: unavailable")

// Features are the structural statistics attached to a candidate so the
// model judges more than raw text.
type Features struct {
	MatchCount int  `json:"match_count"`
	Depth      int  `json:"depth"`
	HasPrice   bool `json:"has_price"`
	HasLink    bool `json:"has_link"`
	HasImage   bool `json:"has_image"`
}

// Candidate is one container hypothesis submitted for judgment.
type Candidate struct {
	Selector   string   `json:"selector"`
	SampleText string   `json:"sample_text"`
	Features   Features `json:"features"`
}

// Verdict is the model's judgment on one candidate.
type Verdict struct {
	Selector   string  `json:"selector"`
	IsValid    bool    `json:"is_valid"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// Item is an extracted entity reduced to what semantic matching needs.
type Item struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Oracle is the semantic judgment service.
type Oracle interface {
	// JudgeContainers asks whether each candidate is a repeating item
	// container for the given instruction. Verdicts come back in
	// candidate order.
	JudgeContainers(ctx context.Context, candidates []Candidate, instruction string) ([]Verdict, error)

	// MatchItems asks, per item, whether it satisfies every semantic tag.
	// The result slice is index-aligned with items.
	MatchItems(ctx context.Context, items []Item, tags []string) ([]bool, error)
}

// New creates an Oracle for the named provider. Supported: "claude"
// (alias "anthropic") and "openai" (alias "gpt"). An empty name yields
// (nil, nil): the pipeline then runs statistics-only.
func New(name, model string) (Oracle, error) {
	switch name {
	case "":
		return nil, nil
	case "claude", "anthropic":
		return newClaude(model)
	case "openai", "gpt":
		return newOpenAI(model)
	default:
		return nil, fmt.Errorf("oracle: unknown provider %q (supported: claude, openai)", name)
	}
}
