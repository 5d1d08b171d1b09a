// Package filter runs extracted entities through the staged criteria
// pipeline: text enrichment, numeric comparison, semantic matching. Every
// stage appends a record to the report so a caller can see where each
// entity was lost.
package filter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/glane/criteria"
	"github.com/hazyhaar/glane/extract"
	"github.com/hazyhaar/glane/oracle"
)

const (
	StageEnrichment = "enrichment"
	StageNumeric    = "numeric_filtering"
	StageSemantic   = "semantic_filtering"
)

const defaultOracleTimeout = 20 * time.Second

// Stage is the audit record of one pipeline stage. It is never mutated
// after the stage completes.
type Stage struct {
	Name       string   `json:"name"`
	Input      int      `json:"input"`
	Output     int      `json:"output"`
	Rejections []string `json:"rejections,omitempty"`
}

// Report is the filter outcome: the surviving entities plus the ordered
// stage records.
type Report struct {
	Survivors []extract.Entity `json:"survivors"`
	Stages    []Stage          `json:"stages"`
}

type Config struct {
	// Oracle validates semantic criteria when set. The filter falls back
	// to attribute matching when it is nil or unreachable.
	Oracle oracle.Oracle

	OracleTimeout time.Duration
	Logger        *slog.Logger
}

func (c *Config) defaults() {
	if c.OracleTimeout <= 0 {
		c.OracleTimeout = defaultOracleTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type Filter struct {
	cfg Config
}

func New(cfg Config) *Filter {
	cfg.defaults()
	return &Filter{cfg: cfg}
}

// Apply runs all stages over the entities. The criteria set should
// already be currency-normalized for the page the entities came from.
//
// With an OR combinator and semantic criteria present, the numeric stage
// cannot make final drop decisions on its own, so it passes everything
// through and the semantic stage settles each entity against either leg.
func (f *Filter) Apply(ctx context.Context, entities []extract.Entity, set criteria.Set) Report {
	var report Report

	ents := enrich(entities)
	report.Stages = append(report.Stages, Stage{
		Name: StageEnrichment, Input: len(entities), Output: len(ents),
	})

	nums := set.Numerics()
	tags := set.SemanticTags()
	deferToSemantic := set.LogicalOp == criteria.OpOr && len(tags) > 0

	numericOK := make([]bool, len(ents))
	numericWhy := make([]string, len(ents))
	for i := range ents {
		numericOK[i], numericWhy[i] = passesNumeric(&ents[i], nums, set.LogicalOp)
	}

	numStage := Stage{Name: StageNumeric, Input: len(ents)}
	var kept []extract.Entity
	var keptOK []bool
	if deferToSemantic {
		kept, keptOK = ents, numericOK
	} else {
		for i := range ents {
			if numericOK[i] {
				kept = append(kept, ents[i])
				keptOK = append(keptOK, true)
			} else {
				numStage.Rejections = append(numStage.Rejections,
					fmt.Sprintf("%s: %s", label(&ents[i], i), numericWhy[i]))
			}
		}
	}
	numStage.Output = len(kept)
	report.Stages = append(report.Stages, numStage)

	semStage := Stage{Name: StageSemantic, Input: len(kept)}
	if len(tags) == 0 {
		report.Survivors = kept
		semStage.Output = len(kept)
		report.Stages = append(report.Stages, semStage)
		return report
	}

	semOK := f.matchSemantic(ctx, kept, tags)
	for i := range kept {
		ok := semOK[i]
		if deferToSemantic {
			ok = ok || keptOK[i]
		}
		if ok {
			report.Survivors = append(report.Survivors, kept[i])
			continue
		}
		why := fmt.Sprintf("does not match tags %v", tags)
		if deferToSemantic {
			why = fmt.Sprintf("fails numeric criteria and does not match tags %v", tags)
		}
		semStage.Rejections = append(semStage.Rejections,
			fmt.Sprintf("%s: %s", label(&kept[i], i), why))
	}
	semStage.Output = len(report.Survivors)
	report.Stages = append(report.Stages, semStage)
	return report
}

// matchSemantic decides per entity whether it satisfies every tag,
// preferring the oracle and falling back to a strict subset check against
// the attributes the enrichment stage found.
func (f *Filter) matchSemantic(ctx context.Context, ents []extract.Entity, tags []string) []bool {
	if f.cfg.Oracle != nil {
		items := make([]oracle.Item, len(ents))
		for i := range ents {
			items[i] = oracle.Item{Name: ents[i].Name, Text: ents[i].Text}
		}
		octx, cancel := context.WithTimeout(ctx, f.cfg.OracleTimeout)
		defer cancel()
		ok, err := f.cfg.Oracle.MatchItems(octx, items, tags)
		if err == nil && len(ok) == len(ents) {
			return ok
		}
		f.cfg.Logger.Warn("semantic oracle unavailable, using attribute match", "error", err)
	}

	ok := make([]bool, len(ents))
	for i := range ents {
		ok[i] = hasAllTags(ents[i].Attributes, tags)
	}
	return ok
}

func passesNumeric(e *extract.Entity, nums []*criteria.Numeric, op criteria.LogicalOp) (bool, string) {
	if len(nums) == 0 {
		return true, ""
	}
	var firstWhy string
	for _, n := range nums {
		ok, why := evalNumeric(e, n)
		if op == criteria.OpOr {
			if ok {
				return true, ""
			}
			if firstWhy == "" {
				firstWhy = why
			}
		} else if !ok {
			return false, why
		}
	}
	if op == criteria.OpOr {
		return false, firstWhy
	}
	return true, ""
}

func evalNumeric(e *extract.Entity, n *criteria.Numeric) (bool, string) {
	var v *float64
	switch n.Field {
	case criteria.FieldPrice:
		v = e.Price
	case criteria.FieldWeight:
		v = e.WeightG
	case criteria.FieldVolume:
		v = e.VolumeML
	}
	if v == nil {
		return false, fmt.Sprintf("no %s extracted", n.Field)
	}
	switch n.Op {
	case criteria.OpLT:
		if *v < n.Value {
			return true, ""
		}
	case criteria.OpLTE:
		if *v <= n.Value {
			return true, ""
		}
	case criteria.OpGT:
		if *v > n.Value {
			return true, ""
		}
	case criteria.OpGTE:
		if *v >= n.Value {
			return true, ""
		}
	case criteria.OpEQ:
		if diff := *v - n.Value; diff < 0.005 && diff > -0.005 {
			return true, ""
		}
	case criteria.OpBetween:
		if *v >= n.Min && *v <= n.Max {
			return true, ""
		}
		return false, fmt.Sprintf("%s %.2f %s outside %.2f-%.2f", n.Field, *v, n.Unit, n.Min, n.Max)
	}
	return false, fmt.Sprintf("%s %.2f %s fails %s %.2f", n.Field, *v, n.Unit, n.Op, n.Value)
}

func hasAllTags(attrs, tags []string) bool {
	for _, tag := range tags {
		found := false
		for _, a := range attrs {
			if a == tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func label(e *extract.Entity, i int) string {
	if e.Name != "" {
		return e.Name
	}
	return fmt.Sprintf("item %d", i+1)
}
