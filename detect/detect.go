package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/hazyhaar/glane/oracle"
	"github.com/hazyhaar/glane/snapshot"
)

// ErrSnapshot is the only fatal condition: the accessor itself failed.
// Every statistical dead end is a Detection with a Reason instead.
var ErrSnapshot = errors.New("detect: snapshot unavailable")

// Config configures a Detector.
type Config struct {
	// OracleTimeout bounds one judgment call. On expiry the statistical
	// result stands. Default: 20s.
	OracleTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.OracleTimeout <= 0 {
		c.OracleTimeout = 20 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Detector runs the container detection pipeline over one snapshot.
// Detectors are stateless between calls; all per-page memory lives in the
// PageCache the caller passes in.
type Detector struct {
	cfg     Config
	oracle  oracle.Oracle // nil = statistics only
	sampler *oracle.Sampler
	logger  *slog.Logger
}

// New creates a Detector. A nil oracle is valid and means every detection
// is purely statistical.
func New(cfg Config, orc oracle.Oracle) *Detector {
	cfg.defaults()
	return &Detector{
		cfg:     cfg,
		oracle:  orc,
		sampler: oracle.NewSampler(),
		logger:  cfg.Logger,
	}
}

// Detect finds the best repeating item container on the page.
func (d *Detector) Detect(ctx context.Context, snap snapshot.Snapshot, instruction string, cache *PageCache) (Detection, error) {
	if cache == nil {
		cache = NewPageCache()
	}

	views, err := snap.Elements(ctx)
	if err != nil {
		return Detection{}, fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	stats := cache.StatsFor(views)

	signals := Signals(views)
	if len(signals) < MinRepetition {
		d.logger.Info("detect: no signal", "url", snap.URL(), "signals", len(signals))
		return Detection{Method: MethodStatistical, Reason: ReasonNoSignal}, nil
	}

	cands, err := BuildCandidates(ctx, snap, views, signals, cache)
	if err != nil {
		return Detection{}, err
	}
	if len(cands) == 0 {
		d.logger.Info("detect: no cluster", "url", snap.URL(), "signals", len(signals))
		return Detection{Method: MethodStatistical, Reason: ReasonNoCluster}, nil
	}

	ranked := Rank(cands, stats)
	best, ok := Best(ranked)
	if !ok {
		d.logger.Info("detect: low confidence", "url", snap.URL(),
			"candidates", len(ranked), "best_score", ranked[0].Score)
		return Detection{Method: MethodStatistical, Reason: ReasonLowConfidence}, nil
	}

	if d.oracle == nil {
		return statistical(best), nil
	}
	return d.consult(ctx, snap, ranked, best, instruction, cache), nil
}

func statistical(best Candidate) Detection {
	return Detection{
		Selector:   best.Selector,
		MatchCount: best.MatchCount,
		Confidence: math.Min(best.Score/100, 1),
		Method:     MethodStatistical,
	}
}

// consult submits the top candidates for semantic judgment. An oracle
// failure of any kind falls open to the statistical winner; a unanimous
// rejection is honored over any statistical score.
func (d *Detector) consult(ctx context.Context, snap snapshot.Snapshot, ranked []Candidate, best Candidate, instruction string, cache *PageCache) Detection {
	top := make([]Candidate, 0, MaxOracleCandidates)
	for _, c := range ranked {
		if c.Rejected != "" || c.Score < ScoreFloor {
			break
		}
		top = append(top, c)
		if len(top) == MaxOracleCandidates {
			break
		}
	}

	octx, cancel := context.WithTimeout(ctx, d.cfg.OracleTimeout)
	defer cancel()

	subjects := make([]oracle.Candidate, len(top))
	for i, c := range top {
		sample := c.SampleText
		if outer, err := snap.OuterHTML(octx, c.Selector); err == nil && outer != "" {
			if md := d.sampler.Sample(outer); md != "" {
				sample = md
			}
		}
		subjects[i] = oracle.Candidate{
			Selector:   c.Selector,
			SampleText: sample,
			Features: oracle.Features{
				MatchCount: c.MatchCount,
				Depth:      c.Depth,
				HasPrice:   c.Signature.HasPrice,
				HasLink:    c.Signature.HasLink,
				HasImage:   c.Signature.HasImage,
			},
		}
	}

	verdicts, err := d.oracle.JudgeContainers(octx, subjects, instruction)
	if err != nil || len(verdicts) != len(top) {
		d.logger.Warn("detect: oracle unavailable, using statistical result",
			"url", snap.URL(), "error", err)
		return statistical(best)
	}

	valid := make(map[string]bool, len(verdicts))
	anyValid := false
	for _, v := range verdicts {
		cache.RecordVerdict(v.Selector, v.IsValid)
		valid[v.Selector] = v.IsValid
		if v.IsValid {
			anyValid = true
		}
	}

	if !anyValid {
		d.logger.Info("detect: oracle veto", "url", snap.URL(), "candidates", len(top))
		return Detection{Method: MethodWithOracle, Reason: ReasonOracleVeto}
	}

	for _, c := range top {
		if valid[c.Selector] {
			det := statistical(c)
			det.Method = MethodWithOracle
			return det
		}
	}
	// Unreachable: anyValid implies one of top is valid.
	return statistical(best)
}
