// Package pipeline wires the extraction stages into one service: render,
// detect the repeating container, locate fields, extract entities, filter
// against the instruction, persist the run.
package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/glane/browser"
	"github.com/hazyhaar/glane/criteria"
	"github.com/hazyhaar/glane/detect"
	"github.com/hazyhaar/glane/extract"
	"github.com/hazyhaar/glane/filter"
	"github.com/hazyhaar/glane/idgen"
	"github.com/hazyhaar/glane/observability"
	"github.com/hazyhaar/glane/oracle"
	"github.com/hazyhaar/glane/pipeline/internal/store"
	"github.com/hazyhaar/glane/snapshot"
)

// Config configures the pipeline service.
type Config struct {
	Detect  detect.Config
	Extract extract.Config
	Filter  filter.Config

	// Browser renders live pages for the URL-based operations. Nil is
	// valid: snapshot-based operations still work.
	Browser *browser.Manager

	// Oracle is shared by detection and semantic filtering. Nil means
	// statistics-only behavior everywhere.
	Oracle oracle.Oracle

	// DB stores run history when set.
	DB *sql.DB

	// Events and Metrics are optional observability sinks.
	Events  *observability.EventLogger
	Metrics *observability.MetricsManager

	NewRunID idgen.Generator
	Logger   *slog.Logger
}

func (c *Config) defaults() {
	if c.NewRunID == nil {
		c.NewRunID = idgen.Prefixed("run_", idgen.Default)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Service is one pipeline installation. Individual page analyses are
// independent; the service holds only configuration and shared sinks, so
// concurrent calls need no locking.
type Service struct {
	cfg       Config
	detector  *detect.Detector
	extractor *extract.Extractor
	filter    *filter.Filter
	runs      *store.Store
	logger    *slog.Logger
}

// New builds the service and applies the run-history schema when a
// database is configured.
func New(cfg Config) (*Service, error) {
	cfg.defaults()

	fcfg := cfg.Filter
	if fcfg.Oracle == nil {
		fcfg.Oracle = cfg.Oracle
	}
	if fcfg.Logger == nil {
		fcfg.Logger = cfg.Logger
	}
	dcfg := cfg.Detect
	if dcfg.Logger == nil {
		dcfg.Logger = cfg.Logger
	}
	ecfg := cfg.Extract
	if ecfg.Logger == nil {
		ecfg.Logger = cfg.Logger
	}

	svc := &Service{
		cfg:       cfg,
		detector:  detect.New(dcfg, cfg.Oracle),
		extractor: extract.New(ecfg),
		filter:    filter.New(fcfg),
		logger:    cfg.Logger,
	}
	if cfg.DB != nil {
		if err := store.Init(cfg.DB); err != nil {
			return nil, fmt.Errorf("pipeline: run schema: %w", err)
		}
		svc.runs = store.NewStore(cfg.DB)
	}
	return svc, nil
}

// Detect finds the repeating item container on a snapshot.
func (s *Service) Detect(ctx context.Context, snap snapshot.Snapshot, instruction string) (detect.Detection, error) {
	started := time.Now()
	det, err := s.detector.Detect(ctx, snap, instruction, detect.NewPageCache())
	s.metric(observability.MetricDetectDurationMs, float64(time.Since(started).Milliseconds()), "milliseconds")
	return det, err
}

// Extract locates fields on the container's first instance and applies
// them to every match. Completeness below 0.5 is a warning, not an error:
// extraction proceeds and the caller sees the score.
func (s *Service) Extract(ctx context.Context, snap snapshot.Snapshot, selector string, maxItems int) ([]extract.Entity, float64, error) {
	if selector == "" {
		return nil, 0, fmt.Errorf("%w: empty selector", ErrInvalidInput)
	}
	views, err := snap.Elements(ctx)
	if err != nil {
		return nil, 0, err
	}
	instances := snapshot.MatchIndices(views, selector)
	if len(instances) == 0 {
		return nil, 0, nil
	}

	locators, completeness := extract.Locate(views, instances[0])
	if completeness < 0.5 {
		s.logger.Warn("field location incomplete",
			"selector", selector, "completeness", completeness)
	}

	ex := s.extractor
	if maxItems > 0 {
		ecfg := s.cfg.Extract
		ecfg.MaxItems = maxItems
		if ecfg.Logger == nil {
			ecfg.Logger = s.logger
		}
		ex = extract.New(ecfg)
	}
	started := time.Now()
	ents, err := ex.Extract(ctx, snap, selector, locators)
	s.metric(observability.MetricExtractDurationMs, float64(time.Since(started).Milliseconds()), "milliseconds")
	s.metric(observability.MetricEntitiesExtracted, float64(len(ents)), "count")
	return ents, completeness, err
}

// Filter runs entities through the criteria stages. Without page context
// the amounts are compared in the units the instruction used.
func (s *Service) Filter(ctx context.Context, entities []extract.Entity, instruction string) (filter.Report, error) {
	set := criteria.Parse(instruction)
	return s.filter.Apply(ctx, entities, set), nil
}

// filterForPage normalizes price criteria to the page's currency before
// filtering.
func (s *Service) filterForPage(ctx context.Context, views []snapshot.ElementView, pageURL string, entities []extract.Entity, instruction string) (filter.Report, error) {
	set := criteria.Parse(instruction)
	cur := criteria.DetectPageCurrency(views, pageURL)
	if err := criteria.Normalize(&set, cur); err != nil {
		return filter.Report{}, fmt.Errorf("pipeline: normalize criteria: %w", err)
	}
	return s.filter.Apply(ctx, entities, set), nil
}

// RunResult is the end-to-end outcome for one page.
type RunResult struct {
	RunID        string           `json:"run_id,omitempty"`
	URL          string           `json:"url"`
	Detection    detect.Detection `json:"detection"`
	Completeness float64          `json:"completeness"`
	Entities     []extract.Entity `json:"entities,omitempty"`
	Report       filter.Report    `json:"report"`
}

// Run renders the URL in the browser and runs the full pipeline on it.
func (s *Service) Run(ctx context.Context, pageURL, instruction string) (*RunResult, error) {
	snap, closeSnap, err := s.snapshotFor(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer closeSnap()
	return s.RunSnapshot(ctx, snap, instruction)
}

// RunSnapshot runs detect, extract and filter over an existing snapshot
// and persists the run. Detection misses are degraded results, not
// errors: the run row records the reason.
func (s *Service) RunSnapshot(ctx context.Context, snap snapshot.Snapshot, instruction string) (*RunResult, error) {
	started := time.Now()
	res := &RunResult{URL: snap.URL()}

	det, err := s.Detect(ctx, snap, instruction)
	if err != nil {
		return nil, err
	}
	res.Detection = det

	if det.Found() {
		ents, completeness, err := s.Extract(ctx, snap, det.Selector, 0)
		if err != nil {
			return nil, err
		}
		res.Entities = ents
		res.Completeness = completeness

		views, err := snap.Elements(ctx)
		if err != nil {
			return nil, err
		}
		report, err := s.filterForPage(ctx, views, snap.URL(), ents, instruction)
		if err != nil {
			return nil, err
		}
		res.Report = report
		s.metric(observability.MetricEntitiesSurvived, float64(len(report.Survivors)), "count")
	}

	s.metric(observability.MetricRunDurationMs, float64(time.Since(started).Milliseconds()), "milliseconds")
	s.persist(ctx, res, instruction)
	return res, nil
}

// snapshotFor opens a live snapshot of the URL.
func (s *Service) snapshotFor(ctx context.Context, pageURL string) (snapshot.Snapshot, func(), error) {
	if pageURL == "" {
		return nil, nil, fmt.Errorf("%w: empty url", ErrInvalidInput)
	}
	if s.cfg.Browser == nil {
		return nil, nil, ErrNoBrowser
	}
	tab, err := browser.OpenTab(ctx, s.cfg.Browser, pageURL)
	if err != nil {
		return nil, nil, err
	}
	return browser.NewLive(tab), func() { tab.Close() }, nil
}

// persist writes the run row and the business event. Failures are logged,
// never raised: history is observability, not pipeline state.
func (s *Service) persist(ctx context.Context, res *RunResult, instruction string) {
	res.RunID = s.cfg.NewRunID()

	if s.runs != nil {
		stages, err := json.Marshal(res.Report.Stages)
		if err != nil {
			stages = []byte("[]")
		}
		run := &store.Run{
			ID:            res.RunID,
			URL:           res.URL,
			Instruction:   instruction,
			Selector:      res.Detection.Selector,
			MatchCount:    res.Detection.MatchCount,
			Confidence:    res.Detection.Confidence,
			Method:        res.Detection.Method,
			Reason:        res.Detection.Reason,
			EntityCount:   len(res.Entities),
			SurvivorCount: len(res.Report.Survivors),
			StagesJSON:    string(stages),
		}
		if err := s.runs.InsertRun(ctx, run); err != nil {
			s.logger.Error("run history insert failed", "run_id", res.RunID, "error", err)
		}
	}

	if s.cfg.Events != nil {
		s.cfg.Events.LogEvent(ctx, observability.BusinessEvent{
			EventType:   "run_completed",
			ServiceName: "glane",
			EntityType:  "run",
			EntityID:    res.RunID,
			Action:      "run",
			Success:     res.Detection.Found(),
		})
	}
}

// Run mirrors one persisted run row for API consumers.
type Run struct {
	ID            string  `json:"id"`
	URL           string  `json:"url"`
	Instruction   string  `json:"instruction,omitempty"`
	Selector      string  `json:"selector,omitempty"`
	MatchCount    int     `json:"match_count"`
	Confidence    float64 `json:"confidence"`
	Method        string  `json:"method"`
	Reason        string  `json:"reason,omitempty"`
	EntityCount   int     `json:"entity_count"`
	SurvivorCount int     `json:"survivor_count"`
	StagesJSON    string  `json:"stages_json,omitempty"`
	CreatedAt     int64   `json:"created_at"`
}

// Runs lists recent run history, newest first.
func (s *Service) Runs(ctx context.Context, limit int) ([]Run, error) {
	if s.runs == nil {
		return nil, nil
	}
	rows, err := s.runs.ListRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	runs := make([]Run, 0, len(rows))
	for _, r := range rows {
		runs = append(runs, Run{
			ID: r.ID, URL: r.URL, Instruction: r.Instruction,
			Selector: r.Selector, MatchCount: r.MatchCount,
			Confidence: r.Confidence, Method: r.Method, Reason: r.Reason,
			EntityCount: r.EntityCount, SurvivorCount: r.SurvivorCount,
			StagesJSON: r.StagesJSON, CreatedAt: r.CreatedAt,
		})
	}
	return runs, nil
}

func (s *Service) metric(name string, value float64, unit string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordSimple(name, value, unit)
	}
}
