package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a run ID does not exist.
var ErrNotFound = errors.New("store: run not found")

// Run is one persisted pipeline run.
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
	CreatedAt     int64   `json:"created_at"` // unix millis
}

// InsertRun records a completed run.
func (s *Store) InsertRun(ctx context.Context, r *Run) error {
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().UnixMilli()
	}
	if r.StagesJSON == "" {
		r.StagesJSON = "[]"
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO runs (id, url, instruction, selector, match_count, confidence,
		method, reason, entity_count, survivor_count, stages_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.URL, r.Instruction, r.Selector, r.MatchCount, r.Confidence,
		r.Method, r.Reason, r.EntityCount, r.SurvivorCount, r.StagesJSON, r.CreatedAt,
	)
	return err
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, url, instruction, selector, match_count, confidence,
		method, reason, entity_count, survivor_count, stages_json, created_at
		FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, url, instruction, selector, match_count, confidence,
		method, reason, entity_count, survivor_count, stages_json, created_at
		FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.URL, &r.Instruction, &r.Selector, &r.MatchCount,
		&r.Confidence, &r.Method, &r.Reason, &r.EntityCount, &r.SurvivorCount,
		&r.StagesJSON, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
