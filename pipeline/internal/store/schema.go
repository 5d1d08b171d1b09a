package store

import "database/sql"

// Schema is the run-history DDL.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    id             TEXT PRIMARY KEY,
    url            TEXT NOT NULL,
    instruction    TEXT NOT NULL DEFAULT '',
    selector       TEXT NOT NULL DEFAULT '',
    match_count    INTEGER NOT NULL DEFAULT 0,
    confidence     REAL NOT NULL DEFAULT 0,
    method         TEXT NOT NULL DEFAULT '',
    reason         TEXT NOT NULL DEFAULT '',
    entity_count   INTEGER NOT NULL DEFAULT 0,
    survivor_count INTEGER NOT NULL DEFAULT 0,
    stages_json    TEXT NOT NULL DEFAULT '[]',
    created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_time ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_url ON runs(url, created_at DESC);
`

// Init applies the schema.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
