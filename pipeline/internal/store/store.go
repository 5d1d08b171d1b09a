// Package store persists completed pipeline runs. One row per run; the
// stage reports travel as JSON so the audit trail survives verbatim.
package store

import "database/sql"

// Store wraps the run-history database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
// Callers open the database via dbopen so the WAL pragmas apply.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}
