// Package tracking persists volume and mute changes to a SQLite history
// database so past activity can be queried from the command line.
package tracking

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/qtilities/voltrayke/internal/config"
)

// Event kinds stored in the history table.
const (
	KindVolume = "volume"
	KindMute   = "mute"
)

// NewDatabase opens a SQLite database at the specified path and applies
// the schema.
func NewDatabase(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA user_version = 1",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return db, nil
}

// ensureSchema creates the history schema if it doesn't exist.
func ensureSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS volume_events (
    id        INTEGER PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    engine    TEXT    NOT NULL,
    sink      TEXT    NOT NULL,
    kind      TEXT    NOT NULL CHECK (kind IN ('volume', 'mute')),
    value     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_timestamp ON volume_events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_events_sink ON volume_events(sink);
CREATE INDEX IF NOT EXISTS idx_events_kind ON volume_events(kind);
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// DefaultDatabasePath returns the XDG cache location for the history
// database.
func DefaultDatabasePath() string {
	return config.CachePath("history.db")
}
