package tracking

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

// NewDatabase opens the playback history database at dbPath, applying
// pragmas and the schema. Use ":memory:" for an ephemeral database.
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
		"PRAGMA foreign_keys = ON",
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

func ensureSchema(db *sql.DB) error {
	schema := `
-- One row per initialized playback session
CREATE TABLE IF NOT EXISTS playback_sessions (
    id          INTEGER PRIMARY KEY,
    session_id  TEXT    NOT NULL,
    uri         TEXT    NOT NULL,
    engine      TEXT,
    started_at  INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0
);

-- Individual playback events inside a session
CREATE TABLE IF NOT EXISTS playback_events (
    id          INTEGER PRIMARY KEY,
    session_row INTEGER NOT NULL REFERENCES playback_sessions(id) ON DELETE CASCADE,
    timestamp   INTEGER NOT NULL,
    kind        TEXT    NOT NULL,
    position_ms INTEGER NOT NULL,
    detail      TEXT
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_sessions_started ON playback_sessions(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_sessions_uri ON playback_sessions(uri);
CREATE INDEX IF NOT EXISTS idx_events_session ON playback_events(session_row);
CREATE INDEX IF NOT EXISTS idx_events_kind ON playback_events(kind);
CREATE INDEX IF NOT EXISTS idx_events_errors ON playback_events(timestamp) WHERE kind = 'error';
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// GetDatabasePath returns the cache-directory path for the playback
// history database.
func GetDatabasePath() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = "."
	}

	dbDir := filepath.Join(cacheDir, "playsync")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}

	return filepath.Join(dbDir, "history.db"), nil
}
