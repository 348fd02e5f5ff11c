package tracking

import (
	"database/sql"
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("NewDatabase failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDatabaseCreatesSchema(t *testing.T) {
	db := newTestDB(t)

	for _, table := range []string{"playback_sessions", "playback_events"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestNewDatabaseFileCreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "history.db")
	db, err := NewDatabase(dbPath)
	if err != nil {
		t.Fatalf("NewDatabase(%q) failed: %v", dbPath, err)
	}
	defer db.Close()

	if _, err := db.Exec(`INSERT INTO playback_sessions (session_id, uri, started_at) VALUES ('s', 'u', 0)`); err != nil {
		t.Errorf("insert into file database failed: %v", err)
	}
}

func TestForeignKeyCascade(t *testing.T) {
	db := newTestDB(t)

	result, err := db.Exec(`INSERT INTO playback_sessions (session_id, uri, started_at) VALUES ('s1', 'media://a', 100)`)
	if err != nil {
		t.Fatalf("insert session failed: %v", err)
	}
	row, _ := result.LastInsertId()

	if _, err := db.Exec(`INSERT INTO playback_events (session_row, timestamp, kind, position_ms) VALUES (?, 101, 'play', 0)`, row); err != nil {
		t.Fatalf("insert event failed: %v", err)
	}

	if _, err := db.Exec(`DELETE FROM playback_sessions WHERE id = ?`, row); err != nil {
		t.Fatalf("delete session failed: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM playback_events`).Scan(&count); err != nil {
		t.Fatalf("count events failed: %v", err)
	}
	if count != 0 {
		t.Errorf("event rows = %d, want 0 after cascade", count)
	}
}
