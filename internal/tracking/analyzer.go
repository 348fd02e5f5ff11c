package tracking

import (
	"database/sql"
	"fmt"
)

// MediaStats aggregates playback history for one URI.
type MediaStats struct {
	URI        string `json:"uri"`
	Sessions   int    `json:"sessions"`
	Plays      int    `json:"plays"`
	Completes  int    `json:"completes"`
	Errors     int    `json:"errors"`
	LastPlayed int64  `json:"last_played"`
}

// GetMostPlayed returns per-URI aggregates ordered by play count.
func GetMostPlayed(db *sql.DB, filter QueryFilter) ([]MediaStats, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	query := `
		SELECT
			ps.uri,
			COUNT(DISTINCT ps.id) as sessions,
			SUM(CASE WHEN pe.kind = 'play' THEN 1 ELSE 0 END) as plays,
			SUM(CASE WHEN pe.kind = 'completed' THEN 1 ELSE 0 END) as completes,
			SUM(CASE WHEN pe.kind = 'error' THEN 1 ELSE 0 END) as errors,
			MAX(pe.timestamp) as last_played
		FROM playback_events pe
		JOIN playback_sessions ps ON pe.session_row = ps.id`

	whereClause, args := filter.BuildWhereClause()
	if whereClause != "" {
		query += " WHERE " + whereClause
	}
	query += `
		GROUP BY ps.uri
		ORDER BY plays DESC`
	query += filter.LimitClause()

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query most played: %w", err)
	}
	defer rows.Close()

	var results []MediaStats
	for rows.Next() {
		var stats MediaStats
		var lastPlayed sql.NullInt64
		if err := rows.Scan(&stats.URI, &stats.Sessions, &stats.Plays, &stats.Completes, &stats.Errors, &lastPlayed); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		if lastPlayed.Valid {
			stats.LastPlayed = lastPlayed.Int64
		}
		results = append(results, stats)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stats rows: %w", err)
	}

	return results, nil
}

// ErrorRecord is one recorded playback failure.
type ErrorRecord struct {
	URI       string `json:"uri"`
	SessionID string `json:"session_id"`
	Timestamp int64  `json:"timestamp"`
	Detail    string `json:"detail"`
}

// GetErrors returns recorded playback errors, newest first.
func GetErrors(db *sql.DB, filter QueryFilter) ([]ErrorRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	query := `
		SELECT ps.uri, ps.session_id, pe.timestamp, COALESCE(pe.detail, '')
		FROM playback_events pe
		JOIN playback_sessions ps ON pe.session_row = ps.id
		WHERE pe.kind = 'error'`

	whereClause, args := filter.BuildWhereClause()
	if whereClause != "" {
		query += " AND " + whereClause
	}
	query += " ORDER BY pe.timestamp DESC"
	query += filter.LimitClause()

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query errors: %w", err)
	}
	defer rows.Close()

	var results []ErrorRecord
	for rows.Next() {
		var record ErrorRecord
		if err := rows.Scan(&record.URI, &record.SessionID, &record.Timestamp, &record.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan error row: %w", err)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating error rows: %w", err)
	}

	return results, nil
}

// HistorySummary is the top-level aggregate over the whole database.
type HistorySummary struct {
	Sessions    int `json:"sessions"`
	UniqueMedia int `json:"unique_media"`
	Plays       int `json:"plays"`
	Completes   int `json:"completes"`
	Errors      int `json:"errors"`
	Seeks       int `json:"seeks"`
}

// GetSummary returns aggregate counts over the recorded history.
func GetSummary(db *sql.DB, filter QueryFilter) (*HistorySummary, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	query := `
		SELECT
			COUNT(DISTINCT ps.id) as sessions,
			COUNT(DISTINCT ps.uri) as unique_media,
			SUM(CASE WHEN pe.kind = 'play' THEN 1 ELSE 0 END) as plays,
			SUM(CASE WHEN pe.kind = 'completed' THEN 1 ELSE 0 END) as completes,
			SUM(CASE WHEN pe.kind = 'error' THEN 1 ELSE 0 END) as errors,
			SUM(CASE WHEN pe.kind = 'seek' THEN 1 ELSE 0 END) as seeks
		FROM playback_events pe
		JOIN playback_sessions ps ON pe.session_row = ps.id`

	whereClause, args := filter.BuildWhereClause()
	if whereClause != "" {
		query += " WHERE " + whereClause
	}

	var summary HistorySummary
	var plays, completes, errCount, seeks sql.NullInt64
	err := db.QueryRow(query, args...).Scan(
		&summary.Sessions, &summary.UniqueMedia, &plays, &completes, &errCount, &seeks)
	if err != nil {
		return nil, fmt.Errorf("failed to query summary: %w", err)
	}
	summary.Plays = int(plays.Int64)
	summary.Completes = int(completes.Int64)
	summary.Errors = int(errCount.Int64)
	summary.Seeks = int(seeks.Int64)

	return &summary, nil
}
