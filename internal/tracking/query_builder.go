package tracking

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// QueryFilter is the common query structure for history analysis.
type QueryFilter struct {
	// Time filters
	StartTime *time.Time // Start of time range (inclusive)
	EndTime   *time.Time // End of time range (exclusive)
	Days      int        // Convenience: last N days

	// Content filters
	URI       string // Filter by media URI
	Engine    string // Filter by engine kind
	SessionID string // Filter by specific session
	Kind      string // Filter by event kind

	// Output control
	Limit  int // Maximum results (default 20)
	Offset int // For pagination
}

// ApplyTimeFilter resolves the configured time options to Unix
// timestamps. Explicit start and end times win over the days shortcut.
func (q *QueryFilter) ApplyTimeFilter(now time.Time) (startUnix, endUnix int64) {
	endUnix = now.Unix()

	if q.StartTime != nil && q.EndTime != nil {
		return q.StartTime.Unix(), q.EndTime.Unix()
	}
	if q.StartTime != nil {
		return q.StartTime.Unix(), endUnix
	}
	if q.EndTime != nil {
		return 0, q.EndTime.Unix()
	}
	if q.Days > 0 {
		return now.AddDate(0, 0, -q.Days).Unix(), endUnix
	}

	return 0, endUnix
}

// BuildWhereClause constructs the WHERE fragment and arguments for a
// query joining playback_events (pe) to playback_sessions (ps).
func (q *QueryFilter) BuildWhereClause() (string, []interface{}) {
	var clauses []string
	var args []interface{}

	slog.Debug("building where clause",
		"uri", q.URI, "engine", q.Engine, "session_id", q.SessionID, "kind", q.Kind)

	if q.StartTime != nil || q.EndTime != nil || q.Days > 0 {
		startUnix, endUnix := q.ApplyTimeFilter(time.Now())
		if startUnix > 0 {
			clauses = append(clauses, "pe.timestamp >= ?")
			args = append(args, startUnix)
		}
		clauses = append(clauses, "pe.timestamp < ?")
		args = append(args, endUnix)
	}

	if q.URI != "" {
		clauses = append(clauses, "ps.uri = ?")
		args = append(args, q.URI)
	}
	if q.Engine != "" {
		clauses = append(clauses, "ps.engine = ?")
		args = append(args, q.Engine)
	}
	if q.SessionID != "" {
		clauses = append(clauses, "ps.session_id = ?")
		args = append(args, q.SessionID)
	}
	if q.Kind != "" {
		clauses = append(clauses, "pe.kind = ?")
		args = append(args, q.Kind)
	}

	return strings.Join(clauses, " AND "), args
}

// EffectiveLimit returns the configured limit or the default of 20.
func (q *QueryFilter) EffectiveLimit() int {
	if q.Limit > 0 {
		return q.Limit
	}
	return 20
}

// LimitClause renders LIMIT/OFFSET for appending to a query.
func (q *QueryFilter) LimitClause() string {
	clause := fmt.Sprintf(" LIMIT %d", q.EffectiveLimit())
	if q.Offset > 0 {
		clause += fmt.Sprintf(" OFFSET %d", q.Offset)
	}
	return clause
}
