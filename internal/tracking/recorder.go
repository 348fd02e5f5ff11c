package tracking

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"playsync.dev/internal/playback"
	"playsync.dev/internal/state"
)

// Event kinds written to playback_events.
const (
	EventInitialized    = "initialized"
	EventPlay           = "play"
	EventPause          = "pause"
	EventSeek           = "seek"
	EventCompleted      = "completed"
	EventError          = "error"
	EventBufferingStart = "buffering_start"
	EventBufferingEnd   = "buffering_end"
)

// seekThreshold separates position jumps caused by seeks from ordinary
// poll advancement.
const seekThreshold = 2 * time.Second

type recordedEvent struct {
	timestamp time.Time
	kind      string
	position  time.Duration
	detail    string
}

// Recorder derives playback history events from snapshot transitions
// and persists them. Snapshot observation must stay cheap, so events
// are queued and written by a separate goroutine.
type Recorder struct {
	db         *sql.DB
	sessionRow int64

	prev   state.Snapshot
	events chan recordedEvent
	done   chan struct{}
	unsub  func()

	now func() time.Time
}

// NewRecorder inserts the session row and returns a recorder ready to
// attach to a controller.
func NewRecorder(db *sql.DB, sessionID, uri, engineKind string) (*Recorder, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	now := time.Now()
	result, err := db.Exec(
		`INSERT INTO playback_sessions (session_id, uri, engine, started_at) VALUES (?, ?, ?, ?)`,
		sessionID, uri, engineKind, now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session row: %w", err)
	}
	row, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read session row id: %w", err)
	}

	r := &Recorder{
		db:         db,
		sessionRow: row,
		events:     make(chan recordedEvent, 128),
		done:       make(chan struct{}),
		now:        time.Now,
	}
	go r.writeLoop()

	slog.Debug("playback recorder created", "session_id", sessionID, "uri", uri, "row", row)
	return r, nil
}

// Attach subscribes the recorder to the controller's snapshot stream.
func (r *Recorder) Attach(c *playback.Controller) {
	r.unsub = c.Subscribe(r.observe)
}

// observe runs inside the store's serialization point; it only diffs
// and enqueues.
func (r *Recorder) observe(snap state.Snapshot) {
	prev := r.prev
	r.prev = snap
	now := r.now()

	if !prev.IsInitialized && snap.IsInitialized {
		r.enqueue(recordedEvent{timestamp: now, kind: EventInitialized, position: snap.Position, detail: snap.Duration.String()})
	}
	if !prev.IsPlaying && snap.IsPlaying {
		r.enqueue(recordedEvent{timestamp: now, kind: EventPlay, position: snap.Position})
	}
	if prev.IsPlaying && !snap.IsPlaying && !snap.IsCompleted {
		r.enqueue(recordedEvent{timestamp: now, kind: EventPause, position: snap.Position})
	}
	if !prev.IsCompleted && snap.IsCompleted {
		r.enqueue(recordedEvent{timestamp: now, kind: EventCompleted, position: snap.Position})
	}
	if prev.ErrorDescription == "" && snap.ErrorDescription != "" {
		r.enqueue(recordedEvent{timestamp: now, kind: EventError, position: snap.Position, detail: snap.ErrorDescription})
	}
	if !prev.IsBuffering && snap.IsBuffering {
		r.enqueue(recordedEvent{timestamp: now, kind: EventBufferingStart, position: snap.Position})
	}
	if prev.IsBuffering && !snap.IsBuffering {
		r.enqueue(recordedEvent{timestamp: now, kind: EventBufferingEnd, position: snap.Position})
	}

	delta := snap.Position - prev.Position
	if prev.IsInitialized && (delta < -seekThreshold || delta > seekThreshold) {
		r.enqueue(recordedEvent{timestamp: now, kind: EventSeek, position: snap.Position, detail: prev.Position.String()})
	}
}

func (r *Recorder) enqueue(ev recordedEvent) {
	select {
	case r.events <- ev:
	default:
		slog.Warn("playback history queue full, dropping event", "kind", ev.kind)
	}
}

func (r *Recorder) writeLoop() {
	defer close(r.done)
	for ev := range r.events {
		_, err := r.db.Exec(
			`INSERT INTO playback_events (session_row, timestamp, kind, position_ms, detail) VALUES (?, ?, ?, ?, ?)`,
			r.sessionRow, ev.timestamp.Unix(), ev.kind, ev.position.Milliseconds(), ev.detail,
		)
		if err != nil {
			slog.Error("failed to record playback event", "kind", ev.kind, "error", err)
		}
	}
}

// Close detaches from the controller, flushes queued events, and stamps
// the session row with the last observed duration.
func (r *Recorder) Close() error {
	if r.unsub != nil {
		r.unsub()
		r.unsub = nil
	}

	close(r.events)
	<-r.done

	_, err := r.db.Exec(
		`UPDATE playback_sessions SET duration_ms = ? WHERE id = ?`,
		r.prev.Duration.Milliseconds(), r.sessionRow,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize session row: %w", err)
	}

	slog.Debug("playback recorder closed", "row", r.sessionRow)
	return nil
}
