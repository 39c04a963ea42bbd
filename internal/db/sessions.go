package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Session is one acquisition run: a device connection with fixed
// decode settings, bracketed by started_at and ended_at. EndedAt is
// nil while the session is live.
type Session struct {
	ID                 string     `json:"id"`
	Port               string     `json:"port"`
	StartedAt          time.Time  `json:"started_at"`
	EndedAt            *time.Time `json:"ended_at,omitempty"`
	DebounceMicros     int64      `json:"debounce_micros"`
	DispatchIntervalMs int64      `json:"dispatch_interval_ms"`
	IntervalCount      int64      `json:"interval_count"`
}

// StartSession records the beginning of an acquisition run together
// with the decode settings it was started under.
func (db *DB) StartSession(id, port string, debounceMicros uint32, dispatchInterval time.Duration) error {
	_, err := db.Exec(`
		INSERT INTO sessions (id, port, started_at, debounce_micros, dispatch_interval_ms)
		VALUES (?, ?, ?, ?, ?)`,
		id, port, time.Now().UTC(), int64(debounceMicros), dispatchInterval.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to start session %s: %w", id, err)
	}
	return nil
}

// EndSession closes an open session. A session that is unknown or
// already closed is an error, so the original end time is never
// overwritten.
func (db *DB) EndSession(id string) error {
	res, err := db.Exec(`UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s not found or already ended", id)
	}
	return nil
}

// Sessions lists the most recent sessions, newest first, each with
// the number of intervals stored for it. limit <= 0 selects the
// default of 100.
func (db *DB) Sessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT s.id, s.port, s.started_at, s.ended_at, s.debounce_micros, s.dispatch_interval_ms,
			COUNT(i.id)
		FROM sessions s
		LEFT JOIN intervals i ON i.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var ended sql.NullTime
		if err := rows.Scan(&s.ID, &s.Port, &s.StartedAt, &ended,
			&s.DebounceMicros, &s.DispatchIntervalMs, &s.IntervalCount); err != nil {
			return nil, err
		}
		if ended.Valid {
			t := ended.Time
			s.EndedAt = &t
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// Session fetches one session by ID. A session that does not exist
// returns nil without an error.
func (db *DB) Session(id string) (*Session, error) {
	row := db.QueryRow(`
		SELECT s.id, s.port, s.started_at, s.ended_at, s.debounce_micros, s.dispatch_interval_ms,
			COUNT(i.id)
		FROM sessions s
		LEFT JOIN intervals i ON i.session_id = s.id
		WHERE s.id = ?
		GROUP BY s.id`, id)

	var s Session
	var ended sql.NullTime
	err := row.Scan(&s.ID, &s.Port, &s.StartedAt, &ended,
		&s.DebounceMicros, &s.DispatchIntervalMs, &s.IntervalCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session %s: %w", id, err)
	}
	if ended.Valid {
		t := ended.Time
		s.EndedAt = &t
	}
	return &s, nil
}

// SessionSummary aggregates every stored interval of one session,
// unlike the live stats endpoint whose moment statistics cover a
// bounded in-memory window.
type SessionSummary struct {
	SessionID    string    `json:"session_id"`
	Count        int64     `json:"count"`
	MinMicros    float64   `json:"min_micros"`
	MaxMicros    float64   `json:"max_micros"`
	MeanMicros   float64   `json:"mean_micros"`
	FirstArrival time.Time `json:"first_arrival"`
	LastArrival  time.Time `json:"last_arrival"`
}

// SummarizeSession computes whole-session statistics in SQL. A session
// with no stored intervals summarizes to a zero Count and zero values.
func (db *DB) SummarizeSession(id string) (*SessionSummary, error) {
	row := db.QueryRow(`
		SELECT COUNT(*), MIN(micros), MAX(micros), AVG(micros),
			MIN(arrival_unix_micros), MAX(arrival_unix_micros)
		FROM intervals
		WHERE session_id = ?`, id)

	s := SessionSummary{SessionID: id}
	var min, max, mean sql.NullFloat64
	var first, last sql.NullInt64
	if err := row.Scan(&s.Count, &min, &max, &mean, &first, &last); err != nil {
		return nil, fmt.Errorf("failed to summarize session %s: %w", id, err)
	}
	if min.Valid {
		s.MinMicros = min.Float64
	}
	if max.Valid {
		s.MaxMicros = max.Float64
	}
	if mean.Valid {
		s.MeanMicros = mean.Float64
	}
	if first.Valid {
		s.FirstArrival = time.UnixMicro(first.Int64).UTC()
	}
	if last.Valid {
		s.LastArrival = time.UnixMicro(last.Int64).UTC()
	}
	return &s, nil
}
