package db

import (
	"fmt"
	"time"

	"github.com/banshee-data/interval.report/internal/pipeline"
)

// Interval is one stored pulse interval. Micros is the detector-side
// gap between pulses; Arrival is the host-side receive time, stored
// as unix microseconds.
type Interval struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Micros    int64     `json:"micros"`
	Arrival   time.Time `json:"arrival"`
}

// RecordBatch stores one dispatched batch in a single transaction, so
// a batch is either fully visible or absent. The empty batch is a
// no-op.
func (db *DB) RecordBatch(sessionID string, batch []pipeline.Item) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO intervals (session_id, micros, arrival_unix_micros)
		VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare interval insert: %w", err)
	}
	defer stmt.Close()

	for _, it := range batch {
		if _, err := stmt.Exec(sessionID, int64(it.Value), it.Arrival.UnixMicro()); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert interval: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit interval batch: %w", err)
	}
	return nil
}

// RecentIntervals returns the newest stored intervals, newest first.
// A non-empty sessionID narrows the result to that session. limit <= 0
// or above 1000 selects the default of 100.
func (db *DB) RecentIntervals(sessionID string, limit int) ([]Interval, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `SELECT id, session_id, micros, arrival_unix_micros FROM intervals `
	args := []interface{}{}
	if sessionID != "" {
		query += `WHERE session_id = ? `
		args = append(args, sessionID)
	}
	query += `ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intervals []Interval
	for rows.Next() {
		var iv Interval
		var arrivalMicros int64
		if err := rows.Scan(&iv.ID, &iv.SessionID, &iv.Micros, &arrivalMicros); err != nil {
			return nil, err
		}
		iv.Arrival = time.UnixMicro(arrivalMicros).UTC()
		intervals = append(intervals, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return intervals, nil
}
