package store

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Trigger names what started a collection run.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
	TriggerStartup  Trigger = "startup"
)

// Run is one completed collection cycle.
type Run struct {
	ID         string    `db:"id" json:"id"`
	Trigger    Trigger   `db:"triggered_by" json:"trigger"`
	StartedAt  time.Time `db:"started_at" json:"started_at"`
	FinishedAt time.Time `db:"finished_at" json:"finished_at"`
	Records    int       `db:"records" json:"records"`
	Errors     RunErrors `db:"errors" json:"errors"`
}

// RunErrors maps a source name to the error it produced during a run.
type RunErrors map[string]string

// Value implements driver.Valuer.
func (e RunErrors) Value() (driver.Value, error) {
	if e == nil {
		return "{}", nil
	}
	data, err := json.Marshal(map[string]string(e))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (e *RunErrors) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*e = RunErrors{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("scan run errors: unsupported type %T", src)
	}
	m := RunErrors{}
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("scan run errors: %w", err)
	}
	*e = m
	return nil
}

// RecordRun appends r to the run log.
func (s *SQLiteStore) RecordRun(ctx context.Context, r Run) error {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO collection_runs (id, triggered_by, started_at, finished_at, records, errors)
			VALUES (?, ?, ?, ?, ?, ?)
		`, r.ID, r.Trigger, r.StartedAt.UTC(), r.FinishedAt.UTC(), r.Records, r.Errors)
		return err
	})
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	return nil
}

// ListRuns returns up to limit runs, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	runs := []Run{}
	err := s.db.SelectContext(ctx, &runs, `
		SELECT id, triggered_by, started_at, finished_at, records, errors FROM collection_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
