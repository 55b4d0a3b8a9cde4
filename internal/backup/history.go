package backup

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TheGojiOG/hostbackup/internal/database"
)

// HistoryStore keeps a record of every run in the history database.
type HistoryStore struct {
	db *database.DB
}

func NewHistoryStore(db *database.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// RunRecord is one stored run
type RunRecord struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	TotalItems int
	Errors     int
	Warnings   int
	Files      int64
	Bytes      int64
	Duration   time.Duration
	Status     string
	Items      []ItemRecord
}

// ItemRecord is the stored outcome of one item
type ItemRecord struct {
	Name     string
	Type     string
	State    State
	Errors   int
	Warnings int
	Files    int64
	Bytes    int64
	Duration time.Duration
}

func (h *HistoryStore) ObserveRun(ctx context.Context, report RunReport) error {
	return h.RecordRun(ctx, report)
}

// RecordRun stores a run with its items and their messages.
func (h *HistoryStore) RecordRun(ctx context.Context, report RunReport) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stats := report.Statistics
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, started_at, finished_at, total_items, errors, warnings, files, bytes, duration_ms, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		stats.ID.String(),
		report.StartedAt.UTC(),
		report.FinishedAt.UTC(),
		stats.TotalItems,
		stats.Errors,
		stats.Warnings,
		stats.Files,
		stats.Bytes,
		stats.Duration.Milliseconds(),
		report.Status(),
	)
	if err != nil {
		return fmt.Errorf("failed to save run record: %w", err)
	}

	for _, item := range report.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_items
			(run_id, name, type, state, errors, warnings, files, bytes, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			stats.ID.String(),
			item.Name,
			string(item.Type),
			string(item.State),
			item.Statistics.Errors,
			item.Statistics.Warnings,
			item.Statistics.Files,
			item.Statistics.Bytes,
			item.Statistics.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to save item record %s: %w", item.Name, err)
		}

		if err := insertMessages(ctx, tx, stats.ID, item.Name, "CRIT", item.Errors); err != nil {
			return err
		}
		if err := insertMessages(ctx, tx, stats.ID, item.Name, "WARN", item.Warnings); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run record: %w", err)
	}
	return nil
}

func insertMessages(ctx context.Context, tx *sql.Tx, runID uuid.UUID, item, severity string, messages []string) error {
	for _, msg := range messages {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO run_item_messages (run_id, item, severity, message) VALUES (?, ?, ?, ?)",
			runID.String(), item, severity, msg,
		); err != nil {
			return fmt.Errorf("failed to save item message: %w", err)
		}
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (h *HistoryStore) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := h.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, total_items, errors, warnings, files, bytes, duration_ms, status
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		record := &RunRecord{}
		var id string
		var durationMS int64
		if err := rows.Scan(
			&id,
			&record.StartedAt,
			&record.FinishedAt,
			&record.TotalItems,
			&record.Errors,
			&record.Warnings,
			&record.Files,
			&record.Bytes,
			&durationMS,
			&record.Status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		if record.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid run id %q: %w", id, err)
		}
		record.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, run := range runs {
		if run.Items, err = h.listItems(ctx, run.ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (h *HistoryStore) listItems(ctx context.Context, runID uuid.UUID) ([]ItemRecord, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT name, type, state, errors, warnings, files, bytes, duration_ms
		FROM run_items
		WHERE run_id = ?
		ORDER BY rowid
	`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query run items: %w", err)
	}
	defer rows.Close()

	var items []ItemRecord
	for rows.Next() {
		var item ItemRecord
		var state string
		var durationMS int64
		if err := rows.Scan(&item.Name, &item.Type, &state, &item.Errors, &item.Warnings, &item.Files, &item.Bytes, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan run item: %w", err)
		}
		item.State = State(state)
		item.Duration = time.Duration(durationMS) * time.Millisecond
		items = append(items, item)
	}
	return items, rows.Err()
}
