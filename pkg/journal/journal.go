// Package journal persists every lifecycle event to an append-only SQLite
// table. Intent records are never physically destroyed; the journal is the
// audit/event-sourcing trail that survives process restarts.
package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	_ "modernc.org/sqlite"

	"github.com/Naveen-6087/sui-tma/pkg/models"
)

// Journal is an append-only store of lifecycle events.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at path. Use ":memory:" for
// an ephemeral journal in tests.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal db: %v", err)
	}
	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS lifecycle_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		op TEXT NOT NULL,
		intent_id TEXT NOT NULL,
		owner TEXT NOT NULL,
		old_status TEXT NOT NULL DEFAULT '',
		new_status TEXT NOT NULL,
		ts INTEGER NOT NULL,
		trigger_kind TEXT NOT NULL DEFAULT '',
		trigger_value INTEGER NOT NULL DEFAULT 0,
		pair TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		price INTEGER NOT NULL DEFAULT 0,
		reference TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_events_intent ON lifecycle_events(intent_id);`
	_, err := j.db.ExecContext(context.Background(), query)
	return err
}

// Append records one lifecycle event. The journal is insert-only; nothing
// ever updates or deletes a row.
func (j *Journal) Append(ctx context.Context, ev models.LifecycleEvent) error {
	query := `INSERT INTO lifecycle_events (
		op, intent_id, owner, old_status, new_status, ts, trigger_kind, trigger_value, pair, reason, price, reference
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	triggerKind := ""
	if ev.Op == models.OpCreate {
		triggerKind = ev.TriggerKind.String()
	}

	_, err := j.db.ExecContext(ctx, query,
		string(ev.Op), ev.IntentID, ev.Owner.Hex(), string(ev.OldStatus), string(ev.NewStatus),
		ev.Timestamp, triggerKind, ev.TriggerValue, ev.Pair, ev.Reason, ev.Price, ev.Reference,
	)
	if err != nil {
		return fmt.Errorf("failed to append lifecycle event: %w", err)
	}
	return nil
}

// ByIntent returns the full transition history of one intent in append order.
func (j *Journal) ByIntent(ctx context.Context, intentID string) ([]models.LifecycleEvent, error) {
	query := `
		SELECT op, intent_id, owner, old_status, new_status, ts, trigger_value, pair, reason, price, reference
		FROM lifecycle_events
		WHERE intent_id = ?
		ORDER BY seq ASC`
	rows, err := j.db.QueryContext(ctx, query, intentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanEvents(rows)
}

// Recent returns the latest events across all intents, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]models.LifecycleEvent, error) {
	query := `
		SELECT op, intent_id, owner, old_status, new_status, ts, trigger_value, pair, reason, price, reference
		FROM lifecycle_events
		ORDER BY seq DESC
		LIMIT ?`
	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]models.LifecycleEvent, error) {
	var events []models.LifecycleEvent
	for rows.Next() {
		var (
			ev    models.LifecycleEvent
			op    string
			owner string
			oldS  string
			newS  string
		)
		if err := rows.Scan(&op, &ev.IntentID, &owner, &oldS, &newS, &ev.Timestamp,
			&ev.TriggerValue, &ev.Pair, &ev.Reason, &ev.Price, &ev.Reference); err != nil {
			return nil, err
		}
		ev.Op = models.EventOp(op)
		ev.Owner = common.HexToAddress(owner)
		ev.OldStatus = models.Status(oldS)
		ev.NewStatus = models.Status(newS)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}
