package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sudo-init-do/skygig/internal/events"
)

// SQLiteJournal keeps the journal in a local file, for single-node setups.
type SQLiteJournal struct {
	db *sql.DB
}

// OpenSQLiteJournal opens (or creates) the journal at path. Use ":memory:"
// for a throwaway journal.
func OpenSQLiteJournal(ctx context.Context, path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection: ":memory:" databases are per connection
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	_, err = db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS domain_events (
            seq          INTEGER PRIMARY KEY AUTOINCREMENT,
            event_id     TEXT NOT NULL UNIQUE,
            type         TEXT NOT NULL,
            aggregate_id TEXT NOT NULL,
            occurred_at  TEXT NOT NULL,
            payload      TEXT NOT NULL
        )`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ensure domain_events table: %w", err)
	}
	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_domain_events_aggregate ON domain_events (aggregate_id, seq)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ensure domain_events index: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) Append(ctx context.Context, ev events.Event) error {
	payload, err := encodePayload(ev)
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO domain_events (event_id, type, aggregate_id, occurred_at, payload)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT (event_id) DO NOTHING`,
		ev.ID, ev.Type, ev.AggregateID, ev.OccurredAt.UTC().Format(time.RFC3339Nano), string(payload),
	)
	return err
}

func (j *SQLiteJournal) Recent(ctx context.Context, aggregateID string, limit int) ([]Record, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT seq, event_id, type, aggregate_id, occurred_at, payload
         FROM domain_events
         WHERE ? = '' OR aggregate_id = ?
         ORDER BY seq DESC LIMIT ?`,
		aggregateID, aggregateID, clampLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			r          Record
			occurredAt string
			payload    string
		)
		if err := rows.Scan(&r.Seq, &r.EventID, &r.Type, &r.AggregateID, &occurredAt, &payload); err != nil {
			return nil, err
		}
		if r.OccurredAt, err = time.Parse(time.RFC3339Nano, occurredAt); err != nil {
			return nil, fmt.Errorf("event %s: bad occurred_at %q: %w", r.EventID, occurredAt, err)
		}
		r.Payload = []byte(payload)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) Close() {
	_ = j.db.Close()
}
