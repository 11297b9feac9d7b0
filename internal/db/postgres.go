package db

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/skygig/internal/events"
)

// Connect opens a pgx pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	log.Println("Connected to Postgres successfully")
	return pool, nil
}

// conn is the part of *pgxpool.Pool the journal uses.
type conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type PostgresJournal struct {
	conn  conn
	close func()
}

// NewPostgresJournal ensures the domain_events table and returns a journal on pool.
func NewPostgresJournal(ctx context.Context, pool *pgxpool.Pool) (*PostgresJournal, error) {
	j := &PostgresJournal{conn: pool, close: pool.Close}
	if err := j.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return j, nil
}

// ensureSchema creates domain_events if missing
func (j *PostgresJournal) ensureSchema(ctx context.Context) error {
	_, err := j.conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS domain_events (
            seq          BIGSERIAL PRIMARY KEY,
            event_id     TEXT NOT NULL UNIQUE,
            type         TEXT NOT NULL,
            aggregate_id TEXT NOT NULL,
            occurred_at  TIMESTAMPTZ NOT NULL,
            payload      JSONB NOT NULL DEFAULT '{}'::jsonb
        )`)
	if err != nil {
		return fmt.Errorf("failed to ensure domain_events table: %w", err)
	}
	_, err = j.conn.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_domain_events_aggregate ON domain_events (aggregate_id, seq DESC)`)
	if err != nil {
		return fmt.Errorf("failed to ensure domain_events index: %w", err)
	}
	return nil
}

func (j *PostgresJournal) Append(ctx context.Context, ev events.Event) error {
	payload, err := encodePayload(ev)
	if err != nil {
		return err
	}
	_, err = j.conn.Exec(ctx,
		`INSERT INTO domain_events (event_id, type, aggregate_id, occurred_at, payload)
         VALUES ($1, $2, $3, $4, $5)
         ON CONFLICT (event_id) DO NOTHING`,
		ev.ID, ev.Type, ev.AggregateID, ev.OccurredAt, payload,
	)
	return err
}

func (j *PostgresJournal) Recent(ctx context.Context, aggregateID string, limit int) ([]Record, error) {
	rows, err := j.conn.Query(ctx,
		`SELECT seq, event_id, type, aggregate_id, occurred_at, payload
         FROM domain_events
         WHERE $1 = '' OR aggregate_id = $1
         ORDER BY seq DESC LIMIT $2`,
		aggregateID, clampLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var r Record
		err := row.Scan(&r.Seq, &r.EventID, &r.Type, &r.AggregateID, &r.OccurredAt, &r.Payload)
		return r, err
	})
}

func (j *PostgresJournal) Close() {
	if j.close != nil {
		j.close()
	}
}
