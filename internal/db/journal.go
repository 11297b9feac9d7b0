package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/sudo-init-do/skygig/internal/config"
	"github.com/sudo-init-do/skygig/internal/events"
)

const defaultRecentLimit = 50

// Record is one journaled event.
type Record struct {
	Seq         int64           `json:"seq"`
	EventID     string          `json:"event_id"`
	Type        string          `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload"`
}

// Journal is an append-only log of domain events. Appending an event id
// that is already stored is a no-op.
type Journal interface {
	Append(ctx context.Context, ev events.Event) error
	// Recent returns up to limit events, newest first. An empty aggregateID
	// means every aggregate.
	Recent(ctx context.Context, aggregateID string, limit int) ([]Record, error)
	Close()
}

func encodePayload(ev events.Event) ([]byte, error) {
	b, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", ev.Type, err)
	}
	return b, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return defaultRecentLimit
	}
	return limit
}

// Subscribe appends every event published on b to j, off the publisher's path.
func Subscribe(b *events.Bus, j Journal) {
	b.Subscribe("journal", func(ctx context.Context, ev events.Event) {
		if err := j.Append(ctx, ev); err != nil {
			log.Printf("[journal][ERROR] append %s %s: %v", ev.Type, ev.ID, err)
		}
	})
}

// OpenJournal opens the journal selected by cfg.JournalDriver. It returns a
// nil Journal when journaling is off.
func OpenJournal(ctx context.Context, cfg config.Config) (Journal, error) {
	switch cfg.JournalDriver {
	case config.JournalPostgres:
		pool, err := Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		j, err := NewPostgresJournal(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return j, nil
	case config.JournalSQLite:
		return OpenSQLiteJournal(ctx, cfg.JournalSQLitePath)
	case config.JournalNone:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown journal driver %q", cfg.JournalDriver)
}
