package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/sudo-init-do/skygig/internal/config"
	"github.com/sudo-init-do/skygig/internal/db"
)

// journal_tail prints the latest journaled events, optionally for one aggregate.
// Usage:
//
//	go run ./cmd/adminutil/journal_tail -aggregate <job or conversation id> -n 20
func main() {
	aggregate := flag.String("aggregate", "", "aggregate id to filter on")
	n := flag.Int("n", 20, "number of events")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.JournalDriver == config.JournalNone {
		log.Fatalf("JOURNAL_DRIVER is not set; nothing to read")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	journal, err := db.OpenJournal(ctx, cfg)
	if err != nil {
		log.Fatalf("journal: %v", err)
	}
	defer journal.Close()

	recs, err := journal.Recent(ctx, *aggregate, *n)
	if err != nil {
		log.Fatalf("failed to read journal: %v", err)
	}
	// oldest first, like tail
	for i := len(recs) - 1; i >= 0; i-- {
		r := recs[i]
		fmt.Printf("%6d  %s  %-24s %s  %s\n", r.Seq, r.OccurredAt.Format(time.RFC3339), r.Type, r.AggregateID, r.Payload)
	}
}
