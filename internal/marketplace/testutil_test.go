package marketplace

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/skygig/internal/clock"
	"github.com/sudo-init-do/skygig/internal/events"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

const horizon = 72 * time.Hour

type fixture struct {
	clk      *clock.Fake
	bus      *events.Bus
	jobs     *JobStore
	pipeline *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(t0)
	bus := events.NewBus()
	t.Cleanup(bus.Close)

	jobs := NewJobStore(clk, clock.UUID{}, bus, horizon)
	bus.SubscribeSync("jobs", jobs.HandleApplicationEvent,
		events.ApplicationSubmitted, events.ApplicationDecided, events.ApplicationWithdrawn)
	return &fixture{
		clk:      clk,
		bus:      bus,
		jobs:     jobs,
		pipeline: NewPipeline(clk, clock.UUID{}, bus, jobs),
	}
}

func description() string {
	return strings.Repeat("survey the orchard rows with thermal imaging ", 10)
}

func (f *fixture) createJob(t *testing.T, owner string, publish bool) JobPosting {
	t.Helper()
	job, err := f.jobs.Create(context.Background(), CreateJobInput{
		OwnerID:     owner,
		Title:       "Orchard thermal survey",
		Description: description(),
		ExpiredAt:   f.clk.Now().Add(10 * 24 * time.Hour),
		Publish:     publish,
	})
	require.NoError(t, err)
	return job
}

// recorder captures events of the given types in publish order.
type recorder struct {
	events []events.Event
}

func (f *fixture) record(types ...string) *recorder {
	r := &recorder{}
	f.bus.SubscribeSync("recorder", func(_ context.Context, ev events.Event) {
		r.events = append(r.events, ev)
	}, types...)
	return r
}

func (r *recorder) types() []string {
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}
