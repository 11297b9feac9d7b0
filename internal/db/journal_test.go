package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/skygig/internal/config"
	"github.com/sudo-init-do/skygig/internal/events"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func jobEvent(id, jobID, typ string, at time.Time) events.Event {
	return events.Event{
		ID:          id,
		Type:        typ,
		AggregateID: jobID,
		OccurredAt:  at,
		Payload:     events.JobPayload{JobID: jobID, OwnerID: "poster-1", Title: "Roof survey", Status: "open"},
	}
}

func openMemJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	j, err := OpenSQLiteJournal(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(j.Close)
	return j
}

func TestSQLiteJournalAppendAndRecent(t *testing.T) {
	ctx := context.Background()
	j := openMemJournal(t)

	require.NoError(t, j.Append(ctx, jobEvent("e1", "job-1", events.JobCreated, t0)))
	require.NoError(t, j.Append(ctx, jobEvent("e2", "job-1", events.JobPublished, t0.Add(time.Minute))))
	require.NoError(t, j.Append(ctx, jobEvent("e3", "job-2", events.JobCreated, t0.Add(2*time.Minute))))

	recs, err := j.Recent(ctx, "job-1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "e2", recs[0].EventID)
	assert.Equal(t, events.JobPublished, recs[0].Type)
	assert.True(t, recs[0].OccurredAt.Equal(t0.Add(time.Minute)))
	assert.JSONEq(t, `{"job_id":"job-1","owner_id":"poster-1","title":"Roof survey","status":"open","posted_at":"0001-01-01T00:00:00Z","expired_at":"0001-01-01T00:00:00Z"}`, string(recs[0].Payload))
	assert.Equal(t, "e1", recs[1].EventID)

	all, err := j.Recent(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "e3", all[0].EventID)
}

func TestSQLiteJournalIgnoresDuplicateEventIDs(t *testing.T) {
	ctx := context.Background()
	j := openMemJournal(t)

	ev := jobEvent("e1", "job-1", events.JobCreated, t0)
	require.NoError(t, j.Append(ctx, ev))
	require.NoError(t, j.Append(ctx, ev))

	recs, err := j.Recent(ctx, "job-1", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestSQLiteJournalLimit(t *testing.T) {
	ctx := context.Background()
	j := openMemJournal(t)
	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, j.Append(ctx, jobEvent(id, "job-1", events.JobCreated, t0.Add(time.Duration(i)*time.Second))))
	}
	recs, err := j.Recent(ctx, "job-1", 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, []string{"d", "c"}, []string{recs[0].EventID, recs[1].EventID})
}

func TestSubscribeJournalsBusEvents(t *testing.T) {
	j := openMemJournal(t)
	bus := events.NewBus()
	defer bus.Close()
	Subscribe(bus, j)

	ev := bus.Publish(context.Background(), jobEvent("", "job-9", events.JobCreated, t0))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, bus.Flush(ctx))

	recs, err := j.Recent(context.Background(), "job-9", 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, ev.ID, recs[0].EventID)
}

type execCall struct {
	sql  string
	args []any
}

type fakeConn struct {
	execs   []execCall
	execErr error
}

func (f *fakeConn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), f.execErr
}

func (f *fakeConn) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func TestPostgresJournalSchemaAndAppend(t *testing.T) {
	ctx := context.Background()
	fc := &fakeConn{}
	j := &PostgresJournal{conn: fc}

	require.NoError(t, j.ensureSchema(ctx))
	require.Len(t, fc.execs, 2)
	assert.Contains(t, fc.execs[0].sql, "CREATE TABLE IF NOT EXISTS domain_events")

	require.NoError(t, j.Append(ctx, jobEvent("e1", "job-1", events.JobCreated, t0)))
	insert := fc.execs[2]
	assert.Contains(t, insert.sql, "ON CONFLICT (event_id) DO NOTHING")
	require.Len(t, insert.args, 5)
	assert.Equal(t, "e1", insert.args[0])
	assert.Equal(t, events.JobCreated, insert.args[1])
	assert.Equal(t, "job-1", insert.args[2])
	assert.Contains(t, string(insert.args[4].([]byte)), `"job_id":"job-1"`)
}

func TestPostgresJournalAppendError(t *testing.T) {
	fc := &fakeConn{execErr: errors.New("connection reset")}
	j := &PostgresJournal{conn: fc}
	err := j.Append(context.Background(), jobEvent("e1", "job-1", events.JobCreated, t0))
	assert.EqualError(t, err, "connection reset")
}

func TestAppendRejectsUnencodablePayload(t *testing.T) {
	j := &PostgresJournal{conn: &fakeConn{}}
	ev := events.Event{ID: "e1", Type: "x", AggregateID: "a", OccurredAt: t0, Payload: make(chan int)}
	assert.Error(t, j.Append(context.Background(), ev))
}

func TestOpenJournalDrivers(t *testing.T) {
	ctx := context.Background()

	j, err := OpenJournal(ctx, config.Config{JournalDriver: config.JournalNone})
	require.NoError(t, err)
	assert.Nil(t, j)

	j, err = OpenJournal(ctx, config.Config{JournalDriver: config.JournalSQLite, JournalSQLitePath: ":memory:"})
	require.NoError(t, err)
	require.NotNil(t, j)
	j.Close()

	_, err = OpenJournal(ctx, config.Config{JournalDriver: "mongo"})
	assert.Error(t, err)
}
