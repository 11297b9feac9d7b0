package messaging

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/skygig/internal/apperr"
	"github.com/sudo-init-do/skygig/internal/clock"
	"github.com/sudo-init-do/skygig/internal/events"
	"github.com/sudo-init-do/skygig/internal/marketplace"
)

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type stubJobs map[string]marketplace.JobPosting

func (s stubJobs) Get(_ context.Context, id string) (marketplace.JobPosting, error) {
	j, ok := s[id]
	if !ok {
		return marketplace.JobPosting{}, fmt.Errorf("%w: job %s", apperr.ErrNotFound, id)
	}
	return j, nil
}

type presence map[string]bool

func (p presence) Reachable(userID string) bool { return p[userID] }

func newStore(t *testing.T, policy DeliveryPolicy) (*Store, *clock.Fake, *events.Bus) {
	t.Helper()
	clk := clock.NewFake(t0)
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	jobs := stubJobs{
		"job-1": {ID: "job-1", OwnerID: "poster"},
		"job-2": {ID: "job-2", OwnerID: "poster"},
	}
	return NewStore(clk, clock.UUID{}, bus, jobs, policy), clk, bus
}

func TestSendAndMarkReadScenario(t *testing.T) {
	s, _, _ := newStore(t, nil)
	ctx := context.Background()

	conv, err := s.OpenOrGet(ctx, "job-1", "poster", "seeker")
	require.NoError(t, err)

	m1, err := s.Send(ctx, conv.ID, "poster", "Hello")
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, m1.Status)
	require.Equal(t, "seeker", m1.RecipientID)

	view, err := s.Get(ctx, conv.ID, "seeker")
	require.NoError(t, err)
	require.Equal(t, 1, view.Unread)
	require.Equal(t, "Hello", view.LastMessage)

	view, err = s.MarkRead(ctx, conv.ID, "seeker")
	require.NoError(t, err)
	require.Equal(t, 0, view.Unread)

	msgs, err := s.Messages(ctx, conv.ID, "seeker", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, StatusRead, msgs[0].Status)
	require.NotNil(t, msgs[0].ReadAt)

	// stays zero until the other side writes again
	_, err = s.Send(ctx, conv.ID, "seeker", "Thanks!")
	require.NoError(t, err)
	view, _ = s.Get(ctx, conv.ID, "seeker")
	require.Equal(t, 0, view.Unread)
	_, err = s.Send(ctx, conv.ID, "poster", "When can you fly?")
	require.NoError(t, err)
	view, _ = s.Get(ctx, conv.ID, "seeker")
	require.Equal(t, 1, view.Unread)
}

func TestOpenOrGetIsIdempotent(t *testing.T) {
	s, _, bus := newStore(t, nil)
	ctx := context.Background()
	var opened int
	bus.SubscribeSync("test", func(context.Context, events.Event) { opened++ }, events.ConversationOpened)

	a, err := s.OpenOrGet(ctx, "job-1", "poster", "seeker")
	require.NoError(t, err)
	b, err := s.OpenOrGet(ctx, "job-1", "seeker", "poster")
	require.NoError(t, err)
	require.Equal(t, a.ID, b.ID)
	require.Equal(t, 1, opened)

	other, err := s.OpenOrGet(ctx, "job-2", "poster", "seeker")
	require.NoError(t, err)
	require.NotEqual(t, a.ID, other.ID)

	_, err = s.OpenOrGet(ctx, "job-1", "seeker", "seeker")
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = s.OpenOrGet(ctx, "job-1", "seeker", "another-seeker")
	require.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = s.OpenOrGet(ctx, "job-9", "poster", "seeker")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSendRules(t *testing.T) {
	s, _, _ := newStore(t, nil)
	ctx := context.Background()
	conv, err := s.OpenOrGet(ctx, "job-1", "poster", "seeker")
	require.NoError(t, err)

	_, err = s.Send(ctx, conv.ID, "intruder", "hi")
	require.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = s.Send(ctx, conv.ID, "poster", "   ")
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = s.Send(ctx, "missing", "poster", "hi")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.MarkRead(ctx, conv.ID, "intruder")
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = s.Close(ctx, conv.ID, "seeker")
	require.NoError(t, err)
	closed, err := s.Close(ctx, conv.ID, "poster")
	require.NoError(t, err)
	require.True(t, closed.Closed)
	_, err = s.Send(ctx, conv.ID, "poster", "hi")
	require.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestPresenceDelivery(t *testing.T) {
	online := presence{}
	s, _, bus := newStore(t, online)
	ctx := context.Background()
	var delivered []events.Event
	bus.SubscribeSync("test", func(_ context.Context, ev events.Event) { delivered = append(delivered, ev) }, events.MessagesDelivered)

	conv, err := s.OpenOrGet(ctx, "job-1", "poster", "seeker")
	require.NoError(t, err)
	m, err := s.Send(ctx, conv.ID, "poster", "Are you free Friday?")
	require.NoError(t, err)
	require.Equal(t, StatusSent, m.Status)

	view, _ := s.Get(ctx, conv.ID, "seeker")
	require.Equal(t, 1, view.Unread)

	online["seeker"] = true
	require.Equal(t, 1, s.DeliverPending(ctx, "seeker"))
	require.Equal(t, 0, s.DeliverPending(ctx, "seeker"))
	require.Len(t, delivered, 1)
	require.Equal(t, []string{m.ID}, delivered[0].Payload.(events.ConversationPayload).MessageIDs)

	m2, err := s.Send(ctx, conv.ID, "poster", "Great")
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, m2.Status)
}

func TestMarkReadNeverRegresses(t *testing.T) {
	online := presence{}
	s, _, _ := newStore(t, online)
	ctx := context.Background()
	conv, err := s.OpenOrGet(ctx, "job-1", "poster", "seeker")
	require.NoError(t, err)
	_, err = s.Send(ctx, conv.ID, "poster", "ping")
	require.NoError(t, err)

	_, err = s.MarkRead(ctx, conv.ID, "seeker")
	require.NoError(t, err)
	n, err := s.MarkDelivered(ctx, conv.ID, "seeker")
	require.NoError(t, err)
	require.Zero(t, n)

	msgs, _ := s.Messages(ctx, conv.ID, "poster", 0)
	require.Equal(t, StatusRead, msgs[0].Status)
	require.NotNil(t, msgs[0].DeliveredAt)
}

func TestConcurrentSendsKeepSeqOrder(t *testing.T) {
	s, _, _ := newStore(t, nil)
	ctx := context.Background()
	conv, err := s.OpenOrGet(ctx, "job-1", "poster", "seeker")
	require.NoError(t, err)

	const perSide = 50
	var wg sync.WaitGroup
	for _, who := range []string{"poster", "seeker"} {
		wg.Add(1)
		go func(who string) {
			defer wg.Done()
			for i := 0; i < perSide; i++ {
				_, err := s.Send(ctx, conv.ID, who, fmt.Sprintf("%s %d", who, i))
				assert.NoError(t, err)
				if i%10 == 0 {
					_, err = s.MarkRead(ctx, conv.ID, who)
					assert.NoError(t, err)
				}
			}
		}(who)
	}
	wg.Wait()

	msgs, err := s.Messages(ctx, conv.ID, "poster", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2*perSide)
	for i, m := range msgs {
		require.Equal(t, int64(i+1), m.Seq)
	}

	tail, err := s.Messages(ctx, conv.ID, "seeker", 90)
	require.NoError(t, err)
	require.Len(t, tail, 10)
	require.Equal(t, int64(91), tail[0].Seq)
}

func TestListPinnedThenRecent(t *testing.T) {
	s, clk, _ := newStore(t, nil)
	ctx := context.Background()

	first, err := s.OpenOrGet(ctx, "job-1", "poster", "alice")
	require.NoError(t, err)
	clk.Advance(time.Minute)
	second, err := s.OpenOrGet(ctx, "job-1", "poster", "bob")
	require.NoError(t, err)
	clk.Advance(time.Minute)
	third, err := s.OpenOrGet(ctx, "job-2", "poster", "carol")
	require.NoError(t, err)
	clk.Advance(time.Minute)
	_, err = s.Send(ctx, first.ID, "alice", "bump")
	require.NoError(t, err)

	ids := func() []string {
		var out []string
		for _, c := range s.List(ctx, "poster") {
			out = append(out, c.ID)
		}
		return out
	}
	require.Equal(t, []string{first.ID, third.ID, second.ID}, ids())

	pinned, err := s.TogglePin(ctx, second.ID, "poster")
	require.NoError(t, err)
	require.True(t, pinned)
	require.Equal(t, []string{second.ID, first.ID, third.ID}, ids())

	// pins are per participant
	bobView, _ := s.Get(ctx, second.ID, "bob")
	require.False(t, bobView.Pinned)

	require.Equal(t, 1, s.UnreadTotal(ctx, "poster"))
	pinned, err = s.TogglePin(ctx, second.ID, "poster")
	require.NoError(t, err)
	require.False(t, pinned)
}
