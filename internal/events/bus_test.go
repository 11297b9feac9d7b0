package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func flush(t *testing.T, b *Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, b.Flush(ctx))
}

func TestPublishAssignsID(t *testing.T) {
	b := NewBus()
	defer b.Close()
	ev := b.Publish(context.Background(), Event{Type: JobCreated, AggregateID: "j1"})
	require.NotEmpty(t, ev.ID)

	kept := b.Publish(context.Background(), Event{ID: "fixed", Type: JobCreated})
	require.Equal(t, "fixed", kept.ID)
}

func TestSyncSubscriberRunsInline(t *testing.T) {
	b := NewBus()
	defer b.Close()
	var got []string
	b.SubscribeSync("hub", func(_ context.Context, ev Event) {
		got = append(got, ev.Type)
	}, ApplicationDecided)

	b.Publish(context.Background(), Event{Type: ApplicationSubmitted})
	b.Publish(context.Background(), Event{Type: ApplicationDecided})
	require.Equal(t, []string{ApplicationDecided}, got)
}

func TestAsyncPreservesPublishOrder(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var mu sync.Mutex
	var got []string
	b.Subscribe("alerts", func(_ context.Context, ev Event) {
		mu.Lock()
		got = append(got, ev.AggregateID)
		mu.Unlock()
	})

	var want []string
	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("a%d", i)
		want = append(want, id)
		b.Publish(context.Background(), Event{Type: MessageSent, AggregateID: id})
	}
	flush(t, b)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, want, got)
}

func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	b := NewBus()
	release := make(chan struct{})
	b.Subscribe("slow", func(_ context.Context, _ Event) { <-release })

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(context.Background(), Event{Type: MessageSent})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, b.Flush(ctx), context.DeadlineExceeded)

	close(release)
	flush(t, b)
	b.Close()
}

func TestPanickingSubscriberIsIsolated(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var mu sync.Mutex
	count := 0
	b.Subscribe("boom", func(_ context.Context, ev Event) {
		if ev.AggregateID == "bad" {
			panic("bad payload")
		}
		mu.Lock()
		count++
		mu.Unlock()
	})

	b.Publish(context.Background(), Event{Type: JobCreated, AggregateID: "bad"})
	b.Publish(context.Background(), Event{Type: JobCreated, AggregateID: "ok"})
	flush(t, b)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, count)
}

func TestCloseDrainsAndDropsLatePublishes(t *testing.T) {
	b := NewBus()
	var mu sync.Mutex
	count := 0
	b.Subscribe("journal", func(_ context.Context, _ Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	for i := 0; i < 5; i++ {
		b.Publish(context.Background(), Event{Type: JobCreated})
	}
	b.Close()
	b.Publish(context.Background(), Event{Type: JobCreated})

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 5, count)
}

func TestPublishRacingCloseLeavesNothingPending(t *testing.T) {
	for round := 0; round < 50; round++ {
		b := NewBus()
		var mu sync.Mutex
		handled := 0
		b.Subscribe("ws", func(_ context.Context, _ Event) {
			mu.Lock()
			handled++
			mu.Unlock()
		})

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 20; j++ {
					b.Publish(context.Background(), Event{Type: MessageSent})
				}
			}()
		}
		b.Close()
		wg.Wait()

		flush(t, b)
		mu.Lock()
		require.LessOrEqual(t, handled, 160)
		mu.Unlock()
	}
}
