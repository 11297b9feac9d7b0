package events

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Handler reacts to one event.
type Handler func(ctx context.Context, ev Event)

type subscription struct {
	name    string
	types   map[string]bool
	handler Handler
}

func (s subscription) wants(typ string) bool {
	return len(s.types) == 0 || s.types[typ]
}

// asyncSub owns a FIFO queue drained by one goroutine, so it sees events in
// publish order.
type asyncSub struct {
	subscription
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Event
	closed bool
}

// Bus delivers committed domain events to subscribers.
//
// Publishers call Publish while still holding the lock of the aggregate they
// changed, so per-aggregate delivery order equals commit order. Sync
// subscribers run inline inside Publish and must only take leaf locks of their
// own. Async subscribers never block the publisher.
type Bus struct {
	mu      sync.Mutex
	idle    *sync.Cond
	pending int
	closed  bool
	sync    []subscription
	async   []*asyncSub
	wg      sync.WaitGroup
}

func NewBus() *Bus {
	b := &Bus{}
	b.idle = sync.NewCond(&b.mu)
	return b
}

func newSubscription(name string, h Handler, types []string) subscription {
	s := subscription{name: name, handler: h}
	if len(types) > 0 {
		s.types = make(map[string]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}
	return s
}

// SubscribeSync registers a handler that runs inside Publish.
func (b *Bus) SubscribeSync(name string, h Handler, types ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sync = append(b.sync, newSubscription(name, h, types))
}

// Subscribe registers a handler that runs on its own goroutine.
func (b *Bus) Subscribe(name string, h Handler, types ...string) {
	sub := &asyncSub{subscription: newSubscription(name, h, types)}
	sub.cond = sync.NewCond(&sub.mu)

	b.mu.Lock()
	b.async = append(b.async, sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go b.drain(sub)
}

// Publish stamps an id on ev if missing and hands it to every interested
// subscriber. Sync subscribers run first; the event is then queued for the
// async subscribers under b.mu, so Close either sees it queued or drops it.
func (b *Bus) Publish(ctx context.Context, ev Event) Event {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}

	b.mu.Lock()
	closed := b.closed
	syncSubs := b.sync
	b.mu.Unlock()
	if closed {
		log.Printf("[events] bus closed, dropping %s %s", ev.Type, ev.ID)
		return ev
	}

	for _, s := range syncSubs {
		if s.wants(ev.Type) {
			safeCall(ctx, s, ev)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		log.Printf("[events] bus closed during publish, %s %s not queued", ev.Type, ev.ID)
		return ev
	}
	for _, s := range b.async {
		if !s.wants(ev.Type) {
			continue
		}
		b.pending++
		s.mu.Lock()
		s.items = append(s.items, ev)
		s.cond.Signal()
		s.mu.Unlock()
	}
	return ev
}

func (b *Bus) drain(s *asyncSub) {
	defer b.wg.Done()
	for {
		s.mu.Lock()
		for len(s.items) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.items) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		ev := s.items[0]
		s.items[0] = Event{}
		s.items = s.items[1:]
		s.mu.Unlock()

		safeCall(context.Background(), s.subscription, ev)

		b.mu.Lock()
		b.pending--
		if b.pending == 0 {
			b.idle.Broadcast()
		}
		b.mu.Unlock()
	}
}

func safeCall(ctx context.Context, s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[events][ERROR] subscriber %s panicked on %s %s: %v", s.name, ev.Type, ev.ID, r)
		}
	}()
	s.handler(ctx, ev)
}

// Flush blocks until every async subscriber has handled everything published
// so far, or ctx is done.
func (b *Bus) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.mu.Lock()
		for b.pending > 0 {
			b.idle.Wait()
		}
		b.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events, lets queues drain and waits for the workers.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.async
	b.mu.Unlock()

	for _, s := range subs {
		s.mu.Lock()
		s.closed = true
		s.cond.Broadcast()
		s.mu.Unlock()
	}
	b.wg.Wait()
}
