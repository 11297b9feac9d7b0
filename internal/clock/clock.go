package clock

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock is the time source used by every store.
type Clock interface {
	Now() time.Time
}

// IDGen hands out unique identifiers for new entities and events.
type IDGen interface {
	NewID() string
}

// System is a wall clock that never goes backwards: if the OS clock steps back,
// Now keeps returning the last value it handed out.
type System struct {
	mu   sync.Mutex
	last time.Time
}

func (s *System) Now() time.Time {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Before(s.last) {
		return s.last
	}
	s.last = now
	return now
}

// UUID generates random v4 identifiers.
type UUID struct{}

func (UUID) NewID() string { return uuid.New().String() }

// Fake is a manually driven clock for tests and replay tooling.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start.UTC()}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set jumps the fake clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t.UTC()
	f.mu.Unlock()
}
