package alerts

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sudo-init-do/skygig/internal/apperr"
	"github.com/sudo-init-do/skygig/internal/clock"
)

type inbox struct {
	mu    sync.Mutex
	items []*Notification
	// seen maps an event id to the notification it produced here.
	seen map[string]*Notification
}

// Center owns every recipient's notifications.
type Center struct {
	clock clock.Clock
	ids   clock.IDGen

	mu      sync.RWMutex
	inboxes map[string]*inbox
	owner   map[string]string // notification id -> recipient
}

func NewCenter(c clock.Clock, ids clock.IDGen) *Center {
	return &Center{
		clock:   c,
		ids:     ids,
		inboxes: make(map[string]*inbox),
		owner:   make(map[string]string),
	}
}

func (c *Center) inbox(recipientID string, create bool) *inbox {
	c.mu.RLock()
	in, ok := c.inboxes[recipientID]
	c.mu.RUnlock()
	if ok || !create {
		return in
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if in, ok = c.inboxes[recipientID]; !ok {
		in = &inbox{seen: make(map[string]*Notification)}
		c.inboxes[recipientID] = in
	}
	return in
}

// Notify stores a notification. A repeat of the same event for the same
// recipient returns the existing notification and created=false.
func (c *Center) Notify(_ context.Context, in NotifyInput) (n Notification, created bool, err error) {
	if strings.TrimSpace(in.RecipientID) == "" {
		return Notification{}, false, fmt.Errorf("%w: recipient is required", apperr.ErrValidation)
	}
	if !in.Type.valid() {
		return Notification{}, false, fmt.Errorf("%w: unknown notification type %q", apperr.ErrValidation, in.Type)
	}
	if strings.TrimSpace(in.Title) == "" {
		return Notification{}, false, fmt.Errorf("%w: title is required", apperr.ErrValidation)
	}

	box := c.inbox(in.RecipientID, true)
	box.mu.Lock()
	defer box.mu.Unlock()

	if in.EventID != "" {
		if prev, ok := box.seen[in.EventID]; ok {
			return *prev, false, nil
		}
	}
	item := &Notification{
		ID:          c.ids.NewID(),
		RecipientID: in.RecipientID,
		Type:        in.Type,
		Title:       in.Title,
		Body:        in.Body,
		CreatedAt:   c.clock.Now(),
		JobID:       in.JobID,
		JobTitle:    in.JobTitle,
		EventID:     in.EventID,
	}
	box.items = append(box.items, item)
	if in.EventID != "" {
		box.seen[in.EventID] = item
	}

	c.mu.Lock()
	c.owner[item.ID] = in.RecipientID
	c.mu.Unlock()
	return *item, true, nil
}

// MarkRead marks one notification read. Repeating it changes nothing.
func (c *Center) MarkRead(_ context.Context, id, actor string) (Notification, error) {
	c.mu.RLock()
	recipient, ok := c.owner[id]
	c.mu.RUnlock()
	if !ok {
		return Notification{}, fmt.Errorf("%w: notification %s", apperr.ErrNotFound, id)
	}
	if recipient != actor {
		return Notification{}, fmt.Errorf("%w: notification belongs to another user", apperr.ErrForbidden)
	}

	box := c.inbox(recipient, false)
	box.mu.Lock()
	defer box.mu.Unlock()
	for _, n := range box.items {
		if n.ID == id {
			c.markRead(n)
			return *n, nil
		}
	}
	// cleared between the lookup and the lock
	return Notification{}, fmt.Errorf("%w: notification %s", apperr.ErrNotFound, id)
}

func (c *Center) markRead(n *Notification) bool {
	if n.Read {
		return false
	}
	now := c.clock.Now()
	n.Read = true
	n.ReadAt = &now
	return true
}

// MarkAllRead marks every notification of recipientID read and returns how
// many changed.
func (c *Center) MarkAllRead(_ context.Context, recipientID string) int {
	box := c.inbox(recipientID, false)
	if box == nil {
		return 0
	}
	box.mu.Lock()
	defer box.mu.Unlock()
	changed := 0
	for _, n := range box.items {
		if c.markRead(n) {
			changed++
		}
	}
	return changed
}

// ClearRead deletes recipientID's read notifications. Dedupe memory is kept,
// so a redelivered event does not bring a cleared notification back.
func (c *Center) ClearRead(_ context.Context, recipientID string) int {
	box := c.inbox(recipientID, false)
	if box == nil {
		return 0
	}
	box.mu.Lock()
	kept := box.items[:0]
	var removed []string
	for _, n := range box.items {
		if n.Read {
			removed = append(removed, n.ID)
			continue
		}
		kept = append(kept, n)
	}
	for i := len(kept); i < len(box.items); i++ {
		box.items[i] = nil
	}
	box.items = kept
	box.mu.Unlock()

	c.mu.Lock()
	for _, id := range removed {
		delete(c.owner, id)
	}
	c.mu.Unlock()
	return len(removed)
}

// List returns recipientID's notifications newest first.
func (c *Center) List(_ context.Context, recipientID string, f Filter) []Notification {
	out := []Notification{}
	box := c.inbox(recipientID, false)
	if box == nil {
		return out
	}
	box.mu.Lock()
	defer box.mu.Unlock()
	// items are kept in creation order
	for i := len(box.items) - 1; i >= 0; i-- {
		n := box.items[i]
		if f.Type != "" && n.Type != f.Type {
			continue
		}
		if f.UnreadOnly && n.Read {
			continue
		}
		out = append(out, *n)
	}
	return out
}

// UnreadCount is the bell badge number.
func (c *Center) UnreadCount(_ context.Context, recipientID string) int {
	box := c.inbox(recipientID, false)
	if box == nil {
		return 0
	}
	box.mu.Lock()
	defer box.mu.Unlock()
	n := 0
	for _, item := range box.items {
		if !item.Read {
			n++
		}
	}
	return n
}
