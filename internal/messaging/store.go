package messaging

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sudo-init-do/skygig/internal/apperr"
	"github.com/sudo-init-do/skygig/internal/clock"
	"github.com/sudo-init-do/skygig/internal/events"
	"github.com/sudo-init-do/skygig/internal/marketplace"
)

const maxMessageLen = 4000

// DeliveryPolicy decides whether a recipient can be reached right now.
// Messages to a reachable recipient are delivered as soon as they are sent.
type DeliveryPolicy interface {
	Reachable(userID string) bool
}

// AlwaysReachable treats every recipient as online.
type AlwaysReachable struct{}

func (AlwaysReachable) Reachable(string) bool { return true }

type convRow struct {
	mu     sync.Mutex
	conv   Conversation // viewer fields unused
	msgs   []*Message   // ordered by seq
	seq    int64
	pinned map[string]bool
}

// view returns the conversation as userID sees it. Callers hold r.mu.
func (r *convRow) view(userID string) Conversation {
	c := r.conv
	c.Pinned = r.pinned[userID]
	for _, m := range r.msgs {
		if m.SenderID != userID && m.Status != StatusRead {
			c.Unread++
		}
	}
	return c
}

type pairKey struct {
	jobID string
	a, b  string // a < b
}

func newPairKey(jobID, x, y string) pairKey {
	if y < x {
		x, y = y, x
	}
	return pairKey{jobID: jobID, a: x, b: y}
}

// Store owns conversations and their messages.
type Store struct {
	clock  clock.Clock
	ids    clock.IDGen
	bus    events.Publisher
	jobs   marketplace.JobReader
	policy DeliveryPolicy

	// mu guards the indexes. It may be held while taking a row lock.
	mu     sync.RWMutex
	rows   map[string]*convRow
	byPair map[pairKey]*convRow
	byUser map[string][]*convRow
}

func NewStore(c clock.Clock, ids clock.IDGen, bus events.Publisher, jobs marketplace.JobReader, policy DeliveryPolicy) *Store {
	if policy == nil {
		policy = AlwaysReachable{}
	}
	return &Store{
		clock:  c,
		ids:    ids,
		bus:    bus,
		jobs:   jobs,
		policy: policy,
		rows:   make(map[string]*convRow),
		byPair: make(map[pairKey]*convRow),
		byUser: make(map[string][]*convRow),
	}
}

// SetDeliveryPolicy swaps the policy. It must be called before the store is
// shared between goroutines.
func (s *Store) SetDeliveryPolicy(p DeliveryPolicy) {
	s.policy = p
}

func (s *Store) publishConversation(ctx context.Context, typ string, c Conversation, userID string, msgIDs []string) {
	s.bus.Publish(ctx, events.Event{
		Type:        typ,
		AggregateID: c.ID,
		OccurredAt:  s.clock.Now(),
		Payload: events.ConversationPayload{
			ConversationID: c.ID,
			JobID:          c.JobID,
			UserID:         userID,
			Participants:   []string{c.Participants[0], c.Participants[1]},
			MessageIDs:     msgIDs,
		},
	})
}

// OpenOrGet returns the conversation between a and b about jobID, creating it
// on first use. One participant must own the job.
func (s *Store) OpenOrGet(ctx context.Context, jobID, a, b string) (Conversation, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" || a == b {
		return Conversation{}, fmt.Errorf("%w: a conversation needs two distinct participants", apperr.ErrValidation)
	}
	key := newPairKey(jobID, a, b)

	s.mu.RLock()
	r, ok := s.byPair[key]
	s.mu.RUnlock()
	if ok {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.view(a), nil
	}

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return Conversation{}, err
	}
	if job.OwnerID != a && job.OwnerID != b {
		return Conversation{}, fmt.Errorf("%w: conversations about job %s must include its poster", apperr.ErrForbidden, jobID)
	}

	s.mu.Lock()
	if r, ok := s.byPair[key]; ok {
		s.mu.Unlock()
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.view(a), nil
	}
	r = &convRow{
		conv: Conversation{
			ID:           s.ids.NewID(),
			JobID:        jobID,
			Participants: [2]string{a, b},
			CreatedAt:    s.clock.Now(),
		},
		pinned: make(map[string]bool),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s.rows[r.conv.ID] = r
	s.byPair[key] = r
	s.byUser[a] = append(s.byUser[a], r)
	s.byUser[b] = append(s.byUser[b], r)
	s.mu.Unlock()

	s.publishConversation(ctx, events.ConversationOpened, r.conv, a, nil)
	return r.view(a), nil
}

func (s *Store) row(id string) (*convRow, error) {
	s.mu.RLock()
	r, ok := s.rows[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: conversation %s", apperr.ErrNotFound, id)
	}
	return r, nil
}

// lockMember locks the conversation row if userID takes part in it.
func (s *Store) lockMember(id, userID string) (*convRow, error) {
	r, err := s.row(id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if !r.conv.has(userID) {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: not a participant in this conversation", apperr.ErrForbidden)
	}
	return r, nil
}

// Send appends a message from senderID. It is delivered immediately when the
// recipient is reachable.
func (s *Store) Send(ctx context.Context, conversationID, senderID, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, fmt.Errorf("%w: message text is empty", apperr.ErrValidation)
	}
	if len([]rune(text)) > maxMessageLen {
		return Message{}, fmt.Errorf("%w: message exceeds %d characters", apperr.ErrValidation, maxMessageLen)
	}

	r, err := s.lockMember(conversationID, senderID)
	if err != nil {
		return Message{}, err
	}
	defer r.mu.Unlock()
	if r.conv.Closed {
		return Message{}, fmt.Errorf("%w: conversation %s is closed", apperr.ErrInvalidState, conversationID)
	}

	now := s.clock.Now()
	r.seq++
	m := &Message{
		ID:             s.ids.NewID(),
		ConversationID: conversationID,
		SenderID:       senderID,
		RecipientID:    r.conv.Other(senderID),
		Text:           text,
		Status:         StatusSent,
		Seq:            r.seq,
		CreatedAt:      now,
	}
	if s.policy.Reachable(m.RecipientID) {
		m.advance(StatusDelivered, now)
	}
	r.msgs = append(r.msgs, m)
	r.conv.LastMessageID = m.ID
	r.conv.LastMessage = m.Text
	r.conv.LastAt = &now

	s.bus.Publish(ctx, events.Event{
		Type:        events.MessageSent,
		AggregateID: conversationID,
		OccurredAt:  now,
		Payload: events.MessagePayload{
			MessageID:      m.ID,
			ConversationID: conversationID,
			JobID:          r.conv.JobID,
			SenderID:       m.SenderID,
			RecipientID:    m.RecipientID,
			Text:           m.Text,
			Status:         string(m.Status),
			Seq:            m.Seq,
			CreatedAt:      m.CreatedAt,
		},
	})
	return *m, nil
}

// advanceFrom moves every message not authored by userID up to next and
// returns the ids that changed. Callers hold r.mu.
func (s *Store) advanceFrom(r *convRow, userID string, next MessageStatus) []string {
	now := s.clock.Now()
	var changed []string
	for _, m := range r.msgs {
		if m.SenderID != userID && m.advance(next, now) {
			changed = append(changed, m.ID)
		}
	}
	return changed
}

// MarkRead marks everything readerID received in the conversation as read.
func (s *Store) MarkRead(ctx context.Context, conversationID, readerID string) (Conversation, error) {
	r, err := s.lockMember(conversationID, readerID)
	if err != nil {
		return Conversation{}, err
	}
	defer r.mu.Unlock()

	if changed := s.advanceFrom(r, readerID, StatusRead); len(changed) > 0 {
		s.publishConversation(ctx, events.ConversationRead, r.conv, readerID, changed)
	}
	return r.view(readerID), nil
}

// MarkDelivered promotes messages waiting for recipientID to delivered.
func (s *Store) MarkDelivered(ctx context.Context, conversationID, recipientID string) (int, error) {
	r, err := s.lockMember(conversationID, recipientID)
	if err != nil {
		return 0, err
	}
	defer r.mu.Unlock()

	changed := s.advanceFrom(r, recipientID, StatusDelivered)
	if len(changed) > 0 {
		s.publishConversation(ctx, events.MessagesDelivered, r.conv, recipientID, changed)
	}
	return len(changed), nil
}

// DeliverPending runs MarkDelivered over every conversation of userID.
func (s *Store) DeliverPending(ctx context.Context, userID string) int {
	s.mu.RLock()
	rows := append([]*convRow(nil), s.byUser[userID]...)
	s.mu.RUnlock()

	total := 0
	for _, r := range rows {
		r.mu.Lock()
		changed := s.advanceFrom(r, userID, StatusDelivered)
		if len(changed) > 0 {
			s.publishConversation(ctx, events.MessagesDelivered, r.conv, userID, changed)
		}
		r.mu.Unlock()
		total += len(changed)
	}
	return total
}

// TogglePin flips userID's pin on the conversation and returns the new value.
func (s *Store) TogglePin(_ context.Context, conversationID, userID string) (bool, error) {
	r, err := s.lockMember(conversationID, userID)
	if err != nil {
		return false, err
	}
	defer r.mu.Unlock()
	r.pinned[userID] = !r.pinned[userID]
	return r.pinned[userID], nil
}

// Close stops further messages. Closing twice is a no-op.
func (s *Store) Close(ctx context.Context, conversationID, actor string) (Conversation, error) {
	r, err := s.lockMember(conversationID, actor)
	if err != nil {
		return Conversation{}, err
	}
	defer r.mu.Unlock()
	if !r.conv.Closed {
		r.conv.Closed = true
		s.publishConversation(ctx, events.ConversationClosed, r.conv, actor, nil)
	}
	return r.view(actor), nil
}

// Get returns the conversation as userID sees it.
func (s *Store) Get(_ context.Context, conversationID, userID string) (Conversation, error) {
	r, err := s.lockMember(conversationID, userID)
	if err != nil {
		return Conversation{}, err
	}
	defer r.mu.Unlock()
	return r.view(userID), nil
}

// List returns userID's conversations, pinned first, then most recent.
func (s *Store) List(_ context.Context, userID string) []Conversation {
	s.mu.RLock()
	rows := append([]*convRow(nil), s.byUser[userID]...)
	s.mu.RUnlock()

	out := make([]Conversation, 0, len(rows))
	for _, r := range rows {
		r.mu.Lock()
		out = append(out, r.view(userID))
		r.mu.Unlock()
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pinned != out[j].Pinned {
			return out[i].Pinned
		}
		return out[i].sortKey().After(out[j].sortKey())
	})
	return out
}

// Messages returns messages with seq greater than since, in seq order.
func (s *Store) Messages(_ context.Context, conversationID, userID string, since int64) ([]Message, error) {
	r, err := s.lockMember(conversationID, userID)
	if err != nil {
		return nil, err
	}
	defer r.mu.Unlock()

	i := sort.Search(len(r.msgs), func(i int) bool { return r.msgs[i].Seq > since })
	out := make([]Message, 0, len(r.msgs)-i)
	for _, m := range r.msgs[i:] {
		out = append(out, *m)
	}
	return out, nil
}

// UnreadTotal sums userID's unread messages over all conversations.
func (s *Store) UnreadTotal(ctx context.Context, userID string) int {
	n := 0
	for _, c := range s.List(ctx, userID) {
		n += c.Unread
	}
	return n
}
