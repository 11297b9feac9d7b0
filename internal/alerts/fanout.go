package alerts

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/sudo-init-do/skygig/internal/events"
)

const messagePreviewLen = 140

// Fanout turns domain events into notifications. It runs as an async
// subscriber so senders never wait on it.
type Fanout struct {
	dispatch Dispatcher

	mu        sync.Mutex
	jobTitles map[string]string
}

func NewFanout(d Dispatcher) *Fanout {
	return &Fanout{dispatch: d, jobTitles: make(map[string]string)}
}

// Subscribe registers the fan-out on b's async path.
func (f *Fanout) Subscribe(b *events.Bus) {
	b.Subscribe("notify", f.HandleEvent,
		events.JobCreated, events.JobPublished, events.JobUpdated, events.JobClosed,
		events.ApplicationSubmitted, events.ApplicationDecided,
		events.MessageSent, events.StageCompleted)
}

func (f *Fanout) title(jobID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobTitles[jobID]
}

// HandleEvent dispatches the notifications one event produces.
func (f *Fanout) HandleEvent(ctx context.Context, ev events.Event) {
	for _, in := range f.notificationsFor(ev) {
		in.EventID = ev.ID
		if err := f.dispatch.Dispatch(ctx, in); err != nil {
			log.Printf("[notify][ERROR] %s for %s: %v", ev.Type, in.RecipientID, err)
			continue
		}
		log.Printf("[notify] %s -> %s (%s)", ev.Type, in.RecipientID, in.Type)
	}
}

func (f *Fanout) notificationsFor(ev events.Event) []NotifyInput {
	switch p := ev.Payload.(type) {
	case events.JobPayload:
		f.mu.Lock()
		f.jobTitles[p.JobID] = p.Title
		f.mu.Unlock()
		return nil

	case events.ApplicationPayload:
		title := f.title(p.JobID)
		switch ev.Type {
		case events.ApplicationSubmitted:
			return []NotifyInput{{
				RecipientID: p.PosterID,
				Type:        TypeSystem,
				Title:       "New applicant",
				Body:        fmt.Sprintf("%s applied to %q.", p.CandidateID, title),
				JobID:       p.JobID,
				JobTitle:    title,
			}}
		case events.ApplicationDecided:
			verdict := "approved"
			if p.Status != verdict {
				verdict = "rejected"
			}
			return []NotifyInput{{
				RecipientID: p.CandidateID,
				Type:        TypeOffer,
				Title:       "Application " + verdict,
				Body:        fmt.Sprintf("Your application for %q was %s.", title, verdict),
				JobID:       p.JobID,
				JobTitle:    title,
			}}
		}

	case events.MessagePayload:
		title := f.title(p.JobID)
		return []NotifyInput{{
			RecipientID: p.RecipientID,
			Type:        TypeMessage,
			Title:       "New message",
			Body:        preview(p.Text),
			JobID:       p.JobID,
			JobTitle:    title,
		}}

	case events.StagePayload:
		recipient := p.CandidateID
		if p.ActorID == p.CandidateID {
			recipient = p.PosterID
		}
		title := f.title(p.JobID)
		return []NotifyInput{{
			RecipientID: recipient,
			Type:        TypeSystem,
			Title:       "Job marked complete",
			Body:        fmt.Sprintf("%q was marked complete by %s.", title, p.ActorID),
			JobID:       p.JobID,
			JobTitle:    title,
		}}
	}
	return nil
}

func preview(text string) string {
	r := []rune(text)
	if len(r) <= messagePreviewLen {
		return text
	}
	return string(r[:messagePreviewLen-1]) + "…"
}
