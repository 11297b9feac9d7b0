package events

import (
	"context"
	"time"
)

// Event type constants
const (
	JobCreated   = "job:created"
	JobPublished = "job:published"
	JobClosed    = "job:closed"
	JobUpdated   = "job:updated"
	JobDeleted   = "job:deleted"

	ApplicationSubmitted = "application:submitted"
	ApplicationDecided   = "application:decided"
	ApplicationWithdrawn = "application:withdrawn"

	StageCompleted       = "stage:completed"
	StageProgressUpdated = "stage:progress_updated"

	ConversationOpened = "conversation:opened"
	ConversationClosed = "conversation:closed"
	ConversationRead   = "conversation:read"
	MessageSent        = "message:sent"
	MessagesDelivered  = "message:delivered"
)

// Event is one committed state change of a single aggregate.
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	AggregateID string    `json:"aggregate_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Payload     any       `json:"payload"`
}

// JobPayload accompanies every job:* event.
type JobPayload struct {
	JobID     string    `json:"job_id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	PostedAt  time.Time `json:"posted_at"`
	ExpiredAt time.Time `json:"expired_at"`
}

// ApplicationPayload accompanies every application:* event.
type ApplicationPayload struct {
	ApplicantID string    `json:"applicant_id"`
	JobID       string    `json:"job_id"`
	CandidateID string    `json:"candidate_id"`
	PosterID    string    `json:"poster_id"`
	Status      string    `json:"status"`
	AppliedAt   time.Time `json:"applied_at"`
}

// StagePayload accompanies stage:* events raised by the match hub.
type StagePayload struct {
	JobID       string `json:"job_id"`
	CandidateID string `json:"candidate_id"`
	PosterID    string `json:"poster_id"`
	ActorID     string `json:"actor_id"`
	ProgressPct int    `json:"progress_pct"`
}

// MessagePayload accompanies message:sent.
type MessagePayload struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	JobID          string    `json:"job_id"`
	SenderID       string    `json:"sender_id"`
	RecipientID    string    `json:"recipient_id"`
	Text           string    `json:"text"`
	Status         string    `json:"status"`
	Seq            int64     `json:"seq"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationPayload accompanies conversation:* and message:delivered events.
// MessageIDs lists the messages whose status changed, if any.
type ConversationPayload struct {
	ConversationID string   `json:"conversation_id"`
	JobID          string   `json:"job_id"`
	UserID         string   `json:"user_id"`
	Participants   []string `json:"participants"`
	MessageIDs     []string `json:"message_ids,omitempty"`
}

// Publisher is what stores need from the bus.
type Publisher interface {
	Publish(ctx context.Context, ev Event) Event
}
