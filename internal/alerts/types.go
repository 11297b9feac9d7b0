package alerts

import "time"

// Task type constants
const (
	TaskNotify = "notify:create"
)

const queueNotifications = "notifications"

type NotificationType string

const (
	TypeMessage NotificationType = "message"
	TypeOffer   NotificationType = "offer"
	TypeSystem  NotificationType = "system"
)

func (t NotificationType) valid() bool {
	return t == TypeMessage || t == TypeOffer || t == TypeSystem
}

// Notification is a one-way alert to a single recipient. JobID and JobTitle
// only reference the job for display.
type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipient_id"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Body        string           `json:"body"`
	CreatedAt   time.Time        `json:"created_at"`
	Read        bool             `json:"read"`
	ReadAt      *time.Time       `json:"read_at"`
	JobID       string           `json:"job_id,omitempty"`
	JobTitle    string           `json:"job_title,omitempty"`
	EventID     string           `json:"event_id,omitempty"`
}

// NotifyInput is also the payload of TaskNotify.
type NotifyInput struct {
	EventID     string           `json:"event_id"`
	RecipientID string           `json:"recipient_id"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Body        string           `json:"body"`
	JobID       string           `json:"job_id,omitempty"`
	JobTitle    string           `json:"job_title,omitempty"`
}

// Filter narrows List.
type Filter struct {
	Type       NotificationType
	UnreadOnly bool
}
