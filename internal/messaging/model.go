package messaging

import "time"

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

func (s MessageStatus) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// Message is one entry of a conversation. Seq orders messages within the
// conversation; CreatedAt is informational.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	RecipientID    string        `json:"recipient_id"`
	Text           string        `json:"text"`
	Status         MessageStatus `json:"status"`
	Seq            int64         `json:"seq"`
	CreatedAt      time.Time     `json:"created_at"`
	DeliveredAt    *time.Time    `json:"delivered_at,omitempty"`
	ReadAt         *time.Time    `json:"read_at,omitempty"`
}

// advance moves m forward to next. It never moves backwards.
func (m *Message) advance(next MessageStatus, at time.Time) bool {
	if next.rank() <= m.Status.rank() {
		return false
	}
	if m.DeliveredAt == nil {
		t := at
		m.DeliveredAt = &t
	}
	if next == StatusRead {
		t := at
		m.ReadAt = &t
	}
	m.Status = next
	return true
}

// Conversation is a 1:1 thread about one job, as seen by one participant.
type Conversation struct {
	ID            string     `json:"id"`
	JobID         string     `json:"job_id"`
	Participants  [2]string  `json:"participants"`
	LastMessageID string     `json:"last_message_id,omitempty"`
	LastMessage   string     `json:"last_message,omitempty"`
	LastAt        *time.Time `json:"last_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	Closed        bool       `json:"closed"`

	// Viewer-specific fields.
	Unread int  `json:"unread"`
	Pinned bool `json:"pinned"`
}

// Other returns the participant that is not userID.
func (c Conversation) Other(userID string) string {
	if c.Participants[0] == userID {
		return c.Participants[1]
	}
	return c.Participants[0]
}

func (c Conversation) has(userID string) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// sortKey is when the conversation last changed.
func (c Conversation) sortKey() time.Time {
	if c.LastAt != nil {
		return *c.LastAt
	}
	return c.CreatedAt
}
