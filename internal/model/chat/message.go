package chat

import "time"

// Role identifies who authored a timeline entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DeliveryState tracks an entry from optimistic insertion to server confirmation.
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryConfirmed DeliveryState = "confirmed"
	DeliveryFailed    DeliveryState = "failed"
)

// AttachmentRef points at a stored medical record image used to ground one turn.
type AttachmentRef struct {
	RecordID string `json:"recordId"`
	Title    string `json:"title"`
	ImageURL string `json:"imageUrl"`
}

// Message is a single entry of a conversation timeline.
type Message struct {
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	CreatedAt  time.Time      `json:"createdAt,omitzero"`
	Attachment *AttachmentRef `json:"attachment,omitempty"`
	Delivery   DeliveryState  `json:"deliveryState"`
}
