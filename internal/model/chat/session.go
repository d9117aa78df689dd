package chat

import "time"

// DefaultSessionTitle is shown for sessions the backend returned without a title.
const DefaultSessionTitle = "新对话"

// Session is a server-identified conversation thread known to the user.
type Session struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	LastActivityAt *time.Time `json:"lastActivityAt,omitempty"`
	MessageCount   int        `json:"messageCount,omitempty"`
}
