package chat

import (
	"time"

	"github.com/vitalog/healthchat/internal/model/chat"
)

// Timeline is the ordered message sequence of the active conversation.
// Order is insertion order; timestamps are informational only.
type Timeline struct {
	messages []chat.Message
}

// Append adds msg to the end and returns its index.
func (t *Timeline) Append(msg chat.Message) int {
	t.messages = append(t.messages, msg)
	return len(t.messages) - 1
}

// ReplaceAll discards the current contents, including a seeded greeting.
func (t *Timeline) ReplaceAll(msgs []chat.Message) {
	t.messages = append(make([]chat.Message, 0, len(msgs)), msgs...)
}

// Reset empties the timeline.
func (t *Timeline) Reset() {
	t.messages = nil
}

// SeedWelcome inserts the local greeting into an empty, unbound conversation.
// It reports whether the greeting was added.
func (t *Timeline) SeedWelcome(now time.Time, bound bool) bool {
	if bound || len(t.messages) > 0 {
		return false
	}
	t.messages = append(t.messages, chat.Message{
		Role:      chat.RoleAssistant,
		Content:   WelcomeMessage,
		CreatedAt: now,
		Delivery:  chat.DeliveryConfirmed,
	})
	return true
}

// Mark moves the message at index to state. Out-of-range indexes are ignored.
func (t *Timeline) Mark(index int, state chat.DeliveryState) bool {
	if index < 0 || index >= len(t.messages) {
		return false
	}
	t.messages[index].Delivery = state
	return true
}

// Len returns the number of messages.
func (t *Timeline) Len() int {
	return len(t.messages)
}

// Messages returns a copy of the timeline.
func (t *Timeline) Messages() []chat.Message {
	out := make([]chat.Message, len(t.messages))
	for i, msg := range t.messages {
		if msg.Attachment != nil {
			ref := *msg.Attachment
			msg.Attachment = &ref
		}
		out[i] = msg
	}
	return out
}
