package chat

import (
	"time"

	"github.com/vitalog/healthchat/internal/metrics"
)

// EventType names a state transition of the conversation screen.
type EventType string

const (
	// EventSnapshot is sent by transports when a subscriber first connects.
	EventSnapshot           EventType = "snapshot"
	EventConversationReset  EventType = "conversation.reset"
	EventHistoryLoading     EventType = "history.loading"
	EventHistoryLoaded      EventType = "history.loaded"
	EventHistoryFailed      EventType = "history.failed"
	EventSessionBound       EventType = "session.bound"
	EventSessionsRefreshed  EventType = "sessions.refreshed"
	EventRecordsLoaded      EventType = "records.loaded"
	EventAttachmentSelected EventType = "attachment.selected"
	EventAttachmentCleared  EventType = "attachment.cleared"
	EventTurnPending        EventType = "turn.pending"
	EventTurnConfirmed      EventType = "turn.confirmed"
	EventTurnFailed         EventType = "turn.failed"
	EventSessionDeleted     EventType = "session.deleted"
	EventInputChanged       EventType = "input.changed"
)

// Event carries the state right after a transition.
type Event struct {
	Type  EventType `json:"type"`
	At    time.Time `json:"timestamp"`
	State State     `json:"state"`
}

// Subscribe registers a listener. Events are dropped for a subscriber whose
// buffer is full, so a slow reader only misses intermediate states. The
// returned function unsubscribes and closes the channel.
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()
	metrics.EventSubscribers.Inc()

	var once bool
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if once {
			return
		}
		once = true
		delete(m.subs, id)
		close(ch)
		metrics.EventSubscribers.Dec()
	}
}

func (m *Manager) publishLocked(typ EventType) {
	if len(m.subs) == 0 {
		return
	}

	evt := Event{Type: typ, At: m.now(), State: m.snapshotLocked()}
	for id, ch := range m.subs {
		select {
		case ch <- evt:
		default:
			m.logger.Debug().Int("subscriber", id).Str("event", string(typ)).Msg("subscriber buffer full, event dropped")
		}
	}
}
