package devbackend

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vitalog/healthchat/internal/model/record"
)

// titleLimit is how many runes of the first user message make a session title.
const titleLimit = 30

// StoredMessage is one persisted turn.
type StoredMessage struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

// SessionSummary describes one session of the list.
type SessionSummary struct {
	ID            string
	Title         string
	LastMessageAt time.Time
	MessageCount  int
}

type conversation struct {
	messages []StoredMessage
}

// Store keeps conversations and records in memory.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*conversation
	records  *record.MemoryStore
	now      func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source used to stamp messages.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a store holding records.
func NewStore(records []record.Record, opts ...StoreOption) *Store {
	s := &Store{
		sessions: make(map[string]*conversation),
		records:  record.NewMemoryStore(records),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveSession returns sessionID, or a newly minted id when it is empty.
func (s *Store) ResolveSession(sessionID string) string {
	if id := strings.TrimSpace(sessionID); id != "" {
		return id
	}
	return uuid.NewString()
}

// Append stores a message, creating the session on first use.
func (s *Store) Append(sessionID, role, content string) StoredMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := StoredMessage{Role: role, Content: content, CreatedAt: s.now()}

	conv, ok := s.sessions[sessionID]
	if !ok {
		conv = &conversation{messages: make([]StoredMessage, 0, 16)}
		s.sessions[sessionID] = conv
	}
	conv.messages = append(conv.messages, msg)
	return msg
}

// History returns the messages of a session in insertion order. Unknown
// sessions have an empty history.
func (s *Store) History(sessionID string) []StoredMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.sessions[sessionID]
	if !ok {
		return []StoredMessage{}
	}
	copied := make([]StoredMessage, len(conv.messages))
	copy(copied, conv.messages)
	return copied
}

// Sessions lists sessions, most recently active first.
func (s *Store) Sessions() []SessionSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SessionSummary, 0, len(s.sessions))
	for id, conv := range s.sessions {
		if len(conv.messages) == 0 {
			continue
		}
		out = append(out, SessionSummary{
			ID:            id,
			Title:         sessionTitle(conv.messages),
			LastMessageAt: conv.messages[len(conv.messages)-1].CreatedAt,
			MessageCount:  len(conv.messages),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Delete removes a session. Deleting an unknown session is not an error.
func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Records returns all records.
func (s *Store) Records() []record.Record {
	return s.records.List()
}

// FindRecord looks up a record by id.
func (s *Store) FindRecord(id string) (record.Record, bool) {
	return s.records.FindByID(id)
}

func sessionTitle(messages []StoredMessage) string {
	for _, msg := range messages {
		if msg.Role != "user" || msg.Content == "" {
			continue
		}
		runes := []rune(msg.Content)
		if len(runes) > titleLimit {
			return string(runes[:titleLimit]) + "..."
		}
		return msg.Content
	}
	return "新对话"
}
