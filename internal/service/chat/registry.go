package chat

import (
	"strings"

	"github.com/vitalog/healthchat/internal/backend"
	"github.com/vitalog/healthchat/internal/model/chat"
)

// Registry tracks the sessions known to the user and which one is active.
// An empty active id means the conversation is not yet bound to a session.
type Registry struct {
	sessions []chat.Session
	activeID string
}

// Replace installs a freshly fetched session list, keeping server order.
func (r *Registry) Replace(infos []backend.SessionInfo) {
	r.sessions = normalizeSessions(infos)
}

// Sessions returns a copy of the session list.
func (r *Registry) Sessions() []chat.Session {
	return append([]chat.Session(nil), r.sessions...)
}

// Latest returns the first session of the server-ordered list.
func (r *Registry) Latest() (chat.Session, bool) {
	if len(r.sessions) == 0 {
		return chat.Session{}, false
	}
	return r.sessions[0], true
}

// Remove drops id from the list and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	for i, s := range r.sessions {
		if s.ID == id {
			r.sessions = append(r.sessions[:i:i], r.sessions[i+1:]...)
			return true
		}
	}
	return false
}

// ActiveID returns the active session id, empty when unbound.
func (r *Registry) ActiveID() string {
	return r.activeID
}

// Bound reports whether the active conversation has a server session id.
func (r *Registry) Bound() bool {
	return r.activeID != ""
}

// Bind makes id the active session.
func (r *Registry) Bind(id string) {
	r.activeID = id
}

// Unbind returns the active conversation to the unbound state.
func (r *Registry) Unbind() {
	r.activeID = ""
}

// normalizeSessions converts wire session items into Sessions once, so the
// rest of the package never has to inspect their shape.
func normalizeSessions(infos []backend.SessionInfo) []chat.Session {
	out := make([]chat.Session, 0, len(infos))
	seen := make(map[string]struct{}, len(infos))
	for _, info := range infos {
		id := strings.TrimSpace(info.SessionID)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		title := strings.TrimSpace(info.Title)
		if title == "" {
			title = chat.DefaultSessionTitle
		}
		out = append(out, chat.Session{
			ID:             id,
			Title:          title,
			LastActivityAt: info.LastActivity(),
			MessageCount:   info.MessageCount,
		})
	}
	return out
}
