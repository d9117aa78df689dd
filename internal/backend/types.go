package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/vitalog/healthchat/internal/model/record"
)

// envelope wraps every backend answer.
type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// chatRequest is the body of a plain or image-analysis turn.
type chatRequest struct {
	Message   string  `json:"message"`
	SessionID *string `json:"sessionId,omitempty"`
}

// Reply is the assistant answer to one turn.
type Reply struct {
	Role      string     `json:"role,omitempty"`
	Content   string     `json:"content"`
	SessionID string     `json:"sessionId,omitempty"`
	CreatedAt *Timestamp `json:"createdAt,omitempty"`
}

// CreatedAtOr returns the reply timestamp, or fallback when the backend sent none.
func (r Reply) CreatedAtOr(fallback time.Time) time.Time {
	if t := timePtr(r.CreatedAt); t != nil {
		return *t
	}
	return fallback
}

// HistoryEntry is one persisted message of a session.
type HistoryEntry struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	CreatedAt *Timestamp `json:"createdAt,omitempty"`
}

// SessionInfo is one item of the session list. The backend has been seen to
// return either full objects or bare session id strings.
type SessionInfo struct {
	SessionID       string     `json:"sessionId"`
	Title           string     `json:"title,omitempty"`
	LastMessageTime *Timestamp `json:"lastMessageTime,omitempty"`
	MessageCount    int        `json:"messageCount,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *SessionInfo) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var id string
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return err
		}
		*s = SessionInfo{SessionID: id}
		return nil
	}

	type plain SessionInfo
	var decoded plain
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return err
	}
	*s = SessionInfo(decoded)
	return nil
}

// LastActivity returns the last message time, if known.
func (s SessionInfo) LastActivity() *time.Time {
	return timePtr(s.LastMessageTime)
}

// flexibleID accepts numeric or string identifiers.
type flexibleID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *flexibleID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*id = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		s, err := strconv.Unquote(string(trimmed))
		if err != nil {
			return err
		}
		*id = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", trimmed, err)
	}
	*id = flexibleID(n.String())
	return nil
}

type recordPayload struct {
	ID         flexibleID `json:"id"`
	Title      string     `json:"title"`
	FilePath   string     `json:"filePath"`
	FileType   string     `json:"fileType"`
	RecordType string     `json:"recordType"`
	RecordDate string     `json:"recordDate"`
}

func (p recordPayload) toRecord() record.Record {
	return record.Record{
		ID:         string(p.ID),
		Title:      p.Title,
		FilePath:   p.FilePath,
		FileType:   p.FileType,
		RecordType: p.RecordType,
		RecordDate: p.RecordDate,
	}
}
