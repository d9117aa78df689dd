package chat_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vitalog/healthchat/internal/backend"
	"github.com/vitalog/healthchat/internal/model/record"
)

type sendCall struct {
	Shape     string
	Message   string
	SessionID string
	RecordID  string
}

type sendResult struct {
	reply backend.Reply
	err   error
}

// fakeBackend is an in-memory Backend whose calls can be held open with gates.
type fakeBackend struct {
	mu sync.Mutex

	sessions     []backend.SessionInfo
	sessionsErr  error
	sessionCalls int
	records      []record.Record
	recordsErr   error
	history      map[string][]backend.HistoryEntry
	historyErr   error
	historyCalls []string
	deleteErr    error
	deleted      []string

	results []sendResult
	sends   []sendCall

	sendGate    chan struct{}
	historyGate map[string]chan struct{}
	entered     chan string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		history:     make(map[string][]backend.HistoryEntry),
		historyGate: make(map[string]chan struct{}),
		entered:     make(chan string, 64),
	}
}

func (f *fakeBackend) queue(reply backend.Reply, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, sendResult{reply: reply, err: err})
}

func (f *fakeBackend) sent() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendCall(nil), f.sends...)
}

func (f *fakeBackend) setSessions(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = nil
	for _, id := range ids {
		f.sessions = append(f.sessions, backend.SessionInfo{SessionID: id, Title: "会话 " + id})
	}
}

func (f *fakeBackend) signal(name string) {
	select {
	case f.entered <- name:
	default:
	}
}

func (f *fakeBackend) SendChat(ctx context.Context, message, sessionID string) (backend.Reply, error) {
	return f.send(ctx, sendCall{Shape: "chat", Message: message, SessionID: sessionID})
}

func (f *fakeBackend) AnalyzeImage(ctx context.Context, recordID, message string) (backend.Reply, error) {
	return f.send(ctx, sendCall{Shape: "image", Message: message, RecordID: recordID})
}

func (f *fakeBackend) send(ctx context.Context, call sendCall) (backend.Reply, error) {
	f.mu.Lock()
	f.sends = append(f.sends, call)
	gate := f.sendGate
	res := sendResult{reply: backend.Reply{Content: "好的"}}
	if len(f.results) > 0 {
		res = f.results[0]
		f.results = f.results[1:]
	}
	f.mu.Unlock()

	f.signal("send")
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return backend.Reply{}, ctx.Err()
		}
	}
	return res.reply, res.err
}

func (f *fakeBackend) History(ctx context.Context, sessionID string) ([]backend.HistoryEntry, error) {
	f.mu.Lock()
	f.historyCalls = append(f.historyCalls, sessionID)
	gate := f.historyGate[sessionID]
	entries := append([]backend.HistoryEntry(nil), f.history[sessionID]...)
	err := f.historyErr
	f.mu.Unlock()

	f.signal("history:" + sessionID)
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (f *fakeBackend) Sessions(context.Context) ([]backend.SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionCalls++
	if f.sessionsErr != nil {
		return nil, f.sessionsErr
	}
	return append([]backend.SessionInfo(nil), f.sessions...), nil
}

func (f *fakeBackend) DeleteSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, sessionID)
	for i, s := range f.sessions {
		if s.SessionID == sessionID {
			f.sessions = append(f.sessions[:i:i], f.sessions[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeBackend) Records(context.Context) ([]record.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordsErr != nil {
		return nil, f.recordsErr
	}
	return append([]record.Record(nil), f.records...), nil
}

func waitEntered(t *testing.T, f *fakeBackend, want string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case got := <-f.entered:
			if got == want {
				return
			}
		case <-timeout:
			t.Fatalf("backend call %q never started", want)
		}
	}
}

func historyOf(contents ...string) []backend.HistoryEntry {
	entries := make([]backend.HistoryEntry, 0, len(contents))
	for i, content := range contents {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		entries = append(entries, backend.HistoryEntry{
			Role:      role,
			Content:   content,
			CreatedAt: &backend.Timestamp{Time: time.Date(2024, 5, 2, 8, 30, i, 0, time.UTC)},
		})
	}
	return entries
}
