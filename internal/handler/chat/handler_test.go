package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/vitalog/healthchat/internal/backend"
	"github.com/vitalog/healthchat/internal/model/record"
	chatService "github.com/vitalog/healthchat/internal/service/chat"
)

type stubBackend struct {
	mu        sync.Mutex
	sessions  []backend.SessionInfo
	history   map[string][]backend.HistoryEntry
	deleteErr error
	messages  []string
}

func (s *stubBackend) SendChat(_ context.Context, message, sessionID string) (backend.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	if sessionID == "" {
		sessionID = "s-new"
	}
	return backend.Reply{Content: "回复：" + message, SessionID: sessionID}, nil
}

func (s *stubBackend) AnalyzeImage(_ context.Context, recordID, message string) (backend.Reply, error) {
	return backend.Reply{Content: "分析完成 " + recordID}, nil
}

func (s *stubBackend) History(_ context.Context, sessionID string) ([]backend.HistoryEntry, error) {
	entries, ok := s.history[sessionID]
	if !ok {
		return nil, &backend.StatusError{StatusCode: http.StatusBadGateway}
	}
	return entries, nil
}

func (s *stubBackend) Sessions(context.Context) ([]backend.SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backend.SessionInfo(nil), s.sessions...), nil
}

func (s *stubBackend) DeleteSession(context.Context, string) error {
	return s.deleteErr
}

func (s *stubBackend) Records(context.Context) ([]record.Record, error) {
	return record.Seed(), nil
}

func setupRouter(t *testing.T, stub *stubBackend) (*chi.Mux, *chatService.Manager) {
	t.Helper()
	mgr := chatService.NewManager(stub)
	if err := mgr.Start(context.Background(), chatService.StartOptions{}); err != nil {
		t.Fatalf("Start err: %v", err)
	}

	r := chi.NewRouter()
	New(mgr, zerolog.Nop()).RegisterRoutes(r)
	return r, mgr
}

func serve(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) chatService.State {
	t.Helper()
	var state chatService.State
	if err := json.NewDecoder(rec.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return state
}

func TestSendMessageReturnsOutcomeAndState(t *testing.T) {
	stub := &stubBackend{}
	r, _ := setupRouter(t, stub)

	rec := serve(r, http.MethodPost, "/messages", map[string]string{"message": "你好"})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	var resp struct {
		Outcome string            `json:"outcome"`
		State   chatService.State `json:"state"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Outcome != string(chatService.OutcomeConfirmed) {
		t.Fatalf("unexpected outcome %s", resp.Outcome)
	}
	if resp.State.ActiveSessionID != "s-new" || len(resp.State.Messages) != 3 {
		t.Fatalf("unexpected state %+v", resp.State)
	}
}

func TestSendWithoutMessageSubmitsDraft(t *testing.T) {
	stub := &stubBackend{}
	r, _ := setupRouter(t, stub)

	if rec := serve(r, http.MethodPut, "/input", map[string]string{"text": "给我一些健康建议"}); rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	rec := serve(r, http.MethodPost, "/messages", map[string]any{})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if len(stub.messages) != 1 || stub.messages[0] != "给我一些健康建议" {
		t.Fatalf("draft should be sent, got %v", stub.messages)
	}
}

func TestEmptySendIsRejectedNotFailed(t *testing.T) {
	r, _ := setupRouter(t, &stubBackend{})

	rec := serve(r, http.MethodPost, "/messages", map[string]string{"message": " "})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var resp map[string]any
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if resp["outcome"] != string(chatService.OutcomeRejectedEmpty) {
		t.Fatalf("unexpected outcome %v", resp["outcome"])
	}
}

func TestSelectAndDeleteSession(t *testing.T) {
	stub := &stubBackend{
		sessions: []backend.SessionInfo{{SessionID: "s1", Title: "头痛"}},
		history: map[string][]backend.HistoryEntry{
			"s1": {{Role: "user", Content: "头痛怎么办"}, {Role: "assistant", Content: "注意休息"}},
		},
	}
	r, _ := setupRouter(t, stub)

	state := decodeState(t, serve(r, http.MethodPost, "/sessions/s1/select", nil))
	if state.ActiveSessionID != "s1" || len(state.Messages) != 2 {
		t.Fatalf("unexpected state after select %+v", state)
	}

	if rec := serve(r, http.MethodPost, "/sessions/missing/select", nil); rec.Code != http.StatusBadGateway {
		t.Fatalf("failed history load should be 502, got %d", rec.Code)
	}

	state = decodeState(t, serve(r, http.MethodDelete, "/sessions/s1", nil))
	if state.Bound || len(state.Sessions) != 0 || len(state.Messages) != 1 {
		t.Fatalf("unexpected state after delete %+v", state)
	}
}

func TestDeleteFailureMapsToBadGateway(t *testing.T) {
	stub := &stubBackend{
		sessions:  []backend.SessionInfo{{SessionID: "s1"}},
		history:   map[string][]backend.HistoryEntry{"s1": {}},
		deleteErr: errors.New("connection reset"),
	}
	r, mgr := setupRouter(t, stub)

	if rec := serve(r, http.MethodDelete, "/sessions/s1", nil); rec.Code != http.StatusBadGateway {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if len(mgr.Sessions()) != 1 {
		t.Fatal("session must stay after a failed delete")
	}
}

func TestAttachmentRoutes(t *testing.T) {
	r, mgr := setupRouter(t, &stubBackend{})

	if rec := serve(r, http.MethodPost, "/attachment", map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing recordId should be 400, got %d", rec.Code)
	}
	if rec := serve(r, http.MethodPost, "/attachment", map[string]string{"recordId": "7"}); rec.Code != http.StatusNotFound {
		t.Fatalf("non-image record should be 404, got %d", rec.Code)
	}

	state := decodeState(t, serve(r, http.MethodPost, "/attachment", map[string]string{"recordId": "5"}))
	if state.PendingAttachment == nil || state.PendingAttachment.Title != "CT报告" {
		t.Fatalf("unexpected pending attachment %+v", state.PendingAttachment)
	}

	state = decodeState(t, serve(r, http.MethodDelete, "/attachment", nil))
	if state.PendingAttachment != nil || mgr.Snapshot().PendingAttachment != nil {
		t.Fatal("attachment should be cleared")
	}
}

func TestAnalyzeRecordRoute(t *testing.T) {
	r, _ := setupRouter(t, &stubBackend{})

	state := decodeState(t, serve(r, http.MethodPost, "/records/analyze", record.Seed()[1]))
	if state.PendingAttachment == nil || state.PendingAttachment.RecordID != "6" {
		t.Fatalf("unexpected pending attachment %+v", state.PendingAttachment)
	}
	if state.Input != "请帮我详细分析这份病历：血常规化验单" {
		t.Fatalf("unexpected input %q", state.Input)
	}

	if rec := serve(r, http.MethodPost, "/records/analyze", record.Seed()[3]); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("record without image should be 422, got %d", rec.Code)
	}
}

func TestListRoutes(t *testing.T) {
	stub := &stubBackend{sessions: []backend.SessionInfo{{SessionID: "s1"}, {SessionID: "s2"}}, history: map[string][]backend.HistoryEntry{"s1": {}}}
	r, _ := setupRouter(t, stub)

	var sessions []map[string]any
	_ = json.NewDecoder(serve(r, http.MethodGet, "/sessions", nil).Body).Decode(&sessions)
	if len(sessions) != 2 {
		t.Fatalf("unexpected sessions %v", sessions)
	}

	stub.mu.Lock()
	stub.sessions = stub.sessions[:1]
	stub.mu.Unlock()
	sessions = nil
	_ = json.NewDecoder(serve(r, http.MethodPost, "/sessions/refresh", nil).Body).Decode(&sessions)
	if len(sessions) != 1 {
		t.Fatalf("refresh should reflect the backend, got %v", sessions)
	}

	var records []record.Record
	_ = json.NewDecoder(serve(r, http.MethodGet, "/records", nil).Body).Decode(&records)
	if len(records) != 2 {
		t.Fatalf("only attachable records are listed, got %d", len(records))
	}

	state := decodeState(t, serve(r, http.MethodPost, "/sessions/new", nil))
	if state.Bound || len(state.Messages) != 1 {
		t.Fatalf("unexpected state after new conversation %+v", state)
	}
}
