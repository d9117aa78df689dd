package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func newTestServer(t *testing.T, register func(r chi.Router)) (*httptest.Server, *Client) {
	t.Helper()
	r := chi.NewRouter()
	register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, NewClient(srv.URL+"/api", WithTokenSource(StaticToken("tok-123")))
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestSendChatCarriesSessionAndToken(t *testing.T) {
	var gotAuth, gotRequestID string
	var gotBody map[string]any

	_, client := newTestServer(t, func(r chi.Router) {
		r.Post("/api/chat", func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotRequestID = r.Header.Get("X-Request-ID")
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			writeJSON(w, http.StatusOK, `{"success":true,"data":{"content":"您有 3 份病历","sessionId":"s1","createdAt":"2024-05-01T10:00:00"}}`)
		})
	})

	reply, err := client.SendChat(context.Background(), "我有几份病历？", "")
	if err != nil {
		t.Fatalf("SendChat err: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotRequestID == "" {
		t.Fatal("expected request id header")
	}
	if gotBody["message"] != "我有几份病历？" {
		t.Fatalf("unexpected message %v", gotBody["message"])
	}
	if _, ok := gotBody["sessionId"]; ok {
		t.Fatalf("fresh conversation must not send a session id, got %v", gotBody["sessionId"])
	}
	if reply.SessionID != "s1" || reply.Content != "您有 3 份病历" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)
	if got := reply.CreatedAtOr(time.Time{}); !got.Equal(want) {
		t.Fatalf("unexpected createdAt %s", got)
	}
}

func TestSendChatWithBoundSession(t *testing.T) {
	var gotBody map[string]any
	_, client := newTestServer(t, func(r chi.Router) {
		r.Post("/api/chat", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			writeJSON(w, http.StatusOK, `{"success":true,"data":{"content":"ok","sessionId":"s1"}}`)
		})
	})

	if _, err := client.SendChat(context.Background(), "hi", "s1"); err != nil {
		t.Fatalf("SendChat err: %v", err)
	}
	if gotBody["sessionId"] != "s1" {
		t.Fatalf("expected session id s1, got %v", gotBody["sessionId"])
	}
}

func TestAnalyzeImageTargetsRecord(t *testing.T) {
	var gotRecord, gotMessage string
	_, client := newTestServer(t, func(r chi.Router) {
		r.Post("/api/chat/analyze-image/{recordID}", func(w http.ResponseWriter, r *http.Request) {
			gotRecord = chi.URLParam(r, "recordID")
			var body chatRequest
			_ = json.NewDecoder(r.Body).Decode(&body)
			gotMessage = body.Message
			writeJSON(w, http.StatusOK, `{"success":true,"data":{"content":"影像未见异常"}}`)
		})
	})

	reply, err := client.AnalyzeImage(context.Background(), "5", "请分析这张医疗图片")
	if err != nil {
		t.Fatalf("AnalyzeImage err: %v", err)
	}
	if gotRecord != "5" || gotMessage != "请分析这张医疗图片" {
		t.Fatalf("unexpected request record=%s message=%s", gotRecord, gotMessage)
	}
	if reply.SessionID != "" {
		t.Fatalf("unexpected session id %q", reply.SessionID)
	}
}

func TestClassifiesFailures(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		body     string
		reported bool
	}{
		{"success false", http.StatusOK, `{"success":false,"message":"用户不存在"}`, true},
		{"bad request envelope", http.StatusBadRequest, `{"success":false,"message":"病历记录不存在"}`, true},
		{"missing data", http.StatusOK, `{"success":true}`, true},
		{"missing content", http.StatusOK, `{"success":true,"data":{"sessionId":"s1"}}`, true},
		{"not an envelope", http.StatusOK, `<html>oops</html>`, true},
		{"gateway error", http.StatusBadGateway, `<html>bad gateway</html>`, false},
		{"server error without envelope", http.StatusInternalServerError, `{"status":500,"error":"Internal Server Error"}`, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, client := newTestServer(t, func(r chi.Router) {
				r.Post("/api/chat", func(w http.ResponseWriter, r *http.Request) {
					writeJSON(w, tc.status, tc.body)
				})
			})

			_, err := client.SendChat(context.Background(), "hi", "")
			if err == nil {
				t.Fatal("expected error")
			}
			if IsReported(err) != tc.reported {
				t.Fatalf("IsReported=%v, want %v (err=%v)", IsReported(err), tc.reported, err)
			}
		})
	}
}

func TestTransportFailureWhenServerUnreachable(t *testing.T) {
	srv, client := newTestServer(t, func(r chi.Router) {})
	srv.Close()

	_, err := client.SendChat(context.Background(), "hi", "")
	if err == nil {
		t.Fatal("expected transport error")
	}
	if IsReported(err) {
		t.Fatalf("connection failure must not be classified as reported: %v", err)
	}
}

func TestTokenSourceErrorAbortsRequest(t *testing.T) {
	called := false
	srv, _ := newTestServer(t, func(r chi.Router) {
		r.Get("/api/chat/sessions", func(w http.ResponseWriter, r *http.Request) {
			called = true
		})
	})
	client := NewClient(srv.URL+"/api", WithTokenSource(TokenFunc(func(context.Context) (string, error) {
		return "", errors.New("logged out")
	})))

	if _, err := client.Sessions(context.Background()); err == nil {
		t.Fatal("expected token error")
	}
	if called {
		t.Fatal("request must not be sent without a token")
	}
}

func TestSessionsAcceptObjectsAndBareIDs(t *testing.T) {
	_, client := newTestServer(t, func(r chi.Router) {
		r.Get("/api/chat/sessions", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"success":true,"data":[
				{"sessionId":"s2","title":"血压问题","lastMessageTime":"2024-05-02T08:30:00","messageCount":4},
				"s1"
			]}`)
		})
	})

	sessions, err := client.Sessions(context.Background())
	if err != nil {
		t.Fatalf("Sessions err: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].SessionID != "s2" || sessions[0].Title != "血压问题" || sessions[0].MessageCount != 4 {
		t.Fatalf("unexpected first session %+v", sessions[0])
	}
	if sessions[0].LastActivity() == nil {
		t.Fatal("expected last activity on first session")
	}
	if sessions[1].SessionID != "s1" || sessions[1].LastActivity() != nil {
		t.Fatalf("unexpected bare session %+v", sessions[1])
	}
}

func TestHistoryAndDelete(t *testing.T) {
	deleted := ""
	_, client := newTestServer(t, func(r chi.Router) {
		r.Get("/api/chat/history/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"success":true,"data":[
				{"role":"user","content":"你好","createdAt":"2024-05-02T08:30:00.123"},
				{"role":"assistant","content":"您好！","createdAt":"2024-05-02T08:30:05Z"}
			]}`)
		})
		r.Delete("/api/chat/sessions/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
			deleted = chi.URLParam(r, "sessionID")
			writeJSON(w, http.StatusOK, `{"success":true,"message":"会话已删除"}`)
		})
	})

	entries, err := client.History(context.Background(), "s1")
	if err != nil {
		t.Fatalf("History err: %v", err)
	}
	if len(entries) != 2 || entries[0].Role != "user" || entries[1].Content != "您好！" {
		t.Fatalf("unexpected history %+v", entries)
	}
	if entries[1].CreatedAt == nil || entries[1].CreatedAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp for zoned value, got %+v", entries[1].CreatedAt)
	}

	if err := client.DeleteSession(context.Background(), "s1"); err != nil {
		t.Fatalf("DeleteSession err: %v", err)
	}
	if deleted != "s1" {
		t.Fatalf("unexpected deleted id %q", deleted)
	}
}

func TestUnparseableTimestampsDoNotFailPayload(t *testing.T) {
	_, client := newTestServer(t, func(r chi.Router) {
		r.Post("/api/chat", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"success":true,"data":{"content":"您有 3 份病历","sessionId":"s1","createdAt":"2024/03/12 10:00"}}`)
		})
		r.Get("/api/chat/history/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"success":true,"data":[
				{"role":"user","content":"你好","createdAt":12345},
				{"role":"assistant","content":"您好！","createdAt":"yesterday"},
				{"role":"user","content":"再见","createdAt":"2024-05-02T08:30:00"}
			]}`)
		})
	})

	reply, err := client.SendChat(context.Background(), "我有几份病历？", "")
	if err != nil {
		t.Fatalf("SendChat err: %v", err)
	}
	if reply.Content != "您有 3 份病历" || reply.SessionID != "s1" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	fallback := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	if got := reply.CreatedAtOr(fallback); !got.Equal(fallback) {
		t.Fatalf("bad timestamp should fall back, got %s", got)
	}

	entries, err := client.History(context.Background(), "s1")
	if err != nil {
		t.Fatalf("History err: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if !entries[0].CreatedAt.IsZero() || !entries[1].CreatedAt.IsZero() || entries[2].CreatedAt.IsZero() {
		t.Fatalf("unexpected timestamps %+v", entries)
	}
}

func TestRecordsDecodeNumericIDs(t *testing.T) {
	_, client := newTestServer(t, func(r chi.Router) {
		r.Get("/api/records", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"success":true,"data":[
				{"id":5,"title":"CT报告","filePath":"https://x/ct.png","fileType":"image/png","recordType":"检查报告","recordDate":"2024-03-12"},
				{"id":"r-9","title":"处方","filePath":null,"fileType":null}
			]}`)
		})
	})

	records, err := client.Records(context.Background())
	if err != nil {
		t.Fatalf("Records err: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != "5" || !records[0].HasImage() {
		t.Fatalf("unexpected first record %+v", records[0])
	}
	if records[1].ID != "r-9" || records[1].HasImage() {
		t.Fatalf("unexpected second record %+v", records[1])
	}
}

func TestParseTimeRejectsGarbage(t *testing.T) {
	if _, err := ParseTime("yesterday"); err == nil {
		t.Fatal("expected parse error")
	}
}
