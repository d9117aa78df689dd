package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRespondOKWrapsData(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondOK(rec, map[string]string{"content": "hi"})

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var body struct {
		Success bool              `json:"success"`
		Data    map[string]string `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if !body.Success || body.Data["content"] != "hi" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestRespondFailOmitsData(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondFail(rec, http.StatusBadRequest, "病历记录不存在")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body["success"] != false || body["message"] != "病历记录不存在" {
		t.Fatalf("unexpected body %v", body)
	}
	if _, ok := body["data"]; ok {
		t.Fatal("failure envelope must not carry data")
	}
}
