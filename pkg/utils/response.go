package utils

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Envelope 是健康后端统一的响应结构。
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// RespondOK 发送成功信封
func RespondOK(w http.ResponseWriter, data any) {
	RespondJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// RespondMessage 发送不带数据的成功信封
func RespondMessage(w http.ResponseWriter, message string) {
	RespondJSON(w, http.StatusOK, Envelope{Success: true, Message: message})
}

// RespondFail 发送失败信封
func RespondFail(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, Envelope{Success: false, Message: message})
}
