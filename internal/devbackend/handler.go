// Package devbackend is an in-memory stand-in for the health backend's chat
// and record API, used for local runs and end-to-end tests.
package devbackend

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/vitalog/healthchat/internal/model/record"
	"github.com/vitalog/healthchat/internal/service/ai"
	"github.com/vitalog/healthchat/pkg/utils"
)

// defaultImageQuestion is used when an analysis request carries no message.
const defaultImageQuestion = "请详细分析这张医疗图片的内容"

// localTimeLayout mirrors the zone-less timestamps of the production backend.
const localTimeLayout = "2006-01-02T15:04:05.000"

type localTime time.Time

func (t localTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).Local().Format(localTimeLayout))
}

type chatResponse struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	SessionID string    `json:"sessionId"`
	CreatedAt localTime `json:"createdAt"`
}

type sessionResponse struct {
	SessionID       string    `json:"sessionId"`
	Title           string    `json:"title"`
	LastMessageTime localTime `json:"lastMessageTime"`
	MessageCount    int       `json:"messageCount"`
}

// Handler 开发后端的HTTP处理器
type Handler struct {
	store     *Store
	responder Responder
	logger    zerolog.Logger
}

// New 创建处理器
func New(store *Store, responder Responder, logger zerolog.Logger) *Handler {
	if responder == nil {
		responder = EchoResponder{}
	}
	return &Handler{
		store:     store,
		responder: responder,
		logger:    logger.With().Str("component", "devbackend").Logger(),
	}
}

// RegisterRoutes 注册聊天与病历路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Post("/chat/analyze-image/{recordID}", h.handleAnalyzeImage)
	r.Get("/chat/history/{sessionID}", h.handleHistory)
	r.Get("/chat/sessions", h.handleSessions)
	r.Delete("/chat/sessions/{sessionID}", h.handleDeleteSession)
	r.Get("/records", h.handleRecords)
}

// handleChat 发送消息
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message   string  `json:"message"`
		SessionID *string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondFail(w, http.StatusBadRequest, "请求格式错误")
		return
	}

	message := strings.TrimSpace(payload.Message)
	if message == "" {
		utils.RespondFail(w, http.StatusBadRequest, "消息内容不能为空")
		return
	}

	var requested string
	if payload.SessionID != nil {
		requested = *payload.SessionID
	}
	sessionID := h.store.ResolveSession(requested)

	history := toTurns(h.store.History(sessionID))
	h.store.Append(sessionID, "user", message)

	content, err := h.responder.Reply(r.Context(), h.store.Records(), history, message)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("generate reply failed")
		utils.RespondFail(w, http.StatusInternalServerError, "AI 服务暂时不可用")
		return
	}

	stored := h.store.Append(sessionID, "assistant", content)
	utils.RespondOK(w, chatResponse{
		Role:      stored.Role,
		Content:   stored.Content,
		SessionID: sessionID,
		CreatedAt: localTime(stored.CreatedAt),
	})
}

// handleAnalyzeImage 分析病历图片
func (h *Handler) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "recordID")

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondFail(w, http.StatusBadRequest, "请求格式错误")
		return
	}
	message := strings.TrimSpace(payload.Message)
	if message == "" {
		message = defaultImageQuestion
	}

	rec, ok := h.store.FindRecord(recordID)
	if !ok {
		utils.RespondFail(w, http.StatusBadRequest, "病历记录不存在")
		return
	}
	if strings.TrimSpace(rec.FilePath) == "" {
		utils.RespondFail(w, http.StatusBadRequest, "该病历没有上传图片")
		return
	}

	content, err := h.responder.AnalyzeImage(r.Context(), rec, message)
	if err != nil {
		h.logger.Error().Err(err).Str("record_id", recordID).Msg("analyze image failed")
		utils.RespondFail(w, http.StatusInternalServerError, "图片分析服务暂时不可用")
		return
	}

	// Each analysis is kept as its own session so it shows up in the list.
	sessionID := h.store.ResolveSession("")
	h.store.Append(sessionID, "user", "[分析病历图片: "+rec.Title+"]\n"+message)
	stored := h.store.Append(sessionID, "assistant", content)

	utils.RespondOK(w, chatResponse{
		Role:      stored.Role,
		Content:   stored.Content,
		SessionID: sessionID,
		CreatedAt: localTime(stored.CreatedAt),
	})
}

// handleHistory 获取对话历史
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	messages := h.store.History(sessionID)

	out := make([]chatResponse, 0, len(messages))
	for _, msg := range messages {
		out = append(out, chatResponse{
			Role:      msg.Role,
			Content:   msg.Content,
			SessionID: sessionID,
			CreatedAt: localTime(msg.CreatedAt),
		})
	}
	utils.RespondOK(w, out)
}

// handleSessions 获取会话列表
func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.store.Sessions()

	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse{
			SessionID:       s.ID,
			Title:           s.Title,
			LastMessageTime: localTime(s.LastMessageAt),
			MessageCount:    s.MessageCount,
		})
	}
	utils.RespondOK(w, out)
}

// handleDeleteSession 删除会话
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	h.store.Delete(chi.URLParam(r, "sessionID"))
	utils.RespondMessage(w, "会话已删除")
}

// handleRecords 获取病历列表
func (h *Handler) handleRecords(w http.ResponseWriter, r *http.Request) {
	records := h.store.Records()
	if records == nil {
		records = []record.Record{}
	}
	utils.RespondOK(w, records)
}

func toTurns(messages []StoredMessage) []ai.Turn {
	turns := make([]ai.Turn, 0, len(messages))
	for _, msg := range messages {
		turns = append(turns, ai.Turn{Role: msg.Role, Content: msg.Content})
	}
	return turns
}
