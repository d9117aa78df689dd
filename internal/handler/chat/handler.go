package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/vitalog/healthchat/internal/model/record"
	chatService "github.com/vitalog/healthchat/internal/service/chat"
	"github.com/vitalog/healthchat/pkg/utils"
)

// Handler 会话管理的HTTP处理器
type Handler struct {
	mgr    *chatService.Manager
	logger zerolog.Logger
}

// New 创建会话处理器
func New(mgr *chatService.Manager, logger zerolog.Logger) *Handler {
	return &Handler{
		mgr:    mgr,
		logger: logger.With().Str("component", "bridge").Logger(),
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/state", h.handleState)

	r.Get("/sessions", h.handleListSessions)
	r.Post("/sessions/refresh", h.handleRefreshSessions)
	r.Post("/sessions/new", h.handleNewConversation)
	r.Post("/sessions/{sessionID}/select", h.handleSelectSession)
	r.Delete("/sessions/{sessionID}", h.handleDeleteSession)

	r.Get("/records", h.handleListRecords)
	r.Post("/records/analyze", h.handleAnalyzeRecord)

	r.Post("/attachment", h.handlePickAttachment)
	r.Delete("/attachment", h.handleClearAttachment)

	r.Put("/input", h.handleSetInput)
	r.Post("/messages", h.handleSend)
}

// detached keeps a backend call running after the client goes away, so the
// conversation still folds in the answer.
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.mgr.Snapshot())
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.mgr.Sessions())
}

// handleRefreshSessions 刷新会话列表
func (h *Handler) handleRefreshSessions(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.RefreshSessions(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("refresh sessions failed")
		utils.RespondError(w, http.StatusBadGateway, "failed to refresh sessions")
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.mgr.Sessions())
}

// handleNewConversation 开始新对话
func (h *Handler) handleNewConversation(w http.ResponseWriter, r *http.Request) {
	h.mgr.NewConversation()
	utils.RespondJSON(w, http.StatusOK, h.mgr.Snapshot())
}

// handleSelectSession 切换到指定会话
func (h *Handler) handleSelectSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.mgr.SelectSession(detached(r), sessionID); err != nil {
		if errors.Is(err, chatService.ErrLoadSuperseded) {
			utils.RespondError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Warn().Err(err).Str("session_id", sessionID).Msg("select session failed")
		utils.RespondError(w, http.StatusBadGateway, "failed to load session history")
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.mgr.Snapshot())
}

// handleDeleteSession 删除会话
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.mgr.DeleteSession(detached(r), sessionID); err != nil {
		if errors.Is(err, chatService.ErrSessionRequired) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Warn().Err(err).Str("session_id", sessionID).Msg("delete session failed")
		utils.RespondError(w, http.StatusBadGateway, "failed to delete session")
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.mgr.Snapshot())
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.mgr.Records())
}

// handleAnalyzeRecord 从病历详情页发起分析
func (h *Handler) handleAnalyzeRecord(w http.ResponseWriter, r *http.Request) {
	var rec record.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if rec.ID == "" {
		utils.RespondError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.mgr.AnalyzeRecord(rec); err != nil {
		utils.RespondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.mgr.Snapshot())
}

// handlePickAttachment 选择附件
func (h *Handler) handlePickAttachment(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RecordID string `json:"recordId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.RecordID == "" {
		utils.RespondError(w, http.StatusBadRequest, "recordId is required")
		return
	}

	if _, err := h.mgr.PickAttachment(payload.RecordID); err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.mgr.Snapshot())
}

// handleClearAttachment 取消附件
func (h *Handler) handleClearAttachment(w http.ResponseWriter, r *http.Request) {
	h.mgr.ClearAttachment()
	utils.RespondJSON(w, http.StatusOK, h.mgr.Snapshot())
}

// handleSetInput 更新输入草稿
func (h *Handler) handleSetInput(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.mgr.SetInput(payload.Text)
	utils.RespondJSON(w, http.StatusOK, h.mgr.Snapshot())
}

// handleSend 发送消息；未提供 message 时发送当前输入草稿
func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message *string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var outcome chatService.Outcome
	if payload.Message == nil {
		outcome = h.mgr.Submit(detached(r))
	} else {
		outcome = h.mgr.Send(detached(r), *payload.Message)
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"outcome": outcome,
		"state":   h.mgr.Snapshot(),
	})
}
