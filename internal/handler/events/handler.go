// Package events streams conversation state transitions over a websocket.
package events

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	chatService "github.com/vitalog/healthchat/internal/service/chat"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second

	// subscriberBuffer bounds how many transitions a slow client may lag.
	subscriberBuffer = 64
)

// Handler WebSocket状态推送处理器
type Handler struct {
	mgr      *chatService.Manager
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// New 创建状态推送处理器
func New(mgr *chatService.Manager, logger zerolog.Logger) *Handler {
	return &Handler{
		mgr: mgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger: logger.With().Str("component", "events").Logger(),
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.handleEvents)
}

// handleEvents 推送初始快照与后续状态变化
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Subscribe before the snapshot so no transition falls in between.
	events, unsubscribe := h.mgr.Subscribe(subscriberBuffer)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.readLoop(conn, cancel)

	snapshot := chatService.Event{Type: chatService.EventSnapshot, At: time.Now(), State: h.mgr.Snapshot()}
	if err := h.write(conn, snapshot); err != nil {
		return
	}

	h.logger.Debug().Str("remote_addr", r.RemoteAddr).Msg("event subscriber connected")

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := h.write(conn, evt); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop drains client frames so control messages are processed, and
// cancels the stream when the client goes away.
func (h *Handler) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, evt chatService.Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(evt); err != nil {
		h.logger.Debug().Err(err).Str("event", string(evt.Type)).Msg("websocket write failed")
		return err
	}
	return nil
}
