package chat

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitalog/healthchat/internal/backend"
	"github.com/vitalog/healthchat/internal/metrics"
	"github.com/vitalog/healthchat/internal/model/chat"
)

// Outcome is the result of one Send.
type Outcome string

const (
	OutcomeConfirmed     Outcome = "confirmed"
	OutcomeReported      Outcome = "reported_failure"
	OutcomeUnavailable   Outcome = "transport_failure"
	OutcomeRejectedEmpty Outcome = "rejected_empty"
	OutcomeRejectedBusy  Outcome = "rejected_busy"
	OutcomeStale         Outcome = "stale"
)

// Shape is the request shape a turn is sent with.
type Shape string

const (
	ShapeChat  Shape = "chat"
	ShapeImage Shape = "image"
)

// Request is a prepared turn.
type Request struct {
	Shape      Shape
	Message    string
	Display    string
	RecordID   string
	SessionID  string
	Attachment *chat.AttachmentRef
}

// Prepare decides the shape of a turn. It returns false when there is nothing
// to send.
func Prepare(text string, attachment *chat.AttachmentRef, sessionID string) (Request, bool) {
	text = strings.TrimSpace(text)
	if text == "" && attachment == nil {
		return Request{}, false
	}

	if attachment != nil {
		prompt := text
		if prompt == "" {
			prompt = DefaultImagePrompt
		}
		ref := *attachment
		return Request{
			Shape:      ShapeImage,
			Message:    prompt,
			Display:    imageTurnContent(ref.Title, prompt),
			RecordID:   ref.RecordID,
			SessionID:  sessionID,
			Attachment: &ref,
		}, true
	}

	return Request{
		Shape:     ShapeChat,
		Message:   text,
		Display:   text,
		SessionID: sessionID,
	}, true
}

// Dispatcher issues prepared turns and folds their results into a timeline.
type Dispatcher struct {
	backend Backend
	now     func() time.Time
	logger  zerolog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(b Backend, now func() time.Time, logger zerolog.Logger) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{backend: b, now: now, logger: logger}
}

// UserMessage builds the optimistic user entry for req.
func (d *Dispatcher) UserMessage(req Request) chat.Message {
	return chat.Message{
		Role:       chat.RoleUser,
		Content:    req.Display,
		CreatedAt:  d.now(),
		Attachment: req.Attachment,
		Delivery:   chat.DeliveryPending,
	}
}

// Issue performs the network call for req.
func (d *Dispatcher) Issue(ctx context.Context, req Request) (backend.Reply, error) {
	if req.Shape == ShapeImage {
		return d.backend.AnalyzeImage(ctx, req.RecordID, req.Message)
	}
	return d.backend.SendChat(ctx, req.Message, req.SessionID)
}

// Fold applies the result of req to tl. userIdx is the index of the pending
// user entry. When the turn bound a fresh conversation, the new session id is
// returned.
func (d *Dispatcher) Fold(tl *Timeline, userIdx int, req Request, reply backend.Reply, err error) (Outcome, string) {
	if err != nil {
		content, outcome := UnavailableMessage, OutcomeUnavailable
		if backend.IsReported(err) {
			content, outcome = ApologyMessage, OutcomeReported
		}
		d.logger.Warn().Err(err).Str("shape", string(req.Shape)).Str("outcome", string(outcome)).Msg("turn failed")

		tl.Append(chat.Message{
			Role:      chat.RoleAssistant,
			Content:   content,
			CreatedAt: d.now(),
			Delivery:  chat.DeliveryConfirmed,
		})
		tl.Mark(userIdx, chat.DeliveryFailed)
		metrics.TurnsTotal.WithLabelValues(string(req.Shape), string(outcome)).Inc()
		return outcome, ""
	}

	tl.Append(chat.Message{
		Role:      chat.RoleAssistant,
		Content:   reply.Content,
		CreatedAt: reply.CreatedAtOr(d.now()),
		Delivery:  chat.DeliveryConfirmed,
	})
	tl.Mark(userIdx, chat.DeliveryConfirmed)
	metrics.TurnsTotal.WithLabelValues(string(req.Shape), string(OutcomeConfirmed)).Inc()

	if req.SessionID == "" && reply.SessionID != "" {
		return OutcomeConfirmed, reply.SessionID
	}
	return OutcomeConfirmed, ""
}
