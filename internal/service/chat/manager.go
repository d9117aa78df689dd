// Package chat implements the conversational session manager: session
// lifecycle, timeline reconciliation between optimistic and confirmed
// messages, request shape selection and failure containment.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vitalog/healthchat/internal/backend"
	"github.com/vitalog/healthchat/internal/metrics"
	"github.com/vitalog/healthchat/internal/model/chat"
	"github.com/vitalog/healthchat/internal/model/record"
)

var (
	ErrUnknownRecord   = errors.New("record is not available for image analysis")
	ErrNotAttachable   = errors.New("record has no analyzable image")
	ErrSessionRequired = errors.New("session id is required")
	ErrLoadSuperseded  = errors.New("history load superseded by a newer selection")
	ErrAlreadyStarted  = errors.New("conversation manager already started")
)

// Backend is the remote surface the manager talks to.
type Backend interface {
	SendChat(ctx context.Context, message, sessionID string) (backend.Reply, error)
	AnalyzeImage(ctx context.Context, recordID, message string) (backend.Reply, error)
	History(ctx context.Context, sessionID string) ([]backend.HistoryEntry, error)
	Sessions(ctx context.Context) ([]backend.SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Records(ctx context.Context) ([]record.Record, error)
}

// StartOptions describes how the conversation screen was entered.
type StartOptions struct {
	// AnalyzeRecord is set when the user arrived asking to analyze a record.
	// It suppresses auto-selection of the latest session.
	AnalyzeRecord *record.Record
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock overrides the time source used for local timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// turnTicket identifies the pending send of one conversation.
type turnTicket struct {
	epoch uint64
	index int
}

// Manager owns the registry, timeline, dispatcher and attachment selector of
// the active conversation. All state is guarded by mu; mu is never held across
// a backend call.
type Manager struct {
	backend    Backend
	dispatcher *Dispatcher
	logger     zerolog.Logger
	now        func() time.Time

	mu         sync.Mutex
	registry   Registry
	timeline   Timeline
	selector   *Selector
	input      string
	started    bool
	epoch      uint64
	loadSeq    uint64
	loading    bool
	loadingID  string
	refreshSeq uint64
	inflight   *turnTicket

	subs    map[int]chan Event
	nextSub int
}

// NewManager creates a manager holding a fresh unbound conversation.
func NewManager(b Backend, opts ...Option) *Manager {
	m := &Manager{
		backend:  b,
		logger:   zerolog.Nop(),
		now:      time.Now,
		selector: NewSelector(),
		subs:     make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With().Str("component", "conversation").Logger()
	m.dispatcher = NewDispatcher(b, m.now, m.logger)
	m.timeline.SeedWelcome(m.now(), m.registry.Bound())
	return m
}

// Start fetches the session and record lists concurrently and decides the
// initial conversation. Either fetch failing degrades to an empty list.
func (m *Manager) Start(ctx context.Context, opts StartOptions) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.refreshSeq++
	refresh := m.refreshSeq
	m.mu.Unlock()

	var (
		sessions []backend.SessionInfo
		records  []record.Record
	)

	var g errgroup.Group
	g.Go(func() error {
		list, err := m.backend.Sessions(ctx)
		if err != nil {
			m.logger.Warn().Err(err).Msg("load sessions failed, starting with an empty list")
			return nil
		}
		sessions = list
		return nil
	})
	g.Go(func() error {
		list, err := m.backend.Records(ctx)
		if err != nil {
			m.logger.Warn().Err(err).Msg("load records failed, image analysis unavailable")
			return nil
		}
		records = list
		return nil
	})
	_ = g.Wait()

	m.mu.Lock()
	if refresh == m.refreshSeq {
		m.registry.Replace(sessions)
		m.publishLocked(EventSessionsRefreshed)
	}
	m.selector.Load(records)
	m.publishLocked(EventRecordsLoaded)
	latest, hasLatest := m.registry.Latest()
	m.mu.Unlock()

	if opts.AnalyzeRecord != nil {
		if err := m.AnalyzeRecord(*opts.AnalyzeRecord); err != nil {
			return fmt.Errorf("analyze record %s: %w", opts.AnalyzeRecord.ID, err)
		}
		return nil
	}

	if hasLatest {
		if err := m.SelectSession(ctx, latest.ID); err != nil && !errors.Is(err, ErrLoadSuperseded) {
			m.logger.Warn().Err(err).Str("session_id", latest.ID).Msg("auto-select latest session failed")
		}
	}
	return nil
}

// Send submits text as one turn, consuming the pending attachment. It never
// returns an error; failures are folded into the timeline.
func (m *Manager) Send(ctx context.Context, text string) Outcome {
	return m.send(ctx, func() string { return text })
}

// Submit sends the current input draft. The draft is read in the same
// critical section that clears it.
func (m *Manager) Submit(ctx context.Context) Outcome {
	return m.send(ctx, func() string { return m.input })
}

// send runs one turn; text is evaluated with mu held.
func (m *Manager) send(ctx context.Context, text func() string) Outcome {
	m.mu.Lock()
	if m.sendingLocked() {
		m.mu.Unlock()
		return OutcomeRejectedBusy
	}

	req, ok := Prepare(text(), m.selector.Pending(), m.registry.ActiveID())
	if !ok {
		m.mu.Unlock()
		return OutcomeRejectedEmpty
	}

	idx := m.timeline.Append(m.dispatcher.UserMessage(req))
	m.selector.Clear()
	m.input = ""
	ticket := &turnTicket{epoch: m.epoch, index: idx}
	m.inflight = ticket
	m.publishLocked(EventTurnPending)
	m.mu.Unlock()

	reply, err := m.dispatcher.Issue(ctx, req)

	m.mu.Lock()
	if m.inflight == ticket {
		m.inflight = nil
	}
	if ticket.epoch != m.epoch {
		m.mu.Unlock()
		metrics.StaleResponses.Inc()
		m.logger.Debug().Str("shape", string(req.Shape)).Msg("discarding response for a replaced conversation")
		return OutcomeStale
	}

	outcome, bindID := m.dispatcher.Fold(&m.timeline, ticket.index, req, reply, err)
	if bindID != "" {
		m.registry.Bind(bindID)
		metrics.SessionsBound.Inc()
		m.publishLocked(EventSessionBound)
	}
	if outcome == OutcomeConfirmed {
		m.publishLocked(EventTurnConfirmed)
	} else {
		m.publishLocked(EventTurnFailed)
	}
	m.mu.Unlock()

	if bindID != "" {
		if err := m.RefreshSessions(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("refresh sessions after bind failed")
		}
	}
	return outcome
}

// SelectSession replaces the timeline with the history of id. An empty id
// starts a fresh conversation without a network call. When a newer selection
// or a reset happened while loading, ErrLoadSuperseded is returned and the
// result is dropped. On failure the previous conversation stays in place.
func (m *Manager) SelectSession(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		m.NewConversation()
		return nil
	}

	m.mu.Lock()
	m.loadSeq++
	seq := m.loadSeq
	m.loading = true
	m.loadingID = id
	m.publishLocked(EventHistoryLoading)
	m.mu.Unlock()

	entries, err := m.backend.History(ctx, id)

	m.mu.Lock()
	defer m.mu.Unlock()

	if seq != m.loadSeq {
		metrics.HistoryLoads.WithLabelValues("superseded").Inc()
		return ErrLoadSuperseded
	}
	m.loading = false
	m.loadingID = ""

	if err != nil {
		metrics.HistoryLoads.WithLabelValues("failed").Inc()
		m.publishLocked(EventHistoryFailed)
		return fmt.Errorf("load history %s: %w", id, err)
	}

	m.timeline.ReplaceAll(historyMessages(entries))
	m.registry.Bind(id)
	m.epoch++
	metrics.HistoryLoads.WithLabelValues("loaded").Inc()
	m.publishLocked(EventHistoryLoaded)
	return nil
}

// NewConversation discards the active conversation and starts an unbound one
// holding only the greeting. A pending history load is abandoned.
func (m *Manager) NewConversation() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

// DeleteSession deletes id on the backend. The session leaves the list only
// after the backend confirmed; if it was active a fresh conversation starts.
func (m *Manager) DeleteSession(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrSessionRequired
	}

	if err := m.backend.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// A list fetched before the delete may still carry id.
	m.refreshSeq++
	m.registry.Remove(id)
	m.publishLocked(EventSessionDeleted)

	switch {
	case m.registry.ActiveID() == id:
		m.resetLocked()
	case m.loading && m.loadingID == id:
		m.loadSeq++
		m.loading = false
		m.loadingID = ""
		m.publishLocked(EventHistoryFailed)
	}
	return nil
}

// RefreshSessions refetches the session list. Overlapping refreshes are
// latest-wins; a failed refresh keeps the current list.
func (m *Manager) RefreshSessions(ctx context.Context) error {
	m.mu.Lock()
	m.refreshSeq++
	seq := m.refreshSeq
	m.mu.Unlock()

	sessions, err := m.backend.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("refresh sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if seq != m.refreshSeq {
		return nil
	}
	m.registry.Replace(sessions)
	m.publishLocked(EventSessionsRefreshed)
	return nil
}

// AnalyzeRecord selects rec as the pending attachment and prefills the input
// draft, as when the user asks to analyze a record from its detail page.
func (m *Manager) AnalyzeRecord(rec record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.selector.Push(rec); err != nil {
		return err
	}
	m.input = analyzeRecordDraft(rec.Title)
	m.publishLocked(EventAttachmentSelected)
	return nil
}

// PickAttachment selects an attachable record by id, replacing any previous
// selection.
func (m *Manager) PickAttachment(recordID string) (chat.AttachmentRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref, err := m.selector.Pick(recordID)
	if err != nil {
		return chat.AttachmentRef{}, err
	}
	m.publishLocked(EventAttachmentSelected)
	return ref, nil
}

// ClearAttachment drops the pending selection.
func (m *Manager) ClearAttachment() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.selector.Clear() {
		return false
	}
	m.publishLocked(EventAttachmentCleared)
	return true
}

// SetInput replaces the input draft.
func (m *Manager) SetInput(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.input == text {
		return
	}
	m.input = text
	m.publishLocked(EventInputChanged)
}

// Input returns the input draft.
func (m *Manager) Input() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.input
}

// Sending reports whether a turn of the active conversation is in flight.
func (m *Manager) Sending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sendingLocked()
}

// ActiveSessionID returns the active session id, empty when unbound.
func (m *Manager) ActiveSessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.ActiveID()
}

// Sessions returns the known sessions in server order.
func (m *Manager) Sessions() []chat.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.Sessions()
}

// Records returns the records that can be attached to an image turn.
func (m *Manager) Records() []record.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selector.Records()
}

// Messages returns a copy of the active timeline.
func (m *Manager) Messages() []chat.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeline.Messages()
}

// State is a consistent snapshot of the conversation screen.
type State struct {
	ActiveSessionID   string              `json:"activeSessionId,omitempty"`
	Bound             bool                `json:"bound"`
	Sessions          []chat.Session      `json:"sessions"`
	Messages          []chat.Message      `json:"messages"`
	PendingAttachment *chat.AttachmentRef `json:"pendingAttachment,omitempty"`
	Input             string              `json:"input"`
	Sending           bool                `json:"sending"`
	LoadingHistory    bool                `json:"loadingHistory"`
	AttachableRecords []record.Record     `json:"attachableRecords"`
	QuickQuestions    []string            `json:"quickQuestions,omitempty"`
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() State {
	state := State{
		ActiveSessionID:   m.registry.ActiveID(),
		Bound:             m.registry.Bound(),
		Sessions:          m.registry.Sessions(),
		Messages:          m.timeline.Messages(),
		PendingAttachment: m.selector.Pending(),
		Input:             m.input,
		Sending:           m.sendingLocked(),
		LoadingHistory:    m.loading,
		AttachableRecords: m.selector.Records(),
	}
	if m.timeline.Len() <= 1 {
		state.QuickQuestions = append([]string(nil), QuickQuestions...)
	}
	return state
}

func (m *Manager) sendingLocked() bool {
	return m.inflight != nil && m.inflight.epoch == m.epoch
}

func (m *Manager) resetLocked() {
	m.loadSeq++
	m.loading = false
	m.loadingID = ""
	m.registry.Unbind()
	m.timeline.Reset()
	m.epoch++
	m.timeline.SeedWelcome(m.now(), m.registry.Bound())
	m.publishLocked(EventConversationReset)
}

// historyMessages converts backend entries as-is. A missing timestamp stays
// zero so reloading the same history yields the same timeline.
func historyMessages(entries []backend.HistoryEntry) []chat.Message {
	msgs := make([]chat.Message, 0, len(entries))
	for _, entry := range entries {
		role := chat.RoleAssistant
		if strings.EqualFold(entry.Role, string(chat.RoleUser)) {
			role = chat.RoleUser
		}
		var createdAt time.Time
		if entry.CreatedAt != nil {
			createdAt = entry.CreatedAt.Time
		}
		msgs = append(msgs, chat.Message{
			Role:      role,
			Content:   entry.Content,
			CreatedAt: createdAt,
			Delivery:  chat.DeliveryConfirmed,
		})
	}
	return msgs
}
