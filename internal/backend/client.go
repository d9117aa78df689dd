// Package backend provides a client for the health backend's chat and record API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vitalog/healthchat/internal/metrics"
	"github.com/vitalog/healthchat/internal/model/record"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

// Client is a health backend API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithTokenSource sets the bearer token provider.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client rooted at baseURL (for example "http://localhost:8080/api").
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "backend").Logger()
	return c
}

// SendChat posts a plain chat turn. An empty sessionID starts a new session.
func (c *Client) SendChat(ctx context.Context, message, sessionID string) (Reply, error) {
	req := chatRequest{Message: message}
	if sessionID != "" {
		req.SessionID = &sessionID
	}

	var reply Reply
	if err := c.do(ctx, "send_chat", http.MethodPost, "/chat", req, &reply); err != nil {
		return Reply{}, err
	}
	return reply, validateReply(reply)
}

// AnalyzeImage posts an image-analysis turn for a stored record.
func (c *Client) AnalyzeImage(ctx context.Context, recordID, message string) (Reply, error) {
	path := "/chat/analyze-image/" + url.PathEscape(recordID)

	var reply Reply
	if err := c.do(ctx, "analyze_image", http.MethodPost, path, chatRequest{Message: message}, &reply); err != nil {
		return Reply{}, err
	}
	return reply, validateReply(reply)
}

// History loads the persisted messages of a session in server order.
func (c *Client) History(ctx context.Context, sessionID string) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	if err := c.do(ctx, "history", http.MethodGet, "/chat/history/"+url.PathEscape(sessionID), nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Sessions lists the user's sessions, most recent first.
func (c *Client) Sessions(ctx context.Context) ([]SessionInfo, error) {
	var sessions []SessionInfo
	if err := c.do(ctx, "list_sessions", http.MethodGet, "/chat/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// DeleteSession removes a session and its history.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, "delete_session", http.MethodDelete, "/chat/sessions/"+url.PathEscape(sessionID), nil, nil)
}

// Records lists the user's stored medical records.
func (c *Client) Records(ctx context.Context) ([]record.Record, error) {
	var payload []recordPayload
	if err := c.do(ctx, "list_records", http.MethodGet, "/records", nil, &payload); err != nil {
		return nil, err
	}

	records := make([]record.Record, 0, len(payload))
	for _, p := range payload {
		records = append(records, p.toRecord())
	}
	return records, nil
}

func validateReply(reply Reply) error {
	if strings.TrimSpace(reply.Content) == "" {
		return &ReportedError{StatusCode: http.StatusOK, Malformed: true, Message: "reply without content"}
	}
	return nil
}

// do performs a request and records its outcome.
func (c *Client) do(ctx context.Context, op, method, path string, payload, out any) error {
	start := time.Now()
	err := c.roundTrip(ctx, method, path, payload, out)
	metrics.BackendRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	result := "ok"
	switch {
	case err == nil:
	case IsReported(err):
		result = "reported"
		c.logger.Info().Err(err).Str("operation", op).Msg("backend reported failure")
	default:
		result = "transport"
		c.logger.Warn().Err(err).Str("operation", op).Msg("backend request failed")
	}
	metrics.BackendRequestsTotal.WithLabelValues(op, result).Inc()
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("resolve token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	c.logger.Debug().Str("method", method).Str("path", path).Str("request_id", requestID).Msg("backend request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Success == nil {
		if resp.StatusCode >= http.StatusMultipleChoices {
			return &StatusError{StatusCode: resp.StatusCode}
		}
		return &ReportedError{StatusCode: resp.StatusCode, Malformed: true, Message: "response is not an envelope"}
	}

	if !*env.Success {
		return &ReportedError{StatusCode: resp.StatusCode, Message: env.Message}
	}

	if out == nil {
		return nil
	}

	if len(env.Data) == 0 || bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		return &ReportedError{StatusCode: resp.StatusCode, Malformed: true, Message: "missing data"}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &ReportedError{StatusCode: resp.StatusCode, Malformed: true, Message: err.Error()}
	}
	return nil
}
