// Package agentclient streams a chat turn from the agent relay and exposes it as typed events.
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"net/http"

	"github.com/nemo-admissions/nemo-relay/internal/events"
	"github.com/nemo-admissions/nemo-relay/internal/models"
	"github.com/nemo-admissions/nemo-relay/internal/sseframe"
)

// ErrNotConfigured is reported, as an error event, when the client has no relay endpoint.
var ErrNotConfigured = errors.New("agent proxy endpoint is not configured")

// ErrTimeout is reported, as an error event, when the turn's deadline passes before the agent finished.
var ErrTimeout = errors.New("The assistant took too long to respond. Please try again.") //nolint:stylecheck // shown to the user as is

// errUnknown is reported when a failed relay response carries no readable JSON body.
var errUnknown = errors.New("Unknown error") //nolint:stylecheck // shown to the user as is

// Client talks to the relay proxy. It holds no per-turn state, so one client can serve any number of
// sessions.
type Client struct {
	endpoint   string
	httpClient *http.Client
	normalizer events.Normalizer

	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests. Its timeout is the only bound on a turn.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithIconPolicy replaces events.DefaultIconPolicy.
func WithIconPolicy(p events.IconPolicy) Option {
	return func(cl *Client) {
		cl.normalizer = events.NewNormalizer(p, cl.logger)
	}
}

type relayRequest struct {
	RuntimeSessionID string       `json:"runtimeSessionId"`
	Payload          relayPayload `json:"payload"`
}

type relayPayload struct {
	Prompt      string `json:"prompt"`
	SessionID   string `json:"session_id"`
	PhoneNumber string `json:"phone_number"`
}

type relayError struct {
	Error string `json:"error"`
}

// New creates a client for the relay at endpoint. An empty endpoint is accepted: every turn then
// yields a single configuration error event.
func New(endpoint string, logger *slog.Logger, opts ...Option) Client {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("module", "agentclient"))

	c := Client{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		normalizer: events.NewNormalizer(nil, logger),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// StreamChat sends one turn to the relay and returns its events in arrival order. The sequence never
// panics or hangs on a failure: configuration, transport and read failures are delivered as a single
// trailing error event. Malformed payloads are logged and skipped.
//
// The sequence is single use. Stopping the iteration early closes the underlying connection.
func (c Client) StreamChat(ctx context.Context, req models.ChatRequest) iter.Seq[models.StreamEvent] {
	return func(yield func(models.StreamEvent) bool) {
		if c.endpoint == "" {
			c.logger.Error("Chat attempted without relay endpoint")
			yield(models.ErrorEvent(ErrNotConfigured.Error()))
			return
		}

		if err := c.stream(ctx, req, yield); err != nil {
			c.logger.Error("Error in chat stream",
				slog.String("sessionID", req.SessionID),
				slog.String(errLoggerKey, err.Error()))
			yield(models.ErrorEvent(err.Error()))
		}
	}
}

const errLoggerKey = "error"

func (c Client) stream(ctx context.Context, req models.ChatRequest, yield func(models.StreamEvent) bool) error {
	body, err := json.Marshal(relayRequest{
		RuntimeSessionID: req.SessionID,
		Payload: relayPayload{
			Prompt:      req.Message,
			SessionID:   req.SessionID,
			PhoneNumber: req.PhoneNumber,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}

	for payload, err := range sseframe.Read(resp.Body) {
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if isTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrTimeout
			}
			return fmt.Errorf("error reading stream: %w", err)
		}

		var raw any
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			c.logger.Warn("Failed to parse SSE event",
				slog.String("payload", payload),
				slog.String(errLoggerKey, err.Error()))
			continue
		}

		for _, ev := range c.normalizer.Normalize(raw) {
			c.logger.Debug("SSE event", slog.String("type", string(ev.Type)))
			if !yield(ev) {
				return nil
			}
		}
	}

	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// statusError builds the error of a non-success relay response from its JSON body.
func statusError(resp *http.Response) error {
	var body relayError
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return errUnknown
	}
	if body.Error != "" {
		return errors.New(body.Error)
	}
	return fmt.Errorf("HTTP %d", resp.StatusCode)
}

// SendChatMessage runs a whole turn and returns the text of its last response or final event. An error
// event aborts the turn and is returned as an error.
func (c Client) SendChatMessage(ctx context.Context, req models.ChatRequest) (string, error) {
	var text string
	for ev := range c.StreamChat(ctx, req) {
		switch ev.Type {
		case models.StreamEventResponse, models.StreamEventFinal:
			text = ev.Content
		case models.StreamEventError:
			return "", errors.New(ev.Message)
		}
	}
	return text, nil
}
