// Package chat drives the state of one conversation from the typed events of its turns.
//
// A turn moves Idle → Waiting → Streaming → Idle. A final event commits the answer, an error event
// leaves the turn Erred until the next send. Each send takes a fresh turn token, and events of a turn
// that has been superseded or closed are dropped, so overlapping sends cannot interleave buffers.
package chat

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nemo-admissions/nemo-relay/internal/leads"
	"github.com/nemo-admissions/nemo-relay/internal/models"
)

// MissingContactMessage is shown when a send is attempted before the lead's phone number is known.
const MissingContactMessage = "We couldn't find your contact details. Please submit the inquiry form again."

var (
	// ErrSessionNotReady is returned when a send happens before the session identifier exists.
	ErrSessionNotReady = errors.New("session not initialized")
	// ErrMissingContact is returned when a send happens without a correlation phone number.
	ErrMissingContact = errors.New("missing contact details")
	// ErrMessageNotFound is returned by Regenerate for an unknown AI message.
	ErrMessageNotFound = errors.New("message not found")
	// ErrNoUserMessage is returned by Regenerate when no user message precedes the AI message.
	ErrNoUserMessage = errors.New("no user message precedes the message")
)

// Streamer runs one turn against the agent. It is satisfied by agentclient.Client.
type Streamer interface {
	StreamChat(ctx context.Context, req models.ChatRequest) iter.Seq[models.StreamEvent]
}

// Session is the state of one conversation. It is safe for concurrent use.
type Session struct {
	mu sync.Mutex

	id          string
	phoneNumber string
	lead        *leads.Lead
	autoSent    bool

	messages []models.Message
	input    string

	turn       uint64
	turnOpen   bool
	cancelTurn context.CancelFunc
	buffer     strings.Builder
	waiting    bool
	streaming  bool
	tool       *models.ToolStatus
	errMsg     string

	streamer Streamer
	onChange func(Snapshot)
	now      func() time.Time

	logger *slog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithPhoneNumber sets the correlation phone number.
func WithPhoneNumber(phone string) Option {
	return func(s *Session) {
		s.phoneNumber = phone
	}
}

// WithLead seeds the session with inquiry form data. The lead's cell phone becomes the correlation
// phone number and Start sends the lead summary as a hidden system message.
func WithLead(lead leads.Lead) Option {
	return func(s *Session) {
		s.lead = &lead
		if s.phoneNumber == "" {
			s.phoneNumber = lead.CellPhone
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithOnChange registers a callback invoked with a fresh snapshot after every state change. It is
// called without the session lock held.
func WithOnChange(fn func(Snapshot)) Option {
	return func(s *Session) {
		s.onChange = fn
	}
}

// NewSession creates a conversation with a new random session identifier.
func NewSession(streamer Streamer, opts ...Option) *Session {
	s := &Session{
		id:       uuid.NewString(),
		streamer: streamer,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("module", "chat"), slog.String("sessionID", s.id))
	return s
}

// ID returns the session identifier, stable for the lifetime of the session.
func (s *Session) ID() string {
	return s.id
}

// SetInput replaces the input buffer.
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// Send submits text, or the input buffer when text is empty, as a visible user message and consumes
// the agent's answer. It returns once the turn is over or superseded. Blank messages are ignored.
func (s *Session) Send(ctx context.Context, text string) error {
	return s.send(ctx, text, false)
}

// SendFollowUp sends a suggested follow-up question as if the user had typed it.
func (s *Session) SendFollowUp(ctx context.Context, question string) error {
	s.SetInput(question)
	return s.send(ctx, question, false)
}

// Start performs the one-time hidden send of the lead summary. It does nothing when the session has
// no lead or the summary was already sent.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.lead == nil || s.autoSent {
		s.mu.Unlock()
		return nil
	}
	s.autoSent = true
	msg := s.lead.SystemMessage()
	s.mu.Unlock()

	return s.send(ctx, msg, true)
}

// Regenerate removes an AI message together with the user message that triggered it, then sends that
// user message again as a new turn.
func (s *Session) Regenerate(ctx context.Context, messageID string) error {
	s.mu.Lock()
	idx := slices.IndexFunc(s.messages, func(m models.Message) bool {
		return m.ID == messageID && m.Type == models.MessageTypeAI
	})
	if idx == -1 {
		s.mu.Unlock()
		return ErrMessageNotFound
	}

	userIdx := idx - 1
	for userIdx >= 0 && s.messages[userIdx].Type != models.MessageTypeUser {
		userIdx--
	}
	if userIdx < 0 {
		s.mu.Unlock()
		return ErrNoUserMessage
	}

	userMsg := s.messages[userIdx]
	s.messages = slices.DeleteFunc(slices.Clone(s.messages), func(m models.Message) bool {
		return m.ID == messageID || m.ID == userMsg.ID
	})
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	s.logger.Debug("Regenerating answer", slog.String("messageID", messageID))
	return s.send(ctx, userMsg.Content, false)
}

func (s *Session) send(ctx context.Context, override string, system bool) error {
	s.mu.Lock()
	text := override
	if text == "" {
		text = s.input
	}
	if strings.TrimSpace(text) == "" {
		s.mu.Unlock()
		return nil
	}

	if s.id == "" {
		s.mu.Unlock()
		s.logger.Warn("Session not initialized yet")
		return ErrSessionNotReady
	}

	if s.phoneNumber == "" {
		s.errMsg = MissingContactMessage
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.logger.Warn("Chat attempted without phone number context")
		s.notify(snap)
		return ErrMissingContact
	}

	if !system {
		s.messages = append(s.messages, models.Message{
			ID:        uuid.NewString(),
			Type:      models.MessageTypeUser,
			Content:   text,
			Timestamp: s.now(),
		})
	}
	s.input = ""

	s.waiting = true
	s.streaming = false
	s.buffer.Reset()
	s.tool = nil
	s.errMsg = ""

	// A newer send supersedes the running turn, so its stream is released right away.
	if s.cancelTurn != nil {
		s.cancelTurn()
	}
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancelTurn = cancel

	s.turn++
	s.turnOpen = true
	token := s.turn

	req := models.ChatRequest{
		Message:     text,
		SessionID:   s.id,
		PhoneNumber: s.phoneNumber,
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	for ev := range s.streamer.StreamChat(turnCtx, req) {
		if !s.apply(token, ev) {
			break
		}
	}
	s.finish(token)

	return nil
}

// apply folds one event into the state of turn token. It reports whether the turn still accepts
// events.
func (s *Session) apply(token uint64, ev models.StreamEvent) bool {
	s.mu.Lock()
	if token != s.turn || !s.turnOpen {
		s.mu.Unlock()
		s.logger.Debug("Dropping event of a stale turn", slog.String("type", string(ev.Type)))
		return false
	}

	switch ev.Type {
	case models.StreamEventResponse:
		s.waiting = false
		s.streaming = true
		s.buffer.WriteString(ev.Content)

	case models.StreamEventToolStatus:
		s.tool = &models.ToolStatus{
			Icon:    ev.Icon,
			Message: ev.Message,
			State:   models.ToolStateRunning,
		}

	case models.StreamEventFinal:
		msg := models.Message{
			ID:        uuid.NewString(),
			Type:      models.MessageTypeAI,
			Content:   ev.Content,
			Timestamp: s.now(),
		}
		if s.tool != nil {
			done := s.tool.Completed()
			msg.ToolStatus = &done
		}
		s.messages = append(s.messages, msg)
		s.buffer.Reset()
		s.tool = nil
		s.waiting = false
		s.streaming = false
		s.turnOpen = false

	case models.StreamEventError:
		s.errMsg = ev.Message
		s.waiting = false
		s.streaming = false
		s.turnOpen = false
		s.logger.Error("Chat error", slog.String("error", ev.Message))

	case models.StreamEventToolResult:
		s.mu.Unlock()
		s.logger.Debug("Tool result", slog.String("content", ev.Content))
		return true

	default:
		s.mu.Unlock()
		s.logger.Warn("Unknown stream event", slog.String("type", string(ev.Type)))
		return true
	}

	open := s.turnOpen
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	return open
}

// finish settles a turn whose stream ended without a final or error event. The partial text stays
// visible.
func (s *Session) finish(token uint64) {
	s.mu.Lock()
	if token != s.turn || !s.turnOpen {
		s.mu.Unlock()
		return
	}
	s.turnOpen = false
	s.waiting = false
	s.streaming = false
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Warn("Stream ended without a final answer", slog.Int("partialLength", len(snap.StreamingContent)))
	s.notify(snap)
}

func (s *Session) notify(snap Snapshot) {
	if s.onChange != nil {
		s.onChange(snap)
	}
}
