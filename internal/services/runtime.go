package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nemo-admissions/nemo-relay/internal/models"
	"github.com/tmaxmax/go-sse"
)

// LLM represents a large language model that streams a chat completion. It accepts a context and the
// conversation so far, returning an iterator that yields response chunks and potential errors.
type LLM interface {
	Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error]
}

// LocalRuntime serves invocations from a directly reachable LLM instead of the managed agent runtime.
// It speaks the same SSE dialect as the agent: one {"response": ...} frame per chunk followed by a
// {"final_result": ...} frame, or an {"error": ...} frame on failure. Conversation history is kept in
// memory per session.
type LocalRuntime struct {
	llm LLM

	mu         sync.Mutex
	histories  map[string][]models.Message
	maxHistory int
	now        func() time.Time

	logger *slog.Logger
}

// invocationPayload is the payload sent by the streaming client.
type invocationPayload struct {
	Prompt      string `json:"prompt"`
	SessionID   string `json:"session_id"`
	PhoneNumber string `json:"phone_number"`
}

const defaultMaxHistory = 40

var errEmptyPrompt = errors.New("payload has no prompt")

// NewLocalRuntime creates a LocalRuntime backed by llm.
func NewLocalRuntime(llm LLM, logger *slog.Logger) *LocalRuntime {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalRuntime{
		llm:        llm,
		histories:  make(map[string][]models.Message),
		maxHistory: defaultMaxHistory,
		now:        time.Now,
		logger:     logger.With(slog.String("module", "local-runtime")),
	}
}

// Invoke starts a turn and returns the SSE stream of its answer. The stream is produced as the reader
// consumes it and stops when the reader is closed or ctx is done.
func (l *LocalRuntime) Invoke(ctx context.Context, sessionID string, payload []byte) (io.ReadCloser, error) {
	prompt := promptOf(payload)
	if strings.TrimSpace(prompt) == "" {
		return nil, errEmptyPrompt
	}

	question := models.Message{
		ID:        uuid.NewString(),
		Type:      models.MessageTypeUser,
		Content:   prompt,
		Timestamp: l.now(),
	}
	history := l.record(sessionID, question)

	pr, pw := io.Pipe()
	go l.stream(ctx, sessionID, question.ID, history, pw)
	return pr, nil
}

// stream writes the answer frames of one turn. A turn that does not complete takes its question out of
// the history, so the next turn does not send two user messages in a row.
func (l *LocalRuntime) stream(ctx context.Context, sessionID, questionID string, history []models.Message,
	pw *io.PipeWriter,
) {
	logger := l.logger.With(slog.String("sessionID", sessionID))

	var answer strings.Builder
	for chunk, err := range l.llm.Chat(ctx, history) {
		if err != nil {
			logger.Error("Error from llm provider", slog.String(errLoggerKey, err.Error()))
			l.forget(sessionID, questionID)
			msg := err.Error()
			_ = writeFrame(pw, models.RawAgentEvent{Error: &msg})
			_ = pw.Close()
			return
		}
		if chunk == "" {
			continue
		}
		answer.WriteString(chunk)
		if err := writeFrame(pw, models.RawAgentEvent{Response: &chunk}); err != nil {
			logger.Debug("Reader went away", slog.String(errLoggerKey, err.Error()))
			l.forget(sessionID, questionID)
			_ = pw.CloseWithError(err)
			return
		}
	}

	final := answer.String()
	l.record(sessionID, models.Message{
		ID:        uuid.NewString(),
		Type:      models.MessageTypeAI,
		Content:   final,
		Timestamp: l.now(),
	})

	if err := writeFrame(pw, models.RawAgentEvent{FinalResult: &final}); err != nil {
		logger.Debug("Reader went away before the final answer", slog.String(errLoggerKey, err.Error()))
	}
	_ = pw.Close()
}

// record appends msg to the session history and returns a copy of the history.
func (l *LocalRuntime) record(sessionID string, msg models.Message) []models.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	h := append(l.histories[sessionID], msg)
	if len(h) > l.maxHistory {
		h = slices.Clone(h[len(h)-l.maxHistory:])
	}
	l.histories[sessionID] = h
	return slices.Clone(h)
}

// forget removes the message with id from the session history.
func (l *LocalRuntime) forget(sessionID, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.histories[sessionID] = slices.DeleteFunc(l.histories[sessionID], func(m models.Message) bool {
		return m.ID == id
	})
}

// History returns a copy of the conversation kept for sessionID.
func (l *LocalRuntime) History(sessionID string) []models.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.histories[sessionID])
}

// promptOf extracts the prompt from the invocation payload. A payload that is not an object with a
// prompt is used as the prompt itself.
func promptOf(payload []byte) string {
	var p invocationPayload
	if err := json.Unmarshal(payload, &p); err == nil && p.Prompt != "" {
		return p.Prompt
	}
	return string(payload)
}

func writeFrame(w io.Writer, ev models.RawAgentEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	msg := &sse.Message{}
	msg.AppendData(string(data))
	if _, err := msg.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// role maps a message type to the chat role the providers expect.
func role(m models.Message) string {
	if m.Type == models.MessageTypeAI {
		return "assistant"
	}
	return "user"
}

const errLoggerKey = "error"
