package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/nemo-admissions/nemo-relay/internal/metrics"
)

// AgentRuntime invokes the managed agent for one turn. The returned stream carries the agent's SSE
// bytes and must be closed by the caller. A nil stream with a nil error means the runtime produced no
// response stream.
type AgentRuntime interface {
	Invoke(ctx context.Context, sessionID string, payload []byte) (io.ReadCloser, error)
}

// Relay forwards invocations to an AgentRuntime and streams the runtime's response back unchanged.
type Relay struct {
	runtime AgentRuntime
	logger  *slog.Logger
}

type invocationRequest struct {
	RuntimeSessionID json.RawMessage `json:"runtimeSessionId"`
	Payload          json.RawMessage `json:"payload"`
}

type errorResponse struct {
	Error string `json:"error"`
}

const (
	errLoggerKey = "error"

	missingFieldsMessage = "Missing runtimeSessionId or payload"
	noStreamMessage      = "No response stream from AgentCore"

	readBufferSize = 32 * 1024
)

var errMissingFields = errors.New("missing runtimeSessionId or payload")

// NewRelay creates a Relay over runtime.
func NewRelay(runtime AgentRuntime, logger *slog.Logger) Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return Relay{
		runtime: runtime,
		logger:  logger.With(slog.String("module", "relay")),
	}
}

// HandleInvocations handles POST /invocations.
//
// The body is {"runtimeSessionId": ..., "payload": ...}. When either value is absent or falsy, the
// handler answers 400 with a JSON error. Otherwise it invokes the runtime and relays the response stream
// chunk by chunk, flushing each one and reading the next only after the write returned. Failures after
// validation are reported to the client as a final SSE frame {"type":"error","error":...}.
func (r Relay) HandleInvocations(w http.ResponseWriter, req *http.Request) {
	sessionID, payload, err := decodeInvocation(req.Body)
	if err != nil {
		r.logger.Warn("Rejected invocation", slog.String(errLoggerKey, err.Error()))
		metrics.RelayInvocations.WithLabelValues(metrics.OutcomeBadRequest).Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: missingFieldsMessage})
		return
	}

	logger := r.logger.With(slog.String("sessionID", sessionID))
	out := newStreamWriter(w)

	logger.Info("Invoking agent runtime", slog.Int("payloadBytes", len(payload)))
	stream, err := r.runtime.Invoke(req.Context(), sessionID, payload)
	if err != nil {
		logger.Error("Failed to invoke agent runtime", slog.String(errLoggerKey, err.Error()))
		metrics.RelayInvocations.WithLabelValues(metrics.OutcomeInvokeError).Inc()
		out.fail(http.StatusOK, err.Error())
		return
	}
	if stream == nil {
		logger.Error("Agent runtime returned no response stream")
		metrics.RelayInvocations.WithLabelValues(metrics.OutcomeNoStream).Inc()
		out.fail(http.StatusBadGateway, noStreamMessage)
		return
	}
	defer stream.Close()

	metrics.RelayActiveStreams.Inc()
	defer metrics.RelayActiveStreams.Dec()

	out.start(http.StatusOK)
	logger.Debug("Streaming agent response")

	n, err := out.copyFrom(stream)
	metrics.RelayBytesForwarded.Add(float64(n))
	if err != nil {
		if req.Context().Err() != nil {
			logger.Info("Client went away during stream", slog.Int64("bytes", n))
		} else {
			logger.Error("Error in streaming response",
				slog.Int64("bytes", n),
				slog.String(errLoggerKey, err.Error()))
		}
		metrics.RelayInvocations.WithLabelValues(metrics.OutcomeStreamError).Inc()
		out.fail(http.StatusOK, err.Error())
		return
	}

	out.close()
	metrics.RelayInvocations.WithLabelValues(metrics.OutcomeStreamed).Inc()
	logger.Info("Streaming complete", slog.Int64("bytes", n))
}

// decodeInvocation validates the request body and returns the session identifier and the payload bytes
// to hand to the runtime.
func decodeInvocation(body io.Reader) (string, []byte, error) {
	var req invocationRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return "", nil, fmt.Errorf("failed to decode body: %w", err)
	}
	if !truthy(req.RuntimeSessionID) || !truthy(req.Payload) {
		return "", nil, errMissingFields
	}

	sessionID, err := encodeValue(req.RuntimeSessionID)
	if err != nil {
		return "", nil, fmt.Errorf("invalid runtimeSessionId: %w", err)
	}
	payload, err := encodeValue(req.Payload)
	if err != nil {
		return "", nil, fmt.Errorf("invalid payload: %w", err)
	}
	return string(sessionID), payload, nil
}

// truthy reports whether raw holds a value other than null, false, 0 or "".
func truthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	default:
		return true
	}
}

// encodeValue turns a JSON value into bytes: a string becomes its text, anything else its compact JSON
// encoding with key order preserved.
func encodeValue(raw json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		return []byte(s), nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
