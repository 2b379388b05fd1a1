package agentclient_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nemo-admissions/nemo-relay/internal/agentclient"
	"github.com/nemo-admissions/nemo-relay/internal/models"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var turn = models.ChatRequest{
	Message:     "Hello",
	SessionID:   "2f1c7e5a-6d8b-4f3a-9c2e-1b0a9d8c7e6f",
	PhoneNumber: "+639171234567",
}

func collect(seq func(func(models.StreamEvent) bool)) []models.StreamEvent {
	var evs []models.StreamEvent
	for ev := range seq {
		evs = append(evs, ev)
	}
	return evs
}

func TestStreamChatRequestShape(t *testing.T) {
	var got map[string]any
	var accept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "text/event-stream")
	}))
	defer srv.Close()

	c := agentclient.New(srv.URL, discard)
	require.Empty(t, collect(c.StreamChat(context.Background(), turn)))

	require.Equal(t, "text/event-stream", accept)
	require.Equal(t, map[string]any{
		"runtimeSessionId": turn.SessionID,
		"payload": map[string]any{
			"prompt":       "Hello",
			"session_id":   turn.SessionID,
			"phone_number": "+639171234567",
		},
	}, got)
}

func TestStreamChat(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    []models.StreamEvent
	}{
		{
			name: "full turn",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprint(w, "data: {\"thinking\":\"🔍 Looking up tuition\"}\n\n")
				fmt.Fprint(w, "data: {\"response\":\"Hi \"}\n\ndata: {\"response\":\"there\"}\n\n")
				fmt.Fprint(w, "data: {\"final_result\":\"Hi there!\"}\n\n")
			},
			want: []models.StreamEvent{
				models.ToolStatusEvent("🔍", "Searching"),
				models.ResponseEvent("Hi "),
				models.ResponseEvent("there"),
				models.FinalEvent("Hi there!"),
			},
		},
		{
			name: "malformed payload is skipped",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, "data: {\"response\":\n")
				fmt.Fprint(w, "data: {\"response\":\"ok\"}\n\n")
				fmt.Fprint(w, "data: nope\n\ndata: {\"final_result\":\"ok\"}")
			},
			want: []models.StreamEvent{
				models.ResponseEvent("ok"),
				models.FinalEvent("ok"),
			},
		},
		{
			name: "relay error frame",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, "data: {\"type\":\"error\",\"error\":\"throttled\"}\n\n")
			},
			want: []models.StreamEvent{models.ErrorEvent("throttled")},
		},
		{
			name: "json error body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error":"Missing runtimeSessionId or payload"}`)
			},
			want: []models.StreamEvent{models.ErrorEvent("Missing runtimeSessionId or payload")},
		},
		{
			name: "json body without error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, `{}`)
			},
			want: []models.StreamEvent{models.ErrorEvent("HTTP 500")},
		},
		{
			name: "non json error body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				fmt.Fprint(w, "data: {\"type\":\"error\",\"error\":\"No response stream\"}\n\n")
			},
			want: []models.StreamEvent{models.ErrorEvent("Unknown error")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := agentclient.New(srv.URL, discard)
			require.Equal(t, tt.want, collect(c.StreamChat(context.Background(), turn)))
		})
	}
}

func TestStreamChatNotConfigured(t *testing.T) {
	c := agentclient.New("", discard)

	got := collect(c.StreamChat(context.Background(), turn))

	require.Equal(t, []models.StreamEvent{models.ErrorEvent(agentclient.ErrNotConfigured.Error())}, got)
}

func TestStreamChatTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	got := collect(agentclient.New(url, discard).StreamChat(context.Background(), turn))

	require.Len(t, got, 1)
	require.Equal(t, models.StreamEventError, got[0].Type)
	require.Contains(t, got[0].Message, "request failed")
}

func TestStreamChatStopClosesConnection(t *testing.T) {
	closed := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"response\":\"first\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(closed)
	}))
	defer srv.Close()

	c := agentclient.New(srv.URL, discard)
	for ev := range c.StreamChat(context.Background(), turn) {
		require.Equal(t, models.ResponseEvent("first"), ev)
		break
	}

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("connection was not closed after the consumer stopped")
	}
}

func TestStreamChatDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"response": "Let me check"}`+"\n\n")
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	c := agentclient.New(srv.URL, discard)
	require.Equal(t, []models.StreamEvent{
		models.ResponseEvent("Let me check"),
		models.ErrorEvent(agentclient.ErrTimeout.Error()),
	}, collect(c.StreamChat(ctx, turn)))
}

func TestSendChatMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "data: {\"response\":\"Hi\"}\n\ndata: {\"final_result\":\"Hi there!\"}\n\n")
	}))
	defer srv.Close()

	text, err := agentclient.New(srv.URL, discard).SendChatMessage(context.Background(), turn)
	require.NoError(t, err)
	require.Equal(t, "Hi there!", text)

	_, err = agentclient.New("", discard).SendChatMessage(context.Background(), turn)
	require.EqualError(t, err, agentclient.ErrNotConfigured.Error())
}
