package services_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/nemo-admissions/nemo-relay/internal/models"
	"github.com/nemo-admissions/nemo-relay/internal/services"
	"github.com/stretchr/testify/require"
)

var conversation = []models.Message{
	{Type: models.MessageTypeUser, Content: "Which campuses do you have?"},
	{Type: models.MessageTypeAI, Content: "Manila, Makati and Laguna."},
	{Type: models.MessageTypeUser, Content: "And online?"},
}

func collect(t *testing.T, llm services.LLM) string {
	t.Helper()

	var sb strings.Builder
	for chunk, err := range llm.Chat(context.Background(), conversation) {
		require.NoError(t, err)
		sb.WriteString(chunk)
	}
	return sb.String()
}

func TestOllamaChat(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, part := range []string{"Yes, ", "fully online."} {
			fmt.Fprintf(w, `{"model":"llama3.2","message":{"role":"assistant","content":%q},"done":false}`+"\n", part)
		}
		fmt.Fprintln(w, `{"model":"llama3.2","message":{"role":"assistant","content":""},"done":true}`)
	}))
	defer srv.Close()

	llm, err := services.NewOllama(srv.URL, "llama3.2", "You are an admissions assistant.", srv.Client())
	require.NoError(t, err)

	require.Equal(t, "Yes, fully online.", collect(t, llm))
	require.Equal(t, "llama3.2", got.Model)
	require.Len(t, got.Messages, 4)
	require.Equal(t, "system", got.Messages[0].Role)
	require.Equal(t, "assistant", got.Messages[2].Role)
	require.Equal(t, "And online?", got.Messages[3].Content)
}

func TestOpenAIChat(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Stream   bool   `json:"stream"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Yes, ", "fully online."} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	llm := services.NewOpenAI(services.OpenAIOptions{
		APIKey:       "test-key",
		BaseURL:      srv.URL + "/v1",
		Model:        "gpt-4o-mini",
		SystemPrompt: "You are an admissions assistant.",
	}, discard)

	require.Equal(t, "Yes, fully online.", collect(t, llm))
	require.Equal(t, "gpt-4o-mini", got.Model)
	require.True(t, got.Stream)
	require.Len(t, got.Messages, 4)
	require.Equal(t, "system", got.Messages[0].Role)
	require.Equal(t, "assistant", got.Messages[2].Role)
}

func TestOpenAIChatError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	llm := services.NewOpenAI(services.OpenAIOptions{APIKey: "bad", BaseURL: srv.URL, Model: "m"}, discard)

	var errs []error
	for _, err := range llm.Chat(context.Background(), conversation) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].Error(), "invalid api key")
}

// scriptedDecoder feeds fixed events to an ssestream.Stream.
type scriptedDecoder struct {
	events []ssestream.Event
	i      int
}

func (d *scriptedDecoder) Event() ssestream.Event { return d.events[d.i-1] }

func (d *scriptedDecoder) Next() bool {
	if d.i >= len(d.events) {
		return false
	}
	d.i++
	return true
}

func (d *scriptedDecoder) Close() error { return nil }
func (d *scriptedDecoder) Err() error   { return nil }

type stubMessages struct {
	events []ssestream.Event
	got    sdk.MessageNewParams
}

func (s *stubMessages) NewStreaming(
	_ context.Context,
	body sdk.MessageNewParams,
	_ ...option.RequestOption,
) *ssestream.Stream[sdk.MessageStreamEventUnion] {
	s.got = body
	return ssestream.NewStream[sdk.MessageStreamEventUnion](&scriptedDecoder{events: s.events}, nil)
}

func textDelta(text string) ssestream.Event {
	data := fmt.Sprintf(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":%q}}`, text)
	return ssestream.Event{Type: "content_block_delta", Data: []byte(data)}
}

func TestAnthropicChat(t *testing.T) {
	msgs := &stubMessages{events: []ssestream.Event{
		textDelta("Yes, "),
		textDelta("fully online."),
		{Type: "message_stop", Data: []byte(`{"type":"message_stop"}`)},
	}}
	llm, err := services.NewAnthropicWithMessages(msgs, "claude-sonnet-4-5", "You are an admissions assistant.", 1024, discard)
	require.NoError(t, err)

	require.Equal(t, "Yes, fully online.", collect(t, llm))
	require.Equal(t, int64(1024), msgs.got.MaxTokens)
	require.Equal(t, sdk.Model("claude-sonnet-4-5"), msgs.got.Model)
	require.Len(t, msgs.got.Messages, 3)
	require.Equal(t, sdk.MessageParamRoleAssistant, msgs.got.Messages[1].Role)
	require.Equal(t, "You are an admissions assistant.", msgs.got.System[0].Text)
}

func TestNewAnthropicRequiresMaxTokens(t *testing.T) {
	_, err := services.NewAnthropicWithMessages(&stubMessages{}, "claude-sonnet-4-5", "", 0, discard)
	require.Error(t, err)
}
