package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/nemo-admissions/nemo-relay/internal/models"
)

// AnthropicMessages is the subset of the Anthropic SDK used by Anthropic. It is satisfied by
// *sdk.MessageService.
type AnthropicMessages interface {
	NewStreaming(
		ctx context.Context,
		body sdk.MessageNewParams,
		opts ...option.RequestOption,
	) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Anthropic provides an implementation of the LLM interface for Anthropic's Messages API.
type Anthropic struct {
	model        string
	systemPrompt string
	maxTokens    int

	messages AnthropicMessages

	logger *slog.Logger
}

var errNoMaxTokens = errors.New("max_tokens is required")

// NewAnthropic creates an Anthropic instance authenticated with apiKey.
func NewAnthropic(apiKey, model, systemPrompt string, maxTokens int, logger *slog.Logger) (Anthropic, error) {
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropicWithMessages(&client.Messages, model, systemPrompt, maxTokens, logger)
}

// NewAnthropicWithMessages creates an Anthropic instance over an existing messages client.
func NewAnthropicWithMessages(
	messages AnthropicMessages,
	model, systemPrompt string,
	maxTokens int,
	logger *slog.Logger,
) (Anthropic, error) {
	if maxTokens <= 0 {
		return Anthropic{}, errNoMaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Anthropic{
		model:        model,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
		messages:     messages,
		logger:       logger.With(slog.String("module", "anthropic")),
	}, nil
}

// Chat streams the text deltas of one Messages API completion.
func (a Anthropic) Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		params := sdk.MessageNewParams{
			MaxTokens: int64(a.maxTokens),
			Messages:  anthropicMessages(messages),
			Model:     sdk.Model(a.model),
		}
		if a.systemPrompt != "" {
			params.System = []sdk.TextBlockParam{{Text: a.systemPrompt}}
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stream := a.messages.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case sdk.ContentBlockDeltaEvent:
				if delta, ok := ev.Delta.AsAny().(sdk.TextDelta); ok && delta.Text != "" {
					if !yield(delta.Text, nil) {
						return
					}
				}
			case sdk.MessageStopEvent:
				a.logger.Debug("Message stopped")
			}
		}

		if err := stream.Err(); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield("", fmt.Errorf("error receiving response: %w", err))
		}
	}
}

func anthropicMessages(messages []models.Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(messages))
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		block := sdk.NewTextBlock(msg.Content)
		if msg.Type == models.MessageTypeAI {
			out = append(out, sdk.NewAssistantMessage(block))
			continue
		}
		out = append(out, sdk.NewUserMessage(block))
	}
	return out
}
