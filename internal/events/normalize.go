// Package events turns the loosely shaped JSON objects streamed by the agent runtime into typed
// stream events.
//
// Every field of a raw frame is checked independently and structurally; a frame may therefore yield
// several events, or none when it carries nothing the chat understands.
package events

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nemo-admissions/nemo-relay/internal/models"
)

// Normalizer maps raw agent frames to stream events under an icon policy and reports frames that
// produced nothing.
type Normalizer struct {
	policy IconPolicy
	logger *slog.Logger
}

// NewNormalizer creates a Normalizer. A nil policy means DefaultIconPolicy and a nil logger means
// slog.Default().
func NewNormalizer(policy IconPolicy, logger *slog.Logger) Normalizer {
	if policy == nil {
		policy = DefaultIconPolicy
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Normalizer{
		policy: policy,
		logger: logger.With(slog.String("module", "events")),
	}
}

// Normalize is Normalize with the normalizer's policy. Frames yielding no event are logged as
// unhandled.
func (n Normalizer) Normalize(raw any) []models.StreamEvent {
	evs := Normalize(raw, n.policy)
	if len(evs) == 0 {
		n.logger.Warn("Unhandled stream event format", slog.String("event", fmt.Sprintf("%+v", raw)))
	}
	return evs
}

// Normalize maps one decoded JSON value to zero or more stream events. It never fails: values that are
// not JSON objects, and objects without any recognised field, yield no event.
//
// Fields are emitted in a fixed order: response, final_result, thinking, tool_status, tool_result and
// error.
func Normalize(raw any, policy IconPolicy) []models.StreamEvent {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil
	}

	var evs []models.StreamEvent

	if s, ok := obj["response"].(string); ok {
		evs = append(evs, models.ResponseEvent(s))
	}

	if s, ok := obj["final_result"].(string); ok {
		evs = append(evs, models.FinalEvent(s))
	}

	if s, ok := obj["thinking"].(string); ok && s != "" {
		icon, message := SplitIcon(s)
		if label, visible := policy.resolve(icon, fallbackMessage(message, s)); visible {
			evs = append(evs, models.ToolStatusEvent(icon, label))
		}
	}

	if status, ok := obj["tool_status"].(map[string]any); ok {
		icon, iconOK := status["icon"].(string)
		message, messageOK := status["message"].(string)
		if iconOK && messageOK {
			if label, visible := policy.resolve(icon, fallbackMessage(message, message)); visible {
				evs = append(evs, models.ToolStatusEvent(icon, label))
			}
		}
	}

	if s, ok := obj["tool_result"].(string); ok {
		evs = append(evs, models.ToolResultEvent(s))
	}

	if s, ok := obj["error"].(string); ok {
		evs = append(evs, models.ErrorEvent(s))
	}

	return evs
}

// SplitIcon separates the leading run of pictographic characters of a thinking line from the rest of
// the text. Lines without a leading icon get DefaultIcon and keep their whole trimmed text.
func SplitIcon(thinking string) (icon, message string) {
	trimmed := strings.TrimSpace(thinking)
	if trimmed == "" {
		return DefaultIcon, ""
	}

	end := 0
	for end < len(trimmed) {
		r, size := utf8.DecodeRuneInString(trimmed[end:])
		if !unicode.Is(pictographic, r) {
			break
		}
		end += size
	}
	if end == 0 {
		return DefaultIcon, trimmed
	}

	return trimmed[:end], strings.TrimLeftFunc(trimmed[end:], unicode.IsSpace)
}

func fallbackMessage(message, fallback string) string {
	if message != "" {
		return message
	}
	return strings.TrimSpace(fallback)
}

// pictographic covers the emoji presentation blocks plus the joiners and selectors that glue multi
// code point emoji together. ASCII digits, '#' and '*' are only emoji as keycap sequences and are left
// out.
var pictographic = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x00a9, Hi: 0x00a9, Stride: 1},
		{Lo: 0x00ae, Hi: 0x00ae, Stride: 1},
		{Lo: 0x200d, Hi: 0x200d, Stride: 1},
		{Lo: 0x203c, Hi: 0x203c, Stride: 1},
		{Lo: 0x2049, Hi: 0x2049, Stride: 1},
		{Lo: 0x20e3, Hi: 0x20e3, Stride: 1},
		{Lo: 0x2122, Hi: 0x2122, Stride: 1},
		{Lo: 0x2139, Hi: 0x2139, Stride: 1},
		{Lo: 0x2194, Hi: 0x2199, Stride: 1},
		{Lo: 0x21a9, Hi: 0x21aa, Stride: 1},
		{Lo: 0x231a, Hi: 0x231b, Stride: 1},
		{Lo: 0x2328, Hi: 0x2328, Stride: 1},
		{Lo: 0x23cf, Hi: 0x23cf, Stride: 1},
		{Lo: 0x23e9, Hi: 0x23f3, Stride: 1},
		{Lo: 0x23f8, Hi: 0x23fa, Stride: 1},
		{Lo: 0x24c2, Hi: 0x24c2, Stride: 1},
		{Lo: 0x25aa, Hi: 0x25ab, Stride: 1},
		{Lo: 0x25b6, Hi: 0x25b6, Stride: 1},
		{Lo: 0x25c0, Hi: 0x25c0, Stride: 1},
		{Lo: 0x25fb, Hi: 0x25fe, Stride: 1},
		{Lo: 0x2600, Hi: 0x27bf, Stride: 1},
		{Lo: 0x2934, Hi: 0x2935, Stride: 1},
		{Lo: 0x2b05, Hi: 0x2b07, Stride: 1},
		{Lo: 0x2b1b, Hi: 0x2b1c, Stride: 1},
		{Lo: 0x2b50, Hi: 0x2b50, Stride: 1},
		{Lo: 0x2b55, Hi: 0x2b55, Stride: 1},
		{Lo: 0x3030, Hi: 0x3030, Stride: 1},
		{Lo: 0x303d, Hi: 0x303d, Stride: 1},
		{Lo: 0x3297, Hi: 0x3297, Stride: 1},
		{Lo: 0x3299, Hi: 0x3299, Stride: 1},
		{Lo: 0xfe0f, Hi: 0xfe0f, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1f000, Hi: 0x1faff, Stride: 1},
		{Lo: 0xe0020, Hi: 0xe007f, Stride: 1},
	},
	LatinOffset: 2,
}
