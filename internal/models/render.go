package models

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		highlighting.NewHighlighting(highlighting.WithStyle("github")),
	),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// RenderMarkdown converts agent markdown into HTML. Raw HTML embedded in the markdown is dropped, so
// the result is safe to embed in a page as is.
func RenderMarkdown(content string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil //nolint:gosec // goldmark escapes raw HTML by default
}

// HTML renders the message content. User messages are escaped verbatim, AI messages are rendered as
// markdown.
func (m Message) HTML() (template.HTML, error) {
	if m.Type != MessageTypeAI {
		return template.HTML(template.HTMLEscapeString(m.Content)), nil //nolint:gosec // escaped above
	}
	return RenderMarkdown(m.Content)
}
