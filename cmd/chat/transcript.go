package main

import (
	"fmt"
	"html/template"
	"io"
	"os"

	"github.com/nemo-admissions/nemo-relay/internal/models"
)

var transcriptTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Conversation {{.SessionID}}</title></head>
<body>
{{range .Entries}}<div class="message {{.Type}}">
<time>{{.Timestamp}}</time>
{{.Body}}
</div>
{{end}}</body>
</html>
`))

type transcriptEntry struct {
	Type      models.MessageType
	Timestamp string
	Body      template.HTML
}

// writeTranscript renders the committed messages of a conversation as a standalone HTML page.
func writeTranscript(w io.Writer, sessionID string, messages []models.Message) error {
	entries := make([]transcriptEntry, 0, len(messages))
	for _, m := range messages {
		body, err := m.HTML()
		if err != nil {
			return fmt.Errorf("error rendering message %s: %w", m.ID, err)
		}
		entries = append(entries, transcriptEntry{
			Type:      m.Type,
			Timestamp: m.Timestamp.Format("2006-01-02 15:04:05"),
			Body:      body,
		})
	}

	return transcriptTemplate.Execute(w, struct {
		SessionID string
		Entries   []transcriptEntry
	}{sessionID, entries})
}

func exportTranscript(path, sessionID string, messages []models.Message) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating transcript file: %w", err)
	}
	defer f.Close()

	return writeTranscript(f, sessionID, messages)
}
