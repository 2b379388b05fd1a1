package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/nemo-admissions/nemo-relay/internal/chat"
	"github.com/nemo-admissions/nemo-relay/internal/models"
)

type markdownRenderer interface {
	Render(in string) (string, error)
}

// view prints session snapshots to a terminal as they arrive: streamed text as plain deltas, tool status
// lines, and committed answers rendered as markdown.
type view struct {
	mu       sync.Mutex
	out      io.Writer
	renderer markdownRenderer

	printedStream int
	committed     int
	tool          string
	err           string
}

func newView(out io.Writer, renderer markdownRenderer) *view {
	return &view{out: out, renderer: renderer}
}

func (v *view) update(snap chat.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if snap.Tool != nil {
		line := snap.Tool.Icon + " " + snap.Tool.Message
		if line != v.tool {
			fmt.Fprintf(v.out, "%s...\n", line)
			v.tool = line
		}
	}

	for _, msg := range snap.Messages[min(v.committed, len(snap.Messages)):] {
		if msg.Type != models.MessageTypeAI {
			continue
		}
		if v.printedStream > 0 {
			fmt.Fprintln(v.out)
		}
		fmt.Fprint(v.out, v.render(msg.Content))
		if msg.ToolStatus != nil {
			fmt.Fprintf(v.out, "(%s %s done)\n", msg.ToolStatus.Icon, msg.ToolStatus.Message)
		}
		v.printedStream = 0
		v.tool = ""
	}
	v.committed = len(snap.Messages)

	if n := len(snap.StreamingContent); n > v.printedStream {
		fmt.Fprint(v.out, snap.StreamingContent[v.printedStream:])
		v.printedStream = n
	} else if n < v.printedStream {
		v.printedStream = n
	}

	if snap.Error != "" && snap.Error != v.err {
		fmt.Fprintf(v.out, "\nerror: %s\n", snap.Error)
	}
	v.err = snap.Error
}

func (v *view) render(content string) string {
	if v.renderer == nil {
		return ensureNewline(content)
	}
	out, err := v.renderer.Render(content)
	if err != nil {
		return ensureNewline(content)
	}
	return out
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
