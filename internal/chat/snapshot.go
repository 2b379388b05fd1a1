package chat

import (
	"slices"

	"github.com/nemo-admissions/nemo-relay/internal/models"
)

// Phase is the position of the current turn in the turn lifecycle.
type Phase string

const (
	// PhaseIdle means no turn is running.
	PhaseIdle Phase = "idle"
	// PhaseWaiting means a turn was sent and no text has arrived yet.
	PhaseWaiting Phase = "waiting"
	// PhaseStreaming means the agent is streaming the answer.
	PhaseStreaming Phase = "streaming"
	// PhaseErred means the last turn ended with an error.
	PhaseErred Phase = "erred"
)

// Snapshot is a point-in-time copy of a session, suitable for rendering. It shares nothing with the
// session.
type Snapshot struct {
	SessionID string
	Messages  []models.Message
	Input     string

	// StreamingContent is the text accumulated by the open turn. It is never committed as is.
	StreamingContent string
	Waiting          bool
	Streaming        bool
	Tool             *models.ToolStatus
	Error            string
}

// Phase derives the turn phase from the flags.
func (s Snapshot) Phase() Phase {
	switch {
	case s.Streaming:
		return PhaseStreaming
	case s.Waiting:
		return PhaseWaiting
	case s.Error != "":
		return PhaseErred
	default:
		return PhaseIdle
	}
}

// ShowPending reports whether the in-progress AI bubble should be rendered.
func (s Snapshot) ShowPending() bool {
	return s.Waiting || s.Streaming || s.StreamingContent != ""
}

// Snapshot returns the current state of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:        s.id,
		Messages:         slices.Clone(s.messages),
		Input:            s.input,
		StreamingContent: s.buffer.String(),
		Waiting:          s.waiting,
		Streaming:        s.streaming,
		Error:            s.errMsg,
	}
	for i, m := range snap.Messages {
		if m.ToolStatus != nil {
			t := *m.ToolStatus
			snap.Messages[i].ToolStatus = &t
		}
	}
	if s.tool != nil {
		t := *s.tool
		snap.Tool = &t
	}
	return snap
}
