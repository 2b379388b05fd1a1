package models

import "time"

// ChatRequest is a single user turn addressed to the agent relay. SessionID doubles as the runtime
// session identifier and PhoneNumber is the correlation key the agent uses to look up the lead.
type ChatRequest struct {
	Message     string
	SessionID   string
	PhoneNumber string
}

// Message represents a committed entry of a conversation. Messages are created when the user submits
// text or when a turn is finalized, and are never mutated afterwards.
type Message struct {
	ID        string
	Type      MessageType
	Content   string
	Timestamp time.Time

	// ToolStatus is a snapshot of the tool overlay that was active when the AI turn was finalized.
	ToolStatus *ToolStatus
}

// ToolStatus describes an auxiliary action the agent performs before answering.
type ToolStatus struct {
	Icon    string
	Message string
	State   ToolState
}

// MessageType represents the author of a message.
type MessageType string

// ToolState represents the progress of a tool overlay.
type ToolState string

const (
	// MessageTypeUser represents a message typed by the user.
	MessageTypeUser MessageType = "user"
	// MessageTypeAI represents a finalized agent answer.
	MessageTypeAI MessageType = "ai"

	// ToolStateRunning is set while the turn owning the tool is still open.
	ToolStateRunning ToolState = "running"
	// ToolStateCompleted is set once the owning turn is finalized.
	ToolStateCompleted ToolState = "completed"
)

// Completed returns a copy of the status marked as completed.
func (t ToolStatus) Completed() ToolStatus {
	t.State = ToolStateCompleted
	return t
}
