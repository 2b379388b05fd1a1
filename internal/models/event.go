package models

// RawAgentEvent is the JSON object carried by a single `data:` line of the agent stream. No schema is
// enforced by the agent runtime: any subset of the fields may be present in a frame.
type RawAgentEvent struct {
	Response    *string        `json:"response,omitempty"`
	FinalResult *string        `json:"final_result,omitempty"`
	Thinking    *string        `json:"thinking,omitempty"`
	ToolStatus  *RawToolStatus `json:"tool_status,omitempty"`
	ToolResult  *string        `json:"tool_result,omitempty"`
	Error       *string        `json:"error,omitempty"`
}

// RawToolStatus is the structured tool status some agents send instead of a free-text thinking line.
type RawToolStatus struct {
	Icon    string `json:"icon"`
	Message string `json:"message"`
}

// StreamEventType discriminates the variants of StreamEvent.
type StreamEventType string

const (
	// StreamEventResponse is an incremental text fragment of the in-progress answer.
	StreamEventResponse StreamEventType = "response"
	// StreamEventToolStatus signals that the agent started a tool invocation.
	StreamEventToolStatus StreamEventType = "tool_status"
	// StreamEventToolResult carries raw tool output. It is not rendered.
	StreamEventToolResult StreamEventType = "tool_result"
	// StreamEventFinal carries the complete, authoritative answer and closes the turn.
	StreamEventFinal StreamEventType = "final"
	// StreamEventError is a terminal failure of the turn.
	StreamEventError StreamEventType = "error"
)

// StreamEvent is a typed event of an agent turn. Which payload fields are set depends on Type:
// Content for response, tool_result and final; Icon and Message for tool_status; Message for error.
type StreamEvent struct {
	Type StreamEventType `json:"type"`

	Content string `json:"content,omitempty"`
	Icon    string `json:"icon,omitempty"`
	Message string `json:"message,omitempty"`
}

// ResponseEvent returns a response event with the given fragment.
func ResponseEvent(content string) StreamEvent {
	return StreamEvent{Type: StreamEventResponse, Content: content}
}

// FinalEvent returns a final event with the given complete answer.
func FinalEvent(content string) StreamEvent {
	return StreamEvent{Type: StreamEventFinal, Content: content}
}

// ToolStatusEvent returns a tool_status event.
func ToolStatusEvent(icon, message string) StreamEvent {
	return StreamEvent{Type: StreamEventToolStatus, Icon: icon, Message: message}
}

// ToolResultEvent returns a tool_result event.
func ToolResultEvent(content string) StreamEvent {
	return StreamEvent{Type: StreamEventToolResult, Content: content}
}

// ErrorEvent returns an error event.
func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: StreamEventError, Message: message}
}

// Terminal reports whether the event closes the turn it belongs to.
func (e StreamEvent) Terminal() bool {
	return e.Type == StreamEventFinal || e.Type == StreamEventError
}
