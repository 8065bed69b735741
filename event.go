package mcphost

import "encoding/json"

// EventType identifies the kind of event emitted by a TurnStream.
type EventType string

const (
	EventTextDelta    EventType = "text_delta"
	EventToolCall     EventType = "tool_call"
	EventToolResult   EventType = "tool_result"
	EventTurnComplete EventType = "turn_complete"
)

// Event is the interface implemented by all events emitted through TurnStream.
type Event interface {
	Type() EventType
}

// TextDeltaEvent carries a fragment of streamed assistant text.
type TextDeltaEvent struct {
	Delta string
}

func (e *TextDeltaEvent) Type() EventType { return EventTextDelta }

// ToolCallEvent is emitted when the model requests a tool call, before
// the call is dispatched.
type ToolCallEvent struct {
	CallID        string
	QualifiedName string
	Args          json.RawMessage
}

func (e *ToolCallEvent) Type() EventType { return EventToolCall }

// ToolResultEvent is emitted when a dispatched tool call completes.
// IsError covers both tool-reported failures and host-side errors such
// as timeouts, which are fed back to the model as data.
type ToolResultEvent struct {
	CallID  string
	Content string
	IsError bool
}

func (e *ToolResultEvent) Type() EventType { return EventToolResult }

// Usage tracks token consumption for a turn.
type Usage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheReadInputTokens     int64
	CacheCreationInputTokens int64
}

// TurnCompleteEvent is emitted once at the end of a turn.
type TurnCompleteEvent struct {
	// FinalText is the assistant's answer on success, empty otherwise.
	FinalText  string
	Rounds     int
	DurationMs int64
	Usage      Usage

	// Err is nil on success, otherwise one of the package sentinels
	// (possibly wrapped with detail).
	Err error
}

func (e *TurnCompleteEvent) Type() EventType { return EventTurnComplete }
