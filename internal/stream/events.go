package stream

import (
	"encoding/json"

	"github.com/wagiedev/claude-supervisor-go/internal/usage"
)

// Event is a typed event decoded from the child's output stream.
type Event interface {
	isEvent()
}

// SessionReady announces the session identifier for a run. It is always
// the first event on a run's channel.
type SessionReady struct {
	// SessionID is the 26-character session identifier.
	SessionID string

	// Synthetic is true when the id was generated locally because the
	// child never reported one. Such a session is not resumable under
	// its real identity.
	Synthetic bool
}

// TextDelta carries a chunk of assistant text.
type TextDelta struct {
	Text string
}

// ToolInvocation announces a tool call requested by the assistant.
type ToolInvocation struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult carries the outcome of an earlier tool invocation.
type ToolResult struct {
	ToolUseID string
	Content   string
	IsError   bool
}

// UsageUpdate carries the raw token counters from one usage report.
// Counters are deltas to be accumulated, never absolute totals.
type UsageUpdate struct {
	Model    string
	Counters usage.Counters
}

// Completed marks the logical end of a run's stream.
type Completed struct {
	IsError bool
	Result  string
}

// StreamError carries an error reported by the child inside the stream,
// or a process-level failure surfaced to the consumer.
type StreamError struct {
	Message string
}

// ParseError reports a line (or fragment group) that could not be decoded.
// It is informational: the stream continues past it.
type ParseError struct {
	Line string
	Err  error
}

func (SessionReady) isEvent()   {}
func (TextDelta) isEvent()      {}
func (ToolInvocation) isEvent() {}
func (ToolResult) isEvent()     {}
func (UsageUpdate) isEvent()    {}
func (Completed) isEvent()      {}
func (StreamError) isEvent()    {}
func (ParseError) isEvent()     {}
