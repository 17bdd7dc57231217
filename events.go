package supervisor

import (
	"github.com/wagiedev/claude-supervisor-go/internal/registry"
	"github.com/wagiedev/claude-supervisor-go/internal/stream"
	"github.com/wagiedev/claude-supervisor-go/internal/usage"
)

// Event is one typed event from a run's stream. Concrete types:
// SessionReady, TextDelta, ToolInvocation, ToolResult, UsageUpdate,
// Completed, StreamError, ParseError.
type Event = stream.Event

type (
	// SessionReady is always the first event on a run's channel and
	// carries the session id. Synthetic ids mark degraded runs that the
	// CLI cannot resume under their real identity.
	SessionReady = stream.SessionReady

	// TextDelta carries a chunk of assistant text.
	TextDelta = stream.TextDelta

	// ToolInvocation announces a tool call requested by the assistant.
	ToolInvocation = stream.ToolInvocation

	// ToolResult carries the outcome of an earlier tool invocation.
	ToolResult = stream.ToolResult

	// UsageUpdate carries the raw token counters from one usage report.
	UsageUpdate = stream.UsageUpdate

	// Completed marks the logical end of a run.
	Completed = stream.Completed

	// StreamError carries an error reported inside the stream or a
	// process-level failure.
	StreamError = stream.StreamError

	// ParseError reports a line that could not be decoded; the stream
	// continues past it.
	ParseError = stream.ParseError
)

// Counters holds the four raw token counters of a usage report.
type Counters = usage.Counters

// UsageTotals is a snapshot of accumulated usage for a run.
type UsageTotals = usage.Totals

// RunInfo is a snapshot of one active run.
type RunInfo = registry.Info
