package agent

import (
	"time"

	"github.com/argus-beta/fincall/internal/core/dispatch"
	"github.com/argus-beta/fincall/internal/providers"
)

// Event is emitted while a query is processed. The gateway streams these
// to clients; the CLI prints them in verbose mode.
type Event struct {
	Type      string            // see constants below
	Text      string            // for "summary", "error", "budget_exceeded"
	Index     int               // call position, for "tool_call" and "tool_result"
	ToolName  string            // for "tool_call" and "tool_result"
	Arguments map[string]any    // for "tool_call"
	Outcome   *dispatch.Outcome // for "tool_result"
	Usage     *providers.Usage  // for "done"
	Timestamp time.Time
}

const (
	EventModelCall      = "model_call"
	EventToolCall       = "tool_call"
	EventToolResult     = "tool_result"
	EventSummary        = "summary"
	EventDone           = "done"
	EventError          = "error"
	EventBudgetExceeded = "budget_exceeded"
)

// Observer receives events. It is called synchronously; with parallel
// dispatch it may be called from several goroutines.
type Observer func(Event)
