package agent

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/argus-beta/fincall/internal/core/dispatch"
	"github.com/argus-beta/fincall/internal/core/intent"
	"github.com/argus-beta/fincall/internal/core/tools"
	"github.com/argus-beta/fincall/internal/logger"
	"github.com/argus-beta/fincall/internal/providers"
)

// Run is ProcessQuery with an observer that receives progress events.
//
// START -> MODEL_CALL -> EXTRACT -> (no calls -> DONE) | (DISPATCH -> SUMMARIZE -> DONE)
func (o *Orchestrator) Run(ctx context.Context, query string, caller any, observe Observer) (*Result, error) {
	if o.budget.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.budget.MaxDuration)
		defer cancel()
	}

	tracker := NewBudgetTracker(o.budget)
	log := o.log
	if id := logger.RequestID(ctx); id != "" {
		log = log.With("request_id", id)
	}

	// 1. Tool-selection call
	emit(observe, Event{Type: EventModelCall, Text: o.provider.ModelID()})
	resp, err := providers.Collect(ctx, o.provider, providers.CompletionRequest{
		SystemPrompt: BuildSystemPrompt(o.prompt),
		Messages:     []providers.Message{providers.UserText(query)},
		Tools:        o.defs,
		MaxTokens:    intentMaxTokens,
	})
	if err != nil {
		log.Error("tool selection failed", "model", o.provider.ModelID(), "error", err)
		emit(observe, Event{Type: EventError, Text: err.Error()})
		return nil, &UpstreamModelError{Model: o.provider.ModelID(), Err: err}
	}
	tracker.RecordModelCall(resp.Usage)

	// 2. Extract
	calls := o.extractor.Extract(resp)
	result := &Result{Query: query, Results: []dispatch.Outcome{}}

	if len(calls) == 0 {
		log.Info("model selected no tool", "reply", truncate(resp.Text, 200))
		result.Summary = o.noCalls
		o.finish(observe, tracker, result)
		return result, nil
	}

	// 3. Dispatch
	result.Results = o.dispatcher.Run(ctx, calls, caller, func(i int, call intent.Call, out *dispatch.Outcome) {
		if out == nil {
			emit(observe, Event{Type: EventToolCall, Index: i, ToolName: call.Name, Arguments: call.Arguments})
			return
		}
		emit(observe, Event{Type: EventToolResult, Index: i, ToolName: out.ToolName, Outcome: out})
	})
	tracker.RecordToolCalls(len(calls))

	// 4. Summarize, unless the budget is already spent
	if reason := tracker.Exceeded(); reason != "" {
		log.Warn("skipping summary", "reason", reason)
		emit(observe, Event{Type: EventBudgetExceeded, Text: reason})
		result.Summary = o.summarizer.Apology()
	} else {
		summary, usage := o.summarizer.Summarize(ctx, query, result.Results)
		tracker.RecordModelCall(usage)
		result.Summary = summary
	}

	o.finish(observe, tracker, result)
	log.Debug("query processed", "calls", len(calls), "usage", tracker.Summary())
	return result, nil
}

func (o *Orchestrator) finish(observe Observer, tracker *BudgetTracker, result *Result) {
	result.Usage = tracker.Usage()
	emit(observe, Event{Type: EventSummary, Text: result.Summary})
	emit(observe, Event{Type: EventDone, Usage: &result.Usage})
}

// emit stamps and delivers an event when someone is listening.
func emit(observe Observer, evt Event) {
	if observe == nil {
		return
	}
	evt.Timestamp = time.Now()
	observe(evt)
}

// toolDefinitions converts the catalog into provider tool definitions.
func toolDefinitions(catalog []tools.CatalogEntry, namespace string, bare bool) []providers.ToolDefinition {
	defs := make([]providers.ToolDefinition, 0, len(catalog))
	for _, entry := range catalog {
		name := entry.Function.Name
		if bare && namespace != "" {
			name = strings.TrimPrefix(name, namespace)
		}
		defs = append(defs, providers.ToolDefinition{
			Name:        name,
			Description: entry.Function.Description,
			Parameters:  entry.Function.Parameters,
			Required:    append([]string{}, entry.Function.Required...),
		})
	}
	return defs
}

// truncate shortens model text for log lines.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}
