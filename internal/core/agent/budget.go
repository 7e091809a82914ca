package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/argus-beta/fincall/internal/providers"
)

// Budget bounds the resources a single query may consume.
type Budget struct {
	MaxTokens    int           // total tokens (input+output) across both model calls
	MaxCostUSD   float64       // maximum spend for the query
	MaxToolCalls int           // calls past this many are recorded as failures
	MaxDuration  time.Duration // becomes the request deadline
}

// DefaultBudget returns conservative defaults.
func DefaultBudget() Budget {
	return Budget{
		MaxTokens:    0,
		MaxCostUSD:   0.25,
		MaxToolCalls: 8,
		MaxDuration:  2 * time.Minute,
	}
}

// BudgetTracker tracks usage against limits.
type BudgetTracker struct {
	mu        sync.Mutex
	budget    Budget
	usage     providers.Usage
	toolCalls int
	modelCall int
	startedAt time.Time
}

// NewBudgetTracker creates a tracker for the given budget.
func NewBudgetTracker(b Budget) *BudgetTracker {
	return &BudgetTracker{
		budget:    b,
		startedAt: time.Now(),
	}
}

// RecordModelCall adds the usage of one model round-trip. u may be nil.
func (bt *BudgetTracker) RecordModelCall(u *providers.Usage) {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	bt.usage.Add(u)
	bt.modelCall++
}

// RecordToolCalls adds dispatched calls.
func (bt *BudgetTracker) RecordToolCalls(n int) {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	bt.toolCalls += n
}

// Exceeded returns the reason if a token, cost or duration limit is
// exhausted, empty string if within limits.
func (bt *BudgetTracker) Exceeded() string {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	tokens := bt.usage.InputTokens + bt.usage.OutputTokens
	if bt.budget.MaxTokens > 0 && tokens >= bt.budget.MaxTokens {
		return fmt.Sprintf("token limit reached (%d/%d)", tokens, bt.budget.MaxTokens)
	}
	if bt.budget.MaxCostUSD > 0 && bt.usage.CostUSD >= bt.budget.MaxCostUSD {
		return fmt.Sprintf("cost limit reached ($%.4f/$%.2f)", bt.usage.CostUSD, bt.budget.MaxCostUSD)
	}
	if bt.budget.MaxDuration > 0 && time.Since(bt.startedAt) >= bt.budget.MaxDuration {
		return fmt.Sprintf("duration limit reached (%s/%s)", time.Since(bt.startedAt).Round(time.Second), bt.budget.MaxDuration)
	}
	return ""
}

// Usage returns the accumulated model usage.
func (bt *BudgetTracker) Usage() providers.Usage {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	return bt.usage
}

// Summary returns a human-readable usage summary.
func (bt *BudgetTracker) Summary() string {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	elapsed := time.Since(bt.startedAt).Round(time.Millisecond)
	return fmt.Sprintf(
		"Tokens: %d | Cost: $%.4f | Tool calls: %d | Model calls: %d | Duration: %s",
		bt.usage.InputTokens+bt.usage.OutputTokens, bt.usage.CostUSD, bt.toolCalls, bt.modelCall, elapsed,
	)
}
