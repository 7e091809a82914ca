package agent

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/argus-beta/fincall/internal/providers"
)

func TestDefaultBudget(t *testing.T) {
	b := DefaultBudget()
	if b.MaxToolCalls != 8 {
		t.Errorf("MaxToolCalls = %d, want 8", b.MaxToolCalls)
	}
	if b.MaxDuration != 2*time.Minute {
		t.Errorf("MaxDuration = %s, want 2m", b.MaxDuration)
	}
	if b.MaxCostUSD != 0.25 {
		t.Errorf("MaxCostUSD = %f, want 0.25", b.MaxCostUSD)
	}
}

func TestBudgetTrackerNoLimitsExceeded(t *testing.T) {
	bt := NewBudgetTracker(DefaultBudget())
	bt.RecordModelCall(&providers.Usage{InputTokens: 1000, OutputTokens: 500, CostUSD: 0.01})
	bt.RecordToolCalls(2)

	if reason := bt.Exceeded(); reason != "" {
		t.Errorf("expected no limit exceeded, got %q", reason)
	}
}

func TestBudgetTrackerTokenLimit(t *testing.T) {
	bt := NewBudgetTracker(Budget{MaxTokens: 100})
	bt.RecordModelCall(&providers.Usage{InputTokens: 60, OutputTokens: 50}) // total=110, exceeds 100

	reason := bt.Exceeded()
	if !strings.Contains(reason, "token limit") {
		t.Errorf("expected 'token limit' in reason, got %q", reason)
	}
}

func TestBudgetTrackerCostLimit(t *testing.T) {
	bt := NewBudgetTracker(Budget{MaxCostUSD: 0.05})
	bt.RecordModelCall(&providers.Usage{CostUSD: 0.03})
	bt.RecordModelCall(&providers.Usage{CostUSD: 0.03}) // total=0.06, exceeds 0.05

	reason := bt.Exceeded()
	if !strings.Contains(reason, "cost limit") {
		t.Errorf("expected 'cost limit' in reason, got %q", reason)
	}
}

func TestBudgetTrackerDurationLimit(t *testing.T) {
	bt := NewBudgetTracker(Budget{MaxDuration: 1 * time.Millisecond})
	time.Sleep(5 * time.Millisecond)

	reason := bt.Exceeded()
	if !strings.Contains(reason, "duration limit") {
		t.Errorf("expected 'duration limit' in reason, got %q", reason)
	}
}

func TestBudgetTrackerNilUsage(t *testing.T) {
	bt := NewBudgetTracker(Budget{MaxTokens: 10})
	bt.RecordModelCall(nil)

	if reason := bt.Exceeded(); reason != "" {
		t.Errorf("nil usage should not count, got %q", reason)
	}
}

func TestBudgetTrackerSummary(t *testing.T) {
	bt := NewBudgetTracker(DefaultBudget())
	bt.RecordModelCall(&providers.Usage{InputTokens: 1000, OutputTokens: 500, CostUSD: 0.05})
	bt.RecordToolCalls(3)

	summary := bt.Summary()
	if !strings.Contains(summary, "Tokens: 1500") {
		t.Errorf("summary missing token info: %s", summary)
	}
	if !strings.Contains(summary, "$0.0500") {
		t.Errorf("summary missing cost info: %s", summary)
	}
	if !strings.Contains(summary, "Tool calls: 3") {
		t.Errorf("summary missing tool call info: %s", summary)
	}
	if !strings.Contains(summary, "Model calls: 1") {
		t.Errorf("summary missing model call info: %s", summary)
	}
}

func TestBudgetTrackerConcurrency(t *testing.T) {
	bt := NewBudgetTracker(Budget{MaxTokens: 1_000_000})
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bt.RecordModelCall(&providers.Usage{InputTokens: 100, OutputTokens: 100})
			bt.RecordToolCalls(1)
			bt.Exceeded()
			bt.Summary()
		}()
	}
	wg.Wait()

	if u := bt.Usage(); u.InputTokens != 10_000 {
		t.Errorf("after 100 concurrent records, InputTokens = %d, want 10000", u.InputTokens)
	}
}

func TestBudgetTrackerZeroLimitsNeverExceed(t *testing.T) {
	// Zero-value limits mean "no limit" for that dimension.
	bt := NewBudgetTracker(Budget{})
	bt.RecordModelCall(&providers.Usage{InputTokens: 999999, OutputTokens: 999999, CostUSD: 999.0})
	bt.RecordToolCalls(999)

	if reason := bt.Exceeded(); reason != "" {
		t.Errorf("zero budget should mean no limits, got %q", reason)
	}
}
