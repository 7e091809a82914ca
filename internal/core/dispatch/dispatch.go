// Package dispatch executes extracted tool calls against the registry and
// collects one outcome per call.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/argus-beta/fincall/internal/core/intent"
	"github.com/argus-beta/fincall/internal/core/tools"
	"github.com/argus-beta/fincall/internal/logger"
)

// DefaultTimeout bounds a single tool call. A call that runs longer is
// recorded as a failure.
const DefaultTimeout = 30 * time.Second

// Config tunes a Dispatcher.
type Config struct {
	Timeout  time.Duration // per call; zero means DefaultTimeout
	MaxCalls int           // calls past this index fail without running; zero means no limit
	Parallel bool          // run calls concurrently; outcome order is unchanged
	Audit    *tools.ToolLogger
	Logger   *slog.Logger
}

// Observer is notified around each call. outcome is nil before the call
// runs. With Parallel set it may be invoked from several goroutines.
type Observer func(index int, call intent.Call, outcome *Outcome)

// Dispatcher resolves and invokes tool calls. It holds no per-request
// state and may be shared by concurrent requests.
type Dispatcher struct {
	reg *tools.Registry
	cfg Config
	log *slog.Logger
}

// New creates a Dispatcher over reg.
func New(reg *tools.Registry, cfg Config) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Dispatcher{reg: reg, cfg: cfg, log: logger.OrDiscard(cfg.Logger)}
}

// Run executes calls and returns their outcomes in the same order.
// caller is injected into tools that declared a need for it. Failures are
// recorded per call and never stop the remaining calls.
func (d *Dispatcher) Run(ctx context.Context, calls []intent.Call, caller any, observe Observer) []Outcome {
	outcomes := make([]Outcome, len(calls))
	if len(calls) == 0 {
		return outcomes
	}

	if !d.cfg.Parallel {
		for i, call := range calls {
			outcomes[i] = d.runOne(ctx, i, call, caller, observe)
		}
		return outcomes
	}

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call intent.Call) {
			defer wg.Done()
			outcomes[i] = d.runOne(ctx, i, call, caller, observe)
		}(i, call)
	}
	wg.Wait()
	return outcomes
}

func (d *Dispatcher) runOne(ctx context.Context, index int, call intent.Call, caller any, observe Observer) Outcome {
	if observe != nil {
		observe(index, call, nil)
	}

	start := time.Now()
	name, args, out, done := d.prepare(index, call, caller)
	if !done {
		out = d.invoke(ctx, name, args)
	}

	d.cfg.Audit.Log(tools.ToolLogEntry{
		Timestamp:  start,
		RequestID:  logger.RequestID(ctx),
		ToolName:   name,
		Params:     call.Arguments,
		IsError:    out.Failed(),
		Error:      out.Error,
		DurationMs: time.Since(start).Milliseconds(),
	})

	if observe != nil {
		observe(index, call, &out)
	}
	return out
}

// prepare resolves the name and builds the argument map. done is set when
// the call already has a failure outcome and must not run.
func (d *Dispatcher) prepare(index int, call intent.Call, caller any) (name string, args map[string]any, out Outcome, done bool) {
	name, ok := d.reg.Resolve(call.Name)
	if !ok {
		d.log.Warn("model requested unknown tool", "tool", call.Name)
		return call.Name, nil, failure(call.Name, &tools.UnknownToolError{Name: call.Name}), true
	}

	if d.cfg.MaxCalls > 0 && index >= d.cfg.MaxCalls {
		return name, nil, failure(name, fmt.Errorf("tool call limit of %d reached", d.cfg.MaxCalls)), true
	}

	args = make(map[string]any, len(call.Arguments)+1)
	maps.Copy(args, call.Arguments)
	if desc, ok := d.reg.Descriptor(name); ok && desc.NeedsContext {
		args[desc.ContextParam] = caller
	}
	return name, args, Outcome{}, false
}

type invokeResult struct {
	payload any
	err     error
}

// invoke runs one registry call under the per-call timeout.
func (d *Dispatcher) invoke(ctx context.Context, name string, args map[string]any) Outcome {
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	resultCh := make(chan invokeResult, 1)
	go func() {
		payload, err := d.reg.Invoke(callCtx, name, args)
		resultCh <- invokeResult{payload: payload, err: err}
	}()

	select {
	case <-callCtx.Done():
		switch {
		case errors.Is(ctx.Err(), context.Canceled):
			return failure(name, errors.New("request cancelled"))
		case ctx.Err() != nil:
			return failure(name, errors.New("request deadline exceeded"))
		default:
			return failure(name, fmt.Errorf("tool %q timed out after %s", name, d.cfg.Timeout))
		}
	case r := <-resultCh:
		if r.err != nil {
			d.log.Debug("tool call failed", "tool", name, "error", r.err)
			return failure(name, r.err)
		}
		return Outcome{ToolName: name, Payload: r.payload}
	}
}
