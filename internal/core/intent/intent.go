// Package intent turns a model response into the tool calls it asks for.
//
// Models answer in one of two shapes: native tool-call fields, or plain
// text containing pseudo-calls such as get_area(width: "5", height: "3").
// Structured handles the first, Textual the second, and Chain tries
// several extractors in order.
package intent

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/argus-beta/fincall/internal/providers"
)

// Call is one requested invocation. Name may lack the registry namespace.
type Call struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Extractor produces the calls contained in a model response.
// A response without calls yields an empty slice, never an error.
type Extractor interface {
	Extract(resp *providers.Response) []Call
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(resp *providers.Response) []Call

func (f ExtractorFunc) Extract(resp *providers.Response) []Call { return f(resp) }

// Resolver reports whether a name refers to a registered tool.
// *tools.Registry satisfies it.
type Resolver interface {
	Resolve(name string) (string, bool)
}

// ParseError describes a textual pseudo-call whose arguments are not valid JSON.
type ParseError struct {
	Name string
	Args string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("intent: cannot parse arguments of %s(%s): %v", e.Name, e.Args, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Structured passes native tool calls through unchanged.
type Structured struct{}

func (Structured) Extract(resp *providers.Response) []Call {
	if resp == nil || len(resp.ToolCalls) == 0 {
		return []Call{}
	}
	calls := make([]Call, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		if tc.Name == "" {
			continue
		}
		args := tc.Params
		if args == nil {
			args = map[string]any{}
		}
		calls = append(calls, Call{Name: tc.Name, Arguments: args})
	}
	return calls
}

var callPattern = regexp.MustCompile(`(\w+)\((.*?)\)`)

// Textual scans free-form text for name(key: "value", ...) pseudo-calls.
// Only names Tools recognises are kept. A call whose arguments fail to
// parse is logged and skipped.
type Textual struct {
	Tools  Resolver
	Logger *slog.Logger
}

func (x Textual) Extract(resp *providers.Response) []Call {
	if resp == nil {
		return []Call{}
	}
	return x.Parse(resp.Text)
}

// Parse extracts the pseudo-calls contained in text, in order of appearance.
func (x Textual) Parse(text string) []Call {
	calls := []Call{}
	for _, m := range callPattern.FindAllStringSubmatch(text, -1) {
		name, rawArgs := m[1], m[2]
		if x.Tools == nil {
			continue
		}
		if _, ok := x.Tools.Resolve(name); !ok {
			continue
		}

		args, err := ParseArguments(rawArgs)
		if err != nil {
			if x.Logger != nil {
				x.Logger.Warn("skipping unparseable tool call", "error", &ParseError{Name: name, Args: rawArgs, Err: err})
			}
			continue
		}
		calls = append(calls, Call{Name: name, Arguments: args})
	}
	return calls
}

// Chain returns the calls of the first extractor that finds any.
type Chain []Extractor

func (c Chain) Extract(resp *providers.Response) []Call {
	for _, x := range c {
		if calls := x.Extract(resp); len(calls) > 0 {
			return calls
		}
	}
	return []Call{}
}

// Default extracts native calls and falls back to textual parsing.
func Default(tools Resolver, logger *slog.Logger) Extractor {
	return Chain{Structured{}, Textual{Tools: tools, Logger: logger}}
}
