package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider is the interface every LLM adapter must implement.
// Each provider translates its native API into this common event stream.
type Provider interface {
	// Name returns the provider identifier ("anthropic", "openai_compat", "ollama")
	Name() string

	// ModelID returns the model string sent to the API
	ModelID() string

	// Complete sends a conversation to the LLM and returns a stream of events.
	// The caller reads from the channel until it is closed.
	// On error, an Event with Type="error" is sent before closing.
	Complete(ctx context.Context, req CompletionRequest) (<-chan Event, error)

	// MaxContextTokens returns the model's context window size
	MaxContextTokens() int
}

// CompletionRequest is the provider-agnostic request format.
type CompletionRequest struct {
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDefinition
	MaxTokens    int

	// JSONMode asks the backend to constrain the reply to a single JSON object.
	// Backends without a native switch rely on the prompt alone.
	JSONMode bool
}

// Message is a single turn in the conversation.
type Message struct {
	Role    string // "user" | "assistant"
	Content []Block
}

// Block is one content item within a message.
type Block struct {
	Type       string      // "text" | "tool_call" | "tool_result"
	Text       string      // for type="text"
	ToolCall   *ToolCall   // for type="tool_call"
	ToolResult *ToolResult // for type="tool_result"
}

// UserText builds a single-block user message.
func UserText(text string) Message {
	return Message{Role: "user", Content: []Block{{Type: "text", Text: text}}}
}

// ToolCall represents a tool invocation requested by the LLM.
type ToolCall struct {
	ID     string
	Name   string
	Params map[string]any
}

// ToolResult is the result of a tool execution, attached to a message.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// ToolDefinition is the schema sent to the LLM so it knows how to call each tool.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema object
	Required    []string       // required parameter names, repeated beside Parameters
}

// Event is one item in the completion stream.
type Event struct {
	Type     string    // "text_delta" | "tool_call" | "done" | "error"
	Text     string    // for type="text_delta"
	ToolCall *ToolCall // for type="tool_call"
	Error    string    // for type="error"
	Usage    *Usage    // for type="done"
}

// Usage contains token consumption for the completed request.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Add accumulates another usage record.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CostUSD += other.CostUSD
}

// Response is a fully drained completion.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	Usage     *Usage
}

// ErrEmptyStream is returned by Collect when the stream closed without a
// terminal "done" event.
var ErrEmptyStream = errors.New("providers: stream closed without completion")

// Collect runs a completion and drains its event stream into a Response.
// A stream "error" event or a cancelled context is returned as an error.
func Collect(ctx context.Context, p Provider, req CompletionRequest) (*Response, error) {
	stream, err := p.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	var (
		text strings.Builder
		resp Response
		done bool
	)

	for {
		select {
		case <-ctx.Done():
			// Drain in the background so the producer goroutine can exit.
			go func() {
				for range stream {
				}
			}()
			return nil, fmt.Errorf("providers: %s: %w", p.ModelID(), ctx.Err())

		case event, open := <-stream:
			if !open {
				if !done {
					return nil, ErrEmptyStream
				}
				resp.Text = text.String()
				return &resp, nil
			}

			switch event.Type {
			case "text_delta":
				text.WriteString(event.Text)
			case "tool_call":
				if event.ToolCall != nil {
					resp.ToolCalls = append(resp.ToolCalls, *event.ToolCall)
				}
			case "done":
				resp.Usage = event.Usage
				done = true
			case "error":
				go func() {
					for range stream {
					}
				}()
				return nil, fmt.Errorf("providers: %s: %s", p.ModelID(), event.Error)
			}
		}
	}
}
