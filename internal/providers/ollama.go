package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// DefaultOllamaHost is used when no host is configured.
const DefaultOllamaHost = "http://localhost:11434"

// OllamaProvider implements Provider for Ollama instances (local or cloud)
// through the native /api/chat endpoint.
type OllamaProvider struct {
	modelID string
	baseURL string
	maxCtx  int
	client  *http.Client
}

// NewOllamaProvider creates a provider for an Ollama server at host.
func NewOllamaProvider(modelID, host string, client *http.Client) *OllamaProvider {
	if host == "" {
		host = DefaultOllamaHost
	}
	if client == nil {
		client = &http.Client{}
	}
	return &OllamaProvider{
		modelID: modelID,
		baseURL: strings.TrimRight(host, "/"),
		maxCtx:  SupportedModels[modelID].MaxContext,
		client:  client,
	}
}

func (p *OllamaProvider) Name() string         { return "ollama" }
func (p *OllamaProvider) ModelID() string       { return p.modelID }
func (p *OllamaProvider) MaxContextTokens() int { return p.maxCtx }

// ollamaMessage is the wire format for a message in the Ollama /api/chat endpoint.
type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

// ollamaTool is the wire format for a tool definition in the Ollama API.
type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Required    []string       `json:"required"`
}

// ollamaStreamChunk is the wire format for a single NDJSON line from Ollama.
type ollamaStreamChunk struct {
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	Error           string        `json:"error"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

// Complete streams a chat completion from an Ollama server.
// Reads NDJSON from /api/chat and maps each chunk to an Event.
func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (<-chan Event, error) {
	reqBody := map[string]any{
		"model":    p.modelID,
		"messages": p.convertMessages(req.SystemPrompt, req.Messages),
		"stream":   true,
	}
	if tools := p.convertTools(req.Tools); len(tools) > 0 {
		reqBody["tools"] = tools
	}
	if req.JSONMode {
		reqBody["format"] = "json"
	}
	if req.MaxTokens > 0 {
		reqBody["options"] = map[string]any{"num_predict": req.MaxTokens}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	endpoint := p.baseURL + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("ollama: new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("ollama: unexpected status %d from %s", resp.StatusCode, endpoint)
	}

	events := make(chan Event, 64)

	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		// Increase buffer for large responses (1 MB).
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		callIndex := 0

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var chunk ollamaStreamChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				continue // Skip malformed NDJSON lines.
			}

			if chunk.Error != "" {
				events <- Event{Type: "error", Error: chunk.Error}
				return
			}

			if chunk.Message.Content != "" {
				events <- Event{Type: "text_delta", Text: chunk.Message.Content}
			}

			// Ollama does not assign call IDs; the position in the turn is used instead.
			for _, tc := range chunk.Message.ToolCalls {
				params := tc.Function.Arguments
				if params == nil {
					params = map[string]any{}
				}
				events <- Event{
					Type: "tool_call",
					ToolCall: &ToolCall{
						ID:     fmt.Sprintf("call_%d", callIndex),
						Name:   tc.Function.Name,
						Params: params,
					},
				}
				callIndex++
			}

			if chunk.Done {
				events <- Event{
					Type: "done",
					Usage: &Usage{
						InputTokens:  chunk.PromptEvalCount,
						OutputTokens: chunk.EvalCount,
					},
				}
				return
			}
		}

		if err := scanner.Err(); err != nil {
			events <- Event{Type: "error", Error: err.Error()}
		}
	}()

	return events, nil
}

// convertMessages flattens provider-agnostic messages into Ollama chat messages.
func (p *OllamaProvider) convertMessages(systemPrompt string, msgs []Message) []ollamaMessage {
	result := make([]ollamaMessage, 0, len(msgs)+1)
	if systemPrompt != "" {
		result = append(result, ollamaMessage{Role: "system", Content: systemPrompt})
	}

	for _, msg := range msgs {
		var text strings.Builder
		var calls []ollamaToolCall

		for _, b := range msg.Content {
			switch b.Type {
			case "text":
				text.WriteString(b.Text)
			case "tool_call":
				if b.ToolCall != nil {
					var tc ollamaToolCall
					tc.Function.Name = b.ToolCall.Name
					tc.Function.Arguments = b.ToolCall.Params
					calls = append(calls, tc)
				}
			case "tool_result":
				if b.ToolResult != nil {
					result = append(result, ollamaMessage{Role: "tool", Content: b.ToolResult.Content})
				}
			}
		}

		if text.Len() > 0 || len(calls) > 0 {
			result = append(result, ollamaMessage{Role: msg.Role, Content: text.String(), ToolCalls: calls})
		}
	}

	return result
}

// convertTools translates tool definitions to the Ollama function format.
func (p *OllamaProvider) convertTools(defs []ToolDefinition) []ollamaTool {
	tools := make([]ollamaTool, 0, len(defs))
	for _, td := range defs {
		required := td.Required
		if required == nil {
			required = []string{}
		}
		tools = append(tools, ollamaTool{
			Type: "function",
			Function: ollamaToolFunction{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  td.Parameters,
				Required:    required,
			},
		})
	}
	return tools
}
