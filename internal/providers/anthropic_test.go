package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
)

// messagesStream serves a fixed Messages API event stream and records
// every decoded request body.
func messagesStream(t *testing.T, bodies *[]map[string]any) *httptest.Server {
	t.Helper()
	events := []struct{ name, data string }{
		{"message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-opus-4-6","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":20,"output_tokens":1}}}`},
		{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Đang tra cứu."}}`},
		{"content_block_stop", `{"type":"content_block_stop","index":0}`},
		{"content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"get_max_expense","input":{}}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"page\":"}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"2}"}}`},
		{"content_block_stop", `{"type":"content_block_stop","index":1}`},
		{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":9}}`},
		{"message_stop", `{"type":"message_stop"}`},
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		*bodies = append(*bodies, body)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.name, e.data)
		}
	}))
}

func TestAnthropicDefaultsMaxTokens(t *testing.T) {
	var bodies []map[string]any
	srv := messagesStream(t, &bodies)
	defer srv.Close()

	p := NewAnthropicProvider("test-key", "claude-opus-4-6", option.WithBaseURL(srv.URL+"/"))
	resp, err := Collect(context.Background(), p, CompletionRequest{
		SystemPrompt: "system",
		Messages:     []Message{UserText("max?")},
	})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if _, err := Collect(context.Background(), p, CompletionRequest{
		Messages:  []Message{UserText("max?")},
		MaxTokens: 300,
	}); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if len(bodies) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(bodies))
	}
	if bodies[0]["max_tokens"] != float64(defaultMaxTokens) {
		t.Errorf("max_tokens = %v, want %d when unset", bodies[0]["max_tokens"], defaultMaxTokens)
	}
	if bodies[1]["max_tokens"] != float64(300) {
		t.Errorf("max_tokens = %v, want the request's 300", bodies[1]["max_tokens"])
	}
	if _, ok := bodies[0]["system"]; !ok {
		t.Error("system prompt should be sent")
	}

	if resp.Text != "Đang tra cứu." {
		t.Errorf("text = %q", resp.Text)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.ID != "toolu_1" || call.Name != "get_max_expense" || call.Params["page"] != float64(2) {
		t.Errorf("tool call = %+v", call)
	}
	if resp.Usage == nil || resp.Usage.InputTokens != 20 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
}
