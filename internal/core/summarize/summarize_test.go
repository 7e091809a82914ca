package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-beta/fincall/internal/core/dispatch"
	"github.com/argus-beta/fincall/internal/providers"
)

// scripted replies with a fixed text, or fails when err is set.
type scripted struct {
	text string
	err  error
	last providers.CompletionRequest
}

func (s *scripted) Name() string          { return "scripted" }
func (s *scripted) ModelID() string       { return "scripted" }
func (s *scripted) MaxContextTokens() int { return 0 }

func (s *scripted) Complete(_ context.Context, req providers.CompletionRequest) (<-chan providers.Event, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	events := make(chan providers.Event, 2)
	events <- providers.Event{Type: "text_delta", Text: s.text}
	events <- providers.Event{Type: "done", Usage: &providers.Usage{InputTokens: 10, OutputTokens: 4}}
	close(events)
	return events, nil
}

var results = []dispatch.Outcome{
	{ToolName: "function.get_max_expense", Payload: map[string]any{"expenses": map[string]any{"amount": 500000}}},
	{ToolName: "function.get_min_expense", Error: "data service returned 503"},
}

func TestSummarizeParsesField(t *testing.T) {
	p := &scripted{text: `{"response": "Khoản chi lớn nhất của bạn là 500.000 VND."}`}
	s := New(p, Options{})

	text, usage := s.Summarize(context.Background(), "Khoản chi lớn nhất?", results)
	assert.Equal(t, "Khoản chi lớn nhất của bạn là 500.000 VND.", text)
	require.NotNil(t, usage)
	assert.Equal(t, 10, usage.InputTokens)

	assert.True(t, p.last.JSONMode)
	assert.Contains(t, p.last.SystemPrompt, "Khoản chi lớn nhất?")
	require.Len(t, p.last.Messages, 1)
	body := p.last.Messages[0].Content[0].Text
	assert.Contains(t, body, `"amount":500000`)
	assert.Contains(t, body, `"tool_name":"function.get_min_expense"`)
}

func TestSummarizeToleratesFences(t *testing.T) {
	p := &scripted{text: "```json\n{\"response\": \"Xong.\"}\n```"}
	text, _ := New(p, Options{}).Summarize(context.Background(), "q", results)
	assert.Equal(t, "Xong.", text)
}

func TestSummarizeFallsBackToApology(t *testing.T) {
	tests := []struct {
		name string
		p    *scripted
	}{
		{"model error", &scripted{err: errors.New("connection refused")}},
		{"malformed json", &scripted{text: `{"response": "unterminated`}},
		{"missing field", &scripted{text: `{"answer": "wrong field"}`}},
		{"non-string field", &scripted{text: `{"response": 42}`}},
		{"empty field", &scripted{text: `{"response": "  "}`}},
		{"plain text", &scripted{text: "Đây là câu trả lời."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, _ := New(tt.p, Options{}).Summarize(context.Background(), "q", results)
			assert.Equal(t, Apology, text)
		})
	}
}

func TestSummarizeCustomOptions(t *testing.T) {
	p := &scripted{text: `{"summary": "Done."}`}
	s := New(p, Options{Language: "English", Currency: "USD", Field: "summary", Apology: "Sorry."})

	text, _ := s.Summarize(context.Background(), "q", nil)
	assert.Equal(t, "Done.", text)
	assert.Equal(t, "Sorry.", s.Apology())
	assert.True(t, strings.Contains(p.last.SystemPrompt, "English"))
	assert.True(t, strings.Contains(p.last.SystemPrompt, "USD"))
}

func TestBuildPromptDefaults(t *testing.T) {
	prompt := BuildPrompt("Tôi tiêu bao nhiêu?", Options{})
	assert.Contains(t, prompt, "Vietnamese")
	assert.Contains(t, prompt, "VND")
	assert.Contains(t, prompt, `"response"`)
	assert.Contains(t, prompt, "1-3 short sentences")
}
