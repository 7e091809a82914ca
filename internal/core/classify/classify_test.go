package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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
	events <- providers.Event{Type: "done", Usage: &providers.Usage{InputTokens: 30, OutputTokens: 12}}
	close(events)
	return events, nil
}

const lunchReply = `{
  "description": "ăn trưa với Nam hết 50k",
  "category": "ăn uống",
  "amount": 50000,
  "type": "gửi",
  "partner": "Nam",
  "advice": "Bữa trưa hợp lý, cứ giữ mức này nhé."
}`

func TestClassifyParsesEntry(t *testing.T) {
	p := &scripted{text: lunchReply}
	c := New(p, Options{})

	entry, usage, err := c.Classify(context.Background(), "ăn trưa với Nam hết 50k", "friendly")
	require.NoError(t, err)
	assert.Equal(t, &Entry{
		Description: "ăn trưa với Nam hết 50k",
		Category:    "ăn uống",
		Amount:      50000,
		Type:        "gửi",
		Partner:     "Nam",
		Advice:      "Bữa trưa hợp lý, cứ giữ mức này nhé.",
	}, entry)
	require.NotNil(t, usage)
	assert.Equal(t, 30, usage.InputTokens)

	assert.True(t, p.last.JSONMode)
	assert.Contains(t, p.last.SystemPrompt, Personalities["friendly"])
	require.Len(t, p.last.Messages, 1)
	assert.Equal(t, "ăn trưa với Nam hết 50k", p.last.Messages[0].Content[0].Text)
}

func TestClassifyModelFailure(t *testing.T) {
	c := New(&scripted{err: errors.New("connection refused")}, Options{})

	_, _, err := c.Classify(context.Background(), "mua sách 120k", "polite")
	var modelErr *ModelError
	require.ErrorAs(t, err, &modelErr)
	assert.Equal(t, "scripted", modelErr.Model)
}

func TestClassifyUnusableReply(t *testing.T) {
	for _, reply := range []string{"Tôi không hiểu.", `["a"]`, `{"amount": `} {
		c := New(&scripted{text: reply}, Options{})
		_, _, err := c.Classify(context.Background(), "hi", "polite")
		assert.ErrorIs(t, err, ErrUnusableReply, reply)
	}
}

func TestParseDefaults(t *testing.T) {
	entry, err := Parse("```json\n{\"category\": \"Quà tặng\", \"type\": \"???\"}\n```", "  tặng quà sinh nhật  ")
	require.NoError(t, err)
	assert.Equal(t, "tặng quà sinh nhật", entry.Description)
	assert.Equal(t, DefaultCategory, entry.Category)
	assert.Equal(t, DefaultKind, entry.Type)
	assert.Zero(t, entry.Amount)
	assert.Empty(t, entry.Partner)
}

func TestParseNormalizesLabels(t *testing.T) {
	entry, err := Parse(`{"category": " Di Chuyển ", "type": "thu", "amount": -20000}`, "grab")
	require.NoError(t, err)
	assert.Equal(t, "di chuyển", entry.Category)
	assert.Equal(t, "nhận", entry.Type)
	assert.Equal(t, float64(20000), entry.Amount)
}

func TestParseAmountText(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"50000", 50000},
		{"50.000", 50000},
		{"1,200,000 VND", 1200000},
		{"50k", 50000},
		{"1,5tr", 1500000},
		{"2 triệu", 2000000},
		{"1b", 1000000000},
		{"3 tỷ", 3000000000},
		{"120.000đ", 120000},
		{"nhiều", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseAmount(tt.in))
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("expert", "")
	assert.Contains(t, prompt, Personalities["expert"])
	assert.Contains(t, prompt, "Vietnamese")
	assert.Contains(t, prompt, `"ăn uống"`)
	assert.Contains(t, prompt, `"nhận"`)

	assert.Contains(t, BuildPrompt("nobody", "English"), defaultPersonality)
	assert.Contains(t, BuildPrompt(" Humor ", ""), Personalities["humor"])
}

func TestPersonalityNamesSorted(t *testing.T) {
	names := PersonalityNames()
	assert.Len(t, names, len(Personalities))
	assert.IsIncreasing(t, names)
}
