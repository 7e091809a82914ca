package intent

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-beta/fincall/internal/providers"
)

// names is a Resolver over a fixed set of namespaced tool names.
type names []string

func (n names) Resolve(name string) (string, bool) {
	for _, known := range n {
		if known == name || known == "function."+name {
			return known, true
		}
	}
	return "", false
}

var known = names{"function.get_area", "function.get_max_expense"}

func TestStructuredPassThrough(t *testing.T) {
	resp := &providers.Response{ToolCalls: []providers.ToolCall{
		{ID: "call_0", Name: "get_area", Params: map[string]any{"width": float64(5)}},
		{ID: "call_1", Name: "get_max_expense"},
		{ID: "call_2"},
	}}

	calls := Structured{}.Extract(resp)
	require.Len(t, calls, 2)
	assert.Equal(t, Call{Name: "get_area", Arguments: map[string]any{"width": float64(5)}}, calls[0])
	assert.Equal(t, "get_max_expense", calls[1].Name)
	assert.NotNil(t, calls[1].Arguments)
}

func TestStructuredAbsentCalls(t *testing.T) {
	assert.Empty(t, Structured{}.Extract(nil))
	assert.Empty(t, Structured{}.Extract(&providers.Response{Text: "hello"}))
	assert.NotNil(t, Structured{}.Extract(nil))
}

func TestTextualParsesKnownCalls(t *testing.T) {
	x := Textual{Tools: known}

	calls := x.Parse(`Sure, let me compute get_area(width: "5", height: "3") for you.`)
	require.Len(t, calls, 1)
	assert.Equal(t, "get_area", calls[0].Name)
	assert.Equal(t, map[string]any{"width": "5", "height": "3"}, calls[0].Arguments)
}

func TestTextualKeepsValidJSONArguments(t *testing.T) {
	x := Textual{Tools: known}

	calls := x.Parse(`get_max_expense("keySearch": "an trua, toi: 50k", "note": "a,b=c")`)
	require.Len(t, calls, 1)
	assert.Equal(t, map[string]any{"keySearch": "an trua, toi: 50k", "note": "a,b=c"}, calls[0].Arguments)
}

func TestTextualIgnoresUnknownNames(t *testing.T) {
	x := Textual{Tools: known}
	assert.Empty(t, x.Parse(`unknown_fn(x: "1")`))
}

func TestTextualSkipsMalformedAndContinues(t *testing.T) {
	var buf bytes.Buffer
	x := Textual{Tools: known, Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	calls := x.Parse(`get_area(width: "5", height: ) then get_max_expense() and get_area('width': '2', 'height': '4')`)
	require.Len(t, calls, 2)
	assert.Equal(t, "get_max_expense", calls[0].Name)
	assert.Empty(t, calls[0].Arguments)
	assert.Equal(t, map[string]any{"width": "2", "height": "4"}, calls[1].Arguments)

	assert.True(t, strings.Contains(buf.String(), "skipping unparseable tool call"))
}

func TestTextualWithoutResolverFindsNothing(t *testing.T) {
	assert.Empty(t, Textual{}.Parse(`get_area(width: "5", height: "3")`))
}

func TestParseArguments(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    map[string]any
		wantErr bool
	}{
		{name: "empty", raw: "", want: map[string]any{}},
		{name: "quoted keys", raw: `"amount": 50000`, want: map[string]any{"amount": float64(50000)}},
		{name: "bare keys", raw: `category: "ăn uống", page: 2`, want: map[string]any{"category": "ăn uống", "page": float64(2)}},
		{name: "keyword style", raw: `keySearch="grab"`, want: map[string]any{"keySearch": "grab"}},
		{name: "single quotes", raw: `'type': 'gửi'`, want: map[string]any{"type": "gửi"}},
		{name: "separators inside json string", raw: `"keySearch": "an trua, toi: 50k"`, want: map[string]any{"keySearch": "an trua, toi: 50k"}},
		{name: "equals inside json string", raw: `"note": "a,b=c"`, want: map[string]any{"note": "a,b=c"}},
		{name: "apostrophe inside json string", raw: `"keySearch": "don't"`, want: map[string]any{"keySearch": "don't"}},
		{name: "separators inside bare-key value", raw: `keySearch: 'an trua, toi: 50k', page: 1`, want: map[string]any{"keySearch": "an trua, toi: 50k", "page": float64(1)}},
		{name: "double quote inside single quotes", raw: `note='say "hi"'`, want: map[string]any{"note": `say "hi"`}},
		{name: "positional", raw: `"5", "3"`, wantErr: true},
		{name: "dangling", raw: `width: `, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArguments(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChainFallsBack(t *testing.T) {
	x := Default(known, nil)

	structured := &providers.Response{
		Text:      `get_area(width: "1", height: "1")`,
		ToolCalls: []providers.ToolCall{{Name: "get_max_expense"}},
	}
	calls := x.Extract(structured)
	require.Len(t, calls, 1)
	assert.Equal(t, "get_max_expense", calls[0].Name, "structured calls take precedence")

	textual := &providers.Response{Text: `get_area(width: "1", height: "1")`}
	calls = x.Extract(textual)
	require.Len(t, calls, 1)
	assert.Equal(t, "get_area", calls[0].Name)

	assert.Empty(t, x.Extract(&providers.Response{Text: "Xin chào"}))
}

func TestExtractorFunc(t *testing.T) {
	x := ExtractorFunc(func(*providers.Response) []Call {
		return []Call{{Name: "fixed"}}
	})
	assert.Equal(t, "fixed", x.Extract(nil)[0].Name)
}
