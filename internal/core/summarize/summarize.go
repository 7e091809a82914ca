// Package summarize asks the model for a short natural-language answer
// built from the dispatched tool results.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/argus-beta/fincall/internal/core/dispatch"
	"github.com/argus-beta/fincall/internal/logger"
	"github.com/argus-beta/fincall/internal/providers"
)

// Apology is returned whenever no usable summary could be produced.
const Apology = "Xin lỗi bạn, tôi không thể thực hiện được yêu cầu của bạn"

const (
	defaultLanguage  = "Vietnamese"
	defaultCurrency  = "VND"
	defaultField     = "response"
	defaultMaxTokens = 512
)

// Options configures a Summarizer. Zero values pick the defaults.
type Options struct {
	Language  string
	Currency  string
	Field     string // JSON member holding the summary
	Apology   string
	MaxTokens int
	Logger    *slog.Logger
}

// Summarizer condenses tool outcomes into a 1-3 sentence answer.
type Summarizer struct {
	provider providers.Provider
	opts     Options
	log      *slog.Logger
}

// New creates a Summarizer backed by p.
func New(p providers.Provider, opts Options) *Summarizer {
	if opts.Language == "" {
		opts.Language = defaultLanguage
	}
	if opts.Currency == "" {
		opts.Currency = defaultCurrency
	}
	if opts.Field == "" {
		opts.Field = defaultField
	}
	if opts.Apology == "" {
		opts.Apology = Apology
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	return &Summarizer{provider: p, opts: opts, log: logger.OrDiscard(opts.Logger)}
}

// Apology returns the fallback text this Summarizer uses.
func (s *Summarizer) Apology() string { return s.opts.Apology }

// Summarize always returns a string. Model failures and unusable replies
// yield the apology; the usage of the model call is returned when known.
func (s *Summarizer) Summarize(ctx context.Context, query string, results []dispatch.Outcome) (string, *providers.Usage) {
	payload, err := json.Marshal(results)
	if err != nil {
		s.log.Warn("cannot encode tool results", "error", err)
		return s.opts.Apology, nil
	}

	resp, err := providers.Collect(ctx, s.provider, providers.CompletionRequest{
		SystemPrompt: BuildPrompt(query, s.opts),
		Messages:     []providers.Message{providers.UserText(string(payload))},
		MaxTokens:    s.opts.MaxTokens,
		JSONMode:     true,
	})
	if err != nil {
		s.log.Warn("summary model call failed", "error", err)
		return s.opts.Apology, nil
	}

	text, err := s.parse(resp.Text)
	if err != nil {
		s.log.Warn("unusable summary reply", "error", err, "reply", resp.Text)
		return s.opts.Apology, resp.Usage
	}
	return text, resp.Usage
}

// parse extracts the summary field. Models sometimes wrap the object in
// a markdown fence or prose, so the outermost braces are located first.
func (s *Summarizer) parse(reply string) (string, error) {
	body := strings.TrimSpace(reply)
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}
	if !gjson.Valid(body) {
		return "", fmt.Errorf("reply is not a JSON object")
	}
	field := gjson.Get(body, gjson.Escape(s.opts.Field))
	if field.Type != gjson.String {
		return "", fmt.Errorf("reply has no string %q field", s.opts.Field)
	}
	text := strings.TrimSpace(field.String())
	if text == "" {
		return "", fmt.Errorf("reply %q field is empty", s.opts.Field)
	}
	return text, nil
}

// BuildPrompt renders the summarization system prompt for query.
func BuildPrompt(query string, opts Options) string {
	if opts.Field == "" {
		opts.Field = defaultField
	}
	var b strings.Builder
	b.WriteString("You are a helpful financial assistant. Briefly summarize the tool results below ")
	b.WriteString("so they answer the user's question.\n\n")
	fmt.Fprintf(&b, "User question: %s\n\n", query)
	b.WriteString("Rules:\n")
	b.WriteString("- Answer in 1-3 short sentences; do not copy the data verbatim.\n")
	fmt.Fprintf(&b, "- Write the answer in %s.\n", orDefault(opts.Language, defaultLanguage))
	fmt.Fprintf(&b, "- Amounts are in %s.\n", orDefault(opts.Currency, defaultCurrency))
	b.WriteString("- Entries with an \"error\" field are failed lookups; mention them only if nothing else answers the question.\n")
	fmt.Fprintf(&b, "- Reply with exactly one JSON object with a single %q field and nothing else, for example:\n", opts.Field)
	fmt.Fprintf(&b, "{%q: \"...\"}\n", opts.Field)
	return b.String()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
