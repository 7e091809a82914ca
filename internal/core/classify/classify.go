// Package classify turns a free-form spending message into a structured
// expense entry plus a short piece of advice, spoken in the voice of a
// chosen personality.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/argus-beta/fincall/internal/logger"
	"github.com/argus-beta/fincall/internal/providers"
)

// Categories are the spending categories an entry can fall into.
var Categories = []string{"giải trí", "mua sắm", "di chuyển", "sức khỏe", "ăn uống", "hóa đơn", "nợ", "khác"}

// Kinds are the transaction directions: money sent or received.
var Kinds = []string{"gửi", "nhận"}

const (
	DefaultCategory = "khác"
	DefaultKind     = "gửi"
)

// Entry is one classified message.
type Entry struct {
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Amount      float64 `json:"amount"`
	Type        string  `json:"type"`
	Partner     string  `json:"partner"`
	Advice      string  `json:"advice"`
}

// ErrUnusableReply is returned when the model reply is not a JSON object.
var ErrUnusableReply = errors.New("classify: model reply is not a JSON object")

// ModelError reports a failed classification call.
type ModelError struct {
	Model string
	Err   error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("classify: model %s: %v", e.Model, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

const (
	defaultLanguage  = "Vietnamese"
	defaultMaxTokens = 512
)

// Options configures a Classifier. Zero values pick the defaults.
type Options struct {
	Language  string
	MaxTokens int
	Logger    *slog.Logger
}

// Classifier labels spending messages with a single JSON-mode model call.
type Classifier struct {
	provider providers.Provider
	opts     Options
	log      *slog.Logger
}

// New creates a Classifier backed by p.
func New(p providers.Provider, opts Options) *Classifier {
	if opts.Language == "" {
		opts.Language = defaultLanguage
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	return &Classifier{provider: p, opts: opts, log: logger.OrDiscard(opts.Logger)}
}

// ModelID returns the model answering classification requests.
func (c *Classifier) ModelID() string { return c.provider.ModelID() }

// Classify labels message. A failed model call is a *ModelError; a reply
// that is not a JSON object wraps ErrUnusableReply.
func (c *Classifier) Classify(ctx context.Context, message, personality string) (*Entry, *providers.Usage, error) {
	resp, err := providers.Collect(ctx, c.provider, providers.CompletionRequest{
		SystemPrompt: BuildPrompt(personality, c.opts.Language),
		Messages:     []providers.Message{providers.UserText(message)},
		MaxTokens:    c.opts.MaxTokens,
		JSONMode:     true,
	})
	if err != nil {
		return nil, nil, &ModelError{Model: c.provider.ModelID(), Err: err}
	}

	entry, err := Parse(resp.Text, message)
	if err != nil {
		c.log.Warn("unusable classification reply",
			"request_id", logger.RequestID(ctx), "reply", resp.Text)
		return nil, resp.Usage, err
	}
	c.log.Debug("message classified",
		"request_id", logger.RequestID(ctx), "category", entry.Category, "amount", entry.Amount)
	return entry, resp.Usage, nil
}

// Parse reads a classification reply. Fields the model left out or got
// wrong fall back to defaults: the message itself as description,
// DefaultCategory, DefaultKind and a zero amount.
func Parse(reply, message string) (*Entry, error) {
	body := strings.TrimSpace(reply)
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}
	if !gjson.Valid(body) {
		return nil, ErrUnusableReply
	}
	obj := gjson.Parse(body)
	if !obj.IsObject() {
		return nil, ErrUnusableReply
	}

	e := &Entry{
		Description: strings.TrimSpace(obj.Get("description").String()),
		Category:    oneOf(obj.Get("category").String(), Categories, DefaultCategory),
		Amount:      amount(obj.Get("amount")),
		Type:        kind(obj.Get("type").String()),
		Partner:     strings.TrimSpace(obj.Get("partner").String()),
		Advice:      strings.TrimSpace(obj.Get("advice").String()),
	}
	if e.Description == "" {
		e.Description = strings.TrimSpace(message)
	}
	return e, nil
}

func oneOf(v string, allowed []string, def string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return a
		}
	}
	return def
}

// kind also accepts the everyday words for spending and income.
func kind(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "chi", "chi tiêu":
		return "gửi"
	case "thu", "thu nhập":
		return "nhận"
	}
	return oneOf(v, Kinds, DefaultKind)
}

var amountSuffixes = []struct {
	suffix string
	mult   float64
}{
	{"tỷ", 1e9},
	{"triệu", 1e6},
	{"tr", 1e6},
	{"k", 1e3},
	{"m", 1e6},
	{"b", 1e9},
}

// amount reads a number the model may have written as a JSON number or as
// text such as "50.000", "50k", "1,5tr" or "1b". Unreadable values are 0.
func amount(r gjson.Result) float64 {
	switch r.Type {
	case gjson.Number:
		return math.Abs(r.Float())
	case gjson.String:
		return parseAmount(r.String())
	}
	return 0
}

func parseAmount(s string) float64 {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, unit := range []string{"vnd", "vnđ", "đồng", "đ"} {
		s = strings.TrimSuffix(s, unit)
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")

	mult := 1.0
	for _, u := range amountSuffixes {
		if strings.HasSuffix(s, u.suffix) {
			s, mult = strings.TrimSuffix(s, u.suffix), u.mult
			break
		}
	}
	if mult == 1 {
		// Without a unit, dots and commas group thousands.
		s = strings.NewReplacer(".", "", ",", "").Replace(s)
	} else {
		s = strings.ReplaceAll(s, ",", ".")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return math.Abs(f * mult)
}

// Personalities maps a personality name to the voice the advice is
// written in.
var Personalities = map[string]string{
	"humor":        "You are positive and optimistic, and you keep things light with a joke.",
	"expert":       "You are a knowledgeable finance expert who gives thorough, well-reasoned advice.",
	"motivational": "You are an encouraging mentor who helps people stay on track with their goals.",
	"empathetic":   "You are caring and patient, and you acknowledge how the user feels.",
	"logical":      "You are a rational thinker who gives clear, practical, fact-based advice.",
	"creative":     "You are imaginative and suggest unusual ways to save or spend better.",
	"mysterious":   "You are reflective and answer with a thought-provoking remark.",
	"polite":       "You are respectful and always keep a professional tone.",
	"business":     "You are a strategic advisor who frames spending in terms of goals and returns.",
	"friendly":     "You talk like a close friend: casual, warm and honest.",
}

const defaultPersonality = "You are a helpful assistant."

// PersonalityNames returns the known personality names, sorted.
func PersonalityNames() []string {
	names := make([]string, 0, len(Personalities))
	for name := range Personalities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildPrompt renders the classification system prompt. Unknown
// personalities fall back to a neutral assistant.
func BuildPrompt(personality, language string) string {
	voice, ok := Personalities[strings.ToLower(strings.TrimSpace(personality))]
	if !ok {
		voice = defaultPersonality
	}
	if language == "" {
		language = defaultLanguage
	}

	var b strings.Builder
	b.WriteString("You are a helpful personal finance assistant. Classify the user's message ")
	b.WriteString("and reply with exactly one JSON object with these fields:\n")
	b.WriteString("- description: the user's message, copied exactly.\n")
	fmt.Fprintf(&b, "- category: one of %s. Use %q when unsure.\n", quoteAll(Categories), DefaultCategory)
	b.WriteString("- amount: the amount of money spent or received, as a plain number (50k = 50000, 1b = 1000000000).\n")
	fmt.Fprintf(&b, "- type: one of %s: money sent or money received. Use %q when unsure.\n", quoteAll(Kinds), DefaultKind)
	b.WriteString("- partner: who the transaction was with, or an empty string.\n")
	b.WriteString("- advice: one or two sentences of advice about this spending.\n\n")
	fmt.Fprintf(&b, "Write description and advice in %s. ", language)
	fmt.Fprintf(&b, "If the message is not in %s, set advice to a short note asking the user to write in %s.\n", language, language)
	fmt.Fprintf(&b, "Personality: %s Write the advice in that voice.\n", voice)
	return b.String()
}

func quoteAll(vs []string) string {
	q := make([]string, len(vs))
	for i, v := range vs {
		q[i] = strconv.Quote(v)
	}
	return "[" + strings.Join(q, ", ") + "]"
}
