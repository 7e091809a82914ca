// Package agent composes intent extraction, dispatch and summarization
// into the per-query orchestration flow.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/argus-beta/fincall/internal/core/dispatch"
	"github.com/argus-beta/fincall/internal/core/intent"
	"github.com/argus-beta/fincall/internal/core/summarize"
	"github.com/argus-beta/fincall/internal/core/tools"
	"github.com/argus-beta/fincall/internal/logger"
	"github.com/argus-beta/fincall/internal/providers"
)

// NoCallsMessage is the summary returned when the model selects no tool.
const NoCallsMessage = "Xin lỗi, tôi không thể thực hiện chức năng này. Vui lòng thử lại hoặc thử tính năng khác"

// intentMaxTokens bounds the tool-selection reply.
const intentMaxTokens = 1024

// Result is returned once per query.
type Result struct {
	Query   string             `json:"query"`
	Results []dispatch.Outcome `json:"results"`
	Summary string             `json:"summary"`
	Usage   providers.Usage    `json:"usage"`
}

// UpstreamModelError reports a failed or timed out tool-selection call.
type UpstreamModelError struct {
	Model string
	Err   error
}

func (e *UpstreamModelError) Error() string {
	return fmt.Sprintf("agent: model %s: %v", e.Model, e.Err)
}

func (e *UpstreamModelError) Unwrap() error { return e.Err }

// Config wires an Orchestrator. Provider and Registry are required; the
// remaining collaborators are built from them when nil.
type Config struct {
	Provider   providers.Provider
	Registry   *tools.Registry
	Extractor  intent.Extractor
	Dispatcher *dispatch.Dispatcher
	Summarizer *summarize.Summarizer

	Prompt         PromptConfig
	Budget         Budget
	NoCallsMessage string

	// BareToolNames advertises names without the registry namespace, for
	// APIs that reject dots in function names. Lookups accept both forms.
	BareToolNames bool

	Logger *slog.Logger
}

// Orchestrator runs process-query requests. It is safe for concurrent use.
type Orchestrator struct {
	provider   providers.Provider
	registry   *tools.Registry
	extractor  intent.Extractor
	dispatcher *dispatch.Dispatcher
	summarizer *summarize.Summarizer
	prompt     PromptConfig
	budget     Budget
	noCalls    string
	defs       []providers.ToolDefinition
	log        *slog.Logger
}

// New seals the registry and builds an Orchestrator around it.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Provider == nil {
		return nil, errors.New("agent: provider is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("agent: tool registry is required")
	}
	log := logger.OrDiscard(cfg.Logger)

	cfg.Registry.Seal()

	if cfg.Extractor == nil {
		cfg.Extractor = intent.Default(cfg.Registry, log)
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = dispatch.New(cfg.Registry, dispatch.Config{
			MaxCalls: cfg.Budget.MaxToolCalls,
			Logger:   log,
		})
	}
	if cfg.Summarizer == nil {
		cfg.Summarizer = summarize.New(cfg.Provider, summarize.Options{
			Language: cfg.Prompt.Language,
			Currency: cfg.Prompt.Currency,
			Logger:   log,
		})
	}
	if cfg.NoCallsMessage == "" {
		cfg.NoCallsMessage = NoCallsMessage
	}
	if cfg.Prompt.TextualCalls && len(cfg.Prompt.ToolNames) == 0 {
		cfg.Prompt.ToolNames = cfg.Registry.Names()
	}

	return &Orchestrator{
		provider:   cfg.Provider,
		registry:   cfg.Registry,
		extractor:  cfg.Extractor,
		dispatcher: cfg.Dispatcher,
		summarizer: cfg.Summarizer,
		prompt:     cfg.Prompt,
		budget:     cfg.Budget,
		noCalls:    cfg.NoCallsMessage,
		defs:       toolDefinitions(cfg.Registry.Catalog(), cfg.Registry.Namespace(), cfg.BareToolNames),
		log:        log,
	}, nil
}

// ProcessQuery answers query on behalf of caller. caller is handed to
// tools that need it and is never shown to the model.
//
// A failed first model call returns *UpstreamModelError. Every other
// failure degrades into the Result: tool errors become failure records
// and a failed summary becomes the apology text.
func (o *Orchestrator) ProcessQuery(ctx context.Context, query string, caller any) (*Result, error) {
	return o.Run(ctx, query, caller, nil)
}

// ToolDefinitions returns the catalog as sent to the model.
func (o *Orchestrator) ToolDefinitions() []providers.ToolDefinition {
	return append([]providers.ToolDefinition(nil), o.defs...)
}

// Catalog returns the registry catalog.
func (o *Orchestrator) Catalog() []tools.CatalogEntry {
	return o.registry.Catalog()
}

// ModelID returns the model answering queries.
func (o *Orchestrator) ModelID() string {
	return o.provider.ModelID()
}
