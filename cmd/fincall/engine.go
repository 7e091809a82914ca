package main

import (
	"log/slog"
	"net/http"

	"github.com/argus-beta/fincall/internal/config"
	"github.com/argus-beta/fincall/internal/core/agent"
	"github.com/argus-beta/fincall/internal/core/classify"
	"github.com/argus-beta/fincall/internal/core/dispatch"
	"github.com/argus-beta/fincall/internal/core/tools"
	"github.com/argus-beta/fincall/internal/expenses"
	"github.com/argus-beta/fincall/internal/providers"
)

// buildRegistry registers the expense tools against the configured data service.
func buildRegistry(cfg *config.Config, log *slog.Logger) (*tools.Registry, error) {
	reg := tools.NewRegistry(tools.WithNamespace(cfg.Defaults.ToolNamespace))
	client := expenses.NewClient(
		cfg.DataService.BaseURL,
		&http.Client{Timeout: cfg.DataService.Timeout.Duration},
		log.With("component", "expenses"),
	)
	if err := expenses.Register(reg, client); err != nil {
		return nil, err
	}
	return reg, nil
}

// buildClassifier wires the /chat classifier on its own provider instance.
func buildClassifier(cfg *config.Config, modelID string, log *slog.Logger) (*classify.Classifier, error) {
	if err := cfg.ValidateForModel(modelID); err != nil {
		return nil, err
	}
	provider, err := providers.NewProvider(modelID, cfg.ProviderOptions())
	if err != nil {
		return nil, err
	}
	return classify.New(provider, classify.Options{
		Language: cfg.Defaults.Language,
		Logger:   log.With("component", "classify"),
	}), nil
}

// buildEngine wires the orchestrator for modelID. The returned ToolLogger
// holds the audit trail of tool invocations.
func buildEngine(cfg *config.Config, modelID string, log *slog.Logger) (*agent.Orchestrator, *tools.ToolLogger, error) {
	if err := cfg.ValidateForModel(modelID); err != nil {
		return nil, nil, err
	}
	provider, err := providers.NewProvider(modelID, cfg.ProviderOptions())
	if err != nil {
		return nil, nil, err
	}
	reg, err := buildRegistry(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	audit := tools.NewToolLogger(log.With("component", "tools"), tools.DefaultAuditCapacity)
	budget := agent.Budget{
		MaxToolCalls: cfg.Defaults.MaxToolCalls,
		MaxCostUSD:   cfg.Defaults.MaxCostUSD,
		MaxDuration:  cfg.Defaults.RequestTimeout.Duration,
	}
	// Local models are prompted for textual calls as well; hosted APIs
	// reject dotted function names.
	local := providers.SupportedModels[modelID].ProviderType == "ollama"

	orch, err := agent.New(agent.Config{
		Provider: provider,
		Registry: reg,
		Dispatcher: dispatch.New(reg, dispatch.Config{
			Timeout:  cfg.Defaults.ToolTimeout.Duration,
			MaxCalls: budget.MaxToolCalls,
			Parallel: cfg.Defaults.ParallelTools,
			Audit:    audit,
			Logger:   log.With("component", "dispatch"),
		}),
		Prompt: agent.PromptConfig{
			Language:     cfg.Defaults.Language,
			Currency:     cfg.Defaults.Currency,
			TextualCalls: local,
		},
		Budget:        budget,
		BareToolNames: !local,
		Logger:        log.With("component", "agent"),
	})
	if err != nil {
		return nil, nil, err
	}
	return orch, audit, nil
}
