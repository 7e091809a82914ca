package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/argus-beta/fincall/internal/auth"
	"github.com/argus-beta/fincall/internal/config"
	"github.com/argus-beta/fincall/internal/core/agent"
	"github.com/argus-beta/fincall/internal/logger"
	"github.com/argus-beta/fincall/internal/memory"
)

// --- fincall ask ---

func askCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Answer one query locally",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}
	cmd.Flags().String("model", "", "Model ID (default from config)")
	cmd.Flags().String("token", "", "Access token forwarded to the data service (default $FINCALL_TOKEN)")
	cmd.Flags().Bool("json", false, "Print the full result as JSON")
	cmd.Flags().Bool("verbose", false, "Show tool calls in real time")
	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	modelFlag, _ := cmd.Flags().GetString("model")
	tokenFlag, _ := cmd.Flags().GetString("token")
	asJSON, _ := cmd.Flags().GetBool("json")
	verbose, _ := cmd.Flags().GetBool("verbose")

	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return fmt.Errorf("query is required")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg, "fincall")

	if modelFlag == "" {
		modelFlag = cfg.Defaults.Model
	}
	if tokenFlag == "" {
		tokenFlag = os.Getenv("FINCALL_TOKEN")
	}
	who, err := identity(cfg.Server.JWTSecret, tokenFlag)
	if err != nil {
		return err
	}

	orch, audit, err := buildEngine(cfg, modelFlag, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = logger.WithRequestID(ctx, uuid.NewString())

	var observe agent.Observer
	if verbose {
		logger.Info("Model: %s | Query: %s", orch.ModelID(), query)
		observe = displayEvent
	}

	res, err := orch.Run(ctx, query, who, observe)
	recordLocal(ctx, cfg, who, orch.ModelID(), query, res, err)
	if err != nil {
		return err
	}

	if verbose {
		for _, e := range audit.Entries() {
			status := "ok"
			if e.IsError {
				status = "error: " + e.Error
			}
			logger.Info("audit %s %dms %s", e.ToolName, e.DurationMs, status)
		}
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(res)
	}
	fmt.Println(res.Summary)
	return nil
}

// identity resolves the caller for a local run. With a secret configured
// the token must verify; without one it is forwarded as is.
func identity(secret, token string) (auth.Identity, error) {
	if token == "" {
		logger.Warning("no access token given; the data service will likely reject tool calls")
		return auth.Identity{}, nil
	}
	if secret == "" {
		return auth.Identity{Token: auth.TokenFromHeader(token)}, nil
	}
	return auth.NewVerifier(secret).Verify(auth.TokenFromHeader(token))
}

// recordLocal stores a CLI query in the history database when enabled.
func recordLocal(ctx context.Context, cfg *config.Config, who auth.Identity, model, query string, res *agent.Result, runErr error) {
	if !cfg.History.Enabled {
		return
	}
	path, err := cfg.HistoryPath()
	if err != nil {
		return
	}
	store, err := memory.NewStore(path)
	if err != nil {
		logger.Warning("history disabled: %v", err)
		return
	}
	defer store.Close()

	rec := &memory.QueryRecord{
		RequestID: logger.RequestID(ctx),
		UserID:    who.UserID,
		Model:     model,
		Query:     query,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if res != nil {
		rec.Summary = res.Summary
		rec.ToolCalls = len(res.Results)
		for _, o := range res.Results {
			if o.Failed() {
				rec.FailedCalls++
			}
		}
		rec.InputTokens, rec.OutputTokens, rec.CostUSD = res.Usage.InputTokens, res.Usage.OutputTokens, res.Usage.CostUSD
		if data, err := json.Marshal(res.Results); err == nil {
			rec.Results = string(data)
		}
	}
	if err := store.RecordQuery(context.WithoutCancel(ctx), rec); err != nil {
		logger.Warning("record query: %v", err)
	}
}

func displayEvent(e agent.Event) {
	switch e.Type {
	case agent.EventToolCall:
		args, _ := json.Marshal(e.Arguments)
		logger.Info("→ %s %s", e.ToolName, args)

	case agent.EventToolResult:
		if e.Outcome != nil && e.Outcome.Failed() {
			logger.Warning("  ✗ %s: %s", e.ToolName, e.Outcome.Error)
			return
		}
		logger.Success("  ✓ %s", e.ToolName)

	case agent.EventBudgetExceeded:
		logger.Warning("Budget exceeded: %s", e.Text)

	case agent.EventError:
		logger.Error("%s", e.Text)

	case agent.EventDone:
		if e.Usage != nil {
			logger.Info("Done. Tokens: %d in / %d out | Cost: $%.4f", e.Usage.InputTokens, e.Usage.OutputTokens, e.Usage.CostUSD)
		}
	}
}
