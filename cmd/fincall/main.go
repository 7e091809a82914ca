package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/argus-beta/fincall/internal/auth"
	"github.com/argus-beta/fincall/internal/config"
	"github.com/argus-beta/fincall/internal/logger"
	"github.com/argus-beta/fincall/internal/memory"
	"github.com/argus-beta/fincall/internal/providers"
)

func main() {
	root := &cobra.Command{
		Use:           "fincall",
		Short:         "fincall: answer expense questions with tool-calling language models",
		Long:          "fincall lets a language model pick expense-service operations, runs them for the caller, and summarizes the results.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Config file (default ~/.config/fincall/config.toml)")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (default from config)")
	root.PersistentFlags().Bool("no-color", false, "Disable colored console output")

	root.AddCommand(
		initCmd(),
		configCmd(),
		modelsCmd(),
		toolsCmd(),
		askCmd(),
		chatCmd(),
		serveCmd(),
		historyCmd(),
		tokenCmd(),
	)

	if err := root.Execute(); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

// configPath returns the --config flag or the default location.
func configPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p, nil
	}
	return config.Path()
}

// loadConfig reads the config file. A missing file is not fatal: the
// defaults plus environment overrides are used, which is how containers
// run the gateway.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := configPath(cmd)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		cfg := config.Default()
		cfg.ApplyEnv(os.Getenv)
		return cfg, nil
	}
	return config.LoadFrom(path)
}

// newLogger builds the process logger from config and flags.
func newLogger(cmd *cobra.Command, cfg *config.Config, component string) *slog.Logger {
	noColor, _ := cmd.Flags().GetBool("no-color")
	logger.SetConsole(os.Stderr, noColor)

	level := cfg.Defaults.LogLevel
	if l, _ := cmd.Flags().GetString("log-level"); l != "" {
		level = l
	}
	return logger.New(logger.Options{
		Level:     level,
		Format:    cfg.Defaults.LogFormat,
		Component: component,
	})
}

// --- fincall init ---

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(cmd)
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists at %s", path)
			}
			if err := config.SaveTo(path, config.Default()); err != nil {
				return err
			}
			fmt.Printf("Config created at %s\n", path)
			fmt.Println("Set [server] jwt_secret and [data_service] base_url, then add hosted model keys with: fincall config set-key <provider> <key>")
			return nil
		},
	}
}

// --- fincall config ---

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	setKey := &cobra.Command{
		Use:   "set-key <provider> <key>",
		Short: "Set an API key (providers: anthropic, openai, glm, kimi)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, key := args[0], args[1]

			path, err := configPath(cmd)
			if err != nil {
				return err
			}
			cfg, err := config.LoadFrom(path)
			if err != nil {
				cfg = config.Default()
			}
			if err := cfg.SetKey(provider, key); err != nil {
				return err
			}
			if err := config.SaveTo(path, cfg); err != nil {
				return err
			}
			fmt.Printf("API key for %s saved.\n", provider)
			return nil
		},
	}

	cmd.AddCommand(setKey)
	return cmd
}

// --- fincall models ---

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List supported models with pricing",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Supported Models:")
			fmt.Println()
			for _, id := range providers.ModelIDs() {
				m := providers.SupportedModels[id]
				key := providers.APIKeyName(id)
				if key == "" {
					key = "-"
				}
				fmt.Printf("  %-18s %-14s ctx:%4dk  key:%-10s in:$%.2f/MTok  out:$%.2f/MTok\n",
					m.ID, m.ProviderType, m.MaxContext/1000, key,
					m.InputCostPerMTok, m.OutputCostPerMTok)
			}
		},
	}
}

// --- fincall tools ---

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalog advertised to the model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			reg, err := buildRegistry(cfg, newLogger(cmd, cfg, "tools"))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(reg.Catalog())
		},
	}
}

// --- fincall history ---

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			limit, _ := cmd.Flags().GetInt("limit")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dbPath, err := cfg.HistoryPath()
			if err != nil {
				return err
			}
			store, err := memory.NewStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.ListQueries(context.Background(), user, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No queries recorded.")
				return nil
			}

			for _, r := range records {
				status := "ok"
				if r.Error != "" {
					status = "error"
				} else if r.FailedCalls > 0 {
					status = fmt.Sprintf("%d/%d failed", r.FailedCalls, r.ToolCalls)
				}
				fmt.Printf("%s  %s  %-10s %-14s %5dms  %s\n",
					r.ID[:8], r.CreatedAt.Local().Format("2006-01-02 15:04"), r.UserID, r.Model, r.DurationMs, r.Query)
				fmt.Printf("          tools:%d  %s  tokens:%d/%d\n", r.ToolCalls, status, r.InputTokens, r.OutputTokens)
				if r.Summary != "" {
					fmt.Printf("          %s\n", r.Summary)
				}
			}
			return nil
		},
	}
	cmd.Flags().String("user", "", "Only show queries by this user ID")
	cmd.Flags().Int("limit", memory.DefaultListLimit, "Maximum number of queries")
	return cmd
}

// --- fincall token ---

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue an access token signed with the configured JWT secret (for local testing)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			tok, err := auth.Sign(cfg.Server.JWTSecret, args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime (0 for no expiry)")
	return cmd
}
