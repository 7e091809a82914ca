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

	"github.com/argus-beta/fincall/internal/core/classify"
	"github.com/argus-beta/fincall/internal/logger"
)

// --- fincall chat ---

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Classify a spending message and get advice",
		Long: "Classify a spending message into description, category, amount, type and partner,\n" +
			"with advice in the chosen personality's voice. Personalities: " +
			strings.Join(classify.PersonalityNames(), ", ") + ".",
		Args: cobra.MinimumNArgs(1),
		RunE: runChat,
	}
	cmd.Flags().String("model", "", "Model ID (default from config)")
	cmd.Flags().String("personality", "", "Personality of the advice (default from config)")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	modelFlag, _ := cmd.Flags().GetString("model")
	personality, _ := cmd.Flags().GetString("personality")

	message := strings.TrimSpace(strings.Join(args, " "))
	if message == "" {
		return fmt.Errorf("message is required")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg, "fincall")

	if modelFlag == "" {
		modelFlag = cfg.Defaults.Model
	}
	if personality == "" {
		personality = cfg.Defaults.Personality
	}
	if _, ok := classify.Personalities[strings.ToLower(personality)]; !ok {
		logger.Warning("unknown personality %q; using a neutral voice", personality)
	}

	c, err := buildClassifier(cfg, modelFlag, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = logger.WithRequestID(ctx, uuid.NewString())

	entry, _, err := c.Classify(ctx, message, personality)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(entry)
}
