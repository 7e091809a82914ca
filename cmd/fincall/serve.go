package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/argus-beta/fincall/internal/api"
	"github.com/argus-beta/fincall/internal/auth"
	"github.com/argus-beta/fincall/internal/memory"
)

// --- fincall serve ---

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "Listen address (default from config)")
	cmd.Flags().String("model", "", "Model ID (default from config)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	addrFlag, _ := cmd.Flags().GetString("addr")
	modelFlag, _ := cmd.Flags().GetString("model")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg, "gateway")

	if addrFlag == "" {
		addrFlag = cfg.Server.Addr
	}
	if modelFlag == "" {
		modelFlag = cfg.Defaults.Model
	}
	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("no JWT secret configured: set [server] jwt_secret or JWT_SECRET_ACCESS")
	}

	orch, _, err := buildEngine(cfg, modelFlag, log)
	if err != nil {
		return err
	}
	classifier, err := buildClassifier(cfg, modelFlag, log)
	if err != nil {
		return err
	}

	var history memory.Store
	if cfg.History.Enabled {
		path, err := cfg.HistoryPath()
		if err != nil {
			return err
		}
		history, err = memory.NewStore(path)
		if err != nil {
			return err
		}
		defer history.Close()
	}

	srv := &http.Server{
		Addr: addrFlag,
		Handler: api.NewServer(api.Options{
			Engine:     orch,
			Verifier:   auth.NewVerifier(cfg.Server.JWTSecret),
			History:    history,
			Classifier: classifier,
			Logger:     log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("gateway listening", "addr", addrFlag, "model", orch.ModelID(), "tools", len(orch.Catalog()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
