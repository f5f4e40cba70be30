package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"notesmith/internal/config"
	"notesmith/internal/daemon"
	"notesmith/internal/logging"
	"notesmith/internal/services"
	"notesmith/internal/services/asr"
	"notesmith/internal/services/docparse"
	"notesmith/internal/services/ffmpeg"
	"notesmith/internal/services/llm"
	"notesmith/internal/task"
	"notesmith/internal/workflow"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the notesmith daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}
}

func runServe(cmdCtx context.Context, ctx *commandContext) error {
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := task.Open(cfg)
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	defer store.Close()

	orchestrator := workflow.New(cfg, store, logger, buildProviders(cfg, store))

	d, err := daemon.New(cfg, store, logger, orchestrator)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("notesmith daemon shutting down")
	return nil
}

// buildProviders wires the external service clients. Credentials resolve at
// call time so runtime overrides stored in the database take effect without a
// restart.
func buildProviders(cfg *config.Config, store *task.Store) workflow.Providers {
	resolver := services.NewCredentialResolver(store)
	retry := services.RetryPolicyFromMillis(
		cfg.Workflow.RetryMaxAttempts,
		cfg.Workflow.RetryBaseDelayMS,
		cfg.Workflow.RetryMaxDelayMS,
	)

	transcriber := asr.NewClient(asr.Config{
		BaseURL:        cfg.Transcription.BaseURL,
		Model:          cfg.Transcription.Model,
		TimeoutSeconds: cfg.Transcription.TimeoutSeconds,
	}, func(ctx context.Context) (string, error) {
		return resolver.Resolve(ctx, services.SettingTranscriptionAPIKey, cfg.Transcription.APIKey)
	}, asr.WithRetryPolicy(retry))

	notes := llm.NewClient(llm.Config{
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	}, func(ctx context.Context) (string, error) {
		return resolver.Resolve(ctx, services.SettingLLMAPIKey, cfg.LLM.APIKey)
	}, llm.WithRetryPolicy(retry))

	parser := docparse.NewClient(docparse.Config{
		BaseURL:         cfg.DocParse.BaseURL,
		ModelMode:       cfg.DocParse.ModelMode,
		PollInterval:    time.Duration(cfg.DocParse.PollInterval) * time.Second,
		MaxPollAttempts: cfg.DocParse.MaxPollAttempts,
		MaxFileSizeMiB:  cfg.DocParse.MaxFileSizeMiB,
		TimeoutSeconds:  cfg.DocParse.TimeoutSeconds,
	}, func(ctx context.Context) (string, error) {
		return resolver.Resolve(ctx, services.SettingDocParseToken, cfg.DocParse.APIToken)
	}, docparse.WithRetryPolicy(retry))

	return workflow.Providers{
		Extractor:   ffmpeg.NewExtractor(cfg.FFmpegBinary()),
		Transcriber: transcriber,
		Notes:       notes,
		Parser:      parser,
	}
}
