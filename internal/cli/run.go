package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/asbelov/alepiz-sub006/internal/config"
	"github.com/asbelov/alepiz-sub006/internal/ingest"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the event engine",
		Long: `Start the event engine as a long-running service.

The engine opens the SQLite database (creating it if it doesn't exist),
rebuilds its open-event and suppression caches, and starts the single-writer
call loop. Depending on the configuration it also:

  - consumes counter evaluations from kafka.evaluations_topic
  - replicates committed mutations to kafka.replication_topic and postgres.dsn
  - queues problem/solved tasks on the redis.task_stream stream

Example:
  alepiz-events run --config ./alepiz-events.yaml
  ALEPIZ_KAFKA_BROKERS=localhost:9092 alepiz-events run --db /tmp/events.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}

	return cmd
}

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	// Configure logging: --verbose wins over log_level
	level, _ := config.ParseLevel(cfg.LogLevel)
	if opts.Verbose {
		level = slog.LevelDebug
	}
	setupLogging(cmd, level)

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	svc, err := openService(ctx, cfg, opts.services)
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return err
		}
		return WrapExitError(ExitCommandError, "failed to start engine", err)
	}
	defer func() {
		if closeErr := svc.Close(); closeErr != nil {
			slog.Error("error during shutdown", "error", closeErr)
		}
	}()

	svc.start(ctx)
	slog.Info("engine started", "db", cfg.Database, "timezone", cfg.Timezone)
	fmt.Fprintln(cmd.OutOrStdout(), "Engine started.")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if cfg.Kafka.EvaluationsTopic == "" {
		<-ctx.Done()
		slog.Info("engine stopped gracefully")
		return nil
	}

	consumer, err := ingest.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.EvaluationsTopic, cfg.Kafka.GroupID, svc.engine, svc.rules)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create evaluation consumer", err)
	}
	defer func() {
		if closeErr := consumer.Close(); closeErr != nil {
			slog.Error("error closing consumer", "error", closeErr)
		}
	}()

	if err := consumer.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "evaluation consumer stopped", err)
	}

	slog.Info("engine stopped gracefully")
	return nil
}
