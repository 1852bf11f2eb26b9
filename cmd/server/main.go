package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/eldtechnologies/chatmood/internal/config"
	"github.com/eldtechnologies/chatmood/internal/inference"
	"github.com/eldtechnologies/chatmood/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "chatmood",
		Short:        "Classify chat messages by sentiment and store the results",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newClassifyCmd(), newRecentCmd())
	return root
}

// newLogger builds the process logger: console output in development, JSON
// otherwise.
func newLogger(cfg *config.Config) zerolog.Logger {
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}

	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	}
	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Logger()
}

// openStore opens the configured database. It does not require the database
// to be reachable yet.
func openStore(ctx context.Context, cfg *config.Config) (store.DataStore, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		return store.NewPostgresStore(ctx, cfg.DatabaseURL)
	case config.DriverSQLite:
		return store.NewSQLiteStore(ctx, cfg.SQLitePath())
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// newClassifier wires the configured completions backend behind the retrying
// classifier.
func newClassifier(cfg *config.Config, logger zerolog.Logger) *inference.Classifier {
	icfg := inference.DefaultConfig(cfg.InferenceAPIKey)
	icfg.Timeout = cfg.InferenceTimeout
	if cfg.InferenceModel != "" {
		icfg.Model = cfg.InferenceModel
	}

	var backend inference.Completer
	switch cfg.InferenceProvider {
	case config.ProviderOpenAI:
		icfg.URL = cfg.InferenceURL
		icfg.Model = cfg.InferenceModel // empty selects the OpenAI default
		backend = inference.NewOpenAIClient(icfg)
	default:
		if cfg.InferenceURL != "" {
			icfg.URL = cfg.InferenceURL
		}
		backend = inference.NewHTTPClient(icfg)
	}

	policy := inference.DefaultRetryPolicy()
	policy.Attempts = cfg.InferenceAttempts
	return inference.NewClassifier(backend, policy, logger)
}
