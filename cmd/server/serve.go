package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/eldtechnologies/chatmood/internal/api"
	"github.com/eldtechnologies/chatmood/internal/config"
	"github.com/eldtechnologies/chatmood/internal/dedup"
	"github.com/eldtechnologies/chatmood/internal/parser"
	"github.com/eldtechnologies/chatmood/internal/pipeline"
	"github.com/eldtechnologies/chatmood/internal/store"
	"github.com/eldtechnologies/chatmood/internal/telegram"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat bot and the ops HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg := config.Load()
	logger := newLogger(cfg)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("configuration error")
	}

	instance := uuid.NewString()
	logger = logger.With().Str("instance", instance).Logger()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("could not open store")
	}
	defer db.Close()

	// An unreachable database is not fatal: each insert retries the schema
	// check and failures are logged per message.
	if err := db.EnsureSchema(ctx); err != nil {
		logger.Error().Err(err).Str("driver", cfg.StoreDriver).Msg("schema check failed; will retry on first insert")
	} else {
		logger.Info().Str("driver", cfg.StoreDriver).Msg("store ready")
	}

	var redisStore *store.RedisStore
	var cache dedup.Cache
	if cfg.RedisURL != "" {
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		cache = dedup.NewRedisCache(redisStore, instance, cfg.DedupTTL)
		logger.Info().Dur("ttl", cfg.DedupTTL).Msg("using Redis dedup cache")
	} else {
		mem, err := dedup.NewMemoryCache(cfg.DedupCapacity)
		if err != nil {
			logger.Fatal().Err(err).Msg("could not create dedup cache")
		}
		cache = mem
		logger.Info().Int("capacity", cfg.DedupCapacity).Msg("using in-memory dedup cache")
	}

	source, err := telegram.NewSource(cfg.TelegramAPIKey, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("telegram authorization failed")
	}

	p := pipeline.New(logger, cache, newClassifier(cfg, logger), parser.NewLinePrefixParser(), db).
		WithMaxConcurrency(cfg.MaxConcurrency)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(logger, db, redisStore, api.Options{Driver: cfg.StoreDriver, Instance: instance}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("provider", cfg.InferenceProvider).
			Msg("starting chatmood")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := p.Run(gctx, source.Messages(gctx))
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("stopped with error")
		return err
	}
	logger.Info().Msg("stopped")
	return nil
}
