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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/TimurManjosov/mockflow/internal/api"
	"github.com/TimurManjosov/mockflow/internal/audit"
	"github.com/TimurManjosov/mockflow/internal/catalog"
	"github.com/TimurManjosov/mockflow/internal/config"
	"github.com/TimurManjosov/mockflow/internal/logging"
	"github.com/TimurManjosov/mockflow/internal/notify"
	"github.com/TimurManjosov/mockflow/internal/store"
	"github.com/TimurManjosov/mockflow/internal/telemetry"
	"github.com/TimurManjosov/mockflow/internal/webhook"
	"github.com/TimurManjosov/mockflow/internal/workflow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mockflow: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	telemetry.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		ctxShut, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctxShut); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	st, engineOpts, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	hub := notify.NewHub()
	engineOpts = append(engineOpts, workflow.WithListener(hub.Publish))
	if len(cfg.WebhookURLs) > 0 {
		dispatcher := webhook.NewDispatcher(webhookTargets(cfg), webhook.WithLogger(logger))
		defer dispatcher.Close()
		engineOpts = append(engineOpts, workflow.WithListener(dispatcher.OnChange))
		logger.Info().Int("targets", len(cfg.WebhookURLs)).Msg("state change webhooks enabled")
	}
	eng := workflow.New(st, engineOpts...)

	if cfg.SeedFile != "" {
		stopWatch, err := seed(ctx, cfg, st, logger)
		if err != nil {
			return err
		}
		defer stopWatch()
	}

	apiOpts := []api.Option{
		api.WithLogger(logger),
		api.WithRateLimit(cfg.RateLimitPerIP),
		api.WithRequestTimeout(cfg.RequestTimeout),
		api.WithStateEvents(hub),
	}
	if cfg.AuditEnabled {
		recent := audit.NewMemorySink(cfg.AuditHistory)
		auditSvc := audit.NewService(audit.MultiSink{audit.NewLogSink(logger), recent}, 1024, audit.WithLogger(logger))
		defer auditSvc.Close()
		apiOpts = append(apiOpts, api.WithAudit(auditSvc, recent))
	}
	srvAPI := api.NewServer(st, eng, cfg.AdminAPIKey, apiOpts...)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srvAPI.Router(),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 3 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreType).Msg("listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server: %w", err)
		}
	}()
	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
		if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error().Err(err).Msg("server stopped unexpectedly")
		stop()
	}

	// graceful shutdown
	ctxShut, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = errors.Join(srv.Shutdown(ctxShut), metricsSrv.Shutdown(ctxShut))
	logger.Info().Msg("stopped")
	return err
}

// openStore builds the definition store, optionally moves state to Redis and
// returns the engine options matching the configured locking.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.Store, []workflow.Option, error) {
	dsn := cfg.DatabaseDSN
	if cfg.StoreType == "sqlite" {
		dsn = cfg.SQLitePath
	}
	st, err := store.NewStore(ctx, cfg.StoreType, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("store: %w", err)
	}

	opts := []workflow.Option{workflow.WithLogger(logger)}
	if !cfg.UsesRedis() {
		return st, opts, nil
	}

	client := store.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := client.Ping(ctx).Err(); err != nil {
		st.Close()
		client.Close()
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	if cfg.StateStore == "redis" {
		st = store.WithStateStore(st, store.NewRedisStateStore(client,
			store.WithRedisPrefix(cfg.RedisPrefix),
			store.WithRedisTTL(cfg.RedisStateTTL),
		))
		logger.Info().Str("addr", cfg.RedisAddr).Msg("scenario state kept in redis")
		pruned, err := store.PruneOrphanStates(ctx, st)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to prune orphaned state documents")
		} else if pruned > 0 {
			logger.Info().Int("pruned", pruned).Msg("removed state of deleted scenarios")
		}
	} else {
		// only the locker uses the client, so the store closes it
		st = store.WithClosers(st, client)
	}
	if cfg.DistributedLock {
		opts = append(opts,
			workflow.WithLocker(store.NewRedisLocker(client, cfg.RedisPrefix)),
			workflow.WithLockTTL(cfg.LockTTL),
		)
		logger.Info().Dur("ttl", cfg.LockTTL).Msg("distributed scenario locks enabled")
	}
	return st, opts, nil
}

func webhookTargets(cfg *config.Config) []webhook.Target {
	targets := make([]webhook.Target, 0, len(cfg.WebhookURLs))
	for _, u := range cfg.WebhookURLs {
		targets = append(targets, webhook.Target{
			URL:        u,
			Secret:     cfg.WebhookSecret,
			Events:     cfg.WebhookEvents,
			Timeout:    cfg.WebhookTimeout,
			MaxRetries: cfg.WebhookMaxRetries,
		})
	}
	return targets
}

// seed applies the seed catalog and, with SEED_WATCH, re-applies it on change.
// The returned func stops watching.
func seed(ctx context.Context, cfg *config.Config, st store.Store, logger zerolog.Logger) (func(), error) {
	loader, err := catalog.NewLoader(cfg.SeedFile, logger)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	apply := func(c *catalog.Catalog) error {
		res, err := catalog.Apply(ctx, st, c)
		if err != nil {
			return err
		}
		logger.Info().
			Str("file", cfg.SeedFile).
			Int("scenarios", res.Scenarios).
			Int("transitions", res.Transitions).
			Msg("seed catalog applied")
		return nil
	}
	if err := apply(loader.Catalog()); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}

	if !cfg.SeedWatch {
		return func() {}, nil
	}
	loader.OnChange(func(c *catalog.Catalog) {
		if err := apply(c); err != nil {
			logger.Error().Err(err).Str("file", cfg.SeedFile).Msg("failed to apply seed catalog")
		}
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		return nil, fmt.Errorf("seed watch: %w", err)
	}
	return stopWatch, nil
}
