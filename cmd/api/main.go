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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medrecord-ai/cmd/mainconfig"
	"github.com/wolfman30/medrecord-ai/internal/analysis"
	"github.com/wolfman30/medrecord-ai/internal/api/router"
	"github.com/wolfman30/medrecord-ai/internal/app/bootstrap"
	appconfig "github.com/wolfman30/medrecord-ai/internal/config"
	"github.com/wolfman30/medrecord-ai/internal/observability/metrics"
	"github.com/wolfman30/medrecord-ai/internal/records"
	"github.com/wolfman30/medrecord-ai/internal/suggestions"
	"github.com/wolfman30/medrecord-ai/pkg/logging"
)

func main() {
	if err := mainconfig.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting medrecord-ai API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory stores")
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	provider, err := bootstrap.BuildLLM(ctx, cfg, awsCfg, logger)
	if err != nil {
		return err
	}
	defer provider.Close()

	metricsHandler, pipelineMetrics := setupMetrics()
	deps := bootstrap.Deps{AWS: awsCfg, LLM: provider, Pool: pool, Metrics: pipelineMetrics, Logger: logger}

	analysisService, err := bootstrap.BuildAnalysisService(cfg, deps)
	if err != nil {
		return err
	}

	suggestionStore, recordsRepo := bootstrap.BuildStores(pool)
	synthesizer := bootstrap.BuildSynthesizer(cfg, suggestionStore, deps)
	dispatch := bootstrap.BuildDispatcher(cfg, synthesizer, deps)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	dispatch.Start(workerCtx)
	defer func() {
		cancelWorkers()
		dispatch.Wait()
	}()

	verifier, cache, err := bootstrap.BuildSession(cfg, redisClient, logger)
	if err != nil {
		return err
	}

	handler := router.New(&router.Config{
		Logger:             logger,
		AnalysisHandler:    analysis.NewHandler(analysisService, logger.Component("analysis")),
		RecordsHandler:     records.NewHandler(recordsRepo, dispatch.Dispatcher, logger.Component("records")),
		SuggestionsHandler: suggestions.NewHandler(synthesizer, suggestionStore, logger.Component("suggestions")),
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSOrigins,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
		SessionVerifier:    verifier,
		SessionCache:       cache,
		Health:             healthChecks(pool, redisClient),
	})

	// Analyses wait on a single model call; the write timeout has to cover it.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func setupMetrics() (http.Handler, *metrics.PipelineMetrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), metrics.NewPipelineMetrics(registry)
}

func healthChecks(pool *pgxpool.Pool, redisClient *redis.Client) []router.HealthCheck {
	var checks []router.HealthCheck
	if pool != nil {
		checks = append(checks, router.HealthCheck{Name: "postgres", Check: pool.Ping})
	}
	if redisClient != nil {
		checks = append(checks, router.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}
	return checks
}
