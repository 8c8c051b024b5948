package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/medrecord-ai/cmd/mainconfig"
	"github.com/wolfman30/medrecord-ai/internal/app/bootstrap"
	appconfig "github.com/wolfman30/medrecord-ai/internal/config"
	"github.com/wolfman30/medrecord-ai/internal/observability/metrics"
	"github.com/wolfman30/medrecord-ai/internal/suggestions"
	"github.com/wolfman30/medrecord-ai/pkg/logging"
)

func main() {
	_ = mainconfig.LoadDotEnv()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).Component("suggestions-worker")

	if !cfg.UseSQS() {
		logger.Error("SUGGESTIONS_QUEUE_URL is required for the standalone worker")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if pool == nil {
		logger.Error("DATABASE_URL is required for the standalone worker")
		os.Exit(1)
	}
	defer pool.Close()

	provider, err := bootstrap.BuildLLM(ctx, cfg, awsConfig, logger)
	if err != nil {
		logger.Error("failed to build llm client", "error", err)
		os.Exit(1)
	}
	defer provider.Close()

	registry := prometheus.NewRegistry()
	deps := bootstrap.Deps{
		AWS:     awsConfig,
		LLM:     provider,
		Pool:    pool,
		Metrics: metrics.NewPipelineMetrics(registry),
		Logger:  logger,
	}
	store, _ := bootstrap.BuildStores(pool)
	synthesizer := bootstrap.BuildSynthesizer(cfg, store, deps)

	queue := suggestions.NewSQSQueue(sqs.NewFromConfig(awsConfig), cfg.SuggestionsQueueURL)
	worker := suggestions.NewWorker(synthesizer, queue, logger,
		suggestions.WithWorkerCount(cfg.SuggestionsWorkers),
	)
	worker.Start(ctx)

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down suggestions worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()
	_ = metricsSrv.Shutdown(doneCtx)

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("suggestions worker stopped")
	case <-doneCtx.Done():
		logger.Error("suggestions worker shutdown timed out", "error", doneCtx.Err())
	}
}
