package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/medrecord-ai/internal/analysis"
	appconfig "github.com/wolfman30/medrecord-ai/internal/config"
	"github.com/wolfman30/medrecord-ai/internal/observability/metrics"
	"github.com/wolfman30/medrecord-ai/internal/records"
	"github.com/wolfman30/medrecord-ai/internal/storage"
	"github.com/wolfman30/medrecord-ai/internal/suggestions"
	"github.com/wolfman30/medrecord-ai/internal/transcribe"
	"github.com/wolfman30/medrecord-ai/pkg/logging"
)

// Deps are the process-level clients shared by every service.
type Deps struct {
	AWS     aws.Config
	LLM     LLM
	Pool    *pgxpool.Pool
	Metrics *metrics.PipelineMetrics
	Logger  *logging.Logger
}

// BuildStorage returns the document store over STORAGE_BUCKET.
func BuildStorage(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) *storage.Store {
	if logger == nil {
		logger = logging.Default()
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// LocalStack and MinIO only serve path-style URLs.
		o.UsePathStyle = strings.TrimSpace(cfg.AWSEndpointOverride) != ""
	})
	return storage.NewStore(s3Client, cfg.StorageBucket, logger.Component("storage"))
}

// BuildAnalysisService wires storage, optional transcription and the invoker.
func BuildAnalysisService(cfg *appconfig.Config, deps Deps) (*analysis.Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}

	store := BuildStorage(cfg, deps.AWS, logger)

	var transcriber analysis.Transcriber
	if strings.TrimSpace(cfg.TranscriptionAPIKey) != "" {
		whisper, err := transcribe.NewWhisperClient(transcribe.Config{
			BaseURL:  cfg.TranscriptionBaseURL,
			APIKey:   cfg.TranscriptionAPIKey,
			Model:    cfg.TranscriptionModel,
			Language: cfg.TranscriptionLanguage,
		})
		if err != nil {
			return nil, fmt.Errorf("bootstrap: transcription client: %w", err)
		}
		transcriber = whisper
	} else {
		logger.Warn("TRANSCRIPTION_API_KEY not set; audio analysis disabled")
	}

	normalizer := analysis.NewNormalizer(store, transcriber, logger.Component("normalizer"))
	invoker := analysis.NewInvoker(deps.LLM.Client, logger.Component("invoker"),
		analysis.WithModel(deps.LLM.Model),
		analysis.WithMaxTokens(cfg.AnalysisMaxTokens),
		analysis.WithMetrics(deps.Metrics),
	)
	return analysis.NewService(normalizer, invoker, deps.Metrics, logger.Component("analysis")), nil
}

// BuildStores returns the suggestions store and the records repository. Without a pool both
// live in memory and the suggestions store reads the records repository, so a record created
// through the api is part of the next regeneration.
func BuildStores(pool *pgxpool.Pool) (suggestions.Store, records.Repository) {
	if pool != nil {
		return suggestions.NewPostgresStore(pool), records.NewPostgresRepository(pool)
	}
	repo := records.NewInMemoryRepository()
	return suggestions.NewMemoryStore(suggestions.WithRecordSource(recordSummaries(repo))), repo
}

func recordSummaries(repo records.Repository) suggestions.RecordSource {
	return func(ctx context.Context, userID string, limit int) ([]suggestions.RecordSummary, error) {
		list, err := repo.List(ctx, userID, limit)
		if err != nil {
			return nil, err
		}
		out := make([]suggestions.RecordSummary, 0, len(list))
		for _, rec := range list {
			out = append(out, suggestions.RecordSummary{
				EventDate:      rec.EventDate,
				Specialty:      rec.Specialty,
				RecordType:     rec.RecordType,
				Title:          rec.Title,
				Interpretation: rec.Interpretation,
			})
		}
		return out, nil
	}
}

// BuildSynthesizer applies the suggestion limits from config.
func BuildSynthesizer(cfg *appconfig.Config, store suggestions.Store, deps Deps) *suggestions.Synthesizer {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return suggestions.NewSynthesizer(store, deps.LLM.Client, logger.Component("suggestions"),
		suggestions.WithModel(deps.LLM.Model),
		suggestions.WithMaxTokens(cfg.SuggestionsMaxTokens),
		suggestions.WithFamilyLimits(cfg.FamilyMemberLimit, cfg.FamilyRecordLimit),
		suggestions.WithValidityDays(cfg.SuggestionValidityDays),
		suggestions.WithMetrics(deps.Metrics),
	)
}

// DispatchRuntime is the dispatcher plus the lifecycle hooks of whatever backs it.
type DispatchRuntime struct {
	Dispatcher suggestions.Dispatcher
	start      func(ctx context.Context)
	wait       func()
}

// Start launches in-process workers. It is a no-op when jobs go to SQS.
func (d DispatchRuntime) Start(ctx context.Context) {
	if d.start != nil {
		d.start(ctx)
	}
}

// Wait blocks until pending sends and in-process jobs finish.
func (d DispatchRuntime) Wait() {
	if d.wait != nil {
		d.wait()
	}
}

// BuildDispatcher sends jobs to SQS when SUGGESTIONS_QUEUE_URL is set, otherwise it runs them
// on an in-process worker pool.
func BuildDispatcher(cfg *appconfig.Config, regen suggestions.Regenerator, deps Deps) DispatchRuntime {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.Component("dispatcher")

	if cfg.UseSQS() {
		queue := suggestions.NewSQSQueue(sqs.NewFromConfig(deps.AWS), cfg.SuggestionsQueueURL)
		d := suggestions.NewQueueDispatcher(queue, deps.Metrics, logger)
		logger.Info("suggestions jobs routed to sqs", "queue_url", cfg.SuggestionsQueueURL)
		return DispatchRuntime{Dispatcher: d, wait: d.Wait}
	}

	d := suggestions.NewAsyncDispatcher(regen, 256, deps.Metrics, logger,
		suggestions.WithWorkerCount(cfg.SuggestionsWorkers),
	)
	logger.Info("suggestions jobs run in process", "workers", cfg.SuggestionsWorkers)
	return DispatchRuntime{Dispatcher: d, start: d.Start, wait: d.Wait}
}
