package analysis

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medrecord-ai/internal/apperr"
	"github.com/wolfman30/medrecord-ai/internal/llm"
	"github.com/wolfman30/medrecord-ai/internal/observability/metrics"
	"github.com/wolfman30/medrecord-ai/pkg/logging"
)

// Service runs one analysis end to end: normalize, invoke, sanitize.
type Service struct {
	normalizer *Normalizer
	invoker    *Invoker
	metrics    *metrics.PipelineMetrics
	logger     *logging.Logger
}

func NewService(normalizer *Normalizer, invoker *Invoker, m *metrics.PipelineMetrics, logger *logging.Logger) *Service {
	if normalizer == nil || invoker == nil {
		panic("analysis: normalizer and invoker are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{normalizer: normalizer, invoker: invoker, metrics: m, logger: logger}
}

// Analyze returns the structured analysis for req. Errors carry an apperr kind.
func (s *Service) Analyze(ctx context.Context, req Request) (StructuredAnalysis, error) {
	ctx, span := tracer.Start(ctx, "analysis.analyze")
	defer span.End()
	span.SetAttributes(attribute.String("medrecord.analysis.type", string(req.Kind)))

	start := time.Now()
	result, stage, err := s.run(ctx, req)
	if err != nil {
		span.RecordError(err)
		kind := apperr.KindOf(err)
		s.metrics.ObserveFailure("analysis", stage, failureKind(err))
		s.metrics.ObserveAnalysis(string(req.Kind), "error")
		s.logger.Warn("analysis failed",
			"type", req.Kind,
			"stage", stage,
			"kind", kind,
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return StructuredAnalysis{}, err
	}

	s.metrics.ObserveAnalysis(string(req.Kind), "ok")
	s.logger.Info("analysis completed",
		"type", req.Kind,
		"record_type", result.RecordType,
		"biomarkers", len(result.Interpretation.Biomarkers),
		"warnings", len(result.Warnings),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// failureKind is the metrics label for err: "truncated" for cut-off output, else its kind.
func failureKind(err error) string {
	if llm.IsTruncated(err) {
		return "truncated"
	}
	return string(apperr.KindOf(err))
}

func (s *Service) run(ctx context.Context, req Request) (StructuredAnalysis, string, error) {
	in, err := s.normalizer.Normalize(ctx, req)
	if err != nil {
		return StructuredAnalysis{}, "normalize", err
	}
	resp, err := s.invoker.Invoke(ctx, in)
	if err != nil {
		return StructuredAnalysis{}, "invoke", err
	}
	result, err := ParseStructuredAnalysis(resp.Text)
	if err != nil {
		return StructuredAnalysis{}, "sanitize", err
	}
	if req.Kind == KindAudio && result.RecordType == RecordTypeOther {
		result.RecordType = RecordTypeAudioNote
	}
	return result, "", nil
}
