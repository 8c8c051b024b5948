package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medrecord-ai/internal/apperr"
	"github.com/wolfman30/medrecord-ai/internal/llm"
	"github.com/wolfman30/medrecord-ai/internal/observability/metrics"
	"github.com/wolfman30/medrecord-ai/pkg/logging"
)

// DefaultMaxTokens leaves room for documents with dozens of biomarkers.
const DefaultMaxTokens = 8192

// ErrTruncated is returned when the model ran out of output tokens before finishing.
var ErrTruncated = llm.ErrTruncated

var tracer = otel.Tracer("medrecord.internal.analysis")

type Invoker struct {
	client    llm.Client
	model     string
	maxTokens int32
	metrics   *metrics.PipelineMetrics
	logger    *logging.Logger
}

type InvokerOption func(*Invoker)

func WithModel(model string) InvokerOption {
	return func(i *Invoker) { i.model = strings.TrimSpace(model) }
}

func WithMaxTokens(n int) InvokerOption {
	return func(i *Invoker) {
		if n > 0 {
			i.maxTokens = int32(n)
		}
	}
}

func WithMetrics(m *metrics.PipelineMetrics) InvokerOption {
	return func(i *Invoker) { i.metrics = m }
}

func NewInvoker(client llm.Client, logger *logging.Logger, opts ...InvokerOption) *Invoker {
	if client == nil {
		panic("analysis: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	inv := &Invoker{
		client:    client,
		maxTokens: DefaultMaxTokens,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invoke sends exactly one completion request for in. There are no retries.
func (i *Invoker) Invoke(ctx context.Context, in Input) (llm.Response, error) {
	ctx, span := tracer.Start(ctx, "analysis.invoke")
	defer span.End()

	req := llm.Request{
		Model:       i.model,
		System:      []string{systemPrompt},
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: userMessage(in)}},
		Document:    in.Document,
		MaxTokens:   i.maxTokens,
		Temperature: 0,
	}

	start := time.Now()
	resp, err := i.client.Complete(ctx, req)
	latency := time.Since(start)
	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case resp.Truncated():
		status = "truncated"
	}
	i.metrics.ObserveLLM("analysis", status, latency.Seconds(), resp.Usage.InputTokens, resp.Usage.OutputTokens)

	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("medrecord.analysis.type", string(in.Kind)),
			attribute.Bool("medrecord.analysis.document", in.Document != nil),
			attribute.Float64("medrecord.llm.latency_ms", float64(latency.Milliseconds())),
			attribute.Int("medrecord.llm.input_tokens", int(resp.Usage.InputTokens)),
			attribute.Int("medrecord.llm.output_tokens", int(resp.Usage.OutputTokens)),
			attribute.String("medrecord.llm.stop_reason", resp.StopReason),
		)
	}

	if err != nil {
		span.RecordError(err)
		i.logger.Warn("analysis completion failed", "type", in.Kind, "latency_ms", latency.Milliseconds(), "error", err)
		return llm.Response{}, apperr.Collaborator("llm", err)
	}

	i.logger.Info("analysis completion finished",
		"type", in.Kind,
		"latency_ms", latency.Milliseconds(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop_reason", resp.StopReason,
		"response_chars", len(resp.Text),
	)
	if resp.Truncated() {
		err := fmt.Errorf("%w (max_tokens=%d, response_length=%d)", ErrTruncated, i.maxTokens, len(resp.Text))
		span.RecordError(err)
		return resp, apperr.ResponseShape("llm", err)
	}
	return resp, nil
}
