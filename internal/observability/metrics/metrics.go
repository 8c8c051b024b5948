package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for the analysis and suggestions pipelines.
type PipelineMetrics struct {
	llmLatency      *prometheus.HistogramVec
	llmTokens       *prometheus.CounterVec
	stageFailures   *prometheus.CounterVec
	analyses        *prometheus.CounterVec
	regenerations   *prometheus.CounterVec
	suggestionsSize prometheus.Histogram
	dispatches      *prometheus.CounterVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medrecord",
			Subsystem: "llm",
			Name:      "latency_seconds",
			Help:      "Latency of LLM completions",
			// Document analysis with large outputs routinely runs past 30s.
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		}, []string{"pipeline", "status"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medrecord",
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Tokens used by the LLM",
		}, []string{"pipeline", "type"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medrecord",
			Subsystem: "pipeline",
			Name:      "failures_total",
			Help:      "Pipeline failures by stage and error kind",
		}, []string{"pipeline", "stage", "kind"}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medrecord",
			Subsystem: "analysis",
			Name:      "requests_total",
			Help:      "Analysis requests by artifact type and outcome",
		}, []string{"type", "outcome"}),
		regenerations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medrecord",
			Subsystem: "suggestions",
			Name:      "regenerations_total",
			Help:      "Suggestion regenerations by trigger and outcome",
		}, []string{"trigger", "outcome"}),
		suggestionsSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "medrecord",
			Subsystem: "suggestions",
			Name:      "generated_count",
			Help:      "Number of suggestions written per regeneration",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 20},
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medrecord",
			Subsystem: "suggestions",
			Name:      "dispatch_total",
			Help:      "Detached suggestion jobs by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.llmLatency, m.llmTokens, m.stageFailures, m.analyses, m.regenerations, m.suggestionsSize, m.dispatches)
	return m
}

func (m *PipelineMetrics) ObserveLLM(pipeline, status string, seconds float64, inputTokens, outputTokens int32) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(pipeline, status).Observe(seconds)
	if inputTokens > 0 {
		m.llmTokens.WithLabelValues(pipeline, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmTokens.WithLabelValues(pipeline, "output").Add(float64(outputTokens))
	}
}

func (m *PipelineMetrics) ObserveFailure(pipeline, stage, kind string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(pipeline, stage, kind).Inc()
}

func (m *PipelineMetrics) ObserveAnalysis(kind, outcome string) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(kind, outcome).Inc()
}

func (m *PipelineMetrics) ObserveRegeneration(trigger, outcome string, count int) {
	if m == nil {
		return
	}
	m.regenerations.WithLabelValues(trigger, outcome).Inc()
	if outcome == "ok" {
		m.suggestionsSize.Observe(float64(count))
	}
}

func (m *PipelineMetrics) ObserveDispatch(outcome string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(outcome).Inc()
}
