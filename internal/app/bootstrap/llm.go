package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/medrecord-ai/internal/config"
	"github.com/wolfman30/medrecord-ai/internal/llm"
	"github.com/wolfman30/medrecord-ai/pkg/logging"
)

// LLM is the provider client plus the model id requests should name.
type LLM struct {
	Client llm.Client
	Model  string
	close  func() error
}

// Close releases provider resources. Safe on a zero LLM.
func (l LLM) Close() error {
	if l.close == nil {
		return nil
	}
	return l.close()
}

// BuildLLM selects the provider from LLM_PROVIDER and wraps it in a circuit breaker.
func BuildLLM(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (LLM, error) {
	if cfg == nil {
		return LLM{}, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var (
		client llm.Client
		model  string
		closer func() error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case "", "bedrock":
		model = strings.TrimSpace(cfg.BedrockModelID)
		if model == "" {
			return LLM{}, fmt.Errorf("bootstrap: BEDROCK_MODEL_ID is required for the bedrock provider")
		}
		client = llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), model)
	case "gemini":
		model = strings.TrimSpace(cfg.GeminiModelID)
		gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, model)
		if err != nil {
			return LLM{}, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		client, closer = gemini, gemini.Close
	default:
		return LLM{}, fmt.Errorf("bootstrap: unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}

	breaker := llm.NewBreakerClient(client, llm.BreakerConfig{
		Name:             cfg.LLMProvider,
		FailureThreshold: uint32(max(cfg.LLMBreakerFailures, 0)),
		Cooldown:         cfg.LLMBreakerCooldown,
		Timeout:          cfg.LLMTimeout,
	}, logger)
	logger.Info("llm provider configured", "provider", cfg.LLMProvider, "model", model, "timeout", cfg.LLMTimeout)
	return LLM{Client: breaker, Model: model, close: closer}, nil
}
