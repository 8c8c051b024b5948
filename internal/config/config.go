package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Object storage for uploaded medical documents
	StorageBucket string

	// LLM configuration
	LLMProvider          string
	BedrockModelID       string
	GeminiAPIKey         string
	GeminiModelID        string
	AnalysisMaxTokens    int
	SuggestionsMaxTokens int
	LLMTimeout           time.Duration
	LLMBreakerFailures   int
	LLMBreakerCooldown   time.Duration

	// Speech-to-text (Whisper-compatible endpoint)
	TranscriptionBaseURL  string
	TranscriptionAPIKey   string
	TranscriptionModel    string
	TranscriptionLanguage string

	// Suggestions pipeline
	SuggestionsQueueURL    string
	SuggestionsWorkers     int
	UseMemoryQueue         bool
	FamilyRecordLimit      int
	FamilyMemberLimit      int
	SuggestionValidityDays int

	// Session identity
	SessionJWTSecret string
	SessionCacheSize int
	SessionCacheTTL  time.Duration
	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		CORSOrigins:    getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 10),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		StorageBucket: getEnv("STORAGE_BUCKET", "medical-records"),

		LLMProvider:          strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "bedrock"))),
		BedrockModelID:       getEnv("BEDROCK_MODEL_ID", "anthropic.claude-3-5-sonnet-20241022-v2:0"),
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:        getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		AnalysisMaxTokens:    getEnvAsInt("ANALYSIS_MAX_TOKENS", 8192),
		SuggestionsMaxTokens: getEnvAsInt("SUGGESTIONS_MAX_TOKENS", 4096),
		LLMTimeout:           getEnvAsDuration("LLM_TIMEOUT", 0),
		LLMBreakerFailures:   getEnvAsInt("LLM_BREAKER_FAILURES", 5),
		LLMBreakerCooldown:   getEnvAsDuration("LLM_BREAKER_COOLDOWN", 30*time.Second),

		TranscriptionBaseURL:  getEnv("TRANSCRIPTION_BASE_URL", "https://api.openai.com/v1"),
		TranscriptionAPIKey:   getEnv("TRANSCRIPTION_API_KEY", ""),
		TranscriptionModel:    getEnv("TRANSCRIPTION_MODEL", "whisper-1"),
		TranscriptionLanguage: getEnv("TRANSCRIPTION_LANGUAGE", "es"),

		SuggestionsQueueURL:    getEnv("SUGGESTIONS_QUEUE_URL", ""),
		SuggestionsWorkers:     getEnvAsInt("SUGGESTIONS_WORKERS", 2),
		UseMemoryQueue:         getEnvAsBool("USE_MEMORY_QUEUE", false),
		FamilyRecordLimit:      getEnvAsInt("FAMILY_RECORD_LIMIT", 20),
		FamilyMemberLimit:      getEnvAsInt("FAMILY_MEMBER_LIMIT", 10),
		SuggestionValidityDays: getEnvAsInt("SUGGESTION_VALIDITY_DAYS", 90),

		SessionJWTSecret: getEnv("SESSION_JWT_SECRET", ""),
		SessionCacheSize: getEnvAsInt("SESSION_CACHE_SIZE", 1024),
		SessionCacheTTL:  getEnvAsDuration("SESSION_CACHE_TTL", 5*time.Minute),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisTLS:         getEnvAsBool("REDIS_TLS", false),
	}
}

// UseSQS reports whether suggestion jobs go through SQS rather than the in-process queue.
func (c *Config) UseSQS() bool {
	return !c.UseMemoryQueue && strings.TrimSpace(c.SuggestionsQueueURL) != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
