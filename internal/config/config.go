// Package config loads leadscout configuration from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider identifies an LLM backend.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderBedrock   Provider = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// LLM
	LLMProvider     Provider
	LLMModel        string
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	BedrockModelID  string

	// Content provider
	ProviderBaseURL   string
	ProviderUserAgent string
	ProviderTimeout   time.Duration

	// Rate gate
	RateQPM         float64
	RateBurstFactor float64
	RateMaxInflight int64

	// Workers and scheduling
	WorkerCount        int
	WorkerPollInterval time.Duration
	SchedulerTick      time.Duration
	DefaultScanEvery   time.Duration

	// Analysis
	DimensionTimeout    time.Duration
	MetaTimeout         time.Duration
	AnalysisConcurrency int
	MaxFailedDimensions int

	// Author context cache
	ContextTTL       time.Duration
	SummaryTimeout   time.Duration
	AuthorItemsLimit int

	// Operator API
	ServerPort int

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "leadscout"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "scout"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		LLMProvider:     Provider(getEnv("LEADSCOUT_LLM_PROVIDER", "ollama")),
		LLMModel:        getEnv("LEADSCOUT_LLM_MODEL", "llama3.1"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		BedrockModelID:  getEnv("LEADSCOUT_BEDROCK_MODEL_ID", "anthropic.claude-3-5-sonnet-20241022-v2:0"),

		ProviderBaseURL:   getEnv("LEADSCOUT_PROVIDER_URL", "https://www.reddit.com"),
		ProviderUserAgent: getEnv("LEADSCOUT_PROVIDER_USER_AGENT", "leadscout/0.1"),
		ProviderTimeout:   getEnvDuration("LEADSCOUT_PROVIDER_TIMEOUT", 30*time.Second),

		RateQPM:         getEnvFloat("LEADSCOUT_RATE_QPM", 60),
		RateBurstFactor: getEnvFloat("LEADSCOUT_RATE_BURST_FACTOR", 2),
		RateMaxInflight: int64(getEnvInt("LEADSCOUT_RATE_MAX_INFLIGHT", 4)),

		WorkerCount:        getEnvInt("LEADSCOUT_WORKERS", 4),
		WorkerPollInterval: getEnvDuration("LEADSCOUT_WORKER_POLL", 2*time.Second),
		SchedulerTick:      getEnvDuration("LEADSCOUT_SCHEDULER_TICK", 30*time.Second),
		DefaultScanEvery:   getEnvDuration("LEADSCOUT_DEFAULT_SCAN_EVERY", 30*time.Minute),

		DimensionTimeout:    getEnvDuration("LEADSCOUT_DIMENSION_TIMEOUT", 90*time.Second),
		MetaTimeout:         getEnvDuration("LEADSCOUT_META_TIMEOUT", 120*time.Second),
		AnalysisConcurrency: getEnvInt("LEADSCOUT_ANALYSIS_CONCURRENCY", 3),
		MaxFailedDimensions: getEnvInt("LEADSCOUT_MAX_FAILED_DIMENSIONS", 2),

		ContextTTL:       getEnvDuration("LEADSCOUT_CONTEXT_TTL", 168*time.Hour),
		SummaryTimeout:   getEnvDuration("LEADSCOUT_SUMMARY_TIMEOUT", 120*time.Second),
		AuthorItemsLimit: getEnvInt("LEADSCOUT_AUTHOR_ITEMS_LIMIT", 25),

		ServerPort: getEnvInt("LEADSCOUT_SERVER_PORT", 8474),

		LogFile:  getEnv("LEADSCOUT_LOG_FILE", "/tmp/leadscout.log"),
		LogLevel: parseLogLevel(getEnv("LEADSCOUT_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
