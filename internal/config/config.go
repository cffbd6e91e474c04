// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the knowledge-graph server.
type Config struct {
	// Server
	Port            int
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Logging
	LogLevel string

	// Store
	DBPath string

	// LLM providers
	DefaultLLM      string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string

	// Vector index
	VectorMode     string
	VectorURL      string
	VectorToken    string
	EmbeddingModel string
	VectorTopK     int
	VectorMinScore float64

	// Events
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Processor
	IdleThreshold     time.Duration
	ProcessorInterval time.Duration
	ProcessorBatch    int

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// CORS
	AllowedOrigins []string

	// Tracing
	TracingEnabled bool
	OTLPEndpoint   string
	ServiceName    string
}

// Vector modes.
const (
	VectorModeRemote = "remote"
	VectorModeLocal  = "local"
	VectorModeOff    = "off"
)

// LLM providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getIntEnv("PORT", 8080),
		Environment:     getEnv("ENV", "development"),
		ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
		ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		DBPath: getEnv("DB_PATH", "knowledge.db"),

		DefaultLLM:      getEnv("DEFAULT_LLM", ProviderOpenAI),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-20241022"),

		VectorMode:     getEnv("VECTOR_MODE", VectorModeOff),
		VectorURL:      getEnv("VECTOR_URL", ""),
		VectorToken:    getEnv("VECTOR_TOKEN", ""),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		VectorTopK:     getIntEnv("VECTOR_TOP_K", 3),
		VectorMinScore: getFloatEnv("VECTOR_MIN_SCORE", 0.5),

		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		IdleThreshold:     getDurationEnv("IDLE_THRESHOLD", 120*time.Second),
		ProcessorInterval: getDurationEnv("PROCESSOR_INTERVAL", 0),
		ProcessorBatch:    getIntEnv("PROCESSOR_BATCH", 10),

		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		AllowedOrigins: getSliceEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),

		TracingEnabled: getBoolEnv("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4318"),
		ServiceName:    getEnv("SERVICE_NAME", "knowledge-graph"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}

	switch c.DefaultLLM {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when DEFAULT_LLM=openai")
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when DEFAULT_LLM=anthropic")
		}
	default:
		return fmt.Errorf("invalid DEFAULT_LLM: %q (must be openai or anthropic)", c.DefaultLLM)
	}

	switch c.VectorMode {
	case VectorModeRemote:
		if c.VectorURL == "" || c.VectorToken == "" {
			return fmt.Errorf("VECTOR_URL and VECTOR_TOKEN are required when VECTOR_MODE=remote")
		}
	case VectorModeLocal:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when VECTOR_MODE=local (embeddings)")
		}
	case VectorModeOff:
	default:
		return fmt.Errorf("invalid VECTOR_MODE: %q (must be remote, local or off)", c.VectorMode)
	}

	if c.ProcessorBatch < 1 {
		return fmt.Errorf("PROCESSOR_BATCH must be at least 1, got %d", c.ProcessorBatch)
	}
	if c.IdleThreshold <= 0 {
		return fmt.Errorf("IDLE_THRESHOLD must be positive, got %s", c.IdleThreshold)
	}

	return nil
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

func getSliceEnv(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}
