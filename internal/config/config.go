package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the streaming gateway.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	// APIToken, when set, is required as a bearer token on streaming endpoints.
	APIToken string

	// AIProvider selects the chat backend: auto|openai|anthropic|mock.
	AIProvider string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	AnthropicAPIKey string
	AnthropicModel  string

	ExtractionURL     string
	ExtractionTimeout time.Duration

	CrossrefBaseURL string
	ArxivBaseURL    string
	SourceRPS       float64

	MaxMessageChars   int
	DefaultPaperLimit int
	MaxPaperLimit     int

	HeartbeatInterval time.Duration
	StreamIdleTimeout time.Duration

	SearchRateLimit  int
	SearchRateWindow time.Duration

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
// A .env file in the working directory is loaded first when present.
func Load() (Config, error) {
	// Best effort; absence of a .env file is the normal production case.
	_ = godotenv.Load()

	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "thesisflow"),
		AllowAnyOrigin:    false,
		APIToken:          envTrimmed("APP_API_TOKEN"),
		AIProvider:        envOrDefault("AI_PROVIDER", "auto"),
		OpenAIAPIKey:      envTrimmed("OPENAI_API_KEY"),
		OpenAIBaseURL:     envTrimmed("OPENAI_BASE_URL"),
		OpenAIModel:       envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicAPIKey:   envTrimmed("ANTHROPIC_API_KEY"),
		AnthropicModel:    envOrDefault("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		ExtractionURL:     envTrimmed("EXTRACTION_PIPELINE_URL"),
		ExtractionTimeout: 5 * time.Minute,
		CrossrefBaseURL:   envOrDefault("CROSSREF_BASE_URL", "https://api.crossref.org"),
		ArxivBaseURL:      envOrDefault("ARXIV_BASE_URL", "https://export.arxiv.org"),
		SourceRPS:         1.0,
		MaxMessageChars:   32_000,
		DefaultPaperLimit: 20,
		MaxPaperLimit:     50,
		HeartbeatInterval: 15 * time.Second,
		StreamIdleTimeout: 10 * time.Minute,
		SearchRateLimit:   30,
		SearchRateWindow:  time.Hour,
		ShutdownTimeout:   15 * time.Second,
		DatabaseURL:       envTrimmed("DATABASE_URL"),
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.HeartbeatInterval, err = durationFromEnv("APP_HEARTBEAT_INTERVAL", cfg.HeartbeatInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.StreamIdleTimeout, err = durationFromEnv("APP_STREAM_IDLE_TIMEOUT", cfg.StreamIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ExtractionTimeout, err = durationFromEnv("EXTRACTION_TIMEOUT", cfg.ExtractionTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SearchRateWindow, err = durationFromEnv("SEARCH_RATE_WINDOW", cfg.SearchRateWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxMessageChars, err = intFromEnv("APP_MAX_MESSAGE_CHARS", cfg.MaxMessageChars)
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultPaperLimit, err = intFromEnv("APP_DEFAULT_PAPER_LIMIT", cfg.DefaultPaperLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxPaperLimit, err = intFromEnv("APP_MAX_PAPER_LIMIT", cfg.MaxPaperLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.SearchRateLimit, err = intFromEnv("SEARCH_RATE_LIMIT", cfg.SearchRateLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.SourceRPS, err = floatFromEnv("SOURCE_RPS", cfg.SourceRPS)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.HeartbeatInterval < time.Second {
		return Config{}, fmt.Errorf("APP_HEARTBEAT_INTERVAL must be at least 1s")
	}
	if cfg.MaxMessageChars <= 0 {
		return Config{}, fmt.Errorf("APP_MAX_MESSAGE_CHARS must be positive")
	}
	if cfg.DefaultPaperLimit <= 0 || cfg.MaxPaperLimit < cfg.DefaultPaperLimit {
		return Config{}, fmt.Errorf("paper limits misconfigured: default=%d max=%d", cfg.DefaultPaperLimit, cfg.MaxPaperLimit)
	}
	if cfg.SearchRateLimit <= 0 {
		return Config{}, fmt.Errorf("SEARCH_RATE_LIMIT must be positive")
	}
	if cfg.SearchRateWindow < time.Second {
		return Config{}, fmt.Errorf("SEARCH_RATE_WINDOW must be at least 1s")
	}
	if cfg.SourceRPS <= 0 {
		return Config{}, fmt.Errorf("SOURCE_RPS must be positive")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.AIProvider)) {
	case "auto", "openai", "anthropic", "mock":
	default:
		return Config{}, fmt.Errorf("invalid AI_PROVIDER: %q (expected auto|openai|anthropic|mock)", cfg.AIProvider)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
