// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	StartupTimeout time.Duration

	Store      StoreConfig
	LLM        LLMConfig
	Retrieval  RetrievalConfig
	Browser    BrowserConfig
	Cache      CacheConfig
	Billing    BillingConfig
	RoomPrefix string

	// DirectoryURL is the therapist directory offered as a fallback.
	DirectoryURL string
}

// StoreConfig selects the relational backend.
type StoreConfig struct {
	Backend     string // "sqlite" or "postgres"
	DBPath      string
	PostgresDSN string
}

// LLMConfig controls the realtime model and the platform credential.
type LLMConfig struct {
	PlatformAPIKey  string
	LiveModel       string
	TextModel       string
	EmbeddingModel  string
	Temperature     float32
	MetadataRetries int
	MetadataBackoff time.Duration
}

// RetrievalConfig controls the two knowledge sources.
type RetrievalConfig struct {
	IndexPath      string
	DataDir        string
	TopK           int
	DeepAgentAddr  string
	DeepAgentTTL   time.Duration
	ConnectTimeout time.Duration
}

// BrowserConfig controls the automation subsystem.
type BrowserConfig struct {
	Endpoint        string
	Token           string
	ManageContainer bool
	Image           string
	StepDelay       time.Duration
	MaxScreenshots  int
}

// CacheConfig selects the score cache.
type CacheConfig struct {
	RedisURL string
	Size     int
	TTL      time.Duration
}

// BillingConfig holds the Stripe webhook secret.
type BillingConfig struct {
	WebhookSecret string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		StartupTimeout: getEnvDuration("STARTUP_TIMEOUT", 20*time.Second),
		RoomPrefix:     getEnv("ROOM_PREFIX", "mindcure-"),
		DirectoryURL:   getEnv("THERAPIST_DIRECTORY_URL", "localhost:3000/therapist-directory"),
		Store: StoreConfig{
			Backend:     strings.ToLower(getEnv("STORE_BACKEND", "sqlite")),
			DBPath:      getEnv("DB_PATH", "./data/mindcure.db"),
			PostgresDSN: getEnv("DATABASE_URL", ""),
		},
		LLM: LLMConfig{
			PlatformAPIKey:  getEnv("GOOGLE_API_KEY", ""),
			LiveModel:       getEnv("LIVE_MODEL", "gemini-2.0-flash-exp"),
			TextModel:       getEnv("TEXT_MODEL", "gemini-2.0-flash"),
			EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-004"),
			Temperature:     float32(getEnvFloat("LLM_TEMPERATURE", 0.8)),
			MetadataRetries: getEnvInt("METADATA_RETRIES", 5),
			MetadataBackoff: getEnvDuration("METADATA_BACKOFF", 500*time.Millisecond),
		},
		Retrieval: RetrievalConfig{
			IndexPath:      getEnv("INDEX_PATH", "./data/index.json"),
			DataDir:        getEnv("KNOWLEDGE_DIR", "./data/knowledge"),
			TopK:           getEnvInt("RETRIEVAL_TOP_K", 4),
			DeepAgentAddr:  getEnv("DEEP_AGENT_ADDR", ""),
			DeepAgentTTL:   getEnvDuration("DEEP_AGENT_TIMEOUT", 60*time.Second),
			ConnectTimeout: getEnvDuration("DEEP_AGENT_CONNECT_TIMEOUT", 5*time.Second),
		},
		Browser: BrowserConfig{
			Endpoint:        getEnv("BROWSER_ENDPOINT", "http://localhost:3000"),
			Token:           getEnv("BROWSER_TOKEN", ""),
			ManageContainer: getEnvBool("BROWSER_MANAGE_CONTAINER", false),
			Image:           getEnv("BROWSER_IMAGE", "ghcr.io/browserless/chromium:latest"),
			StepDelay:       getEnvDuration("BROWSER_STEP_DELAY", 2*time.Second),
			MaxScreenshots:  getEnvInt("BROWSER_MAX_SCREENSHOTS", 20),
		},
		Cache: CacheConfig{
			RedisURL: getEnv("REDIS_URL", ""),
			Size:     getEnvInt("SCORE_CACHE_SIZE", 1024),
			TTL:      getEnvDuration("SCORE_CACHE_TTL", 5*time.Minute),
		},
		Billing: BillingConfig{
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.Store.Backend {
	case "sqlite":
		if c.Store.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be sqlite or postgres, got %q", c.Store.Backend)
	}
	if c.LLM.MetadataRetries <= 0 {
		return fmt.Errorf("METADATA_RETRIES must be > 0")
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("RETRIEVAL_TOP_K must be > 0")
	}
	if c.Browser.MaxScreenshots <= 0 {
		return fmt.Errorf("BROWSER_MAX_SCREENSHOTS must be > 0")
	}
	if c.Cache.Size <= 0 {
		return fmt.Errorf("SCORE_CACHE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
