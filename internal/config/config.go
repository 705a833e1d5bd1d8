// Package config provides configuration loading and structs for the kanit server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/kanit/internal/models"
	"github.com/hyperjump/kanit/internal/trust"
)

// Config holds all configuration for the application.
type Config struct {
	Debug         bool                       `yaml:"debug"`
	Server        ServerConfig               `yaml:"server"`
	Storage       StorageConfig              `yaml:"storage"`
	Search        SearchConfig               `yaml:"search"`
	LLM           LLMConfig                  `yaml:"llm"`
	Embedding     EmbeddingConfig            `yaml:"embedding"`
	Limits        LimitsConfig               `yaml:"limits"`
	Conversation  ConversationConfig         `yaml:"conversation"`
	Trust         trust.Tiers                `yaml:"trust"`
	SourceWeights map[string]float64         `yaml:"source_weights" validate:"dive,keys,source_type,endkeys,gte=0,lte=1"`
	CoreFacts     []models.CoreKnowledgeFact `yaml:"core_facts" validate:"dive"`
	Modes         map[string]string          `yaml:"modes" validate:"required,dive,keys,required,endkeys,required"`
	StreamModes   map[string]string          `yaml:"stream_modes"`
	Watch         WatchConfig                `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host" validate:"required"`
	Port           int           `yaml:"port" validate:"gte=1,lte=65535"`
	CORSOrigins    []string      `yaml:"cors_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`
}

// StorageConfig holds the database path.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path" validate:"required"`
}

// SearchConfig holds web search, scraping and knowledge base retrieval settings.
type SearchConfig struct {
	SearxngURLs []string `yaml:"searxng_urls" validate:"dive,url"`
	Language    string   `yaml:"language"`
	MaxResults  int      `yaml:"max_results" validate:"gte=1"`
	// Variations are query templates; "{query}" and "{year}" are substituted.
	Variations         []string      `yaml:"variations" validate:"min=1"`
	SkipDomains        []string      `yaml:"skip_domains"`
	ResultQualityFloor float64       `yaml:"result_quality_floor" validate:"gte=0,lte=1"`
	RequestTimeout     time.Duration `yaml:"request_timeout" validate:"gt=0"`
	UserAgent          string        `yaml:"user_agent"`
	ScrapeMinChars     int           `yaml:"scrape_min_chars"`
	ScrapeQualityFloor float64       `yaml:"scrape_quality_floor" validate:"gte=0,lte=1"`
	ScrapeTimeout      time.Duration `yaml:"scrape_timeout" validate:"gt=0"`
	ScrapeMaxChars     int           `yaml:"scrape_max_chars" validate:"gte=1"`
	ScrapeConcurrency  int           `yaml:"scrape_concurrency" validate:"gte=1"`
	KBResults          int           `yaml:"kb_results" validate:"gte=1"`
	KBMinRelevance     float64       `yaml:"kb_min_relevance" validate:"gte=0,lte=100"`
	CacheTTL           time.Duration `yaml:"cache_ttl"`
	CacheCapacity      int           `yaml:"cache_capacity" validate:"gte=1"`
	BreakerMaxFailures uint32        `yaml:"breaker_max_failures" validate:"gte=1"`
	BreakerOpenTimeout time.Duration `yaml:"breaker_open_timeout" validate:"gt=0"`
}

// LLMConfig holds Ollama generation settings.
type LLMConfig struct {
	OllamaURL           string        `yaml:"ollama_url" validate:"required,url"`
	Model               string        `yaml:"model" validate:"required"`
	Timeout             time.Duration `yaml:"timeout" validate:"gt=0"`
	Temperature         float64       `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens           int           `yaml:"max_tokens" validate:"gte=1"`
	ContextWindow       int           `yaml:"context_window" validate:"gte=1"`
	StreamContextWindow int           `yaml:"stream_context_window" validate:"gte=1"`
}

// EmbeddingConfig holds knowledge base embedder settings. An empty Model
// selects the built-in hashing embedder.
type EmbeddingConfig struct {
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions" validate:"gte=1"`
	CacheSize  int    `yaml:"cache_size" validate:"gte=1"`
}

// LimitsConfig holds per-client rate limits.
type LimitsConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute" validate:"gte=1"`
	Window            time.Duration `yaml:"window" validate:"gt=0"`
}

// ConversationConfig holds in-memory conversation window settings.
type ConversationConfig struct {
	MaxMessages     int           `yaml:"max_messages" validate:"gte=1"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" validate:"gt=0"`
	ContextMessages int           `yaml:"context_messages" validate:"gte=1"`
	FollowUpHistory int           `yaml:"follow_up_history" validate:"gte=1"`
}

// WatchConfig holds inbox directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, expands paths, applies
// defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("source_type", func(fl validator.FieldLevel) bool {
		return models.SourceType(fl.Field().String()).Valid()
	})
	return v
}

// Validate checks value ranges and that source weight keys are known source
// types.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
