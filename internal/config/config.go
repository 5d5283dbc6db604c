package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zombar/promptscore/internal/cache"
	"github.com/zombar/promptscore/internal/ollama"
	"github.com/zombar/promptscore/internal/openai"
)

// LLM providers
const (
	ProviderNone   = "none"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

const (
	defaultPort        = 8080
	defaultServiceName = "promptscore"
	defaultConcurrency = 4
)

// Config holds runtime configuration for the server
type Config struct {
	Port        int          `yaml:"port"`
	ServiceName string       `yaml:"service_name"`
	LogLevel    string       `yaml:"log_level"`
	Redis       RedisConfig  `yaml:"redis"`
	LLM         LLMConfig    `yaml:"llm"`
	Cache       CacheConfig  `yaml:"cache"`
	Worker      WorkerConfig `yaml:"worker"`
}

// RedisConfig locates the Redis used for the job queue and shared caches.
// Both empty means in-memory caches and no job queue.
type RedisConfig struct {
	Addr string `yaml:"addr"` // host:port for asynq
	URL  string `yaml:"url"`  // redis:// URL for shared caches
}

// LLMConfig selects the rewriting backend
type LLMConfig struct {
	Provider     string `yaml:"provider"`
	OllamaURL    string `yaml:"ollama_url"`
	OllamaModel  string `yaml:"ollama_model"`
	OpenAIAPIKey string `yaml:"openai_api_key"`
	OpenAIModel  string `yaml:"openai_model"`
}

// CacheConfig holds cache TTLs
type CacheConfig struct {
	QuestionTTL     time.Duration `yaml:"question_ttl"`
	OptimizationTTL time.Duration `yaml:"optimization_ttl"`
	JobTTL          time.Duration `yaml:"job_ttl"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
}

// WorkerConfig controls the in-process asynq worker
type WorkerConfig struct {
	Enabled     bool `yaml:"enabled"`
	Concurrency int  `yaml:"concurrency"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Port:        defaultPort,
		ServiceName: defaultServiceName,
		LogLevel:    "info",
		LLM: LLMConfig{
			Provider:    ProviderNone,
			OllamaURL:   ollama.DefaultURL,
			OllamaModel: ollama.DefaultModel,
			OpenAIModel: openai.DefaultModel,
		},
		Cache: CacheConfig{
			QuestionTTL:     cache.DefaultQuestionTTL,
			OptimizationTTL: cache.DefaultOptimizationTTL,
			JobTTL:          cache.DefaultJobTTL,
			SweepInterval:   cache.DefaultSweepInterval,
		},
		Worker: WorkerConfig{
			Enabled:     true,
			Concurrency: defaultConcurrency,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// the environment, then validates it
func Load(path string) (Config, error) {
	cfg := Default()

	if path = strings.TrimSpace(path); path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", path, err)
		}
		if err := decodeYAML(content, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(content []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from environment variables read via getenv
func (c *Config) ApplyEnv(getenv func(string) string) error {
	env := func(key string) string { return strings.TrimSpace(getenv(key)) }

	if v := env("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Port = port
	}
	if v := env("OTEL_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	if v := env("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := env("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}

	if v := env("USE_OLLAMA"); v != "" && parseBool(v) {
		c.LLM.Provider = ProviderOllama
	}
	if v := env("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = strings.ToLower(v)
	}
	if v := env("OLLAMA_URL"); v != "" {
		c.LLM.OllamaURL = v
	}
	if v := env("OLLAMA_MODEL"); v != "" {
		c.LLM.OllamaModel = v
	}
	if v := env("OPENAI_API_KEY"); v != "" {
		c.LLM.OpenAIAPIKey = v
	}
	if v := env("OPENAI_MODEL"); v != "" {
		c.LLM.OpenAIModel = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"QUESTION_CACHE_TTL", &c.Cache.QuestionTTL},
		{"OPTIMIZATION_CACHE_TTL", &c.Cache.OptimizationTTL},
		{"JOB_CACHE_TTL", &c.Cache.JobTTL},
		{"CACHE_SWEEP_INTERVAL", &c.Cache.SweepInterval},
	}
	for _, d := range durations {
		v := env(d.key)
		if v == "" {
			continue
		}
		parsed, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.key, v, err)
		}
		*d.dst = parsed
	}

	if v := env("WORKER_ENABLED"); v != "" {
		c.Worker.Enabled = parseBool(v)
	}
	if v := env("WORKER_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid WORKER_CONCURRENCY %q: %w", v, err)
		}
		c.Worker.Concurrency = n
	}
	return nil
}

// Validate rejects configurations the server cannot start with
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", c.Port)
	}

	switch c.LLM.Provider {
	case ProviderNone, ProviderOllama:
	case ProviderOpenAI:
		if c.LLM.OpenAIAPIKey == "" {
			return errors.New("llm.openai_api_key is required when llm.provider is openai")
		}
	default:
		return fmt.Errorf("unknown llm.provider %q, expected none, ollama or openai", c.LLM.Provider)
	}

	ttls := map[string]time.Duration{
		"cache.question_ttl":     c.Cache.QuestionTTL,
		"cache.optimization_ttl": c.Cache.OptimizationTTL,
		"cache.job_ttl":          c.Cache.JobTTL,
		"cache.sweep_interval":   c.Cache.SweepInterval,
	}
	for name, ttl := range ttls {
		if ttl <= 0 {
			return fmt.Errorf("invalid %s %s, expected a positive duration", name, ttl)
		}
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("invalid worker.concurrency %d, expected >= 1", c.Worker.Concurrency)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// QueueEnabled reports whether a Redis address for asynq is configured
func (c Config) QueueEnabled() bool {
	return c.Redis.Addr != ""
}

// ParseLevel maps a level name to a slog.Level
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// parseDuration accepts Go durations ("30m") or plain seconds ("1800")
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}
