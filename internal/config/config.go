// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type QueueConfig struct {
	Name          string        `yaml:"name"`
	Concurrency   int           `yaml:"concurrency"`
	JobTimeout    time.Duration `yaml:"job_timeout"`
	MaxAttempts   int           `yaml:"max_attempts"`
	Backoff       time.Duration `yaml:"backoff"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	KeepCompleted int           `yaml:"keep_completed"`
	KeepFailed    int           `yaml:"keep_failed"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type AIConfig struct {
	DefaultProvider string         `yaml:"default_provider"`
	DefaultModel    string         `yaml:"default_model"`
	OpenAI          ProviderConfig `yaml:"openai"`
	Anthropic       ProviderConfig `yaml:"anthropic"`
	Google          ProviderConfig `yaml:"google"`
	Timeout         time.Duration  `yaml:"timeout"`
	MaxRetries      int            `yaml:"max_retries"`
	ConcurrentLimit int            `yaml:"concurrent_limit"` // max concurrent AI calls
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Admin    AdminConfig    `yaml:"admin"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Queue    QueueConfig    `yaml:"queue"`
	AI       AIConfig       `yaml:"ai"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyDefaults()
	cfg.applyEnvFallbacks()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// ApplyDefaults fills zero values; exported so tests can build configs
// without a YAML file.
func (cfg *Config) ApplyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 8080
	}
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "ai-tasks"
	}
	if cfg.Queue.Concurrency <= 0 {
		cfg.Queue.Concurrency = 2
	}
	if cfg.Queue.JobTimeout <= 0 {
		cfg.Queue.JobTimeout = 5 * time.Minute
	}
	if cfg.Queue.MaxAttempts <= 0 {
		cfg.Queue.MaxAttempts = 3
	}
	if cfg.Queue.Backoff <= 0 {
		cfg.Queue.Backoff = 2 * time.Second
	}
	if cfg.Queue.PollInterval <= 0 {
		cfg.Queue.PollInterval = 250 * time.Millisecond
	}
	if cfg.Queue.KeepCompleted <= 0 {
		cfg.Queue.KeepCompleted = 100
	}
	if cfg.Queue.KeepFailed <= 0 {
		cfg.Queue.KeepFailed = 200
	}
	if cfg.AI.DefaultProvider == "" {
		cfg.AI.DefaultProvider = "openai"
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-3.5-turbo"
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 60 * time.Second
	}
	if cfg.AI.MaxRetries <= 0 {
		cfg.AI.MaxRetries = 3
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
}

// applyEnvFallbacks sources provider credentials from the environment when
// the YAML leaves them empty, mirroring how agents without their own key
// fall back to process-level credentials.
func (cfg *Config) applyEnvFallbacks() {
	if cfg.AI.OpenAI.APIKey == "" {
		cfg.AI.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.AI.Anthropic.APIKey == "" {
		cfg.AI.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.AI.Google.APIKey == "" {
		cfg.AI.Google.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.Admin.JWTSecret == "" {
		cfg.Admin.JWTSecret = os.Getenv("JWT_SECRET")
	}
}

// EnvKeyFor returns the process-level credential for a provider type.
func (cfg *Config) EnvKeyFor(provider string) string {
	switch provider {
	case "openai":
		return cfg.AI.OpenAI.APIKey
	case "anthropic":
		return cfg.AI.Anthropic.APIKey
	case "google":
		return cfg.AI.Google.APIKey
	}
	return ""
}
