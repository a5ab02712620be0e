package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the news agent service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Databases DatabasesConfig `mapstructure:"databases"`
	Search    SearchConfig    `mapstructure:"search"`
	Session   SessionConfig   `mapstructure:"session"`
	Index     IndexConfig     `mapstructure:"index"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Listen   string `mapstructure:"listen"`
	LogLevel string `mapstructure:"log_level"`
	Debug    bool   `mapstructure:"debug"`
}

// ProvidersConfig selects and configures the generative backends.
// LLMProvider is one of "openai", "ollama" or "auto"; auto tries Ollama
// first and falls back to OpenAI when an API key is configured.
type ProvidersConfig struct {
	LLMProvider string       `mapstructure:"llm_provider"`
	OpenAi      OpenAiConfig `mapstructure:"openai"`
	Ollama      OllamaConfig `mapstructure:"ollama"`
}

type OpenAiConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	CompletionModel string        `mapstructure:"completion_model"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

type OllamaConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	CompletionModel string        `mapstructure:"completion_model"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// DatabasesConfig contains storage backends
type DatabasesConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("databases.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("databases.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a postgres connection string from the configured fields.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Pass string `mapstructure:"pass"`
	DB   int    `mapstructure:"db"`
}

// Enabled reports whether redis is configured at all. Redis is optional:
// without it the session store is in-memory and rebuilds are not locked
// across replicas.
func (r RedisConfig) Enabled() bool { return r.Host != "" }

func (r RedisConfig) Addr() string {
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", r.Host, port)
}

// SearchConfig tunes the hybrid retrieval policy.
type SearchConfig struct {
	TopK                int     `mapstructure:"top_k"`
	KeywordBoost        float64 `mapstructure:"keyword_boost"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	RecencyWindowDays   int     `mapstructure:"recency_window_days"`
}

func (s SearchConfig) Validate() error {
	if s.KeywordBoost < 0 || s.KeywordBoost > 1 {
		return fmt.Errorf("search.keyword_boost must be in [0,1]")
	}
	if s.TopK <= 0 {
		return fmt.Errorf("search.top_k must be > 0")
	}
	return nil
}

// SessionConfig controls conversation state retention.
type SessionConfig struct {
	Backend       string        `mapstructure:"backend"` // inmemory or redis
	TTLMinutes    int           `mapstructure:"ttl_minutes"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	MaxTurns      int           `mapstructure:"max_turns"`
}

func (s SessionConfig) TTL() time.Duration { return time.Duration(s.TTLMinutes) * time.Minute }

func (s SessionConfig) Validate() error {
	switch s.Backend {
	case "", "inmemory", "redis":
	default:
		return fmt.Errorf("session.backend must be inmemory or redis")
	}
	if s.TTLMinutes <= 0 {
		return fmt.Errorf("session.ttl_minutes must be > 0")
	}
	return nil
}

// IndexConfig controls snapshot rebuild cadence.
// CheckSchedule accepts "@hourly", "@daily" or a 5-field cron expression;
// when empty the fixed CheckInterval is used instead.
type IndexConfig struct {
	CheckSchedule string        `mapstructure:"check_schedule"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
	EmbedBatch    int           `mapstructure:"embed_batch"`
}

// LoadConfig loads config from file with NEWSPULSE_* env overrides.
// An explicit path is required to exist; otherwise the file is optional
// and defaults plus environment variables apply.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.listen", ":8000")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("providers.llm_provider", "auto")
	viper.SetDefault("providers.openai.completion_model", "gpt-4o-mini")
	viper.SetDefault("providers.openai.embedding_model", "text-embedding-3-small")
	viper.SetDefault("providers.openai.temperature", 0.5)
	viper.SetDefault("providers.openai.max_tokens", 800)
	viper.SetDefault("providers.openai.timeout", "60s")
	viper.SetDefault("providers.ollama.base_url", "http://localhost:11434")
	viper.SetDefault("providers.ollama.completion_model", "llama3.1:8b")
	viper.SetDefault("providers.ollama.embedding_model", "nomic-embed-text")
	viper.SetDefault("providers.ollama.temperature", 0.1)
	viper.SetDefault("providers.ollama.max_tokens", 1000)
	viper.SetDefault("providers.ollama.timeout", "120s")
	viper.SetDefault("search.top_k", 5)
	viper.SetDefault("search.keyword_boost", 0.3)
	viper.SetDefault("search.similarity_threshold", 0.3)
	viper.SetDefault("search.recency_window_days", 0)
	viper.SetDefault("session.backend", "inmemory")
	viper.SetDefault("session.ttl_minutes", 60)
	viper.SetDefault("session.sweep_interval", "5m")
	viper.SetDefault("session.max_turns", 50)
	viper.SetDefault("index.check_schedule", "")
	viper.SetDefault("index.check_interval", "15m")
	viper.SetDefault("index.embed_batch", 64)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("NEWSPULSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || path != "" {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.Search.Validate(); err != nil {
		panic(err)
	}
	if err := config.Session.Validate(); err != nil {
		panic(err)
	}
	return &config
}
