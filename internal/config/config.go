package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/vigia-lab/vigia/internal/db"
)

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Postgres   db.Config        `mapstructure:"postgres"`
	Redis      RedisConfig      `mapstructure:"redis"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
}

type ServerConfig struct {
	Port        int `mapstructure:"port"`
	MetricsPort int `mapstructure:"metrics_port"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type OpenAIConfig struct {
	APIKey             string        `mapstructure:"api_key"`
	BaseURL            string        `mapstructure:"base_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	AssistantAmbiental string        `mapstructure:"assistant_ambiental"`
	AssistantSocial    string        `mapstructure:"assistant_social"`
	AssistantEconomica string        `mapstructure:"assistant_economica"`
	AnalysisModel      string        `mapstructure:"analysis_model"`
	AnalysisEnabled    bool          `mapstructure:"analysis_enabled"`
}

type EvaluationConfig struct {
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	PollTimeoutSeconds  int `mapstructure:"poll_timeout_seconds"`
	MaxRunRestarts      int `mapstructure:"max_run_restarts"`
}

// Load reads the config file (CONFIG_PATH or config/vigia.yaml), applies
// defaults and environment overrides, and returns the result. A missing
// file is not an error; defaults plus environment carry the service.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/vigia.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 2112)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "vigia")
	v.SetDefault("postgres.password", "vigia")
	v.SetDefault("postgres.database", "vigia")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_connections", 25)
	v.SetDefault("postgres.idle_connections", 5)
	v.SetDefault("postgres.max_lifetime", "30m")

	v.SetDefault("redis.url", "redis://localhost:6379/0")

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.timeout", "60s")
	v.SetDefault("openai.analysis_model", "gpt-4-turbo")
	v.SetDefault("openai.analysis_enabled", false)

	v.SetDefault("evaluation.poll_interval_seconds", 10)
	v.SetDefault("evaluation.poll_timeout_seconds", 10000)
	v.SetDefault("evaluation.max_run_restarts", 10)
}

func applyEnvOverrides(cfg *Config) {
	cfg.Server.Port = getEnvIntOrDefault("PORT", cfg.Server.Port)
	cfg.Server.MetricsPort = getEnvIntOrDefault("METRICS_PORT", cfg.Server.MetricsPort)

	cfg.Postgres.Host = getEnvOrDefault("POSTGRES_HOST", cfg.Postgres.Host)
	cfg.Postgres.Port = getEnvIntOrDefault("POSTGRES_PORT", cfg.Postgres.Port)
	cfg.Postgres.User = getEnvOrDefault("POSTGRES_USER", cfg.Postgres.User)
	cfg.Postgres.Password = getEnvOrDefault("POSTGRES_PASSWORD", cfg.Postgres.Password)
	cfg.Postgres.Database = getEnvOrDefault("POSTGRES_DB", cfg.Postgres.Database)

	cfg.Redis.URL = getEnvOrDefault("REDIS_URL", cfg.Redis.URL)

	cfg.OpenAI.APIKey = getEnvOrDefault("OPENAI_API_KEY", cfg.OpenAI.APIKey)
	cfg.OpenAI.BaseURL = getEnvOrDefault("OPENAI_BASE_URL", cfg.OpenAI.BaseURL)
	cfg.OpenAI.AssistantAmbiental = getEnvOrDefault("OPENAI_ASSISTANT_ID_AMBIENTAL", cfg.OpenAI.AssistantAmbiental)
	cfg.OpenAI.AssistantSocial = getEnvOrDefault("OPENAI_ASSISTANT_ID_SOCIAL", cfg.OpenAI.AssistantSocial)
	cfg.OpenAI.AssistantEconomica = getEnvOrDefault("OPENAI_ASSISTANT_ID_ECONOMICA", cfg.OpenAI.AssistantEconomica)
}

// Validate checks the settings a running service cannot do without.
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai api key is required")
	}
	if c.OpenAI.AssistantAmbiental == "" || c.OpenAI.AssistantSocial == "" || c.OpenAI.AssistantEconomica == "" {
		return fmt.Errorf("all three assistant ids are required")
	}
	if c.Evaluation.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Evaluation.PollTimeoutSeconds <= c.Evaluation.PollIntervalSeconds {
		return fmt.Errorf("poll timeout must exceed poll interval")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
