// Package config loads card-engine configuration from an optional YAML file
// overlaid with CE_-prefixed environment variables, and owns the database
// connection pool.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the card-engine process.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	LLM       LLMConfig       `yaml:"llm"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds Postgres connection settings. URL wins when set;
// otherwise the DSN is assembled from the individual parts.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	MaxConns int    `yaml:"max_conns"`
	MaxIdle  int    `yaml:"max_idle"`
}

// IngestionConfig holds the daemon's pacing and sizing knobs.
type IngestionConfig struct {
	CycleSeconds      int  `yaml:"cycle_seconds"`
	BatchSize         int  `yaml:"batch_size"`
	ConcurrentBatches int  `yaml:"concurrent_batches"`
	AutoStart         bool `yaml:"auto_start"`
}

// LLMConfig holds upstream LLM credentials and model selection.
type LLMConfig struct {
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	ChatModel       string `yaml:"chat_model"`
}

// SetDefaults fills zero-valued fields with their defaults.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 9810
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.User == "" {
		c.Database.User = "postgres"
	}
	if c.Database.Password == "" {
		c.Database.Password = "postgres"
	}
	if c.Database.Name == "" {
		c.Database.Name = "card_engine"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.Database.MaxIdle == 0 {
		c.Database.MaxIdle = 2
	}
	if c.Ingestion.CycleSeconds == 0 {
		c.Ingestion.CycleSeconds = 60
	}
	if c.Ingestion.BatchSize == 0 {
		c.Ingestion.BatchSize = 10
	}
	if c.Ingestion.ConcurrentBatches == 0 {
		c.Ingestion.ConcurrentBatches = 5
	}
	if c.LLM.ChatModel == "" {
		c.LLM.ChatModel = "gpt-4o-mini"
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Ingestion.CycleSeconds < 1 {
		return fmt.Errorf("ingestion.cycle_seconds must be positive, got %d", c.Ingestion.CycleSeconds)
	}
	if c.Ingestion.BatchSize < 1 {
		return fmt.Errorf("ingestion.batch_size must be positive, got %d", c.Ingestion.BatchSize)
	}
	if c.Ingestion.ConcurrentBatches < 1 {
		return fmt.Errorf("ingestion.concurrent_batches must be positive, got %d", c.Ingestion.ConcurrentBatches)
	}
	return nil
}

// DSN returns the lib/pq connection string.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// Addr returns the host:port the HTTP server listens on.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load builds the configuration: defaults, then the YAML file at path (if
// given), then CE_* environment variables. Call LoadEnvFiles first if .env
// support is wanted.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.SetDefaults()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
		// Re-fill anything the file left empty.
		cfg.SetDefaults()
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Expand ${VAR} references before decoding so secrets can live in env.
	expanded := expandEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays CE_* environment variables onto the configuration.
func (c *Config) ApplyEnv() {
	envInt("CE_PORT", &c.Server.Port)
	envString("CE_HOST", &c.Server.Host)

	envString("CE_DATABASE_URL", &c.Database.URL)
	envString("CE_DB_HOST", &c.Database.Host)
	envInt("CE_DB_PORT", &c.Database.Port)
	envString("CE_DB_USER", &c.Database.User)
	envString("CE_DB_PASSWORD", &c.Database.Password)
	envString("CE_DB_NAME", &c.Database.Name)

	envString("CE_OPENAI_API_KEY", &c.LLM.OpenAIAPIKey)
	envString("CE_ANTHROPIC_API_KEY", &c.LLM.AnthropicAPIKey)
	envString("CE_FAMILY_CHAT_MODEL", &c.LLM.ChatModel)

	envInt("CE_INGEST_CYCLE_SECONDS", &c.Ingestion.CycleSeconds)
	envInt("CE_INGEST_BATCH_SIZE", &c.Ingestion.BatchSize)
	envInt("CE_INGEST_CONCURRENT_BATCHES", &c.Ingestion.ConcurrentBatches)
	envBool("CE_INGEST_AUTO_START", &c.Ingestion.AutoStart)
}
