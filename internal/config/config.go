// Package config provides configuration management for the paper review service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the paper review worker.
type Config struct {
	// Server contains the operational HTTP server settings (health, metrics).
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Queue contains work queue consumer and producer settings.
	Queue QueueConfig `mapstructure:"queue"`
	// Notify contains notification channel settings.
	Notify NotifyConfig `mapstructure:"notify"`
	// Parser contains document parsing service client settings.
	Parser ParserConfig `mapstructure:"parser"`
	// Embedding contains embedding backend client settings.
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	// LLM contains generation backend client settings.
	LLM LLMConfig `mapstructure:"llm"`
	// Pipeline contains inference pipeline tuning knobs.
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

// ServerConfig holds the operational HTTP server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// Port is the health/metrics HTTP port (default: 9091).
	Port int `mapstructure:"port"`
	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing a response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (use environment variable in production).
	Password string `mapstructure:"password"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool.
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open.
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files.
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup.
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for the metrics endpoint.
	Path string `mapstructure:"path"`
}

// QueueConfig holds work queue settings.
type QueueConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic is the inference task topic.
	Topic string `mapstructure:"topic"`
	// GroupID is the consumer group ID.
	GroupID string `mapstructure:"group_id"`
	// MaxWait is the bounded wait for a blocking dequeue before the loop
	// re-checks liveness (default: 30s).
	MaxWait time.Duration `mapstructure:"max_wait"`
	// BatchTimeout is the maximum time the producer waits for a batch to fill.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// NotifyConfig holds notification channel settings.
type NotifyConfig struct {
	// Enabled controls whether task transition events are published.
	Enabled bool `mapstructure:"enabled"`
	// Topic is the notification topic for task status events.
	Topic string `mapstructure:"topic"`
	// PublishTimeout bounds each fire-and-forget publish.
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// ParserConfig holds document parsing service client settings.
type ParserConfig struct {
	// BaseURL is the parsing service base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the timeout for parse calls.
	Timeout time.Duration `mapstructure:"timeout"`
}

// EmbeddingConfig holds embedding backend client settings.
type EmbeddingConfig struct {
	// BaseURL is the embedding backend base URL.
	BaseURL string `mapstructure:"base_url"`
	// Model is the embedding model name.
	Model string `mapstructure:"model"`
	// Dimension is the fixed embedding dimension. Stored vectors and the
	// backend contract must both match it.
	Dimension int `mapstructure:"dimension"`
	// MockMode bypasses the network call and returns a deterministic vector.
	MockMode bool `mapstructure:"mock_mode"`
	// Timeout is the timeout for embedding calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum embedding requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// RateBurst is the rate limiter burst size.
	RateBurst int `mapstructure:"rate_burst"`
}

// LLMConfig holds generation backend client settings.
type LLMConfig struct {
	// BaseURL is the generation backend base URL.
	BaseURL string `mapstructure:"base_url"`
	// Model is the generation model name.
	Model string `mapstructure:"model"`
	// OfflineMode selects an offline generator: "" (disabled), "demo" for
	// fixed demonstration content, or "echo" to return the assembled prompt
	// for pipeline introspection.
	OfflineMode string `mapstructure:"offline_mode"`
	// Timeout is the timeout for generation calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum generation requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// RateBurst is the rate limiter burst size.
	RateBurst int `mapstructure:"rate_burst"`
}

// PipelineConfig holds inference pipeline tuning knobs.
type PipelineConfig struct {
	// MaxRetries is the retry budget for transient task failures.
	MaxRetries int `mapstructure:"max_retries"`
	// TopK is the number of similarity search hits to retrieve.
	TopK int `mapstructure:"top_k"`
	// RuleSimilarityThreshold filters conference rule hits included in prompts.
	RuleSimilarityThreshold float64 `mapstructure:"rule_similarity_threshold"`
	// ChunkSimilarityThreshold filters prior-chunk hits included in prompts.
	ChunkSimilarityThreshold float64 `mapstructure:"chunk_similarity_threshold"`
	// QueryPrefixLen is how much manuscript text is embedded as the RAG query.
	QueryPrefixLen int `mapstructure:"query_prefix_len"`
	// ExcerptMaxLen caps the manuscript excerpt included in the prompt.
	ExcerptMaxLen int `mapstructure:"excerpt_max_len"`
	// DiffMaxLen caps the rendered unified diff.
	DiffMaxLen int `mapstructure:"diff_max_len"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// Address returns the operational HTTP server address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("NAKBASE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/paper-review-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 9091)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "nakbase")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "paper_review")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Queue defaults
	v.SetDefault("queue.brokers", []string{"localhost:9092"})
	v.SetDefault("queue.topic", "inference.tasks")
	v.SetDefault("queue.group_id", "paper-review-worker")
	v.SetDefault("queue.max_wait", "30s")
	v.SetDefault("queue.batch_timeout", "10ms")

	// Notify defaults
	v.SetDefault("notify.enabled", true)
	v.SetDefault("notify.topic", "inference.task_events")
	v.SetDefault("notify.publish_timeout", "5s")

	// Parser defaults
	v.SetDefault("parser.base_url", "http://localhost:8001")
	v.SetDefault("parser.timeout", "120s")

	// Embedding defaults
	v.SetDefault("embedding.base_url", "http://localhost:11434")
	v.SetDefault("embedding.model", "nomic-embed-text")
	v.SetDefault("embedding.dimension", 768)
	v.SetDefault("embedding.mock_mode", false)
	v.SetDefault("embedding.timeout", "60s")
	v.SetDefault("embedding.rate_limit", 10.0)
	v.SetDefault("embedding.rate_burst", 10)

	// LLM defaults
	v.SetDefault("llm.base_url", "http://localhost:11434")
	v.SetDefault("llm.model", "llama3")
	v.SetDefault("llm.offline_mode", "")
	v.SetDefault("llm.timeout", "300s")
	v.SetDefault("llm.rate_limit", 2.0)
	v.SetDefault("llm.rate_burst", 2)

	// Pipeline defaults
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.top_k", 5)
	v.SetDefault("pipeline.rule_similarity_threshold", 0.5)
	v.SetDefault("pipeline.chunk_similarity_threshold", 0.7)
	v.SetDefault("pipeline.query_prefix_len", 3000)
	v.SetDefault("pipeline.excerpt_max_len", 10000)
	v.SetDefault("pipeline.diff_max_len", 4000)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if len(c.Queue.Brokers) == 0 {
		return fmt.Errorf("at least one queue broker is required")
	}
	if c.Queue.Topic == "" {
		return fmt.Errorf("queue topic is required")
	}
	if c.Queue.GroupID == "" {
		return fmt.Errorf("queue group_id is required")
	}
	if c.Queue.MaxWait <= 0 {
		return fmt.Errorf("queue max_wait must be positive")
	}

	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}

	switch c.LLM.OfflineMode {
	case "", "demo", "echo":
	default:
		return fmt.Errorf("invalid llm offline_mode: %s", c.LLM.OfflineMode)
	}

	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("pipeline max_retries must be >= 0")
	}
	if c.Pipeline.TopK <= 0 {
		return fmt.Errorf("pipeline top_k must be positive")
	}
	if c.Pipeline.RuleSimilarityThreshold < 0 || c.Pipeline.RuleSimilarityThreshold > 1 {
		return fmt.Errorf("pipeline rule_similarity_threshold must be between 0 and 1")
	}
	if c.Pipeline.ChunkSimilarityThreshold < 0 || c.Pipeline.ChunkSimilarityThreshold > 1 {
		return fmt.Errorf("pipeline chunk_similarity_threshold must be between 0 and 1")
	}

	return nil
}
