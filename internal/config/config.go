// Package config provides configuration management for the research feed service.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the service reads.
const EnvPrefix = "RESEARCHFEED"

// Legacy environment variables honoured alongside the prefixed names.
const (
	// LegacyMaxResultsEnv caps ids per category search.
	LegacyMaxResultsEnv = "RETMAX"
	// LegacyAPIKeyEnv holds the NCBI API key.
	LegacyAPIKeyEnv = "NCBI_API_KEY"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds all configuration for the research feed service.
type Config struct {
	// PubMed contains upstream E-utilities settings.
	PubMed PubMedConfig `mapstructure:"pubmed"`
	// Pipeline contains refresh pipeline settings.
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	// Output contains snapshot destinations.
	Output OutputConfig `mapstructure:"output"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Server contains snapshot server settings.
	Server ServerConfig `mapstructure:"server"`
	// Kafka contains refresh notification settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// PubMedConfig holds NCBI E-utilities settings.
type PubMedConfig struct {
	// BaseURL is the E-utilities API root.
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	// APIKey is the NCBI API key (loaded from RESEARCHFEED_PUBMED_API_KEY or NCBI_API_KEY).
	APIKey string `mapstructure:"-"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	// RateLimit is the maximum requests per second. Zero picks 3, or 10 with an API key.
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`
	// BurstSize is the rate limiter burst.
	BurstSize int `mapstructure:"burst_size" validate:"gte=1"`
	// MaxResults caps the ids returned per category search.
	MaxResults int `mapstructure:"max_results" validate:"gte=1,lte=10000"`
	// UserAgent identifies the service to NCBI.
	UserAgent string `mapstructure:"user_agent" validate:"required"`
}

// PipelineConfig holds refresh pipeline settings.
type PipelineConfig struct {
	// StageDelay is the pause between upstream API families within a category.
	StageDelay time.Duration `mapstructure:"stage_delay" validate:"gte=0"`
	// FallbackSnippet is shown for articles without an abstract.
	FallbackSnippet string `mapstructure:"fallback_snippet" validate:"required"`
	// CatalogPath optionally replaces the built-in category catalog with a YAML file.
	CatalogPath string `mapstructure:"catalog_path"`
}

// OutputConfig holds snapshot destinations.
type OutputConfig struct {
	// DataPath is the internal snapshot copy.
	DataPath string `mapstructure:"data_path" validate:"required"`
	// PublicPath is the copy served to the dashboard.
	PublicPath string `mapstructure:"public_path" validate:"required"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format" validate:"oneof=json console pretty"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output" validate:"oneof=stdout stderr"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace" validate:"required"`
	// Path is the HTTP path for the metrics endpoint.
	Path string `mapstructure:"path" validate:"startswith=/"`
	// TextfilePath, when set, receives a node exporter textfile after each batch run.
	TextfilePath string `mapstructure:"textfile_path"`
}

// ServerConfig holds snapshot server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RefreshInterval schedules refresh runs while serving. Zero disables them.
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"gte=0"`
}

// KafkaConfig holds refresh notification settings.
type KafkaConfig struct {
	// Enabled controls whether refresh events are published.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic receives one event per successful refresh.
	Topic string `mapstructure:"topic"`
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	// WriteTimeout bounds a single publish.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The prefixed name wins over the legacy one.
	if err := v.BindEnv("pubmed.max_results", EnvPrefix+"_PUBMED_MAX_RESULTS", LegacyMaxResultsEnv); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/research-feed-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// Whitespace-only keys count as unset.
func loadSecrets(cfg *Config) {
	key := strings.TrimSpace(os.Getenv(EnvPrefix + "_PUBMED_API_KEY"))
	if key == "" {
		key = strings.TrimSpace(os.Getenv(LegacyAPIKeyEnv))
	}
	cfg.PubMed.APIKey = key
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// PubMed defaults
	v.SetDefault("pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("pubmed.timeout", "30s")
	v.SetDefault("pubmed.rate_limit", 0.0) // 3 req/sec anonymous, 10 with an API key
	v.SetDefault("pubmed.burst_size", 3)
	v.SetDefault("pubmed.max_results", 5)
	v.SetDefault("pubmed.user_agent", "research-feed-service/1.0 (contact: data-maintainer@example.com)")

	// Pipeline defaults
	v.SetDefault("pipeline.stage_delay", "350ms")
	v.SetDefault("pipeline.fallback_snippet", "Abstract not available. Open the PubMed record for details.")
	v.SetDefault("pipeline.catalog_path", "")

	// Output defaults
	v.SetDefault("output.data_path", filepath.Join("data", "research.json"))
	v.SetDefault("output.public_path", filepath.Join("public", "data", "research.json"))

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "research_feed")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.textfile_path", "")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.refresh_interval", "0s")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "events.research_feed.snapshot_refreshed")
	v.SetDefault("kafka.batch_timeout", "10ms")
	v.SetDefault("kafka.write_timeout", "10s")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return formatFieldErrors(fieldErrs)
		}
		return err
	}

	// Validate server port
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "warning": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Both snapshot copies must be distinct files.
	if filepath.Clean(c.Output.DataPath) == filepath.Clean(c.Output.PublicPath) {
		return fmt.Errorf("output data_path and public_path must differ: %s", c.Output.DataPath)
	}

	// Validate Kafka config
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka topic is required when kafka is enabled")
		}
	}

	return nil
}

func formatFieldErrors(errs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		msg := fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s failed %q (%s)", fe.Namespace(), fe.Tag(), fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
