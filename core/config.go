package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the demo runtime.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options, including WithConfigFile (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithName("weather-demo"),
//	    WithExporter("stdout"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	Name string `json:"name" yaml:"name" env:"GOMIND_AGENT_NAME"`

	AI          AIConfig          `json:"ai" yaml:"ai"`
	Telemetry   TelemetryConfig   `json:"telemetry" yaml:"telemetry"`
	Attribution AttributionConfig `json:"attribution" yaml:"attribution"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
}

// AIConfig contains text generation provider settings.
// Provider "auto" picks the highest priority provider whose credentials are present.
type AIConfig struct {
	Provider      string        `json:"provider" yaml:"provider" env:"GOMIND_AI_PROVIDER" default:"auto"`
	APIKey        string        `json:"api_key" yaml:"api_key" env:"GOMIND_AI_API_KEY,OPENAI_API_KEY"`
	BaseURL       string        `json:"base_url" yaml:"base_url" env:"GOMIND_AI_BASE_URL,OPENAI_BASE_URL"`
	Model         string        `json:"model" yaml:"model" env:"GOMIND_AI_MODEL" default:"gpt-4o-mini"`
	Temperature   float32       `json:"temperature" yaml:"temperature" env:"GOMIND_AI_TEMPERATURE" default:"0.7"`
	MaxTokens     int           `json:"max_tokens" yaml:"max_tokens" env:"GOMIND_AI_MAX_TOKENS" default:"1000"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout" env:"GOMIND_AI_TIMEOUT" default:"60s"`
	MaxRetries    int           `json:"max_retries" yaml:"max_retries" env:"GOMIND_AI_MAX_RETRIES" default:"2"`
	MaxToolRounds int           `json:"max_tool_rounds" yaml:"max_tool_rounds" env:"GOMIND_AI_MAX_TOOL_ROUNDS" default:"5"`
	// Fallbacks are provider aliases tried in order when Provider fails,
	// e.g. "openai.groq". Empty means no failover chain.
	Fallbacks     []string      `json:"fallbacks" yaml:"fallbacks" env:"GOMIND_AI_FALLBACKS"`
}

// TelemetryConfig contains trace export settings.
//
// Exporters:
//   - "otlp-http": OTLP over HTTP to Host (basic auth from PublicKey/SecretKey) or Endpoint
//   - "otlp-grpc": OTLP over gRPC to Endpoint (local collector)
//   - "stdout":    pretty-printed spans on stdout
//   - "tree":      indented trace trees on stdout
//   - "none":      tracing disabled
type TelemetryConfig struct {
	Enabled        bool                 `json:"enabled" yaml:"enabled" env:"GOMIND_TELEMETRY_ENABLED" default:"true"`
	ServiceName    string               `json:"service_name" yaml:"service_name" env:"GOMIND_TELEMETRY_SERVICE_NAME,OTEL_SERVICE_NAME"`
	Exporter       string               `json:"exporter" yaml:"exporter" env:"GOMIND_TELEMETRY_EXPORTER" default:"tree"`
	Endpoint       string               `json:"endpoint" yaml:"endpoint" env:"GOMIND_TELEMETRY_ENDPOINT,OTEL_EXPORTER_OTLP_ENDPOINT"`
	Host           string               `json:"host" yaml:"host" env:"LANGFUSE_HOST" default:"https://cloud.langfuse.com"`
	PublicKey      string               `json:"public_key" yaml:"public_key" env:"LANGFUSE_PUBLIC_KEY"`
	SecretKey      string               `json:"secret_key" yaml:"secret_key" env:"LANGFUSE_SECRET_KEY"`
	Insecure       bool                 `json:"insecure" yaml:"insecure" env:"GOMIND_TELEMETRY_INSECURE" default:"false"`
	SamplingRate   float64              `json:"sampling_rate" yaml:"sampling_rate" env:"GOMIND_TELEMETRY_SAMPLING_RATE" default:"1.0"`
	MetricsAddr    string               `json:"metrics_addr" yaml:"metrics_addr" env:"GOMIND_METRICS_ADDR"`
	MetricsPush    string               `json:"metrics_push" yaml:"metrics_push" env:"GOMIND_METRICS_PUSH,OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"`
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
}

// CircuitBreakerConfig protects the generation path from a failing trace backend.
// While open, export batches are dropped instead of retried.
type CircuitBreakerConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled" env:"GOMIND_CB_ENABLED" default:"true"`
	Threshold    int           `json:"threshold" yaml:"threshold" env:"GOMIND_CB_THRESHOLD" default:"5"`
	RecoveryTime time.Duration `json:"recovery_time" yaml:"recovery_time" env:"GOMIND_CB_RECOVERY" default:"30s"`
}

// AttributionConfig selects where agent spans are indexed for parent lookup.
// "redis" shares the index between processes running agents of one conversation.
type AttributionConfig struct {
	Backend  string        `json:"backend" yaml:"backend" env:"GOMIND_ATTRIBUTION_BACKEND" default:"memory"`
	RedisURL string        `json:"redis_url" yaml:"redis_url" env:"GOMIND_REDIS_URL,REDIS_URL"`
	TTL      time.Duration `json:"ttl" yaml:"ttl" env:"GOMIND_ATTRIBUTION_TTL" default:"1h"`
}

// LoggingConfig contains logging configuration.
// In Kubernetes environments, JSON format is selected for log aggregation.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"GOMIND_LOG_LEVEL" default:"info"`
	Format string `json:"format" yaml:"format" env:"GOMIND_LOG_FORMAT" default:"text"`
}

// Option is a functional option for configuring the runtime.
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{
		Name: "agenttrace-demo",
		AI: AIConfig{
			Provider:      "auto",
			Model:         "gpt-4o-mini",
			Temperature:   0.7,
			MaxTokens:     1000,
			Timeout:       60 * time.Second,
			MaxRetries:    2,
			MaxToolRounds: 5,
		},
		Telemetry: TelemetryConfig{
			Enabled:      true,
			Exporter:     "tree",
			Host:         "https://cloud.langfuse.com",
			SamplingRate: 1.0,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:      true,
				Threshold:    5,
				RecoveryTime: 30 * time.Second,
			},
		},
		Attribution: AttributionConfig{
			Backend: "memory",
			TTL:     time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}

	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		cfg.Logging.Format = "json" // Structured logs for K8s
	}

	return cfg
}

// LoadFromEnv loads configuration from environment variables.
// Unparseable numeric or duration values are ignored and the previous value kept.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("GOMIND_AGENT_NAME"); v != "" {
		c.Name = v
	}

	// AI settings
	if v := os.Getenv("GOMIND_AI_PROVIDER"); v != "" {
		c.AI.Provider = v
	}
	if v := firstEnv("GOMIND_AI_API_KEY", "OPENAI_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
	if v := firstEnv("GOMIND_AI_BASE_URL", "OPENAI_BASE_URL"); v != "" {
		c.AI.BaseURL = v
	}
	if v := os.Getenv("GOMIND_AI_MODEL"); v != "" {
		c.AI.Model = v
	}
	if v := os.Getenv("GOMIND_AI_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			c.AI.Temperature = float32(f)
		}
	}
	if v := os.Getenv("GOMIND_AI_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.AI.MaxTokens = n
		}
	}
	if v := os.Getenv("GOMIND_AI_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.AI.Timeout = d
		}
	}
	if v := os.Getenv("GOMIND_AI_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.AI.MaxRetries = n
		}
	}
	if v := os.Getenv("GOMIND_AI_MAX_TOOL_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.AI.MaxToolRounds = n
		}
	}
	if v := os.Getenv("GOMIND_AI_FALLBACKS"); v != "" {
		c.AI.Fallbacks = splitList(v)
	}

	// Telemetry settings
	if v := os.Getenv("GOMIND_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := firstEnv("GOMIND_TELEMETRY_SERVICE_NAME", "OTEL_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	}
	if v := os.Getenv("GOMIND_TELEMETRY_EXPORTER"); v != "" {
		c.Telemetry.Exporter = v
	}
	if v := firstEnv("GOMIND_TELEMETRY_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
	if v := os.Getenv("LANGFUSE_HOST"); v != "" {
		c.Telemetry.Host = v
	}
	if v := os.Getenv("LANGFUSE_PUBLIC_KEY"); v != "" {
		c.Telemetry.PublicKey = v
	}
	if v := os.Getenv("LANGFUSE_SECRET_KEY"); v != "" {
		c.Telemetry.SecretKey = v
	}
	if v := os.Getenv("GOMIND_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = parseBool(v)
	}
	if v := os.Getenv("GOMIND_TELEMETRY_SAMPLING_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Telemetry.SamplingRate = f
		}
	}
	if v := os.Getenv("GOMIND_METRICS_ADDR"); v != "" {
		c.Telemetry.MetricsAddr = v
	}
	if v := firstEnv("GOMIND_METRICS_PUSH", "OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"); v != "" {
		c.Telemetry.MetricsPush = v
	}
	if v := os.Getenv("GOMIND_CB_ENABLED"); v != "" {
		c.Telemetry.CircuitBreaker.Enabled = parseBool(v)
	}
	if v := os.Getenv("GOMIND_CB_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Telemetry.CircuitBreaker.Threshold = n
		}
	}
	if v := os.Getenv("GOMIND_CB_RECOVERY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Telemetry.CircuitBreaker.RecoveryTime = d
		}
	}

	// Attribution settings
	if v := os.Getenv("GOMIND_ATTRIBUTION_BACKEND"); v != "" {
		c.Attribution.Backend = v
	}
	if v := firstEnv("GOMIND_REDIS_URL", "REDIS_URL"); v != "" {
		c.Attribution.RedisURL = v
	}
	if v := os.Getenv("GOMIND_ATTRIBUTION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Attribution.TTL = d
		}
	}

	// Logging settings
	if v := os.Getenv("GOMIND_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("GOMIND_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if parseBool(os.Getenv("GOMIND_DEBUG")) {
		c.Logging.Level = "debug"
	}

	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file.
//
// Example YAML:
//
//	name: weather-demo
//	ai:
//	  provider: openai
//	  model: gpt-4o-mini
//	telemetry:
//	  exporter: otlp-http
func (c *Config) LoadFromFile(path string) error {
	cleanPath := filepath.Clean(path)

	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %s: %w", ext, ErrInvalidConfiguration)
	}

	data, err := os.ReadFile(cleanPath) // nosec G304 -- operator supplied path
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse JSON config file: %v: %w", err, ErrInvalidConfiguration)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config file: %v: %w", err, ErrInvalidConfiguration)
		}
	}

	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
//
// Validation rules:
//   - Name is required
//   - Exporter must be a known value
//   - otlp-http without an explicit endpoint needs both public and secret key
//   - otlp-grpc needs an endpoint
//   - redis attribution backend needs a redis URL
//   - provider "openai" needs an API key
//   - sampling rate must be within (0,1] while telemetry is enabled
func (c *Config) Validate() error {
	if c.Name == "" {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "agent name is required",
			Err:     ErrMissingConfiguration,
		}
	}

	if c.Telemetry.Enabled {
		switch c.Telemetry.Exporter {
		case "otlp-http":
			if c.Telemetry.Endpoint == "" && (c.Telemetry.PublicKey == "" || c.Telemetry.SecretKey == "") {
				return &FrameworkError{
					Op:      "Config.Validate",
					Kind:    "config",
					Message: "LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY are required for the otlp-http exporter",
					Err:     ErrMissingConfiguration,
				}
			}
		case "otlp-grpc":
			if c.Telemetry.Endpoint == "" {
				return &FrameworkError{
					Op:      "Config.Validate",
					Kind:    "config",
					Message: "telemetry endpoint is required for the otlp-grpc exporter",
					Err:     ErrMissingConfiguration,
				}
			}
		case "stdout", "tree", "none":
		default:
			return &FrameworkError{
				Op:      "Config.Validate",
				Kind:    "config",
				Message: fmt.Sprintf("unknown telemetry exporter: %q", c.Telemetry.Exporter),
				Err:     ErrInvalidConfiguration,
			}
		}
		if c.Telemetry.SamplingRate <= 0 || c.Telemetry.SamplingRate > 1 {
			return &FrameworkError{
				Op:      "Config.Validate",
				Kind:    "config",
				Message: fmt.Sprintf("sampling rate must be within (0,1], disable telemetry to trace nothing: %v", c.Telemetry.SamplingRate),
				Err:     ErrInvalidConfiguration,
			}
		}
	}

	switch c.Attribution.Backend {
	case "memory":
	case "redis":
		if c.Attribution.RedisURL == "" {
			return &FrameworkError{
				Op:      "Config.Validate",
				Kind:    "config",
				Message: "redis URL is required for the redis attribution backend",
				Err:     ErrMissingConfiguration,
			}
		}
	default:
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("unknown attribution backend: %q", c.Attribution.Backend),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.AI.Provider == "openai" && c.AI.APIKey == "" {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "OPENAI_API_KEY is required for the openai provider (or use --provider mock)",
			Err:     ErrMissingConfiguration,
		}
	}

	return nil
}

// ServiceName returns the telemetry service name, falling back to Name
func (c *Config) ServiceName() string {
	if c.Telemetry.ServiceName != "" {
		return c.Telemetry.ServiceName
	}
	return c.Name
}

// WithName sets the runtime name
func WithName(name string) Option {
	return func(c *Config) error {
		c.Name = name
		return nil
	}
}

// WithProvider selects the AI provider ("auto", "openai", "mock")
func WithProvider(provider string) Option {
	return func(c *Config) error {
		c.AI.Provider = provider
		return nil
	}
}

// WithModel sets the default model
func WithModel(model string) Option {
	return func(c *Config) error {
		c.AI.Model = model
		return nil
	}
}

// WithAPIKey sets the provider API key
func WithAPIKey(key string) Option {
	return func(c *Config) error {
		c.AI.APIKey = key
		return nil
	}
}

// WithMaxToolRounds bounds the model/tool loop of a single generation call
func WithMaxToolRounds(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return fmt.Errorf("max tool rounds must be positive: %w", ErrInvalidConfiguration)
		}
		c.AI.MaxToolRounds = n
		return nil
	}
}

// WithFallbacks sets the provider aliases tried after the primary provider
func WithFallbacks(aliases ...string) Option {
	return func(c *Config) error {
		c.AI.Fallbacks = aliases
		return nil
	}
}

// WithExporter selects the trace exporter
func WithExporter(exporter string) Option {
	return func(c *Config) error {
		c.Telemetry.Exporter = exporter
		return nil
	}
}

// WithTelemetry enables or disables tracing
func WithTelemetry(enabled bool) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = enabled
		return nil
	}
}

// WithLangfuseKeys sets the public identifier and secret key of the trace backend
func WithLangfuseKeys(publicKey, secretKey string) Option {
	return func(c *Config) error {
		c.Telemetry.PublicKey = publicKey
		c.Telemetry.SecretKey = secretKey
		return nil
	}
}

// WithOTELEndpoint sets the OTLP endpoint
func WithOTELEndpoint(endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Endpoint = endpoint
		return nil
	}
}

// WithMetricsAddr exposes Prometheus metrics on addr
func WithMetricsAddr(addr string) Option {
	return func(c *Config) error {
		c.Telemetry.MetricsAddr = addr
		return nil
	}
}

// WithAttributionBackend selects the parent index backend
func WithAttributionBackend(backend, redisURL string) Option {
	return func(c *Config) error {
		c.Attribution.Backend = backend
		if redisURL != "" {
			c.Attribution.RedisURL = redisURL
		}
		return nil
	}
}

// WithLogLevel sets the logging level
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat sets the logging format ("json" or "text")
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = format
		return nil
	}
}

// WithConfigFile loads a JSON or YAML config file
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}

// NewConfig creates a new configuration with the given options.
// Options are applied in order, so flags given after WithConfigFile
// override values from the file.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Helper functions

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// splitList parses a comma-separated list, dropping blank items
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseBool converts a string to a boolean value.
// Accepts: "true", "1", "yes", "on" (case-insensitive) as true.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
