package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearConfigEnv blanks every variable LoadFromEnv reads so the host
// environment cannot leak into assertions.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GOMIND_AGENT_NAME", "GOMIND_AI_PROVIDER", "GOMIND_AI_API_KEY", "OPENAI_API_KEY",
		"GOMIND_AI_BASE_URL", "OPENAI_BASE_URL", "GOMIND_AI_MODEL", "GOMIND_AI_TEMPERATURE",
		"GOMIND_AI_MAX_TOKENS", "GOMIND_AI_TIMEOUT", "GOMIND_AI_MAX_RETRIES", "GOMIND_AI_MAX_TOOL_ROUNDS",
		"GOMIND_AI_FALLBACKS",
		"GOMIND_TELEMETRY_ENABLED", "GOMIND_TELEMETRY_SERVICE_NAME", "OTEL_SERVICE_NAME",
		"GOMIND_TELEMETRY_EXPORTER", "GOMIND_TELEMETRY_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT",
		"LANGFUSE_HOST", "LANGFUSE_PUBLIC_KEY", "LANGFUSE_SECRET_KEY", "GOMIND_TELEMETRY_INSECURE",
		"GOMIND_TELEMETRY_SAMPLING_RATE", "GOMIND_METRICS_ADDR", "GOMIND_CB_ENABLED",
		"GOMIND_CB_THRESHOLD", "GOMIND_CB_RECOVERY", "GOMIND_ATTRIBUTION_BACKEND",
		"GOMIND_REDIS_URL", "REDIS_URL", "GOMIND_ATTRIBUTION_TTL", "GOMIND_LOG_LEVEL",
		"GOMIND_LOG_FORMAT", "GOMIND_DEBUG", "KUBERNETES_SERVICE_HOST",
		"GOMIND_METRICS_PUSH", "OTEL_EXPORTER_OTLP_METRICS_ENDPOINT",
	} {
		t.Setenv(k, "")
	}
}

// TestDefaultConfig verifies that DefaultConfig returns valid defaults
func TestDefaultConfig(t *testing.T) {
	clearConfigEnv(t)
	cfg := DefaultConfig()

	assert.Equal(t, "agenttrace-demo", cfg.Name)

	// AI defaults
	assert.Equal(t, "auto", cfg.AI.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.Model)
	assert.Equal(t, 5, cfg.AI.MaxToolRounds)
	assert.Equal(t, 60*time.Second, cfg.AI.Timeout)

	// Telemetry defaults
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "tree", cfg.Telemetry.Exporter)
	assert.Equal(t, "https://cloud.langfuse.com", cfg.Telemetry.Host)
	assert.Equal(t, 1.0, cfg.Telemetry.SamplingRate)
	assert.True(t, cfg.Telemetry.CircuitBreaker.Enabled)

	assert.Equal(t, "memory", cfg.Attribution.Backend)
	assert.Equal(t, "text", cfg.Logging.Format)

	require.NoError(t, cfg.Validate())
}

func TestDefaultConfig_Kubernetes(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("KUBERNETES_SERVICE_HOST", "10.0.0.1")

	cfg := DefaultConfig()
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromEnv(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("GOMIND_AGENT_NAME", "env-agent")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GOMIND_AI_MODEL", "gpt-4o")
	t.Setenv("GOMIND_AI_TIMEOUT", "5s")
	t.Setenv("GOMIND_AI_MAX_TOOL_ROUNDS", "3")
	t.Setenv("GOMIND_AI_FALLBACKS", "openai.groq, ,mock")
	t.Setenv("LANGFUSE_PUBLIC_KEY", "pk-lf-1")
	t.Setenv("LANGFUSE_SECRET_KEY", "sk-lf-1")
	t.Setenv("LANGFUSE_HOST", "https://us.cloud.langfuse.com")
	t.Setenv("GOMIND_TELEMETRY_EXPORTER", "otlp-http")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("GOMIND_DEBUG", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "http://collector:4318/v1/metrics")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "env-agent", cfg.Name)
	assert.Equal(t, "sk-test", cfg.AI.APIKey)
	assert.Equal(t, "gpt-4o", cfg.AI.Model)
	assert.Equal(t, 5*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 3, cfg.AI.MaxToolRounds)
	assert.Equal(t, []string{"openai.groq", "mock"}, cfg.AI.Fallbacks)
	assert.Equal(t, "pk-lf-1", cfg.Telemetry.PublicKey)
	assert.Equal(t, "sk-lf-1", cfg.Telemetry.SecretKey)
	assert.Equal(t, "https://us.cloud.langfuse.com", cfg.Telemetry.Host)
	assert.Equal(t, "otlp-http", cfg.Telemetry.Exporter)
	assert.Equal(t, "redis://localhost:6379", cfg.Attribution.RedisURL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "http://collector:4318/v1/metrics", cfg.Telemetry.MetricsPush)
}

func TestLoadFromEnv_InvalidValuesKeepDefaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("GOMIND_AI_TIMEOUT", "not-a-duration")
	t.Setenv("GOMIND_AI_MAX_TOKENS", "many")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, 60*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 1000, cfg.AI.MaxTokens)
}

func TestNewConfig_OptionsOverrideEnv(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("GOMIND_AI_MODEL", "from-env")

	cfg, err := NewConfig(
		WithModel("from-option"),
		WithProvider("mock"),
		WithExporter("stdout"),
	)
	require.NoError(t, err)
	assert.Equal(t, "from-option", cfg.AI.Model)
	assert.Equal(t, "mock", cfg.AI.Provider)
	assert.Equal(t, "stdout", cfg.Telemetry.Exporter)
}

func TestValidate(t *testing.T) {
	clearConfigEnv(t)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing name",
			mutate:  func(c *Config) { c.Name = "" },
			wantErr: ErrMissingConfiguration,
		},
		{
			name: "otlp-http without keys",
			mutate: func(c *Config) {
				c.Telemetry.Exporter = "otlp-http"
			},
			wantErr: ErrMissingConfiguration,
		},
		{
			name: "otlp-http with keys",
			mutate: func(c *Config) {
				c.Telemetry.Exporter = "otlp-http"
				c.Telemetry.PublicKey = "pk"
				c.Telemetry.SecretKey = "sk"
			},
		},
		{
			name: "otlp-http with explicit endpoint needs no keys",
			mutate: func(c *Config) {
				c.Telemetry.Exporter = "otlp-http"
				c.Telemetry.Endpoint = "http://localhost:4318"
			},
		},
		{
			name: "otlp-grpc without endpoint",
			mutate: func(c *Config) {
				c.Telemetry.Exporter = "otlp-grpc"
			},
			wantErr: ErrMissingConfiguration,
		},
		{
			name: "unknown exporter",
			mutate: func(c *Config) {
				c.Telemetry.Exporter = "zipkin"
			},
			wantErr: ErrInvalidConfiguration,
		},
		{
			name: "unknown exporter ignored when telemetry disabled",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = false
				c.Telemetry.Exporter = "zipkin"
			},
		},
		{
			name: "sampling rate out of range",
			mutate: func(c *Config) {
				c.Telemetry.SamplingRate = 1.5
			},
			wantErr: ErrInvalidConfiguration,
		},
		{
			name: "zero sampling rate rejected",
			mutate: func(c *Config) {
				c.Telemetry.SamplingRate = 0
			},
			wantErr: ErrInvalidConfiguration,
		},
		{
			name: "zero sampling rate ignored when telemetry disabled",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = false
				c.Telemetry.SamplingRate = 0
			},
		},
		{
			name: "redis backend without url",
			mutate: func(c *Config) {
				c.Attribution.Backend = "redis"
			},
			wantErr: ErrMissingConfiguration,
		},
		{
			name: "unknown attribution backend",
			mutate: func(c *Config) {
				c.Attribution.Backend = "etcd"
			},
			wantErr: ErrInvalidConfiguration,
		},
		{
			name: "openai without key",
			mutate: func(c *Config) {
				c.AI.Provider = "openai"
			},
			wantErr: ErrMissingConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "expected %v, got %v", tt.wantErr, err)
			assert.True(t, IsConfigurationError(err))

			var fe *FrameworkError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, "Config.Validate", fe.Op)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
name: yaml-agent
ai:
  provider: mock
  model: gpt-4o
  timeout: 10s
telemetry:
  exporter: stdout
  sampling_rate: 0.5
attribution:
  backend: memory
`), 0o600))

		cfg, err := NewConfig(WithConfigFile(path))
		require.NoError(t, err)
		assert.Equal(t, "yaml-agent", cfg.Name)
		assert.Equal(t, "mock", cfg.AI.Provider)
		assert.Equal(t, 10*time.Second, cfg.AI.Timeout)
		assert.Equal(t, "stdout", cfg.Telemetry.Exporter)
		assert.Equal(t, 0.5, cfg.Telemetry.SamplingRate)
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "config.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"name":"json-agent","ai":{"model":"gpt-4.1"}}`), 0o600))

		cfg := DefaultConfig()
		require.NoError(t, cfg.LoadFromFile(path))
		assert.Equal(t, "json-agent", cfg.Name)
		assert.Equal(t, "gpt-4.1", cfg.AI.Model)
		// untouched sections keep defaults
		assert.Equal(t, "tree", cfg.Telemetry.Exporter)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		cfg := DefaultConfig()
		err := cfg.LoadFromFile(filepath.Join(dir, "config.toml"))
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yml")
		require.NoError(t, os.WriteFile(path, []byte("name: [unterminated"), 0o600))
		cfg := DefaultConfig()
		assert.ErrorIs(t, cfg.LoadFromFile(path), ErrInvalidConfiguration)
	})

	t.Run("missing file", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.Error(t, cfg.LoadFromFile(filepath.Join(dir, "absent.yaml")))
	})
}

func TestServiceName(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "agenttrace-demo", cfg.ServiceName())

	cfg.Telemetry.ServiceName = "otel-name"
	assert.Equal(t, "otel-name", cfg.ServiceName())
}

func TestWithMaxToolRounds_RejectsZero(t *testing.T) {
	clearConfigEnv(t)
	_, err := NewConfig(WithMaxToolRounds(0))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
