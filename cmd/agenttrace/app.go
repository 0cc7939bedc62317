package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/itsneelabh/gomind-agenttrace/ai"
	"github.com/itsneelabh/gomind-agenttrace/ai/providers/mock"
	"github.com/itsneelabh/gomind-agenttrace/ai/providers/openai"
	"github.com/itsneelabh/gomind-agenttrace/core"
	"github.com/itsneelabh/gomind-agenttrace/telemetry"
)

// flags collected by the root command
type flags struct {
	configFile  string
	envFile     string
	provider    string
	model       string
	fallbacks   []string
	exporter    string
	metricsAddr string
	logLevel    string
}

// app is everything a scenario needs to make traced generation calls
type app struct {
	config    *core.Config
	logger    core.Logger
	out       io.Writer
	generator *ai.Generator
	flush     func(context.Context) error
}

func newApp(cfg *core.Config, client core.ChatClient, tracer *telemetry.Tracer, flush func(context.Context) error, logger core.Logger, out io.Writer) *app {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if flush == nil {
		flush = func(context.Context) error { return nil }
	}

	opts := []ai.GeneratorOption{
		ai.WithDefaultModel(cfg.AI.Model),
		ai.WithProviderName(providerName(client)),
		ai.WithMaxToolRounds(cfg.AI.MaxToolRounds),
		ai.WithGeneratorLogger(logger),
	}
	if tracer != nil {
		opts = append(opts, ai.WithTracer(tracer))
	}

	return &app{
		config:    cfg,
		logger:    logger,
		out:       out,
		generator: ai.NewGenerator(client, opts...),
		flush:     flush,
	}
}

// bootstrap loads the environment and configuration, initializes telemetry
// and creates the provider client. The returned cleanup flushes and shuts
// telemetry down; it must run before the process exits.
func bootstrap(ctx context.Context, f flags, out, logOut io.Writer) (*app, func(), error) {
	if err := loadEnvFile(f.envFile); err != nil {
		return nil, nil, err
	}

	var opts []core.Option
	if f.configFile != "" {
		opts = append(opts, core.WithConfigFile(f.configFile))
	}
	if f.provider != "" {
		opts = append(opts, core.WithProvider(f.provider))
	}
	if f.model != "" {
		opts = append(opts, core.WithModel(f.model))
	}
	if len(f.fallbacks) > 0 {
		opts = append(opts, core.WithFallbacks(f.fallbacks...))
	}
	if f.exporter != "" {
		opts = append(opts, core.WithExporter(f.exporter))
	}
	if f.metricsAddr != "" {
		opts = append(opts, core.WithMetricsAddr(f.metricsAddr))
	}
	if f.logLevel != "" {
		opts = append(opts, core.WithLogLevel(f.logLevel))
	}

	cfg, err := core.NewConfig(opts...)
	if err != nil {
		return nil, nil, err
	}

	prodLogger := core.NewProductionLoggerWithOutput(cfg.Logging, cfg.Name, logOut)
	logger := prodLogger.WithComponent("agenttrace/cli")

	tcfg := telemetry.ConfigFromCore(cfg)
	tcfg.Output = out
	tcfg.ServiceVersion = version
	if err := telemetry.Initialize(ctx, tcfg, prodLogger.WithComponent("framework/telemetry")); err != nil {
		return nil, nil, fmt.Errorf("telemetry initialization failed: %w", err)
	}

	var metricsServer *http.Server
	if cfg.Telemetry.MetricsAddr != "" {
		metricsServer = serveMetrics(cfg.Telemetry.MetricsAddr, logger)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if metricsServer != nil {
			_ = metricsServer.Shutdown(shutdownCtx)
		}
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("Telemetry shutdown failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		_ = prodLogger.Sync()
	}

	client, err := newChatClient(cfg.AI, prodLogger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	logger.Info("Agent trace demo ready", map[string]interface{}{
		"provider":    providerName(client),
		"model":       cfg.AI.Model,
		"fallbacks":   cfg.AI.Fallbacks,
		"exporter":    cfg.Telemetry.Exporter,
		"telemetry":   cfg.Telemetry.Enabled,
		"attribution": cfg.Attribution.Backend,
	})

	return newApp(cfg, client, nil, telemetry.ForceFlush, logger, out), cleanup, nil
}

// newChatClient creates the configured provider. With fallbacks it wraps the
// provider in a failover chain; the fallbacks share its model settings but
// resolve their own credentials from their alias.
func newChatClient(cfg core.AIConfig, logger core.Logger) (core.ChatClient, error) {
	primary, err := ai.NewClient(append(ai.FromConfig(cfg), ai.WithLogger(logger))...)
	if err != nil {
		return nil, err
	}
	if m, ok := primary.(*mock.Client); ok {
		m.SetHandler(demoResponder)
	}
	if len(cfg.Fallbacks) == 0 {
		return primary, nil
	}

	chain, err := ai.NewChainClient(
		ai.WithPrimaryClient(providerName(primary), primary),
		ai.WithProviderChain(cfg.Fallbacks...),
		ai.WithChainOptions(
			ai.WithModel(cfg.Model),
			ai.WithTemperature(cfg.Temperature),
			ai.WithMaxTokens(cfg.MaxTokens),
			ai.WithTimeout(cfg.Timeout),
			ai.WithMaxRetries(cfg.MaxRetries),
		),
		ai.WithChainLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// loadEnvFile reads KEY=VALUE pairs into the environment. A missing file is
// not an error; variables already set are kept.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func serveMetrics(addr string, logger core.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.MetricsHandler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Serving metrics", map[string]interface{}{"addr": addr, "path": "/metrics"})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server stopped", map[string]interface{}{"error": err.Error()})
		}
	}()
	return server
}

func providerName(client core.ChatClient) string {
	switch client.(type) {
	case *openai.Client:
		return string(ai.ProviderOpenAI)
	case *mock.Client:
		return string(ai.ProviderMock)
	case *ai.ChainClient:
		return "chain"
	}
	return ""
}
