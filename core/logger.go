package core

import (
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ProductionLogger is the framework's structured logger. It keeps the
// map-based Logger interface used across the framework and renders through zap.
//
// Output format:
//   - "json" for log aggregation (selected automatically inside Kubernetes)
//   - "text" for local development
type ProductionLogger struct {
	zl          *zap.Logger
	serviceName string
	component   string
}

// NewProductionLogger creates a logger writing to stdout
func NewProductionLogger(logging LoggingConfig, serviceName string) *ProductionLogger {
	return NewProductionLoggerWithOutput(logging, serviceName, os.Stdout)
}

// NewProductionLoggerWithOutput creates a logger writing to w (useful for testing)
func NewProductionLoggerWithOutput(logging LoggingConfig, serviceName string, w io.Writer) *ProductionLogger {
	level, err := zapcore.ParseLevel(strings.ToLower(logging.Level))
	if err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	if logging.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	zl := zap.New(zapcore.NewCore(encoder, zapcore.AddSync(w), level)).
		With(zap.String("service", serviceName))

	return &ProductionLogger{
		zl:          zl,
		serviceName: serviceName,
		component:   "framework/core",
	}
}

// WithComponent returns a logger tagged with the given component
func (p *ProductionLogger) WithComponent(component string) Logger {
	return &ProductionLogger{
		zl:          p.zl,
		serviceName: p.serviceName,
		component:   component,
	}
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.zl.Info(msg, p.zapFields(fields)...)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.zl.Warn(msg, p.zapFields(fields)...)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.zl.Error(msg, p.zapFields(fields)...)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	p.zl.Debug(msg, p.zapFields(fields)...)
}

// Sync flushes buffered log entries
func (p *ProductionLogger) Sync() error {
	return p.zl.Sync()
}

// zapFields converts the field map in key order so output is stable
func (p *ProductionLogger) zapFields(fields map[string]interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+1)
	out = append(out, zap.String("component", p.component))

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "component" || k == "service" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}
