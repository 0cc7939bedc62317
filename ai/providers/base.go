// Package providers holds what every network-backed chat provider shares:
// request defaults, retry with backoff and header injection.
package providers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/itsneelabh/gomind-agenttrace/core"
)

// Defaults fill in the request fields a caller left empty
type Defaults struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Apply returns a copy of req with empty fields set from d
func (d Defaults) Apply(req *core.ChatRequest) *core.ChatRequest {
	out := core.ChatRequest{}
	if req != nil {
		out = *req
	}
	if out.Model == "" {
		out.Model = d.Model
	}
	if out.Temperature == 0 {
		out.Temperature = d.Temperature
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = d.MaxTokens
	}
	return &out
}

// RetryPolicy controls how often a failed provider request is repeated.
// The delay doubles after every attempt.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration

	// Retryable decides whether an error is transient. Nil retries nothing.
	Retryable func(error) bool
}

// Do runs fn until it succeeds, fails with a non-retryable error or the
// retries are used up. The last error is returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, logger core.Logger, provider string, fn func(context.Context) error) error {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.backoff(attempt - 1)
			logger.Warn("AI request failed, retrying", map[string]interface{}{
				"operation":      "ai_request_retry_wait",
				"provider":       provider,
				"attempt":        attempt,
				"max_retries":    p.MaxRetries,
				"retry_delay_ms": delay.Milliseconds(),
				"error":          lastErr.Error(),
			})
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				logger.Error("AI request cancelled during retry", map[string]interface{}{
					"operation":     "ai_request_cancelled",
					"provider":      provider,
					"cancelled_at":  attempt,
					"context_error": ctx.Err().Error(),
				})
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 0 {
				logger.Info("AI request succeeded after retry", map[string]interface{}{
					"operation":          "ai_request_recovery",
					"provider":           provider,
					"successful_attempt": attempt + 1,
				})
			}
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || p.Retryable == nil || !p.Retryable(lastErr) {
			return lastErr
		}
	}

	logger.Error("AI request failed after all retries", map[string]interface{}{
		"operation":      "ai_request_final_failure",
		"provider":       provider,
		"total_attempts": p.MaxRetries + 1,
		"final_error":    lastErr.Error(),
	})
	return lastErr
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	if attempt > 16 {
		attempt = 16
	}
	return p.Delay * time.Duration(1<<uint(attempt))
}

// RetryableStatus reports whether an HTTP status is worth retrying
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// HeaderTransport adds fixed headers to every request
type HeaderTransport struct {
	Headers map[string]string
	Base    http.RoundTripper
}

func (t *HeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if len(t.Headers) == 0 {
		return base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}
	return base.RoundTrip(req)
}

// ComponentLogger tags logger with the provider component, or returns a
// no-op logger when none is set
func ComponentLogger(logger core.Logger, provider string) core.Logger {
	if logger == nil {
		return &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		return cal.WithComponent("framework/ai/" + provider)
	}
	return logger
}
