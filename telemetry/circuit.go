package telemetry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itsneelabh/gomind-agenttrace/core"
)

// Circuit states
const (
	CircuitClosed   = "closed"
	CircuitOpen     = "open"
	CircuitHalfOpen = "half-open"
	CircuitDisabled = "disabled"
)

// CircuitBreaker stops span export while the trace backend keeps failing.
// Batches offered while the circuit is open are dropped, so a dead backend
// never slows the generation path down.
type CircuitBreaker struct {
	config CircuitConfig
	logger core.Logger
	now    func() time.Time

	state           atomic.Value // string
	failures        atomic.Int64
	successes       atomic.Int64
	lastFailureTime atomic.Value // time.Time

	mu sync.Mutex
}

// CircuitConfig configures the export circuit breaker
type CircuitConfig struct {
	Enabled      bool
	MaxFailures  int
	RecoveryTime time.Duration
	HalfOpenMax  int // Successful probes needed to close again
}

// NewCircuitBreaker creates a circuit breaker. A disabled config yields nil,
// which allows everything.
func NewCircuitBreaker(config CircuitConfig, logger core.Logger) *CircuitBreaker {
	if !config.Enabled {
		return nil
	}

	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.RecoveryTime <= 0 {
		config.RecoveryTime = 30 * time.Second
	}
	if config.HalfOpenMax <= 0 {
		config.HalfOpenMax = 1
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	cb := &CircuitBreaker{
		config: config,
		logger: logger,
		now:    time.Now,
	}
	cb.state.Store(CircuitClosed)
	cb.lastFailureTime.Store(time.Time{})
	return cb
}

// Allow reports whether an export may be attempted
func (cb *CircuitBreaker) Allow() bool {
	if cb == nil {
		return true
	}

	switch cb.State() {
	case CircuitOpen:
		lastFailure, _ := cb.lastFailureTime.Load().(time.Time)
		if lastFailure.IsZero() || cb.now().Sub(lastFailure) < cb.config.RecoveryTime {
			return false
		}
		cb.mu.Lock()
		if cb.state.Load().(string) == CircuitOpen {
			cb.state.Store(CircuitHalfOpen)
			cb.successes.Store(0)
			cb.logger.Info("Export circuit HALF-OPEN, probing trace backend", map[string]interface{}{
				"recovery_wait": cb.config.RecoveryTime.String(),
				"probes":        cb.config.HalfOpenMax,
			})
		}
		cb.mu.Unlock()
		return true

	case CircuitHalfOpen:
		return cb.successes.Load() < int64(cb.config.HalfOpenMax)

	default:
		return true
	}
}

// RecordSuccess records a successful export. Enough successes while
// half-open close the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil {
		return
	}

	switch cb.State() {
	case CircuitHalfOpen:
		if cb.successes.Add(1) < int64(cb.config.HalfOpenMax) {
			return
		}
		cb.mu.Lock()
		if cb.state.Load().(string) == CircuitHalfOpen {
			cb.state.Store(CircuitClosed)
			cb.failures.Store(0)
			cb.logger.Info("Export circuit CLOSED, trace backend recovered", map[string]interface{}{
				"probes": cb.config.HalfOpenMax,
			})
		}
		cb.mu.Unlock()
	case CircuitClosed:
		cb.failures.Store(0)
	}
}

// RecordFailure records a failed export
func (cb *CircuitBreaker) RecordFailure() {
	if cb == nil {
		return
	}

	failures := cb.failures.Add(1)
	cb.lastFailureTime.Store(cb.now())

	state := cb.State()
	if state != CircuitHalfOpen && failures < int64(cb.config.MaxFailures) {
		if failures == int64(cb.config.MaxFailures)-1 {
			cb.logger.Warn("Export circuit one failure from opening", map[string]interface{}{
				"failure_count": failures,
				"max_failures":  cb.config.MaxFailures,
			})
		}
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if previous := cb.state.Load().(string); previous != CircuitOpen {
		cb.state.Store(CircuitOpen)
		cb.successes.Store(0)
		cb.logger.Warn("Export circuit OPENED, spans will be dropped", map[string]interface{}{
			"previous_state": previous,
			"failure_count":  failures,
			"recovery_time":  cb.config.RecoveryTime.String(),
			"impact":         fmt.Sprintf("spans dropped for at least %s", cb.config.RecoveryTime),
		})
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() string {
	if cb == nil {
		return CircuitDisabled
	}
	return cb.state.Load().(string)
}

// Reset closes the circuit and clears its counters
func (cb *CircuitBreaker) Reset() {
	if cb == nil {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state.Store(CircuitClosed)
	cb.failures.Store(0)
	cb.successes.Store(0)
	cb.lastFailureTime.Store(time.Time{})
}
