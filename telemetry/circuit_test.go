package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestCircuit(cfg CircuitConfig) (*CircuitBreaker, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(cfg, nil)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreaker_Disabled(t *testing.T) {
	cb := NewCircuitBreaker(CircuitConfig{Enabled: false}, nil)
	assert.Nil(t, cb)
	assert.True(t, cb.Allow())
	assert.Equal(t, CircuitDisabled, cb.State())
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.Reset()
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitConfig{Enabled: true}, nil)
	assert.Equal(t, 5, cb.config.MaxFailures)
	assert.Equal(t, 30*time.Second, cb.config.RecoveryTime)
	assert.Equal(t, 1, cb.config.HalfOpenMax)
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestCircuit(CircuitConfig{Enabled: true, MaxFailures: 3, RecoveryTime: time.Minute})

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestCircuit(CircuitConfig{Enabled: true, MaxFailures: 2})

	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_Recovery(t *testing.T) {
	cb, now := newTestCircuit(CircuitConfig{Enabled: true, MaxFailures: 1, RecoveryTime: time.Minute, HalfOpenMax: 2})

	cb.RecordFailure()
	assert.False(t, cb.Allow())

	*now = now.Add(2 * time.Minute)
	assert.True(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, CircuitHalfOpen, cb.State())
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestCircuit(CircuitConfig{Enabled: true, MaxFailures: 3, RecoveryTime: time.Minute})

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordFailure()
	*now = now.Add(2 * time.Minute)
	assert.True(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestCircuit(CircuitConfig{Enabled: true, MaxFailures: 1})
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.True(t, cb.Allow())
}
