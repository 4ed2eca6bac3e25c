package client

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-resource/types"
)

type CircuitBreakerState int32

const (
	StateBreakerClosed CircuitBreakerState = iota
	StateBreakerOpen
	StateBreakerHalfOpen
)

// CircuitBreaker stops dispatching calls after a run of transport failures.
// Disabled by default; when disabled every call passes through.
type CircuitBreaker struct {
	config   *types.CircuitBreakerConfig
	logger   types.Logger
	state    CircuitBreakerState
	failures int
	lastFail time.Time
	mutex    sync.Mutex
}

func NewCircuitBreaker(config *types.CircuitBreakerConfig, logger types.Logger) *CircuitBreaker {
	if config == nil {
		config = &types.CircuitBreakerConfig{Enabled: false}
	}

	cb := &CircuitBreaker{
		config: config,
		logger: logger,
		state:  StateBreakerClosed,
	}

	if cb.config.FailureThreshold <= 0 {
		cb.config.FailureThreshold = 5
	}
	if cb.config.RecoveryTimeout <= 0 {
		cb.config.RecoveryTimeout = 60 * time.Second
	}

	return cb
}

func (cb *CircuitBreaker) CanExecute() bool {
	if cb == nil || !cb.config.Enabled {
		return true
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateBreakerClosed, StateBreakerHalfOpen:
		return true
	case StateBreakerOpen:
		if time.Since(cb.lastFail) > cb.config.RecoveryTimeout {
			cb.state = StateBreakerHalfOpen
			cb.logger.Debug("Circuit breaker half-open")
			return true
		}
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil || !cb.config.Enabled {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateBreakerHalfOpen {
		cb.logger.Info("Circuit breaker closed after successful probe")
	}
	cb.state = StateBreakerClosed
	cb.failures = 0
}

func (cb *CircuitBreaker) RecordFailure() {
	if cb == nil || !cb.config.Enabled {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++
	cb.lastFail = time.Now()

	if cb.state == StateBreakerHalfOpen || cb.failures >= cb.config.FailureThreshold {
		if cb.state != StateBreakerOpen {
			cb.logger.Warn("Circuit breaker opened",
				zap.Int("failures", cb.failures))
		}
		cb.state = StateBreakerOpen
	}
}

// State reports the current breaker state, for tests and health reporting.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}
