package commbus

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// LOGGING MIDDLEWARE
// =============================================================================

// LoggingMiddleware logs every message at debug level and failures at warn.
type LoggingMiddleware struct {
	logger Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware(logger Logger) *LoggingMiddleware {
	if logger == nil {
		logger = nopLogger{}
	}
	return &LoggingMiddleware{logger: logger}
}

// Before logs message receipt.
func (m *LoggingMiddleware) Before(ctx context.Context, message Message) (Message, error) {
	m.logger.Debug("bus_message_received",
		"category", message.Category(),
		"message_type", GetMessageType(message),
	)
	return message, nil
}

// After logs message completion.
func (m *LoggingMiddleware) After(ctx context.Context, message Message, result any, err error) (any, error) {
	if err != nil {
		m.logger.Warn("bus_message_failed", "message_type", GetMessageType(message), "error", err)
	} else {
		m.logger.Debug("bus_message_completed", "message_type", GetMessageType(message))
	}
	return result, nil
}

// =============================================================================
// CIRCUIT BREAKER MIDDLEWARE
// =============================================================================

// Circuit states.
const (
	CircuitClosed   = "closed"
	CircuitOpen     = "open"
	CircuitHalfOpen = "half-open"
)

// CircuitBreakerState is the breaker state of one message type.
type CircuitBreakerState struct {
	Failures    int
	LastFailure time.Time
	State       string
}

// CircuitBreakerMiddleware stops delivering a message type after
// failureThreshold consecutive failures, and lets one message through again
// once resetTimeout has passed.
type CircuitBreakerMiddleware struct {
	failureThreshold int
	resetTimeout     time.Duration
	excludedTypes    map[string]struct{}
	states           map[string]*CircuitBreakerState
	now              func() time.Time
	logger           Logger
	mu               sync.Mutex
}

// NewCircuitBreakerMiddleware creates a new CircuitBreakerMiddleware. A
// threshold of zero never opens.
func NewCircuitBreakerMiddleware(logger Logger, failureThreshold int, resetTimeout time.Duration, excludedTypes []string) *CircuitBreakerMiddleware {
	if logger == nil {
		logger = nopLogger{}
	}
	excluded := make(map[string]struct{}, len(excludedTypes))
	for _, t := range excludedTypes {
		excluded[t] = struct{}{}
	}
	return &CircuitBreakerMiddleware{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		excludedTypes:    excluded,
		states:           make(map[string]*CircuitBreakerState),
		now:              time.Now,
		logger:           logger,
	}
}

func (m *CircuitBreakerMiddleware) getState(msgType string) *CircuitBreakerState {
	if _, exists := m.states[msgType]; !exists {
		m.states[msgType] = &CircuitBreakerState{State: CircuitClosed}
	}
	return m.states[msgType]
}

// Before drops the message while its circuit is open.
func (m *CircuitBreakerMiddleware) Before(ctx context.Context, message Message) (Message, error) {
	msgType := GetMessageType(message)
	if _, excluded := m.excludedTypes[msgType]; excluded {
		return message, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.getState(msgType)
	if state.State == CircuitOpen {
		if m.now().Sub(state.LastFailure) < m.resetTimeout {
			return nil, nil
		}
		state.State = CircuitHalfOpen
		m.logger.Info("bus_circuit_half_open", "message_type", msgType)
	}
	return message, nil
}

// After records the outcome.
func (m *CircuitBreakerMiddleware) After(ctx context.Context, message Message, result any, err error) (any, error) {
	msgType := GetMessageType(message)
	if _, excluded := m.excludedTypes[msgType]; excluded {
		return result, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.getState(msgType)
	if err != nil {
		state.Failures++
		state.LastFailure = m.now()
		switch {
		case state.State == CircuitHalfOpen:
			state.State = CircuitOpen
			m.logger.Warn("bus_circuit_reopened", "message_type", msgType)
		case m.failureThreshold > 0 && state.Failures >= m.failureThreshold:
			state.State = CircuitOpen
			m.logger.Warn("bus_circuit_opened", "message_type", msgType, "failures", state.Failures)
		}
		return result, nil
	}

	if state.State == CircuitHalfOpen {
		m.logger.Info("bus_circuit_closed", "message_type", msgType)
	}
	state.State = CircuitClosed
	state.Failures = 0
	return result, nil
}

// GetStates returns the current state per message type.
func (m *CircuitBreakerMiddleware) GetStates() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[string]string, len(m.states))
	for k, v := range m.states {
		result[k] = v.State
	}
	return result
}

// Reset clears one message type's state, or all when msgType is empty.
func (m *CircuitBreakerMiddleware) Reset(msgType string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msgType != "" {
		delete(m.states, msgType)
		return
	}
	m.states = make(map[string]*CircuitBreakerState)
}

var (
	_ Middleware = (*LoggingMiddleware)(nil)
	_ Middleware = (*CircuitBreakerMiddleware)(nil)
)
