// Package testutil provides shared test utilities and mocks for integration tests.
//
// All mocks in this package are designed for testing the coreengine components
// in isolation without requiring external dependencies.
package testutil

import (
	"errors"
	"sync"

	"github.com/jeeves-cluster-organization/selene/coreengine/capability"
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
)

// =============================================================================
// MOCK ENGINE
// =============================================================================

// MockEngine implements capability.Engine for testing.
// By default it delegates to Inner; Transform can rewrite the response and
// Panic makes every call panic.
type MockEngine[Req contract.Request] struct {
	// Inner is the engine calls are delegated to.
	Inner capability.Engine[Req]

	// Response is returned when Inner is nil.
	Response contract.Response

	// Transform rewrites Inner's response, e.g. to inject drift or a wrong
	// variant into one phase.
	Transform func(req Req, resp contract.Response) contract.Response

	// Panic causes Run to panic.
	Panic bool

	// CallCount tracks the number of Run calls.
	CallCount int

	// Calls records all requests for assertion.
	Calls []Req

	mu sync.Mutex
}

// NewMockEngine creates a MockEngine delegating to inner.
func NewMockEngine[Req contract.Request](inner capability.Engine[Req]) *MockEngine[Req] {
	return &MockEngine[Req]{Inner: inner}
}

// NewPanicEngine creates an engine that panics on every call. Use it to
// assert a code path never reaches the engine.
func NewPanicEngine[Req contract.Request]() *MockEngine[Req] {
	return &MockEngine[Req]{Panic: true}
}

// Run implements capability.Engine.
func (m *MockEngine[Req]) Run(req Req) contract.Response {
	m.mu.Lock()
	m.CallCount++
	m.Calls = append(m.Calls, req)
	inner, transform, fixed, panics := m.Inner, m.Transform, m.Response, m.Panic
	m.mu.Unlock()

	if panics {
		panic("testutil: engine must not be invoked")
	}

	resp := fixed
	if inner != nil {
		resp = inner.Run(req)
	}
	if transform != nil {
		resp = transform(req, resp)
	}
	return resp
}

// WithResponse configures a fixed response.
func (m *MockEngine[Req]) WithResponse(resp contract.Response) *MockEngine[Req] {
	m.Response = resp
	return m
}

// WithTransform configures a response rewrite.
func (m *MockEngine[Req]) WithTransform(fn func(Req, contract.Response) contract.Response) *MockEngine[Req] {
	m.Transform = fn
	return m
}

// GetCallCount returns the number of calls (thread-safe).
func (m *MockEngine[Req]) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// Reset clears call history.
func (m *MockEngine[Req]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount = 0
	m.Calls = nil
}

// =============================================================================
// MOCK LOGGER
// =============================================================================

// MockLogger implements the package-level Logger interfaces for testing.
type MockLogger struct {
	// Logs captures all log entries.
	Logs []LogEntry

	mu sync.Mutex
}

// LogEntry represents a captured log entry.
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]any
}

// NewMockLogger creates a MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{
		Logs: make([]LogEntry, 0),
	}
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.log("debug", msg, keysAndValues...)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.log("info", msg, keysAndValues...)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.log("warn", msg, keysAndValues...)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.log("error", msg, keysAndValues...)
}

func (m *MockLogger) log(level, msg string, keysAndValues ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fields := make(map[string]any)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}

	m.Logs = append(m.Logs, LogEntry{
		Level:   level,
		Message: msg,
		Fields:  fields,
	})
}

// GetLogs returns captured logs (thread-safe).
func (m *MockLogger) GetLogs() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]LogEntry, len(m.Logs))
	copy(copied, m.Logs)
	return copied
}

// HasLog checks if a log message exists at the given level.
func (m *MockLogger) HasLog(level, message string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, log := range m.Logs {
		if log.Level == level && log.Message == message {
			return true
		}
	}
	return false
}

// Clear removes all captured logs.
func (m *MockLogger) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = make([]LogEntry, 0)
}

// =============================================================================
// ENVELOPE HELPERS
// =============================================================================

// TestCorrelationID is the correlation id used by NewTestEnvelope.
const TestCorrelationID contract.CorrelationID = "corr-test-1"

// NewTestEnvelope creates an envelope with test defaults.
func NewTestEnvelope(maxCandidates, maxDiagnostics int) contract.Envelope {
	env, err := contract.NewEnvelopeV1(TestCorrelationID, 1, maxCandidates, maxDiagnostics)
	if err != nil {
		panic("testutil: invalid test envelope: " + err.Error())
	}
	return env
}

// =============================================================================
// ASSERTION HELPERS
// =============================================================================

// AssertRefused checks that resp is a Refuse with the given reason code.
func AssertRefused(resp contract.Response, code contract.ReasonCode) error {
	r, ok := resp.(*contract.Refuse)
	if !ok {
		return errors.New("expected *contract.Refuse response")
	}
	if r.ReasonCode != code {
		return errors.New("unexpected refuse reason code " + r.ReasonCode.String() + ", want " + code.String())
	}
	return nil
}

// AssertSelfValid checks that resp passes its own contract check.
func AssertSelfValid(resp contract.Response) error {
	if resp == nil {
		return errors.New("response is nil")
	}
	return resp.Validate()
}
