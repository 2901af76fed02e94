// Package commbus is the in-process message bus the kernel publishes turn
// events on.
//
// Three messaging patterns are supported:
//   - Publish(event): fan-out to every subscriber
//   - Send(command): single handler, fire-and-forget
//   - QuerySync(query): single handler, request-response with timeout
package commbus

import (
	"context"
)

// =============================================================================
// COMMBUS PROTOCOLS
// =============================================================================

// Message is implemented by every bus message.
type Message interface {
	// Category returns "event", "query" or "command".
	Category() string
}

// Query is a message that expects a response.
type Query interface {
	Message
	IsQuery()
}

// HandlerFunc handles one message and optionally returns a response.
type HandlerFunc func(ctx context.Context, message Message) (any, error)

// Middleware intercepts messages before and after handling.
type Middleware interface {
	// Before returns the (possibly replaced) message, or nil to abort.
	Before(ctx context.Context, message Message) (Message, error)
	// After sees the handler result and error; it may replace the result.
	After(ctx context.Context, message Message, result any, err error) (any, error)
}

// CommBus is the bus used by the kernel and the binaries.
type CommBus interface {
	Publish(ctx context.Context, event Message) error
	Send(ctx context.Context, command Message) error
	QuerySync(ctx context.Context, query Query) (any, error)

	// Subscribe returns an unsubscribe function.
	Subscribe(eventType string, handler HandlerFunc) func()
	RegisterHandler(messageType string, handler HandlerFunc) error
	AddMiddleware(middleware Middleware)

	HasHandler(messageType string) bool
	SubscriberCount(eventType string) int
	Clear()
}

// Logger is the structured key-value logger the bus writes to.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
