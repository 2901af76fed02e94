package commbus

import (
	"fmt"
)

// =============================================================================
// ERRORS
// =============================================================================

// BusError is the base error type for bus failures.
type BusError struct {
	Message string
	Cause   error
}

func (e *BusError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *BusError) Unwrap() error {
	return e.Cause
}

// NoHandlerError is returned when no handler is registered for a message type.
type NoHandlerError struct {
	MessageType string
}

func (e *NoHandlerError) Error() string {
	return fmt.Sprintf("no handler registered for %s", e.MessageType)
}

// NewNoHandlerError creates a new NoHandlerError.
func NewNoHandlerError(messageType string) *NoHandlerError {
	return &NoHandlerError{MessageType: messageType}
}

// HandlerAlreadyRegisteredError is returned when registering a duplicate handler.
type HandlerAlreadyRegisteredError struct {
	MessageType string
}

func (e *HandlerAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("handler already registered for %s", e.MessageType)
}

// NewHandlerAlreadyRegisteredError creates a new HandlerAlreadyRegisteredError.
func NewHandlerAlreadyRegisteredError(messageType string) *HandlerAlreadyRegisteredError {
	return &HandlerAlreadyRegisteredError{MessageType: messageType}
}

// QueryTimeoutError is returned when a query handler does not answer in time.
type QueryTimeoutError struct {
	MessageType string
	Timeout     float64
}

func (e *QueryTimeoutError) Error() string {
	return fmt.Sprintf("query %s timed out after %.2fs", e.MessageType, e.Timeout)
}

// NewQueryTimeoutError creates a new QueryTimeoutError.
func NewQueryTimeoutError(messageType string, timeout float64) *QueryTimeoutError {
	return &QueryTimeoutError{MessageType: messageType, Timeout: timeout}
}

// SubscriberError reports the subscribers that failed one publish.
type SubscriberError struct {
	EventType string
	Failed    int
	First     error
}

func (e *SubscriberError) Error() string {
	return fmt.Sprintf("%d subscriber(s) failed for %s: %v", e.Failed, e.EventType, e.First)
}

func (e *SubscriberError) Unwrap() error {
	return e.First
}

// NewSubscriberError wraps the first failure of a publish.
func NewSubscriberError(eventType string, failed int, first error) *SubscriberError {
	return &SubscriberError{EventType: eventType, Failed: failed, First: first}
}
