package commbus

import (
	"context"
	"sync"
	"time"
)

type subscription struct {
	id      uint64
	handler HandlerFunc
}

// InMemoryCommBus is the single-process CommBus.
//
// Subscribers run synchronously in subscription order, so a publish has
// finished with every subscriber when it returns.
//
// Usage:
//
//	bus := NewInMemoryCommBus(logger, 5*time.Second)
//	bus.Subscribe("TurnCompleted", auditHandler)
//	_ = bus.Publish(ctx, &TurnCompleted{...})
type InMemoryCommBus struct {
	handlers     map[string]HandlerFunc
	subscribers  map[string][]subscription
	middleware   []Middleware
	queryTimeout time.Duration
	nextID       uint64
	logger       Logger
	mu           sync.RWMutex
}

// NewInMemoryCommBus creates a new InMemoryCommBus. A nil logger discards.
func NewInMemoryCommBus(logger Logger, queryTimeout time.Duration) *InMemoryCommBus {
	if logger == nil {
		logger = nopLogger{}
	}
	return &InMemoryCommBus{
		handlers:     make(map[string]HandlerFunc),
		subscribers:  make(map[string][]subscription),
		middleware:   make([]Middleware, 0),
		queryTimeout: queryTimeout,
		logger:       logger,
	}
}

// =============================================================================
// MESSAGING
// =============================================================================

// Publish delivers event to every subscriber. All subscribers run even when
// one fails; failures come back as a *SubscriberError.
func (b *InMemoryCommBus) Publish(ctx context.Context, event Message) error {
	eventType := GetMessageType(event)

	processed, err := b.runMiddlewareBefore(ctx, event)
	if err != nil {
		return err
	}
	if processed == nil {
		b.logger.Debug("bus_event_aborted", "event_type", eventType)
		return nil
	}

	b.mu.RLock()
	subs := append([]subscription(nil), b.subscribers[eventType]...)
	b.mu.RUnlock()

	var first error
	failed := 0
	for _, s := range subs {
		if _, err := s.handler(ctx, processed); err != nil {
			failed++
			if first == nil {
				first = err
			}
			b.logger.Warn("bus_subscriber_failed", "event_type", eventType, "error", err)
		}
	}

	var pubErr error
	if failed > 0 {
		pubErr = NewSubscriberError(eventType, failed, first)
	}
	_, _ = b.runMiddlewareAfter(ctx, event, nil, pubErr)
	return pubErr
}

// Send delivers a command to its handler. A command without a handler is
// dropped.
func (b *InMemoryCommBus) Send(ctx context.Context, command Message) error {
	messageType := GetMessageType(command)

	processed, err := b.runMiddlewareBefore(ctx, command)
	if err != nil {
		return err
	}
	if processed == nil {
		b.logger.Debug("bus_command_aborted", "message_type", messageType)
		return nil
	}

	b.mu.RLock()
	handler, exists := b.handlers[messageType]
	b.mu.RUnlock()

	if !exists {
		b.logger.Debug("bus_command_unhandled", "message_type", messageType)
		return nil
	}

	_, handlerErr := handler(ctx, processed)
	if handlerErr != nil {
		b.logger.Warn("bus_command_failed", "message_type", messageType, "error", handlerErr)
	}

	_, _ = b.runMiddlewareAfter(ctx, command, nil, handlerErr)
	return handlerErr
}

// QuerySync sends a query and waits for its handler, bounded by the bus
// query timeout.
func (b *InMemoryCommBus) QuerySync(ctx context.Context, query Query) (any, error) {
	messageType := GetMessageType(query)

	processed, err := b.runMiddlewareBefore(ctx, query)
	if err != nil {
		return nil, err
	}
	if processed == nil {
		return nil, NewNoHandlerError(messageType)
	}

	b.mu.RLock()
	handler, exists := b.handlers[messageType]
	b.mu.RUnlock()

	if !exists {
		return nil, NewNoHandlerError(messageType)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, b.queryTimeout)
	defer cancel()

	type result struct {
		value any
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		v, e := handler(timeoutCtx, processed)
		resultCh <- result{value: v, err: e}
	}()

	select {
	case <-timeoutCtx.Done():
		err := NewQueryTimeoutError(messageType, b.queryTimeout.Seconds())
		_, _ = b.runMiddlewareAfter(ctx, query, nil, err)
		return nil, err
	case res := <-resultCh:
		final, mwErr := b.runMiddlewareAfter(ctx, query, res.value, res.err)
		if mwErr != nil {
			return final, mwErr
		}
		return final, res.err
	}
}

// =============================================================================
// REGISTRATION
// =============================================================================

// Subscribe adds a subscriber for eventType and returns its unsubscribe
// function.
func (b *InMemoryCommBus) Subscribe(eventType string, handler HandlerFunc) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	b.logger.Debug("bus_subscribed", "event_type", eventType)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subscribers[eventType]
			for i, s := range subs {
				if s.id == id {
					b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		})
	}
}

// RegisterHandler registers the single handler for a message type.
func (b *InMemoryCommBus) RegisterHandler(messageType string, handler HandlerFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.handlers[messageType]; exists {
		return NewHandlerAlreadyRegisteredError(messageType)
	}
	b.handlers[messageType] = handler
	return nil
}

// AddMiddleware appends middleware; Before runs in registration order,
// After in reverse.
func (b *InMemoryCommBus) AddMiddleware(middleware Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, middleware)
}

// =============================================================================
// INTROSPECTION
// =============================================================================

// HasHandler checks if a handler is registered for a message type.
func (b *InMemoryCommBus) HasHandler(messageType string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, exists := b.handlers[messageType]
	return exists
}

// SubscriberCount returns the number of subscribers for an event type.
func (b *InMemoryCommBus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType])
}

// Clear removes all handlers, subscribers and middleware.
func (b *InMemoryCommBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = make(map[string]HandlerFunc)
	b.subscribers = make(map[string][]subscription)
	b.middleware = make([]Middleware, 0)
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

func (b *InMemoryCommBus) middlewareSnapshot() []Middleware {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Middleware(nil), b.middleware...)
}

func (b *InMemoryCommBus) runMiddlewareBefore(ctx context.Context, message Message) (Message, error) {
	current := message
	for _, mw := range b.middlewareSnapshot() {
		result, err := mw.Before(ctx, current)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, nil
		}
		current = result
	}
	return current, nil
}

func (b *InMemoryCommBus) runMiddlewareAfter(ctx context.Context, message Message, result any, err error) (any, error) {
	mws := b.middlewareSnapshot()
	current := result
	for i := len(mws) - 1; i >= 0; i-- {
		afterResult, afterErr := mws[i].After(ctx, message, current, err)
		if afterErr != nil {
			err = afterErr
		}
		if afterResult != nil {
			current = afterResult
		}
	}
	return current, err
}

var _ CommBus = (*InMemoryCommBus)(nil)
