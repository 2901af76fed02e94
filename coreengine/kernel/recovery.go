package kernel

import (
	"fmt"
	"runtime/debug"
)

// PanicError is returned when a recovered panic aborted an operation.
type PanicError struct {
	Operation string
	Value     any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.Value)
}

func logPanic(logger Logger, operation string, r any, fields []any) {
	if logger == nil {
		return
	}
	kv := append([]any{"operation", operation, "panic", r, "stack", string(debug.Stack())}, fields...)
	logger.Error(operation+"_panic_recovered", kv...)
}

// SafeExecute runs fn and turns a panic into a *PanicError. The panic is
// logged as "<operation>_panic_recovered" with fields appended.
func SafeExecute(logger Logger, operation string, fn func() error, fields ...any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(logger, operation, r, fields)
			err = &PanicError{Operation: operation, Value: r}
		}
	}()
	return fn()
}

// SafeExecuteWithResult is SafeExecute for functions that return a value.
// On panic the zero value is returned.
func SafeExecuteWithResult[T any](logger Logger, operation string, fn func() (T, error), fields ...any) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(logger, operation, r, fields)
			var zero T
			result, err = zero, &PanicError{Operation: operation, Value: r}
		}
	}()
	return fn()
}

// SafeGo runs fn on a new goroutine; a panic is logged and handed to
// onPanic instead of crashing the process.
func SafeGo(logger Logger, operation string, fn func(), onPanic func(recovered any)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logPanic(logger, operation, r, nil)
				if onPanic != nil {
					onPanic(r)
				}
			}
		}()
		fn()
	}()
}
