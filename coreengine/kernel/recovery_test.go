package kernel

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/selene/coreengine/testutil"
)

// =============================================================================
// SAFE EXECUTE TESTS
// =============================================================================

func TestSafeExecute(t *testing.T) {
	errStore := errors.New("store unavailable")

	tests := []struct {
		name    string
		fn      func() error
		wantErr error
		panics  bool
	}{
		{"success", func() error { return nil }, nil, false},
		{"error passes through", func() error { return errStore }, errStore, false},
		{"panic becomes error", func() error { panic("engine exploded") }, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := testutil.NewMockLogger()

			err := SafeExecute(logger, "turn", tt.fn)

			if tt.panics {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "panic in turn: engine exploded")
				assert.True(t, logger.HasLog("error", "turn_panic_recovered"))
				return
			}
			assert.Equal(t, tt.wantErr, err)
			assert.Empty(t, logger.GetLogs())
		})
	}
}

func TestSafeExecute_NilLogger(t *testing.T) {
	// A nil logger only skips the log line.
	err := SafeExecute(nil, "turn", func() error {
		panic("engine exploded")
	})

	assert.Error(t, err)
}

func TestSafeExecute_PanicError(t *testing.T) {
	// The recovered value and operation survive as a *PanicError.
	err := SafeExecute(nil, "turn", func() error {
		panic(fmt.Sprintf("boom %d", 7))
	})

	var pe *PanicError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "turn", pe.Operation)
	assert.Equal(t, "boom 7", pe.Value)
}

func TestSafeExecute_PanicLogFields(t *testing.T) {
	logger := testutil.NewMockLogger()

	_ = SafeExecute(logger, "turn", func() error {
		panic("engine exploded")
	}, "domain", "retry")

	logs := logger.GetLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "retry", logs[0].Fields["domain"])
	assert.Equal(t, "turn", logs[0].Fields["operation"])
	assert.NotEmpty(t, logs[0].Fields["stack"])
}

// =============================================================================
// SAFE EXECUTE WITH RESULT TESTS
// =============================================================================

func TestSafeExecuteWithResult_ReturnsValue(t *testing.T) {
	kind, err := SafeExecuteWithResult(nil, "turn", func() (string, error) {
		return "forwarded", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "forwarded", kind)
}

func TestSafeExecuteWithResult_PanicReturnsZero(t *testing.T) {
	// A panic discards any partial result.
	logger := testutil.NewMockLogger()

	res, err := SafeExecuteWithResult(logger, "turn", func() (RateLimitResult, error) {
		panic("engine exploded")
	}, "domain", "quota")

	require.Error(t, err)
	assert.Equal(t, RateLimitResult{}, res)
	assert.True(t, logger.HasLog("error", "turn_panic_recovered"))
}

// =============================================================================
// SAFE GO TESTS
// =============================================================================

func TestSafeGo_RunsFunction(t *testing.T) {
	done := make(chan struct{})

	SafeGo(nil, "maintenance_loop", func() { close(done) }, nil)

	<-done
}

func TestSafeGo_PanicHandedToCallback(t *testing.T) {
	logger := testutil.NewMockLogger()
	recovered := make(chan any, 1)

	SafeGo(logger, "maintenance_loop", func() {
		panic("window map corrupted")
	}, func(r any) { recovered <- r })

	assert.Equal(t, "window map corrupted", <-recovered)
	assert.True(t, logger.HasLog("error", "maintenance_loop_panic_recovered"))
}

func TestSafeGo_NilCallbackAndLogger(t *testing.T) {
	// Without a callback or logger the panic is still contained.
	done := make(chan struct{})

	SafeGo(nil, "maintenance_loop", func() {
		defer close(done)
		panic("window map corrupted")
	}, nil)

	<-done
}
