package grpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jeeves-cluster-organization/selene/coreengine/testutil"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var runTurnInfo = &grpc.UnaryServerInfo{FullMethod: RunTurnMethod}

func failingHandler(code codes.Code, msg string) grpc.UnaryHandler {
	return func(context.Context, any) (any, error) {
		return nil, status.Error(code, msg)
	}
}

func lastLog(t *testing.T, logger *testutil.MockLogger) testutil.LogEntry {
	t.Helper()
	logs := logger.GetLogs()
	require.NotEmpty(t, logs)
	return logs[len(logs)-1]
}

// =============================================================================
// LOGGING INTERCEPTOR TESTS
// =============================================================================

func TestLoggingInterceptor_Success(t *testing.T) {
	logger := testutil.NewMockLogger()
	interceptor := LoggingInterceptor(logger)

	resp, err := interceptor(context.Background(), "request", runTurnInfo, func(context.Context, any) (any, error) {
		return "bundle", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "bundle", resp)
	assert.True(t, logger.HasLog("debug", "grpc_request_started"))
	entry := lastLog(t, logger)
	assert.Equal(t, "grpc_request_completed", entry.Message)
	assert.Equal(t, RunTurnMethod, entry.Fields["method"])
}

func TestLoggingInterceptor_FailureLevels(t *testing.T) {
	// Refusal codes are warnings; only Internal and Unknown are errors.
	tests := []struct {
		code  codes.Code
		level string
	}{
		{codes.InvalidArgument, "warn"},
		{codes.PermissionDenied, "warn"},
		{codes.ResourceExhausted, "warn"},
		{codes.NotFound, "warn"},
		{codes.Internal, "error"},
		{codes.Unknown, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			logger := testutil.NewMockLogger()
			interceptor := LoggingInterceptor(logger)

			resp, err := interceptor(context.Background(), "request", runTurnInfo, failingHandler(tt.code, "turn failed"))

			assert.Nil(t, resp)
			assert.Equal(t, tt.code, status.Code(err))
			entry := lastLog(t, logger)
			assert.Equal(t, tt.level, entry.Level)
			assert.Equal(t, "grpc_request_failed", entry.Message)
			assert.Equal(t, tt.code.String(), entry.Fields["code"])
			assert.Equal(t, "turn failed", entry.Fields["error"])
		})
	}
}

// =============================================================================
// RECOVERY INTERCEPTOR TESTS
// =============================================================================

func TestRecoveryInterceptor_NoPanic(t *testing.T) {
	logger := testutil.NewMockLogger()
	interceptor := RecoveryInterceptor(logger, nil)

	resp, err := interceptor(context.Background(), "request", runTurnInfo, func(context.Context, any) (any, error) {
		return "bundle", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "bundle", resp)
	assert.Empty(t, logger.GetLogs())
}

func TestRecoveryInterceptor_Panic(t *testing.T) {
	logger := testutil.NewMockLogger()
	interceptor := RecoveryInterceptor(logger, nil)

	resp, err := interceptor(context.Background(), "request", runTurnInfo, func(context.Context, any) (any, error) {
		panic("dispatcher exploded")
	})

	assert.Nil(t, resp)
	st := status.Convert(err)
	assert.Equal(t, codes.Internal, st.Code())
	assert.Contains(t, st.Message(), "dispatcher exploded")

	entry := lastLog(t, logger)
	assert.Equal(t, "grpc_panic_recovered", entry.Message)
	assert.Equal(t, "dispatcher exploded", entry.Fields["panic"])
	assert.NotEmpty(t, entry.Fields["stack"])
}

func TestRecoveryInterceptor_CustomHandler(t *testing.T) {
	interceptor := RecoveryInterceptor(testutil.NewMockLogger(), func(p any) error {
		return status.Errorf(codes.Unavailable, "kernel unavailable: %v", p)
	})

	_, err := interceptor(context.Background(), "request", runTurnInfo, func(context.Context, any) (any, error) {
		panic("lock poisoned")
	})

	st := status.Convert(err)
	assert.Equal(t, codes.Unavailable, st.Code())
	assert.Equal(t, "kernel unavailable: lock poisoned", st.Message())
}

func TestDefaultRecoveryHandler(t *testing.T) {
	st := status.Convert(DefaultRecoveryHandler("nil bundle"))

	assert.Equal(t, codes.Internal, st.Code())
	assert.Equal(t, "panic recovered: nil bundle", st.Message())
}

// =============================================================================
// METRICS INTERCEPTOR TESTS
// =============================================================================

func TestMetricsInterceptor_PassesThrough(t *testing.T) {
	interceptor := MetricsInterceptor()

	resp, err := interceptor(context.Background(), "request", runTurnInfo, func(context.Context, any) (any, error) {
		return "bundle", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "bundle", resp)

	_, err = interceptor(context.Background(), "request", runTurnInfo, failingHandler(codes.PermissionDenied, "refused"))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

// =============================================================================
// SERVER OPTIONS TESTS
// =============================================================================

func TestServerOptions(t *testing.T) {
	// Stats handler plus one interceptor chain.
	assert.Len(t, ServerOptions(testutil.NewMockLogger()), 2)
}
