package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jeeves-cluster-organization/selene/coreengine/kernel"
	"github.com/jeeves-cluster-organization/selene/coreengine/testutil"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const bufSize = 1024 * 1024

// startTestServer serves a TurnServer over bufconn and returns a client.
func startTestServer(t *testing.T, dispatcher Dispatcher) (CapabilityServiceClient, *testutil.MockLogger) {
	t.Helper()
	logger := testutil.NewMockLogger()

	srv := NewTurnServer(logger, dispatcher)
	srv.newID = func() string { return "corr-generated" }
	gs := NewGracefulServer(logger, srv, "bufconn")

	lis := bufconn.Listen(bufSize)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gs.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		<-done
	})
	return NewCapabilityServiceClient(conn), logger
}

func newKernel(t *testing.T) *kernel.Kernel {
	t.Helper()
	k, err := kernel.New(nil, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })
	return k
}

func turnRequest(t *testing.T, domain string, input map[string]any) *structpb.Struct {
	t.Helper()
	req, err := structpb.NewStruct(map[string]any{"domain": domain, "input": input})
	require.NoError(t, err)
	return req
}

type dispatcherFunc func(ctx context.Context, domain string, payload []byte) (kernel.TurnResult, error)

func (f dispatcherFunc) Dispatch(ctx context.Context, domain string, payload []byte) (kernel.TurnResult, error) {
	return f(ctx, domain, payload)
}

// =============================================================================
// RUN TURN TESTS
// =============================================================================

func TestRunTurn_Forwarded(t *testing.T) {
	// A forwarded turn returns its bundle as a Struct.
	client, _ := startTestServer(t, newKernel(t))

	resp, err := client.RunTurn(context.Background(), turnRequest(t, "retry", map[string]any{
		"correlation_id": "corr-grpc",
		"turn_id":        1,
		"failure": map[string]any{
			"operation_id":        "op-1",
			"attempt":             1,
			"failure_class":       "transient",
			"failed_at_mono_ms":   1000,
			"retry_after_hint_ms": 0,
		},
	}))

	require.NoError(t, err)
	fields := resp.GetFields()
	assert.Equal(t, "retry", fields["domain"].GetStringValue())
	assert.Equal(t, "forwarded", fields["kind"].GetStringValue())
	assert.Equal(t, "corr-grpc", fields["correlation_id"].GetStringValue())

	schedule := fields["bundle"].GetStructValue().GetFields()["build"].GetStructValue().GetFields()["schedule"].GetStructValue()
	require.NotNil(t, schedule)
	assert.Equal(t, float64(1500), schedule.GetFields()["retry_at_mono_ms"].GetNumberValue())
}

func TestRunTurn_FillsCorrelationID(t *testing.T) {
	// A missing correlation id is generated before dispatch.
	var seen []byte
	client, _ := startTestServer(t, dispatcherFunc(func(ctx context.Context, domain string, payload []byte) (kernel.TurnResult, error) {
		seen = payload
		return kernel.TurnResult{Domain: domain, Kind: "not_invoked_no_input"}, nil
	}))

	resp, err := client.RunTurn(context.Background(), turnRequest(t, "summarize", map[string]any{"turn_id": 1}))

	require.NoError(t, err)
	assert.Equal(t, "corr-generated", resp.GetFields()["correlation_id"].GetStringValue())
	assert.JSONEq(t, `{"correlation_id":"corr-generated","turn_id":1}`, string(seen))
}

func TestRunTurn_NotInvoked(t *testing.T) {
	// A turn without domain input is not an error.
	client, _ := startTestServer(t, newKernel(t))

	resp, err := client.RunTurn(context.Background(), turnRequest(t, "governance", map[string]any{
		"correlation_id": "corr-n",
		"turn_id":        1,
	}))

	require.NoError(t, err)
	assert.Equal(t, "not_invoked_no_input", resp.GetFields()["kind"].GetStringValue())
	_, hasBundle := resp.GetFields()["bundle"]
	assert.False(t, hasBundle)
}

func TestRunTurn_RefusalMapsToStatus(t *testing.T) {
	// A policy refusal comes back as PermissionDenied.
	client, _ := startTestServer(t, newKernel(t))

	_, err := client.RunTurn(context.Background(), turnRequest(t, "retry", map[string]any{
		"correlation_id": "corr-p",
		"turn_id":        1,
		"failure": map[string]any{
			"operation_id":      "op-1",
			"attempt":           1,
			"failure_class":     "permanent",
			"failed_at_mono_ms": 0,
		},
	}))

	require.Error(t, err)
	st := status.Convert(err)
	assert.Equal(t, codes.PermissionDenied, st.Code())
	assert.Contains(t, st.Message(), "RETRY_BUILD refused")
}

func TestRunTurn_RequestErrors(t *testing.T) {
	// Malformed requests are rejected before the kernel runs.
	client, logger := startTestServer(t, newKernel(t))
	ctx := context.Background()

	tests := []struct {
		name string
		req  *structpb.Struct
		code codes.Code
	}{
		{"missing domain", turnRequest(t, "", map[string]any{"turn_id": 1}), codes.InvalidArgument},
		{"unknown domain", turnRequest(t, "weather", map[string]any{"turn_id": 1}), codes.NotFound},
		{"unknown field", turnRequest(t, "retry", map[string]any{"turn_id": 1, "bogus": true}), codes.InvalidArgument},
		{"bad turn id", turnRequest(t, "retry", map[string]any{"turn_id": 0}), codes.InvalidArgument},
		{"missing input", &structpb.Struct{Fields: map[string]*structpb.Value{"domain": structpb.NewStringValue("retry")}}, codes.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.RunTurn(ctx, tt.req)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
	assert.True(t, logger.HasLog("warn", "grpc_request_failed"))
}

func TestRunTurn_DispatcherFailureIsInternal(t *testing.T) {
	// Unexpected kernel errors surface as Internal.
	client, logger := startTestServer(t, dispatcherFunc(func(context.Context, string, []byte) (kernel.TurnResult, error) {
		return kernel.TurnResult{}, errors.New("store unavailable")
	}))

	_, err := client.RunTurn(context.Background(), turnRequest(t, "workorder", map[string]any{"turn_id": 1}))

	assert.Equal(t, codes.Internal, status.Code(err))
	assert.True(t, logger.HasLog("error", "grpc_request_failed"))
}

func TestRunTurn_PanicIsRecovered(t *testing.T) {
	// A panicking dispatcher does not take the server down.
	calls := 0
	client, logger := startTestServer(t, dispatcherFunc(func(ctx context.Context, domain string, _ []byte) (kernel.TurnResult, error) {
		calls++
		if calls == 1 {
			panic("dispatcher exploded")
		}
		return kernel.TurnResult{Domain: domain, Kind: "not_invoked_disabled"}, nil
	}))
	ctx := context.Background()

	_, err := client.RunTurn(ctx, turnRequest(t, "tenant", map[string]any{"turn_id": 1}))
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.True(t, logger.HasLog("error", "grpc_panic_recovered"))

	resp, err := client.RunTurn(ctx, turnRequest(t, "tenant", map[string]any{"turn_id": 2}))
	require.NoError(t, err)
	assert.Equal(t, "not_invoked_disabled", resp.GetFields()["kind"].GetStringValue())
}

// =============================================================================
// GRACEFUL SERVER TESTS
// =============================================================================

func TestGracefulServer_StopIsIdempotent(t *testing.T) {
	logger := testutil.NewMockLogger()
	gs := NewGracefulServer(logger, NewTurnServer(logger, newKernel(t)), "localhost:0")

	assert.Equal(t, "localhost:0", gs.Address())
	assert.NotNil(t, gs.GetGRPCServer())

	gs.GracefulStop()
	gs.GracefulStop()
	gs.ShutdownWithTimeout(time.Second)

	assert.True(t, logger.HasLog("info", "grpc_graceful_stop_completed"))
}
