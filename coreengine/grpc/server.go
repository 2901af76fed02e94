// Package grpc exposes the kernel as the capability gRPC service.
//
// One unary method, RunTurn, takes a google.protobuf.Struct of the form
// {"domain": "...", "input": {...}} where input is the domain's JSON turn
// input. Forwarded and not-invoked outcomes come back as a Struct; refusals
// come back as status errors whose code follows the reason class.
package grpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jeeves-cluster-organization/selene/coreengine/kernel"
	"github.com/jeeves-cluster-organization/selene/coreengine/wiring"
)

// Logger interface for the server.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Dispatcher runs one decoded turn. *kernel.Kernel implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, domain string, payload []byte) (kernel.TurnResult, error)
}

// TurnServer implements CapabilityServiceServer on top of a Dispatcher.
type TurnServer struct {
	logger     Logger
	dispatcher Dispatcher
	newID      func() string
}

// NewTurnServer creates a new TurnServer.
func NewTurnServer(logger Logger, dispatcher Dispatcher) *TurnServer {
	return &TurnServer{
		logger:     logger,
		dispatcher: dispatcher,
		newID:      uuid.NewString,
	}
}

// RunTurn decodes the request, fills a missing correlation id and runs the
// turn.
func (s *TurnServer) RunTurn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	domain := req.GetFields()["domain"].GetStringValue()
	if err := validateRequired(domain, "domain"); err != nil {
		return nil, err
	}
	raw := req.GetFields()["input"].GetStructValue()
	if raw == nil {
		return nil, InvalidArgument("input")
	}

	input := proto.Clone(raw).(*structpb.Struct)
	if input.Fields == nil {
		input.Fields = make(map[string]*structpb.Value)
	}
	correlationID := input.Fields["correlation_id"].GetStringValue()
	if correlationID == "" {
		correlationID = s.newID()
		input.Fields["correlation_id"] = structpb.NewStringValue(correlationID)
	}

	payload, err := protojson.Marshal(input)
	if err != nil {
		return nil, InvalidInput("input", err)
	}

	res, err := s.dispatcher.Dispatch(ctx, domain, payload)
	if err != nil {
		return nil, TurnError(domain, err)
	}

	s.logger.Debug("grpc_turn_dispatched",
		"domain", domain,
		"correlation_id", correlationID,
		"kind", string(res.Kind),
	)

	if res.Kind == wiring.OutcomeRefused && res.Refuse != nil {
		return nil, Refused(res.Refuse)
	}

	out, err := resultToStruct(res)
	if err != nil {
		return nil, Internal("encode result", err)
	}
	out.Fields["correlation_id"] = structpb.NewStringValue(correlationID)
	return out, nil
}

func resultToStruct(res kernel.TurnResult) (*structpb.Struct, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	if out.Fields == nil {
		out.Fields = make(map[string]*structpb.Value)
	}
	return out, nil
}

// =============================================================================
// Graceful Server
// =============================================================================

// GracefulServer wraps a gRPC server with graceful shutdown support.
type GracefulServer struct {
	grpcServer *grpc.Server
	logger     Logger
	address    string
	shutdownMu sync.Mutex
	isShutdown bool
}

// NewGracefulServer creates a server with the capability service
// registered. Without opts, ServerOptions(logger) is used.
func NewGracefulServer(logger Logger, srv CapabilityServiceServer, address string, opts ...grpc.ServerOption) *GracefulServer {
	if len(opts) == 0 {
		opts = ServerOptions(logger)
	}

	grpcServer := grpc.NewServer(opts...)
	RegisterCapabilityServiceServer(grpcServer, srv)

	return &GracefulServer{
		grpcServer: grpcServer,
		logger:     logger,
		address:    address,
	}
}

// Start listens on the server address and serves until ctx is cancelled,
// then stops gracefully.
func (s *GracefulServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is cancelled.
func (s *GracefulServer) Serve(ctx context.Context, lis net.Listener) error {
	s.logger.Info("grpc_server_started", "address", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("grpc_graceful_shutdown_initiated",
			"reason", ctx.Err().Error(),
		)
		s.GracefulStop()
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}

// GracefulStop stops accepting connections and waits for in-flight calls.
func (s *GracefulServer) GracefulStop() {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()

	if s.isShutdown {
		return
	}
	s.isShutdown = true

	s.logger.Info("grpc_graceful_stop_started")
	s.grpcServer.GracefulStop()
	s.logger.Info("grpc_graceful_stop_completed")
}

// ShutdownWithTimeout stops gracefully, forcing an immediate stop after
// timeout.
func (s *GracefulServer) ShutdownWithTimeout(timeout time.Duration) {
	done := make(chan struct{})

	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(timeout):
		s.logger.Warn("grpc_graceful_shutdown_timeout",
			"timeout_ms", timeout.Milliseconds(),
		)
		s.grpcServer.Stop()
	}
}

// GetGRPCServer returns the underlying grpc.Server.
func (s *GracefulServer) GetGRPCServer() *grpc.Server {
	return s.grpcServer
}

// Address returns the configured listen address.
func (s *GracefulServer) Address() string {
	return s.address
}

var _ CapabilityServiceServer = (*TurnServer)(nil)
