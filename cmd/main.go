// Selene capability server.
//
// Serves the capability gRPC service, the Prometheus /metrics endpoint and
// the tenant rate-window maintenance loop.
//
// Usage:
//
//	selene serve                        # defaults, env overrides (SELENE_*)
//	selene serve --config selene.yaml   # YAML file, then env overrides
//	selene version
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeeves-cluster-organization/selene/commbus"
	"github.com/jeeves-cluster-organization/selene/coreengine/config"
	selenegrpc "github.com/jeeves-cluster-organization/selene/coreengine/grpc"
	"github.com/jeeves-cluster-organization/selene/coreengine/kernel"
	"github.com/jeeves-cluster-organization/selene/coreengine/observability"
	"github.com/jeeves-cluster-organization/selene/coreengine/storage"
	"github.com/jeeves-cluster-organization/selene/coreengine/storage/sqlite"
)

// Version information, set with -ldflags at build time.
var (
	version   = "0.1.0"
	commit    = "dev"
	buildDate = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "selene",
		Short:         "Selene capability server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")

	rootCmd.AddCommand(newServeCommand(&configPath))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the capability gRPC service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
				"version":    version,
				"commit":     commit,
				"build_date": buildDate,
				"go_version": runtime.Version(),
			})
		},
	}
}

// serve runs until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config) error {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}, os.Stderr)
	logger.Info("selene_starting", "version", version, "config", cfg.ToMap())

	if cfg.Server.OTLPEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(cfg.Server.ServiceName, version, cfg.Server.OTLPEndpoint)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdownTracer(sctx); err != nil {
				logger.Warn("tracer_shutdown_failed", "error", err)
			}
		}()
	}

	store, err := openStore(ctx, cfg.Server)
	if err != nil {
		return err
	}

	busLogger := logger.Component("commbus")
	bus := commbus.NewInMemoryCommBus(busLogger, 5*time.Second)
	bus.AddMiddleware(commbus.NewLoggingMiddleware(busLogger))
	bus.AddMiddleware(commbus.NewCircuitBreakerMiddleware(busLogger, 5, 30*time.Second, []string{"GetTurnStats"}))

	k, err := kernel.New(logger.Component("kernel"), cfg, store,
		kernel.WithBus(bus),
		kernel.WithStoreBackend(cfg.Server.StoreDriver),
	)
	if err != nil {
		_ = store.Close()
		return err
	}
	defer func() {
		if err := k.Close(); err != nil {
			logger.Warn("store_close_failed", "error", err)
		}
	}()

	stopMaintenance := k.StartMaintenanceLoop(kernel.MaintenanceConfig{
		Interval:            cfg.Server.MaintenanceInterval,
		RateWindowRetention: cfg.RateLimit.IdleRetention,
	})
	defer stopMaintenance()

	if cfg.Server.MetricsAddr != "" {
		metricsServer := startMetricsServer(cfg.Server.MetricsAddr, logger)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = metricsServer.Shutdown(sctx)
		}()
	}

	grpcLogger := logger.Component("grpc")
	server := selenegrpc.NewGracefulServer(grpcLogger, selenegrpc.NewTurnServer(grpcLogger, k), cfg.Server.GRPCAddr)
	logger.Info("selene_ready", "grpc_addr", cfg.Server.GRPCAddr, "metrics_addr", cfg.Server.MetricsAddr)

	err = server.Start(ctx)
	logger.Info("selene_stopped")
	return err
}

func openStore(ctx context.Context, cfg config.ServerConfig) (storage.EventStore, error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		store, err := sqlite.Open(ctx, cfg.StorePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreMemory, "":
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func startMetricsServer(addr string, logger *observability.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics_server_error", "error", err)
		}
	}()
	logger.Info("metrics_server_started", "address", addr)
	return srv
}
