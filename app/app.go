package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/isdmx/luabox/config"
	"github.com/isdmx/luabox/logger"
	"github.com/isdmx/luabox/mcpserver"
	"github.com/isdmx/luabox/metrics"
	"github.com/isdmx/luabox/primitives"
	"github.com/isdmx/luabox/sandbox"
)

const readHeaderTimeout = 10 * time.Second

// Module provides every component of the MCP server and starts its transports.
var Module = fx.Options(
	fx.Provide(
		config.New,
		logger.NewFromConfig,
		metrics.New,
		primitives.Default,
		NewExecutor,
		mcpserver.New,
	),
	fx.Invoke(
		RegisterMetricsServer,
		RegisterTransport,
	),
)

// NewExecutor creates the sandbox executor described by cfg, with the given
// primitives and metrics installed.
func NewExecutor(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics, registry *primitives.Registry) (sandbox.SandboxExecutor, error) {
	opts := cfg.SandboxOptions()
	return sandbox.NewExecutor(logger, &opts,
		sandbox.WithRegistrar(registry),
		sandbox.WithRecorder(m),
		sandbox.WithEnvironment(cfg.Sandbox.Environment),
	)
}

// RegisterMetricsServer serves the Prometheus endpoint while the application
// runs. It does nothing when metrics.port is 0.
func RegisterMetricsServer(lc fx.Lifecycle, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) {
	if cfg.Metrics.Port == 0 {
		return
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, m.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen for metrics: %w", err)
			}
			logger.Info("serving metrics", zap.String("addr", srv.Addr), zap.String("path", cfg.Metrics.Path))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("metrics server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

// RegisterTransport starts the configured MCP transport. The application shuts
// down when the transport stops on its own, e.g. when stdin is closed.
func RegisterTransport(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg *config.Config, server *mcpserver.MCPServer, logger *zap.Logger) error {
	var serve func() error
	switch cfg.Server.Transport {
	case "stdio":
		serve = server.ServeStdio
	case "http":
		serve = server.ServeHTTP
	default:
		return fmt.Errorf("unsupported transport: %s", cfg.Server.Transport)
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := serve(); err != nil {
					logger.Error("transport stopped", zap.String("transport", cfg.Server.Transport), zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
					return
				}
				_ = shutdowner.Shutdown()
			}()
			return nil
		},
		OnStop: server.Shutdown,
	})
	return nil
}
