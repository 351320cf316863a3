package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.opentelemetry.io/otel"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sajjad-MoBe/kvserver/node/src/internal/api"
	"github.com/sajjad-MoBe/kvserver/node/src/internal/config"
	"github.com/sajjad-MoBe/kvserver/node/src/internal/grpcPack"
	"github.com/sajjad-MoBe/kvserver/node/src/internal/protocol"
	"github.com/sajjad-MoBe/kvserver/node/src/internal/server"
	"github.com/sajjad-MoBe/kvserver/node/src/internal/shared"
	"github.com/sajjad-MoBe/kvserver/node/src/internal/storage"
)

// Node is one running kvserver process: the TCP server plus the optional
// admin HTTP and gRPC health endpoints.
type Node struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *shared.Metrics
	tracer  *api.Tracer

	store      storage.Store
	persistent *storage.PersistentStore
	server     *server.Server

	admin    *api.Server
	health   *grpcPack.HealthServer
	healthLn net.Listener
}

// NewNode opens the store and binds every configured address. Nothing is
// served until Run.
func NewNode(cfg config.Config, logger *zap.Logger) (*Node, error) {
	n := &Node{cfg: cfg, logger: logger, metrics: shared.NewMetrics()}

	codec, err := protocol.NewCodec(cfg.Protocol)
	if err != nil {
		return nil, err
	}

	if err := n.openStore(); err != nil {
		return nil, err
	}

	n.tracer, err = api.NewTracer("kvserver", cfg.JaegerEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	otel.SetTracerProvider(n.tracer.Provider())

	n.server = server.NewServer(server.Config{
		Address:        cfg.Address,
		ReadBufferSize: cfg.ReadBufferSize,
		MaxFrameSize:   cfg.MaxFrameSize,
		IdleTimeout:    cfg.IdleTimeout,
	}, n.store, codec,
		server.WithLogger(logger.Named("server")),
		server.WithMetrics(n.metrics),
		server.WithTracer(n.tracer),
	)
	if err := n.server.Listen(); err != nil {
		return nil, err
	}

	if cfg.AdminAddress != "" {
		adminLogger := logger.Named("admin")
		router := api.Router(api.NewHealthHandler(n.store, n.server), n.metrics.Registry, n.tracer, adminLogger)
		n.admin = api.NewServer(cfg.AdminAddress, router, adminLogger)
		if err := n.admin.Listen(); err != nil {
			n.closeListeners()
			return nil, err
		}
	}

	if cfg.GRPCHealthAddress != "" {
		n.healthLn, err = net.Listen("tcp", cfg.GRPCHealthAddress)
		if err != nil {
			n.closeListeners()
			return nil, fmt.Errorf("failed to bind gRPC health address %s: %w", cfg.GRPCHealthAddress, err)
		}
		n.health = grpcPack.NewHealthServer(logger.Named("grpc"))
	}

	return n, nil
}

func (n *Node) openStore() error {
	if !n.cfg.Persistence {
		n.logger.Info("persistence disabled, store is memory only")
		n.store = storage.NewMemStore()
		return nil
	}

	policy, err := storage.ParseCorruptPolicy(n.cfg.SnapshotPolicy)
	if err != nil {
		return err
	}
	snapshotter, err := storage.NewFileSnapshotter(n.cfg.StorePath)
	if err != nil {
		return err
	}
	n.persistent, err = storage.Open(snapshotter, policy, n.logger.Named("storage"), n.metrics)
	if err != nil {
		return fmt.Errorf("failed to load snapshot %s: %w", n.cfg.StorePath, err)
	}
	n.store = n.persistent
	return nil
}

// Addr returns the key-value server address
func (n *Node) Addr() net.Addr { return n.server.Addr() }

// AdminAddr returns the admin HTTP address, or nil when disabled
func (n *Node) AdminAddr() net.Addr {
	if n.admin == nil {
		return nil
	}
	return n.admin.Addr()
}

// HealthAddr returns the gRPC health address, or nil when disabled
func (n *Node) HealthAddr() net.Addr {
	if n.healthLn == nil {
		return nil
	}
	return n.healthLn.Addr()
}

// Run serves until ctx is cancelled or a server fails, then shuts everything
// down within the configured shutdown timeout.
func (n *Node) Run(ctx context.Context) error {
	errCh := make(chan error, 3)

	go func() { errCh <- n.server.Serve() }()
	if n.admin != nil {
		go func() { errCh <- n.admin.Serve() }()
	}
	if n.health != nil {
		go func() { errCh <- n.health.Serve(n.healthLn) }()
		n.health.SetServing(true)
	}

	var runErr error
	select {
	case <-ctx.Done():
		n.logger.Info("shutdown requested")
	case err := <-errCh:
		if err != nil {
			runErr = err
			n.logger.Error("server failed", zap.Error(err))
		}
	}

	return multierr.Append(runErr, n.shutdown())
}

func (n *Node) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.ShutdownTimeout)
	defer cancel()

	var err error
	if n.health != nil {
		n.health.SetServing(false)
	}
	if shutdownErr := n.server.Shutdown(ctx); shutdownErr != nil {
		err = multierr.Append(err, fmt.Errorf("server shutdown: %w", shutdownErr))
	}
	if n.admin != nil {
		if shutdownErr := n.admin.Shutdown(ctx); shutdownErr != nil {
			err = multierr.Append(err, fmt.Errorf("admin shutdown: %w", shutdownErr))
		}
	}
	if n.health != nil {
		n.health.Stop()
	}
	if n.persistent != nil {
		if flushErr := n.persistent.Flush(); flushErr != nil {
			err = multierr.Append(err, fmt.Errorf("final snapshot: %w", flushErr))
		}
	}
	if shutdownErr := n.tracer.Shutdown(ctx); shutdownErr != nil && !errors.Is(shutdownErr, context.Canceled) {
		err = multierr.Append(err, fmt.Errorf("tracer shutdown: %w", shutdownErr))
	}

	n.logger.Info("shutdown complete", zap.Int("keys", n.store.Len()))
	return err
}

func (n *Node) closeListeners() {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.ShutdownTimeout)
	defer cancel()
	_ = n.server.Shutdown(ctx)
	if n.admin != nil {
		_ = n.admin.Shutdown(ctx)
	}
}
