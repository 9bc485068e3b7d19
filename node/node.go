package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jamnode/jam/log"
	"github.com/jamnode/jam/metrics"
	"github.com/jamnode/jam/rpc"
)

// parseLevel converts a log-level string (as produced by
// VerbosityToLogLevel or set directly via Config.LogLevel) into a
// slog.Level, defaulting to Info for unrecognized values.
func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Node wires the RPC surface together with the lifecycle/health/event
// machinery that the orchestrator, block builder, and GRANDPA engine
// register themselves into as Services. Node itself knows nothing about
// STFs, ring-VRF, or BFT rounds -- it only starts and stops subsystems in
// priority order and serves the external HTTP surface.
type Node struct {
	config Config
	logger *log.Logger

	lifecycle *LifecycleManager
	health    *HealthChecker
	events    *EventBus

	rpcServer *rpc.Server
	httpSrv   *http.Server

	metricsReporter *metrics.MetricsReporter

	mu      sync.Mutex
	running bool
}

// New builds a Node bound to backend (normally an *orchestrator.Orchestrator,
// which implements rpc.Backend). It validates config, creates the data
// directory layout, and constructs the RPC server, but does not start
// anything -- callers register additional Services (orchestrator, block
// builder, GRANDPA engine) via Register before calling Start.
func New(cfg Config, backend rpc.Backend) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.InitDataDir(); err != nil {
		return nil, err
	}

	level := VerbosityToLogLevel(cfg.Verbosity)
	if cfg.LogLevel != "" && cfg.Verbosity == 0 {
		level = cfg.LogLevel
	}
	logger := log.New(parseLevel(level)).Module("node")

	n := &Node{
		config:    cfg,
		logger:    logger,
		lifecycle: NewLifecycleManager(DefaultLifecycleConfig()),
		health:    NewHealthChecker(),
		events:    NewEventBus(256),
		rpcServer: rpc.NewServer(backend),
	}
	if cfg.MetricsAPIKey != "" {
		n.rpcServer.RequireMetricsAPIKey(cfg.MetricsAPIKey)
	}
	n.httpSrv = &http.Server{
		Addr:    cfg.RPCAddr(),
		Handler: n.rpcServer.Handler(),
	}
	if cfg.Metrics {
		n.metricsReporter = metrics.NewMetricsReporter(15 * time.Second)
		n.metricsReporter.RegisterBackend("log", &logReportBackend{logger: logger.Module("metrics")})
	}
	return n, nil
}

// Register adds a Service (orchestrator, block builder, GRANDPA engine, ...)
// to the node's managed lifecycle at the given priority. Lower priorities
// start first and stop last.
func (n *Node) Register(svc Service, priority int) error {
	return n.lifecycle.Register(svc, priority)
}

// RegisterHealthCheck attaches a named SubsystemChecker consulted by the
// node's /metrics-adjacent health report.
func (n *Node) RegisterHealthCheck(name string, checker SubsystemChecker) {
	n.health.RegisterSubsystem(name, checker)
}

// Events returns the node-wide event bus that subsystems publish
// block-produced/imported/finalized and similar notifications onto.
func (n *Node) Events() *EventBus { return n.events }

// Start starts every registered Service in priority order, then starts the
// RPC HTTP server. Start is idempotent: calling it twice while already
// running is a no-op.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return nil
	}

	n.logger.Info("starting node", "name", n.config.Name, "rpc_addr", n.config.RPCAddr())

	n.health.SetStartTime(time.Now().Unix())

	if errs := n.lifecycle.StartAll(); len(errs) > 0 {
		return fmt.Errorf("node: %d service(s) failed to start: %w", len(errs), errors.Join(errs...))
	}

	go func() {
		n.logger.Info("rpc server listening", "addr", n.config.RPCAddr())
		if err := n.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.logger.Error("rpc server stopped", "err", err)
		}
	}()

	if n.metricsReporter != nil {
		n.metricsReporter.Start()
	}

	n.running = true
	n.logger.Info("node started")
	return nil
}

// Stop shuts down the RPC server and every registered Service in reverse
// priority order.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return nil
	}

	n.logger.Info("stopping node")

	if n.metricsReporter != nil {
		n.metricsReporter.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.httpSrv.Shutdown(ctx); err != nil {
		n.logger.Warn("rpc server shutdown error", "err", err)
	}

	if errs := n.lifecycle.StopAll(); len(errs) > 0 {
		n.logger.Warn("service(s) failed to stop cleanly", "count", len(errs))
	}

	n.running = false
	n.logger.Info("node stopped")
	return nil
}

// Running reports whether the node is currently started.
func (n *Node) Running() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}

// Health returns a consolidated health report across all registered
// subsystem checkers.
func (n *Node) Health() *HealthReport { return n.health.CheckAll() }

// Config returns the node's configuration.
func (n *Node) Config() Config { return n.config }
