package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oprelay/oprelay/bridge"
	"github.com/oprelay/oprelay/config"
	"github.com/oprelay/oprelay/eventbus"
	"github.com/oprelay/oprelay/eventlog"
	"github.com/oprelay/oprelay/libs/log"
	"github.com/oprelay/oprelay/libs/service"
	"github.com/oprelay/oprelay/rpc"
	"github.com/oprelay/oprelay/types"
	"github.com/oprelay/oprelay/version"

	dbm "github.com/tendermint/tm-db"
)

// nodeImpl is the highest level interface to a full oprelay node. It
// includes all configuration information and running services.
type nodeImpl struct {
	service.BaseService
	logger log.Logger

	// config
	config     *config.Config
	genesisDoc *types.GenesisDoc // initial conditions of the bridge

	// services
	bridge     *bridge.Bridge
	bridgeDB   dbm.DB
	eventBus   *eventbus.EventBus
	eventLog   *eventlog.Service
	eventSinks []eventlog.EventSink

	rpcEnv        *rpc.Environment
	rpcListener   net.Listener
	prometheusSrv *http.Server
}

// genesisDocProvider returns a GenesisDoc. It allows the GenesisDoc to be
// pulled from sources other than the filesystem, for instance from a remote
// registry.
type genesisDocProvider func() (*types.GenesisDoc, error)

// defaultGenesisDocProviderFunc returns a GenesisDoc from the genesis file
// named by the configuration.
func defaultGenesisDocProviderFunc(cfg *config.Config) genesisDocProvider {
	return func() (*types.GenesisDoc, error) {
		return types.GenesisDocFromFile(cfg.GenesisFile())
	}
}

// New constructs an oprelay node from the genesis file and databases named
// by the configuration. It satisfies config.ServiceProvider.
func New(ctx context.Context, cfg *config.Config, logger log.Logger) (service.Service, error) {
	return makeNode(ctx, cfg, defaultGenesisDocProviderFunc(cfg), config.DefaultDBProvider, logger)
}

// makeNode assembles the bridge and its supporting services. The event bus
// and event log are started here, before the bridge can publish its first
// lifecycle event; the RPC and metrics listeners wait for OnStart.
func makeNode(
	ctx context.Context,
	cfg *config.Config,
	genProvider genesisDocProvider,
	dbProvider config.DBProvider,
	logger log.Logger,
) (service.Service, error) {
	if err := cfg.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("error in config file: %w", err)
	}

	genDoc, err := genProvider()
	if err != nil {
		return nil, err
	}

	verifier, err := createCommitVerifier(genDoc)
	if err != nil {
		return nil, err
	}

	bridgeDB, err := initDBs(cfg, dbProvider)
	if err != nil {
		return nil, err
	}

	store, err := bridge.NewStore(bridgeDB)
	if err != nil {
		return nil, err
	}

	escrow, err := createEscrow(cfg, genDoc)
	if err != nil {
		return nil, err
	}

	nodeMetrics := defaultMetricsProvider(cfg.Instrumentation)(genDoc.ChainID)

	eventBus, err := createAndStartEventBus(ctx, logger)
	if err != nil {
		return nil, err
	}

	eventLog, eventSinks, err := createAndStartEventLogService(
		ctx, cfg, dbProvider, eventBus, logger, genDoc.ChainID, nodeMetrics.eventlog)
	if err != nil {
		return nil, err
	}

	b, err := bridge.New(
		logger.With("module", "bridge"),
		store,
		escrow,
		verifier,
		genDoc.Params,
		bridge.WithMetrics(nodeMetrics.bridge),
		bridge.WithEventPublisher(eventBus),
	)
	if err != nil {
		return nil, err
	}

	// Safe to repeat across restarts; a different genesis hash on the same
	// database is refused.
	if err := b.InitGenesis(genDoc.GenesisHash); err != nil {
		return nil, fmt.Errorf("cannot initialize from genesis: %w", err)
	}

	logNodeStartupInfo(logger, genDoc, b)

	node := &nodeImpl{
		logger:     logger,
		config:     cfg,
		genesisDoc: genDoc,

		bridge:     b,
		bridgeDB:   bridgeDB,
		eventBus:   eventBus,
		eventLog:   eventLog,
		eventSinks: eventSinks,

		rpcEnv: &rpc.Environment{
			Logger:     logger.With("module", "rpc"),
			Bridge:     b,
			GenDoc:     genDoc,
			EventSinks: eventSinks,
			Moniker:    cfg.Moniker,
		},
	}
	node.BaseService = *service.NewBaseService(logger, "Node", node)
	return node, nil
}

// OnStart starts the RPC and metrics listeners. The bridge itself has no
// run loop; it acts only when a caller does.
func (n *nodeImpl) OnStart(ctx context.Context) error {
	if n.config.Instrumentation.Prometheus && n.config.Instrumentation.PrometheusListenAddr != "" {
		n.prometheusSrv = n.startPrometheusServer(ctx, n.config.Instrumentation.PrometheusListenAddr)
	}

	listener, err := rpc.Listen(n.config.RPC.ListenAddress, n.config.RPC.MaxOpenConnections)
	if err != nil {
		return err
	}
	n.rpcListener = listener

	serveCfg := rpc.DefaultConfig()
	serveCfg.MaxBodyBytes = n.config.RPC.MaxBodyBytes
	serveCfg.MaxHeaderBytes = n.config.RPC.MaxHeaderBytes
	serveCfg.MaxOpenConnections = n.config.RPC.MaxOpenConnections

	rpcLogger := n.logger.With("module", "rpc")
	handler := n.rpcEnv.Handler(n.config.RPC)

	go func() {
		var err error
		if n.config.RPC.IsTLSEnabled() {
			err = rpc.ServeTLS(ctx, listener, handler,
				n.config.RPC.CertFile(), n.config.RPC.KeyFile(), rpcLogger, serveCfg)
		} else {
			err = rpc.Serve(ctx, listener, handler, rpcLogger, serveCfg)
		}
		// Both context cancellation and closing the listener end the
		// server; neither is worth an error entry.
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
			n.logger.Error("RPC server terminated", "err", err)
		}
	}()

	return nil
}

// OnStop stops the node's running services: the listeners first so no new
// operations arrive, then the event pipeline, then the stores underneath.
func (n *nodeImpl) OnStop() {
	n.logger.Info("Stopping Node")

	if n.rpcListener != nil {
		n.logger.Info("Closing rpc listener", "listener", n.rpcListener)
		if err := n.rpcListener.Close(); err != nil {
			n.logger.Error("error closing listener", "listener", n.rpcListener, "err", err)
		}
	}

	if n.prometheusSrv != nil {
		if err := n.prometheusSrv.Shutdown(context.Background()); err != nil {
			n.logger.Error("Prometheus HTTP server Shutdown", "err", err)
		}
	}

	if n.eventLog.IsRunning() {
		if err := n.eventLog.Stop(); err != nil {
			n.logger.Error("failed to stop event log service", "err", err)
		}
	}
	if n.eventBus.IsRunning() {
		if err := n.eventBus.Stop(); err != nil {
			n.logger.Error("failed to stop event bus", "err", err)
		}
	}

	for _, es := range n.eventSinks {
		if err := es.Stop(); err != nil {
			n.logger.Error("failed to stop event sink", "err", err)
		}
	}

	if err := n.bridgeDB.Close(); err != nil {
		n.logger.Error("problem closing bridge database", "err", err)
	}
}

// startPrometheusServer starts a Prometheus HTTP server, listening for
// metrics collectors on addr.
func (n *nodeImpl) startPrometheusServer(ctx context.Context, addr string) *http.Server {
	srv := &http.Server{
		Addr: addr,
		Handler: promhttp.InstrumentMetricHandler(
			prometheus.DefaultRegisterer, promhttp.HandlerFor(
				prometheus.DefaultGatherer,
				promhttp.HandlerOpts{MaxRequestsInFlight: n.config.Instrumentation.MaxOpenConnections},
			),
		),
	}

	signal := make(chan struct{})
	go func() {
		defer close(signal)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			n.logger.Error("Prometheus HTTP server ListenAndServe", "err", err)
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		case <-signal:
		}
	}()

	return srv
}

func logNodeStartupInfo(logger log.Logger, genDoc *types.GenesisDoc, b *bridge.Bridge) {
	logger.Info("Version info", "version", version.Version, "chain_id", genDoc.ChainID)
	logger.Info("Bridge state",
		"genesis_hash", genDoc.GenesisHash,
		"host_height", b.HostHeight(),
		"pending", b.PendingCount(),
	)
}
