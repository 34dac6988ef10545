package node

import (
	"context"
	"fmt"

	"github.com/oprelay/oprelay/bridge"
	"github.com/oprelay/oprelay/config"
	"github.com/oprelay/oprelay/eventbus"
	"github.com/oprelay/oprelay/eventlog"
	"github.com/oprelay/oprelay/eventlog/sink"
	"github.com/oprelay/oprelay/libs/log"
	"github.com/oprelay/oprelay/light"
	"github.com/oprelay/oprelay/types"

	dbm "github.com/tendermint/tm-db"
)

func initDBs(cfg *config.Config, dbProvider config.DBProvider) (dbm.DB, error) {
	bridgeDB, err := dbProvider(&config.DBContext{ID: "bridge", Config: cfg})
	if err != nil {
		return nil, fmt.Errorf("unable to initialize bridge store: %w", err)
	}
	return bridgeDB, nil
}

// createCommitVerifier builds the light client verifier over the remote
// validator set fixed at genesis.
func createCommitVerifier(genDoc *types.GenesisDoc) (bridge.CommitVerifier, error) {
	vals, err := genDoc.ValidatorSet()
	if err != nil {
		return nil, err
	}
	provider, err := light.NewStaticProvider(vals)
	if err != nil {
		return nil, err
	}
	return light.NewVerifier(genDoc.ChainID, provider), nil
}

// createEscrow builds the bond escrow over a bank seeded with the genesis
// allocations. Bonds are held by the well-known module account; the
// configured retention address receives the retained half of payouts.
func createEscrow(cfg *config.Config, genDoc *types.GenesisDoc) (*bridge.Escrow, error) {
	bank := bridge.NewMapBank()
	for _, alloc := range genDoc.Allocations {
		bank.Deposit(alloc.Address, alloc.Amount)
	}

	retentionAddr, err := cfg.Store.RetentionAddr()
	if err != nil {
		return nil, err
	}
	return bridge.NewEscrow(bank, bridge.EscrowAddress, retentionAddr), nil
}

func createAndStartEventBus(ctx context.Context, logger log.Logger) (*eventbus.EventBus, error) {
	eventBus := eventbus.NewDefault(logger.With("module", "events"))
	if err := eventBus.Start(ctx); err != nil {
		return nil, err
	}
	return eventBus, nil
}

func createAndStartEventLogService(
	ctx context.Context,
	cfg *config.Config,
	dbProvider config.DBProvider,
	eventBus *eventbus.EventBus,
	logger log.Logger,
	chainID string,
	metrics *eventlog.Metrics,
) (*eventlog.Service, []eventlog.EventSink, error) {
	eventSinks, err := sink.EventSinksFromConfig(cfg, dbProvider, chainID)
	if err != nil {
		return nil, nil, err
	}

	evlService := eventlog.NewService(eventlog.ServiceArgs{
		Sinks:    eventSinks,
		EventBus: eventBus,
		Logger:   logger.With("module", "eventlog"),
		Metrics:  metrics,
	})
	if err := evlService.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("error starting event log service: %w", err)
	}
	return evlService, eventSinks, nil
}

// nodeMetrics groups the metric recorders handed to each subsystem.
type nodeMetrics struct {
	bridge   *bridge.Metrics
	eventlog *eventlog.Metrics
}

// metricsProvider returns bridge and eventlog Metrics.
type metricsProvider func(chainID string) *nodeMetrics

// defaultMetricsProvider returns Metrics built using the Prometheus client
// library if Prometheus is enabled. Otherwise, it returns no-op Metrics.
func defaultMetricsProvider(cfg *config.InstrumentationConfig) metricsProvider {
	return func(chainID string) *nodeMetrics {
		if cfg.Prometheus {
			return &nodeMetrics{
				bridge.PrometheusMetrics(cfg.Namespace, "chain_id", chainID),
				eventlog.PrometheusMetrics(cfg.Namespace, "chain_id", chainID),
			}
		}
		return &nodeMetrics{
			bridge.NopMetrics(),
			eventlog.NopMetrics(),
		}
	}
}
