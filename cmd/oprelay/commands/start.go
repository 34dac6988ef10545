package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	cfg "github.com/oprelay/oprelay/config"
	tmos "github.com/oprelay/oprelay/libs/os"
)

// AddNodeFlags exposes some common configuration options on the command
// line. These are exposed for convenience of commands embedding an oprelay
// node.
func AddNodeFlags(cmd *cobra.Command) {
	cmd.Flags().String("moniker", config.Moniker, "node name")
	cmd.Flags().String("db_backend", config.DBBackend,
		"database backend: goleveldb | cleveldb | boltdb | rocksdb | badgerdb")
	cmd.Flags().String("db_dir", config.DBPath, "database directory")

	cmd.Flags().String("rpc.laddr", config.RPC.ListenAddress,
		"RPC listen address. Port required")

	cmd.Flags().Bool("instrumentation.prometheus", config.Instrumentation.Prometheus,
		"serve Prometheus metrics")
	cmd.Flags().String("instrumentation.prometheus_listen_addr", config.Instrumentation.PrometheusListenAddr,
		"Prometheus listen address")
}

// NewStartCmd returns the command that runs an oprelay node.
func NewStartCmd(nodeProvider cfg.ServiceProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"node", "run"},
		Short:   "Run the oprelay node",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			n, err := nodeProvider(ctx, config, logger)
			if err != nil {
				return fmt.Errorf("failed to create node: %w", err)
			}

			if err := n.Start(ctx); err != nil {
				return fmt.Errorf("failed to start node: %w", err)
			}

			logger.Info("Started node", "moniker", config.Moniker)

			// Stop upon receiving SIGTERM or CTRL-C.
			tmos.TrapSignal(logger, func() {
				cancel()
				n.Wait()
			})

			// Run forever.
			select {}
		},
	}

	AddNodeFlags(cmd)
	return cmd
}
