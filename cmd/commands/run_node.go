package commands

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"

	nm "sumeragi/node"
	"sumeragi/types"
)

// AddNodeFlags exposes some common configuration options on the command-line
// These are exposed for convenience of commands embedding a node
func AddNodeFlags(cmd *cobra.Command) {
	// bind flags
	cmd.Flags().String("moniker", config.Moniker, "node name")

	// roster and keys
	cmd.Flags().String("peers_file", config.Peers, "peer roster file")
	cmd.Flags().String("priv_validator_key_file", config.PrivValidatorKey, "validator key file")
	cmd.Flags().String("db_backend", config.DBBackend, "database backend: goleveldb | memdb")
	cmd.Flags().String("db_dir", config.DBPath, "database directory")

	// rpc flags
	cmd.Flags().String("rpc.laddr", config.RPC.ListenAddress, "RPC listen address. Port required")

	// p2p flags
	cmd.Flags().String("p2p.laddr", config.P2P.ListenAddress, "node listen address. (0.0.0.0:0 means any interface, any port)")
	cmd.Flags().String("p2p.external-address", config.P2P.ExternalAddress, "ip:port address to advertise to peers for them to dial")

	// consensus flags
	cmd.Flags().Int("consensus.max_faulty", config.Consensus.MaxFaulty, "tolerated byzantine peers, 0 derives floor(N/3)")
	cmd.Flags().Duration("consensus.panic_timeout", config.Consensus.PanicTimeout, "time a chain segment gets before the signing window widens")
	cmd.Flags().Int("consensus.concurrency", config.Consensus.Concurrency, "consensus worker goroutines")
}

// NewRunNodeCmd returns the command that allows the CLI to start a node.
// It can be used with a custom node provider.
func NewRunNodeCmd(nodeProvider nm.Provider) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run-node",
		Aliases: []string{"node", "start"},
		Short:   "Run the sumeragi node",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := nodeProvider(config, logger)
			if err != nil {
				if errors.Is(err, types.ErrTopology) {
					tmos.Exit(fmt.Sprintf("invalid peer roster: %v", err))
				}
				return fmt.Errorf("failed to create node: %w", err)
			}

			if err := n.Start(); err != nil {
				return fmt.Errorf("failed to start node: %w", err)
			}

			logger.Info("Started node", "nodeInfo", n.Switch().NodeInfo())

			// Stop upon receiving SIGTERM or CTRL-C.
			tmos.TrapSignal(logger, func() {
				if n.IsRunning() {
					if err := n.Stop(); err != nil {
						logger.Error("unable to stop the node", "error", err)
					}
				}
			})

			// Run forever.
			select {}
		},
	}

	AddNodeFlags(cmd)
	return cmd
}
