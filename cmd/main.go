package main

import (
	"os"
	"path/filepath"

	"github.com/tendermint/tendermint/libs/cli"

	cmd "sumeragi/cmd/commands"
	cfg "sumeragi/config"
	nm "sumeragi/node"
)

func main() {
	rootCmd := cmd.RootCmd

	rootCmd.AddCommand(
		cmd.InitFilesCmd,
		cli.NewCompletionCmd(rootCmd, true),
	)

	// NOTE:
	// Users wishing to:
	//	* Use an external signer for their validators
	//	* Supply a peer roster from another source
	//	* Provide their own DB implementation
	// can copy this file and use something other than the
	// DefaultNewNode function
	nodeFunc := nm.DefaultNewNode

	// Create & start node
	rootCmd.AddCommand(
		cmd.GenNodeKeyCmd,
		cmd.GenValidatorCmd,
		cmd.ShowNodeIDCmd,
		cmd.ShowValidatorCmd,
		cmd.GenPeersCmd,
		cmd.ResetStateCmd,
		cmd.NewRunNodeCmd(nodeFunc),
	)
	cmd := cli.PrepareBaseCmd(rootCmd, "SUMERAGI", os.ExpandEnv(filepath.Join("$HOME", cfg.DefaultHomeDir)))

	if err := cmd.Execute(); err != nil {
		panic(err)
	}
}
