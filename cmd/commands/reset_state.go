package commands

import (
	"os"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"

	cfg "sumeragi/config"
)

// ResetStateCmd removes the commit log, world state and dedup records.
// Keys and the peer roster are kept.
var ResetStateCmd = &cobra.Command{
	Use:     "reset-state",
	Aliases: []string{"reset_state", "unsafe-reset-all"},
	Short:   "(unsafe) Remove all the data of this node, keeping its keys",
	PreRun:  deprecateSnakeCase,
	RunE:    resetState,
}

func resetState(cmd *cobra.Command, args []string) error {
	return resetDBDir(config.DBDir())
}

func resetDBDir(dbDir string) error {
	if tmos.FileExists(dbDir) {
		if err := os.RemoveAll(dbDir); err != nil {
			logger.Error("Error removing all blockchain history", "dir", dbDir, "err", err)
			return err
		}
		logger.Info("Removed all data", "dir", dbDir)
	}
	return tmos.EnsureDir(dbDir, cfg.DefaultDirPerm)
}
