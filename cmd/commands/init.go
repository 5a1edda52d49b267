package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"
	tmrand "github.com/tendermint/tendermint/libs/rand"
	"github.com/tendermint/tendermint/p2p"
	tmtime "github.com/tendermint/tendermint/types/time"

	cfg "sumeragi/config"
	"sumeragi/privval"
	"sumeragi/types"
)

var chainID string

// InitFilesCmd initialises a fresh single peer node.
var InitFilesCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a node with its keys and a one peer roster",
	RunE:  initFiles,
}

func init() {
	InitFilesCmd.Flags().StringVar(&keyType, "key-type", "", "签名算法: ed25519 | bls")
	InitFilesCmd.Flags().StringVar(&chainID, "chain-id", "", "链名，不指定则随机生成")
}

func initFiles(cmd *cobra.Command, args []string) error {
	return initFilesWithConfig(config)
}

func initFilesWithConfig(config *cfg.Config) error {
	if keyType != "" && keyType != config.Consensus.KeyType {
		config.Consensus.KeyType = keyType
		cfg.WriteConfigFile(config.ConfigFile(), config)
		logger.Info("Updated key type in config", "keyType", keyType, "path", config.ConfigFile())
	}

	// private validator
	privValKeyFile := config.PrivValidatorKeyFile()

	var pv *privval.FilePV
	if tmos.FileExists(privValKeyFile) {
		pv = privval.LoadFilePV(privValKeyFile)
		logger.Info("Found private validator", "keyFile", privValKeyFile)
	} else {
		var err error
		pv, err = privval.GenFilePV(privValKeyFile, config.Consensus.KeyType)
		if err != nil {
			return err
		}
		pv.Save()
		logger.Info("Generated private validator", "keyFile", privValKeyFile)
	}

	nodeKeyFile := config.NodeKeyFile()
	nodeKey, err := p2p.LoadOrGenNodeKey(nodeKeyFile)
	if err != nil {
		return err
	}
	logger.Info("Node key ready", "path", nodeKeyFile, "ID", nodeKey.ID())

	// peers file
	peersFile := config.PeersFile()
	if tmos.FileExists(peersFile) {
		logger.Info("Found peers file", "path", peersFile)
		return nil
	}

	if chainID == "" {
		chainID = fmt.Sprintf("test-chain-%v", tmrand.Str(6))
	}
	doc := types.PeersDoc{
		ChainID:     chainID,
		GenesisTime: tmtime.Now(),
		Peers: []types.Peer{
			*types.NewPeer(pv.PubKeyHex(), p2p.IDAddressString(nodeKey.ID(), config.P2P.ListenAddress), 1.0),
		},
	}
	if err := doc.SaveAs(peersFile); err != nil {
		return err
	}
	logger.Info("Generated peers file", "path", peersFile)
	return nil
}
