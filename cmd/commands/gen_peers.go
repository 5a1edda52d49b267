package commands

import (
	"fmt"
	"net"
	"path/filepath"

	"github.com/spf13/cobra"
	tmrand "github.com/tendermint/tendermint/libs/rand"
	"github.com/tendermint/tendermint/p2p"
	tmtime "github.com/tendermint/tendermint/types/time"

	cfg "sumeragi/config"
	"sumeragi/privval"
	"sumeragi/types"
)

var (
	nValidators    int
	maxFaulty      int
	outputDir      string
	nodeDirPrefix  string
	startingIPAddr string
	hostnamePrefix string
	p2pPort        int
	testnetKeyType string
)

// GenPeersCmd 为一个测试网络生成所有节点的目录：密钥、配置以及共享的peers文件
var GenPeersCmd = &cobra.Command{
	Use:     "gen-peers",
	Aliases: []string{"gen_peers", "testnet"},
	Short:   "Initialize files for a local testnet sharing one peer roster",
	PreRun:  deprecateSnakeCase,
	RunE:    genPeers,
}

func init() {
	GenPeersCmd.Flags().IntVar(&nValidators, "v", 4, "验证节点数量")
	GenPeersCmd.Flags().IntVar(&maxFaulty, "max-faulty", 0, "容忍的拜占庭节点数，0表示floor(N/3)")
	GenPeersCmd.Flags().StringVar(&outputDir, "o", "./mytestnet", "输出目录")
	GenPeersCmd.Flags().StringVar(&nodeDirPrefix, "node-dir-prefix", "node", "节点目录前缀 (node0, node1, ...)")
	GenPeersCmd.Flags().StringVar(&startingIPAddr, "starting-ip", "", "第一个节点的IP，后续节点依次加一；为空时使用hostname-prefix")
	GenPeersCmd.Flags().StringVar(&hostnamePrefix, "hostname-prefix", "node", "节点hostname前缀 (node0, node1, ...)")
	GenPeersCmd.Flags().IntVar(&p2pPort, "p2p-port", 26656, "P2P端口")
	GenPeersCmd.Flags().StringVar(&testnetKeyType, "key-type", cfg.KeyTypeEd25519, "签名算法: ed25519 | bls")
	GenPeersCmd.Flags().StringVar(&chainID, "chain-id", "", "链名，不指定则随机生成")
}

func genPeers(cmd *cobra.Command, args []string) error {
	if chainID == "" {
		chainID = "chain-" + tmrand.Str(6)
	}
	doc, err := writeTestnet(testnetOptions{
		n:         nValidators,
		maxFaulty: maxFaulty,
		outputDir: outputDir,
		keyType:   testnetKeyType,
		chainID:   chainID,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Successfully initialized %v node directories for chain %v\n", len(doc.Peers), doc.ChainID)
	return nil
}

type testnetOptions struct {
	n         int
	maxFaulty int
	outputDir string
	keyType   string
	chainID   string
}

func writeTestnet(opts testnetOptions) (*types.PeersDoc, error) {
	if opts.n <= 0 {
		return nil, fmt.Errorf("need at least one validator, got %d", opts.n)
	}
	if 2*opts.maxFaulty+1 > opts.n {
		return nil, fmt.Errorf("%d validators can not tolerate %d faulty", opts.n, opts.maxFaulty)
	}

	doc := &types.PeersDoc{
		ChainID:     opts.chainID,
		GenesisTime: tmtime.Now(),
		MaxFaulty:   opts.maxFaulty,
	}
	configs := make([]*cfg.Config, opts.n)

	for i := 0; i < opts.n; i++ {
		nodeDir := filepath.Join(opts.outputDir, fmt.Sprintf("%s%d", nodeDirPrefix, i))
		conf := cfg.DefaultConfig().SetRoot(nodeDir)
		conf.Moniker = fmt.Sprintf("%s%d", nodeDirPrefix, i)
		conf.P2P.ListenAddress = fmt.Sprintf("tcp://0.0.0.0:%d", p2pPort)
		conf.Consensus.KeyType = opts.keyType
		cfg.EnsureRoot(nodeDir)
		configs[i] = conf

		pv, err := privval.GenFilePV(conf.PrivValidatorKeyFile(), opts.keyType)
		if err != nil {
			return nil, err
		}
		pv.Save()
		nodeKey, err := p2p.LoadOrGenNodeKey(conf.NodeKeyFile())
		if err != nil {
			return nil, err
		}

		host, err := hostnameOrIP(i)
		if err != nil {
			return nil, err
		}
		address := p2p.IDAddressString(nodeKey.ID(), fmt.Sprintf("%s:%d", host, p2pPort))
		doc.Peers = append(doc.Peers, *types.NewPeer(pv.PubKeyHex(), address, 1.0))
	}

	if err := doc.ValidateAndComplete(); err != nil {
		return nil, err
	}
	for _, conf := range configs {
		if err := doc.SaveAs(conf.PeersFile()); err != nil {
			return nil, err
		}
		cfg.WriteConfigFile(conf.ConfigFile(), conf)
	}
	return doc, nil
}

func hostnameOrIP(i int) (string, error) {
	if startingIPAddr == "" {
		return fmt.Sprintf("%s%d", hostnamePrefix, i), nil
	}
	ip := net.ParseIP(startingIPAddr).To4()
	if ip == nil {
		return "", fmt.Errorf("%v: non ipv4 address", startingIPAddr)
	}
	ip = append(net.IP(nil), ip...)
	for j := 0; j < i; j++ {
		ip[3]++
	}
	return ip.String(), nil
}
