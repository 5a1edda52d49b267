package commands

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tmos "github.com/tendermint/tendermint/libs/os"

	cfg "sumeragi/config"
	"sumeragi/privval"
	"sumeragi/types"
)

func TestInitFilesWritesSinglePeerRoster(t *testing.T) {
	root := t.TempDir()
	conf := cfg.DefaultConfig().SetRoot(root)
	cfg.EnsureRoot(root)

	chainID = "init-chain"
	defer func() { chainID = "" }()
	require.NoError(t, initFilesWithConfig(conf))

	doc, err := types.PeersDocFromFile(conf.PeersFile())
	require.NoError(t, err)
	assert.Equal(t, "init-chain", doc.ChainID)
	require.Len(t, doc.Peers, 1)

	pv := privval.LoadFilePV(conf.PrivValidatorKeyFile())
	assert.Equal(t, pv.PubKeyHex(), doc.Peers[0].PubKey)

	// 再次执行不覆盖已有的文件
	require.NoError(t, initFilesWithConfig(conf))
	again := privval.LoadFilePV(conf.PrivValidatorKeyFile())
	assert.Equal(t, pv.PubKeyHex(), again.PubKeyHex())
}

func TestWriteTestnet(t *testing.T) {
	dir := t.TempDir()
	doc, err := writeTestnet(testnetOptions{
		n:         4,
		outputDir: dir,
		keyType:   cfg.KeyTypeEd25519,
		chainID:   "testnet",
	})
	require.NoError(t, err)
	require.Len(t, doc.Peers, 4)

	for i := 0; i < 4; i++ {
		nodeDir := filepath.Join(dir, "node"+string(rune('0'+i)))
		conf := cfg.DefaultConfig().SetRoot(nodeDir)
		assert.True(t, tmos.FileExists(conf.ConfigFile()))

		loaded, err := types.PeersDocFromFile(conf.PeersFile())
		require.NoError(t, err)
		assert.Equal(t, doc.ChainID, loaded.ChainID)
		assert.Len(t, loaded.Peers, 4)

		pv := privval.LoadFilePV(conf.PrivValidatorKeyFile())
		assert.Equal(t, doc.Peers[i].PubKey, pv.PubKeyHex())
	}
}

func TestWriteTestnetRejectsBadTopology(t *testing.T) {
	_, err := writeTestnet(testnetOptions{n: 0, outputDir: t.TempDir(), keyType: cfg.KeyTypeEd25519, chainID: "c"})
	assert.Error(t, err)

	_, err = writeTestnet(testnetOptions{n: 4, maxFaulty: 2, outputDir: t.TempDir(), keyType: cfg.KeyTypeEd25519, chainID: "c"})
	assert.Error(t, err)
}

func TestHostnameOrIP(t *testing.T) {
	defer func() { startingIPAddr = "" }()

	host, err := hostnameOrIP(2)
	require.NoError(t, err)
	assert.Equal(t, "node2", host)

	startingIPAddr = "192.168.0.10"
	host, err = hostnameOrIP(3)
	require.NoError(t, err)
	assert.Equal(t, "192.168.0.13", host)

	startingIPAddr = "::1"
	_, err = hostnameOrIP(1)
	assert.Error(t, err)
}
