package node

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/ed25519"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/p2p"
	tmdb "github.com/tendermint/tm-db"
	"github.com/tendermint/tm-db/memdb"

	cfg "sumeragi/config"
	"sumeragi/consensus"
	"sumeragi/privval"
	"sumeragi/store"
	"sumeragi/types"
)

// 重启前后共用同一组数据库
func sharedDBProvider() DBProvider {
	dbs := make(map[string]tmdb.DB)
	return func(ctx *DBContext) (tmdb.DB, error) {
		db, ok := dbs[ctx.ID]
		if !ok {
			db = memdb.NewDB()
			dbs[ctx.ID] = db
		}
		return db, nil
	}
}

func testPeersDoc(t *testing.T, n int) (*types.PeersDoc, *privval.FilePV) {
	var self *privval.FilePV
	doc := &types.PeersDoc{ChainID: "test-chain"}
	for i := 0; i < n; i++ {
		pv, err := privval.GenFilePV("", cfg.KeyTypeEd25519)
		require.NoError(t, err)
		if i == 0 {
			self = pv
		}
		doc.Peers = append(doc.Peers, *types.NewPeer(pv.PubKeyHex(), fmt.Sprintf("node%d", i), 1.0))
	}
	require.NoError(t, doc.ValidateAndComplete())
	return doc, self
}

func TestDefaultDBProvider(t *testing.T) {
	config := cfg.TestConfig()
	db, err := DefaultDBProvider(&DBContext{"state", config})
	require.NoError(t, err)
	require.NoError(t, db.Set([]byte("k"), []byte("v")))

	config.DBBackend = "rocksdb"
	_, err = DefaultDBProvider(&DBContext{"state", config})
	assert.Error(t, err)
}

func TestNodeRestartRestoresRoster(t *testing.T) {
	config := cfg.TestConfig()
	doc, pv := testPeersDoc(t, 4)
	nodeKey := &p2p.NodeKey{PrivKey: ed25519.GenPrivKey()}
	provider := sharedDBProvider()

	n, err := NewNode(config, pv, nodeKey, doc, provider, log.TestingLogger())
	require.NoError(t, err)
	before := n.Processor().Context().Peers()

	// 轮换视图，新的主节点为原来的第二个节点
	require.NoError(t, n.Processor().Rotate())
	assert.Equal(t, before[1].PubKey, n.Processor().Context().Leader().PubKey)

	// 崩溃前写入提交日志、但尚未应用的交易
	trustTx := types.NewTransaction("alice", &types.PeerSetTrust{PubKey: before[3].PubKey, Trust: 0.5})
	_, err = n.CommitStore().AppendCommit(trustTx, nil)
	require.NoError(t, err)
	assetTx := types.NewTransaction("alice", &types.AssetAdd{Account: "alice", Asset: types.Asset{Name: "coin", Amount: 5}})
	_, err = n.CommitStore().AppendCommit(assetTx, nil)
	require.NoError(t, err)

	restarted, err := NewNode(config, pv, nodeKey, doc, provider, log.TestingLogger())
	require.NoError(t, err)
	cc := restarted.Processor().Context()

	// 轮换保留，降低信任度的节点排到末尾
	order := make([]string, 0, 4)
	for _, p := range cc.Peers() {
		order = append(order, p.PubKey)
	}
	assert.Equal(t, []string{before[1].PubKey, before[2].PubKey, before[0].PubKey, before[3].PubKey}, order)
	assert.EqualValues(t, 2, cc.Round())
	assert.EqualValues(t, 2, cc.CommittedCount())

	// 去重缓存补齐
	status, ok := restarted.Processor().CommitStatus(assetTx.Hash)
	require.True(t, ok)
	assert.Equal(t, consensus.TxCommitted, status)
	_, ok = restarted.Processor().CommitStatus(trustTx.Hash)
	assert.True(t, ok)

	// 再次重启不会重复应用
	again, err := NewNode(config, pv, nodeKey, doc, provider, log.TestingLogger())
	require.NoError(t, err)
	assert.EqualValues(t, 2, again.Processor().Context().Round())
	assert.Equal(t, before[1].PubKey, again.Processor().Context().Leader().PubKey)
}

func TestRepairDedupStopsAtWindow(t *testing.T) {
	commits, err := store.NewCommitStore(memdb.NewDB())
	require.NoError(t, err)
	dedup := consensus.NewDedupCache(memdb.NewDB())

	txs := make([]*types.Transaction, 5)
	for i := range txs {
		txs[i] = types.NewTransaction("alice", &types.AssetAdd{
			Account: "alice", Asset: types.Asset{Name: "coin", Amount: int64(i + 1)},
		})
		_, err := commits.AppendCommit(txs[i], nil)
		require.NoError(t, err)
	}
	for _, i := range []int{0, 1, 3} {
		_, err := dedup.Record(txs[i].Hash, consensus.TxCommitted)
		require.NoError(t, err)
	}

	// 窗口为1：遇到第4笔即停止，第3笔仍缺失
	exec := &countingExecutor{}
	repaired, err := repairDedup(dedup, commits, exec, 1, log.TestingLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)
	assert.True(t, dedup.Has(txs[4].Hash))
	assert.False(t, dedup.Has(txs[2].Hash))

	repaired, err = repairDedup(dedup, commits, exec, 3, log.TestingLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)
	for _, tx := range txs {
		assert.True(t, dedup.Has(tx.Hash))
	}
	// 补齐的交易各执行一次
	assert.Equal(t, 2, exec.n)
}

type countingExecutor struct{ n int }

func (e *countingExecutor) ExecuteTx(*types.Transaction) error {
	e.n++
	return nil
}
