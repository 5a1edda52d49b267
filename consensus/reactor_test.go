package consensus

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tmcfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/p2p"

	cfg "sumeragi/config"
	"sumeragi/privval"
	"sumeragi/types"
)

// makeAndConnectReactors connects n reactors through n switches. The roster
// is only known once the switches have node ids, so the processors are
// attached afterwards.
func makeAndConnectReactors(t *testing.T, n int) ([]*Reactor, []*testNode) {
	logger := consensusLogger()
	reactors := make([]*Reactor, n)
	for i := 0; i < n; i++ {
		reactors[i] = NewReactor(nil)
		reactors[i].SetLogger(logger.With("validator", i))
	}

	switches := p2p.MakeConnectedSwitches(tmcfg.TestP2PConfig(), n, func(i int, s *p2p.Switch) *p2p.Switch {
		s.AddReactor("CONSENSUS", reactors[i])
		return s
	}, p2p.Connect2Switches)
	t.Cleanup(func() {
		for _, sw := range switches {
			_ = sw.Stop()
		}
	})

	pvs := make([]*privval.FilePV, n)
	peers := make([]*types.Peer, n)
	for i := 0; i < n; i++ {
		pv, err := privval.GenFilePV("", cfg.KeyTypeEd25519)
		require.NoError(t, err)
		pvs[i] = pv
		peers[i] = types.NewPeer(pv.PubKeyHex(), string(switches[i].NodeInfo().ID()), 1.0)
	}
	table, err := types.NewPeerTable(peers)
	require.NoError(t, err)

	nodes := make([]*testNode, n)
	for i := 0; i < n; i++ {
		ctx, err := NewConsensusContext(table, pvs[i].PubKeyHex(), 0)
		require.NoError(t, err)
		commitLog := newMemCommitLog()
		p := NewEventProcessor(cfg.TestConsensusConfig(), ctx, pvs[i], privval.NewKeyVerifier(cfg.KeyTypeEd25519),
			WithCommitLog(commitLog))
		p.SetLogger(logger.With("validator", i))
		reactors[i].SetProcessor(p)
		require.NoError(t, p.Start())
		nodes[i] = &testNode{processor: p, pv: pvs[i], log: commitLog, address: peers[i].Address}
	}
	t.Cleanup(func() {
		for _, node := range nodes {
			_ = node.processor.Stop()
		}
	})

	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].processor.Context().MyIndex() < nodes[j].processor.Context().MyIndex()
	})
	return reactors, nodes
}

// 通过p2p交换事件，四个节点都提交同一笔交易
func TestReactorCommitOverSwitches(t *testing.T) {
	_, nodes := makeAndConnectReactors(t, 4)

	tx := newTestTx(t, "p2p")
	require.NoError(t, nodes[0].processor.SubmitTransaction(tx))
	waitForCommits(t, nodes, 1)

	for i, node := range nodes {
		assert.Equalf(t, 1, node.log.Appends(tx.Key()), "#%d", i)
	}
}

// 交易先到达非leader节点，通过TransactionChannel交给leader
func TestReactorRelaysTransactionToLeader(t *testing.T) {
	_, nodes := makeAndConnectReactors(t, 4)

	tx := newTestTx(t, "relay")
	require.NoError(t, nodes[3].processor.SubmitTransaction(tx))
	waitForCommits(t, nodes, 1)
}

func TestReactorSendToUnknownPeer(t *testing.T) {
	reactors, _ := makeAndConnectReactors(t, 2)
	ev := types.NewConsensusEvent(newTestTx(t, "nowhere"))
	assert.Error(t, reactors[0].Send("deadbeef@127.0.0.1:1", ev))
	assert.Equal(t, "deadbeef", nodeIDOf("deadbeef@127.0.0.1:1"))
	assert.Equal(t, "deadbeef", nodeIDOf("deadbeef"))
}
