package consensus

import (
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log/term"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"

	cfg "sumeragi/config"
	"sumeragi/privval"
	"sumeragi/types"
)

const waitTimeout = 5 * time.Second

// consensusLogger is a TestingLogger which uses a different color for each
// validator ("validator" key must exist).
func consensusLogger() log.Logger {
	return log.TestingLoggerWithColorFn(func(keyvals ...interface{}) term.FgBgColor {
		for i := 0; i < len(keyvals)-1; i += 2 {
			if keyvals[i] == "validator" {
				return term.FgBgColor{Fg: term.Color(uint8(keyvals[i+1].(int) + 1))}
			}
		}
		return term.FgBgColor{}
	})
}

//-----------------------------------------------------------------------------
// in-memory network

// memNetwork connects processors by address. Messages are encoded and
// decoded on the way like on the wire. Addresses marked down swallow
// everything sent to them.
type memNetwork struct {
	mtx   sync.RWMutex
	nodes map[string]*EventProcessor
	down  map[string]bool

	statsMtx sync.Mutex
	sent     int
	// hash -> number of Committed events put on the wire
	commitAnnounces map[string]int
}

func newMemNetwork() *memNetwork {
	return &memNetwork{
		nodes:           make(map[string]*EventProcessor),
		down:            make(map[string]bool),
		commitAnnounces: make(map[string]int),
	}
}

func (net *memNetwork) join(address string, p *EventProcessor) {
	net.mtx.Lock()
	defer net.mtx.Unlock()
	net.nodes[address] = p
}

func (net *memNetwork) setDown(address string) {
	net.mtx.Lock()
	defer net.mtx.Unlock()
	net.down[address] = true
}

func (net *memNetwork) setUp(address string) {
	net.mtx.Lock()
	defer net.mtx.Unlock()
	delete(net.down, address)
}

func (net *memNetwork) target(address string) (*EventProcessor, bool) {
	net.mtx.RLock()
	defer net.mtx.RUnlock()
	if net.down[address] {
		return nil, true
	}
	p, ok := net.nodes[address]
	return p, ok
}

func (net *memNetwork) Sent() int {
	net.statsMtx.Lock()
	defer net.statsMtx.Unlock()
	return net.sent
}

func (net *memNetwork) record(ev *types.ConsensusEvent) {
	net.statsMtx.Lock()
	defer net.statsMtx.Unlock()
	net.sent++
}

func (net *memNetwork) recordAnnounce(ev *types.ConsensusEvent) {
	net.statsMtx.Lock()
	defer net.statsMtx.Unlock()
	net.commitAnnounces[ev.Key()]++
}

func (net *memNetwork) Announces(hash string) int {
	net.statsMtx.Lock()
	defer net.statsMtx.Unlock()
	return net.commitAnnounces[hash]
}

type memTransport struct {
	net  *memNetwork
	self string
	ctx  *ConsensusContext
}

var _ Transport = (*memTransport)(nil)

func (mt *memTransport) Send(address string, ev *types.ConsensusEvent) error {
	mt.net.record(ev)
	p, ok := mt.net.target(address)
	if !ok {
		return fmt.Errorf("unknown address %v", address)
	}
	if p == nil {
		return nil
	}
	bz, err := tmjson.Marshal(ev)
	if err != nil {
		return err
	}
	var decoded types.ConsensusEvent
	if err := tmjson.Unmarshal(bz, &decoded); err != nil {
		return err
	}
	return p.SubmitEvent(&decoded, mt.self)
}

func (mt *memTransport) Broadcast(ev *types.ConsensusEvent) error {
	if ev.GetStatus() == types.StatusCommitted {
		mt.net.recordAnnounce(ev)
	}
	for _, peer := range mt.ctx.ActivePeers() {
		_ = mt.Send(peer.Address, ev)
	}
	return nil
}

func (mt *memTransport) SendTransaction(address string, tx *types.Transaction) error {
	p, ok := mt.net.target(address)
	if !ok {
		return fmt.Errorf("unknown address %v", address)
	}
	if p == nil {
		return nil
	}
	return p.SubmitTransaction(tx)
}

//-----------------------------------------------------------------------------
// commit log

type memCommitLog struct {
	mtx     sync.Mutex
	height  int64
	appends map[string]int
}

func newMemCommitLog() *memCommitLog {
	return &memCommitLog{appends: make(map[string]int)}
}

// AppendCommit refuses a hash logged before, like the commit store.
func (l *memCommitLog) AppendCommit(tx *types.Transaction, ev *types.ConsensusEvent) (int64, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if l.appends[tx.Key()] > 0 {
		return 0, errors.Wrapf(types.ErrDuplicate, "%v already logged", tx.Key())
	}
	l.appends[tx.Key()]++
	l.height++
	return l.height, nil
}

func (l *memCommitLog) Appends(hash string) int {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.appends[hash]
}

//-----------------------------------------------------------------------------
// test network

type testNode struct {
	processor *EventProcessor
	pv        *privval.FilePV
	log       *memCommitLog
	address   string
}

// newTestNetwork starts n processors on an in-memory network. Nodes are
// returned in chain order, so nodes[0] is the leader.
func newTestNetwork(t *testing.T, n int) (*memNetwork, []*testNode) {
	net := newMemNetwork()
	nodes := makeTestNodes(t, n, net)
	for _, node := range nodes {
		require.NoError(t, node.processor.Start())
	}
	t.Cleanup(func() {
		for _, node := range nodes {
			_ = node.processor.Stop()
		}
	})
	return net, nodes
}

// makeTestNodes builds but does not start the processors.
func makeTestNodes(t *testing.T, n int, net *memNetwork) []*testNode {
	pvs := make([]*privval.FilePV, n)
	peers := make([]*types.Peer, n)
	for i := 0; i < n; i++ {
		pv, err := privval.GenFilePV("", cfg.KeyTypeEd25519)
		require.NoError(t, err)
		pvs[i] = pv
		peers[i] = types.NewPeer(pv.PubKeyHex(), fmt.Sprintf("node%d", i), 1.0)
	}
	table, err := types.NewPeerTable(peers)
	require.NoError(t, err)

	logger := consensusLogger()
	nodes := make([]*testNode, n)
	for i := 0; i < n; i++ {
		ctx, err := NewConsensusContext(table, pvs[i].PubKeyHex(), 0)
		require.NoError(t, err)

		commitLog := newMemCommitLog()
		tr := &memTransport{net: net, self: peers[i].Address, ctx: ctx}
		p := NewEventProcessor(cfg.TestConsensusConfig(), ctx, pvs[i], privval.NewKeyVerifier(cfg.KeyTypeEd25519),
			WithTransport(tr), WithCommitLog(commitLog))
		p.SetLogger(logger.With("validator", i))
		net.join(peers[i].Address, p)

		nodes[i] = &testNode{processor: p, pv: pvs[i], log: commitLog, address: peers[i].Address}
	}

	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].processor.Context().MyIndex() < nodes[j].processor.Context().MyIndex()
	})
	return nodes
}

func newTestTx(t *testing.T, name string) *types.Transaction {
	tx := types.NewTransaction("alice", &types.AssetAdd{
		Account: "alice",
		Asset:   types.Asset{Name: name, Amount: 10},
	})
	require.NoError(t, tx.ValidateBasic())
	return tx
}

func signedEvent(t *testing.T, tx *types.Transaction, signers ...*testNode) *types.ConsensusEvent {
	ev := types.NewConsensusEvent(tx)
	for _, s := range signers {
		sig, err := s.pv.SignDigest(tx.Hash)
		require.NoError(t, err)
		require.NoError(t, ev.AddSignature(types.Signature{PubKey: s.pv.PubKeyHex(), Signature: sig}))
	}
	require.NoError(t, ev.Advance(types.StatusForwarding))
	return ev
}

func waitForCommits(t *testing.T, nodes []*testNode, want int64) {
	for i, node := range nodes {
		node := node
		require.Eventuallyf(t, func() bool {
			return node.processor.CommitCount() == want
		}, waitTimeout, 10*time.Millisecond, "#%d committed %d, want %d", i, node.processor.CommitCount(), want)
	}
}
