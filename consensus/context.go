package consensus

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	cstypes "sumeragi/consensus/types"
	"sumeragi/types"
)

// ConsensusContext is the session state shared by every worker: the ordered
// roster, this node's role and the fault parameters derived from it.
//
// Reads take the read lock; topology changes take the write lock and
// re-derive every field. The counters are atomics.
type ConsensusContext struct {
	// atomic, first for 64-bit alignment
	committedCount int64
	order          uint64
	panicCount     int32

	mtx sync.RWMutex

	peers    *types.PeerTable
	myPubKey string

	// f as configured, 0 derives floor(N/3)
	configuredFaulty int

	maxFaulty      int
	proxyTailIndex int
	myIndex        int
	isLeader       bool
	round          int64
}

// NewConsensusContext orders peers and derives the role of myPubKey.
// An empty roster, a key outside the roster or an f the roster can not
// tolerate is a topology error.
func NewConsensusContext(peers *types.PeerTable, myPubKey string, maxFaulty int) (*ConsensusContext, error) {
	if peers == nil || peers.Len() == 0 {
		return nil, errors.Wrap(types.ErrTopology, "empty peer table")
	}
	if err := peers.ValidateBasic(); err != nil {
		return nil, errors.Wrap(types.ErrTopology, err.Error())
	}
	cc := &ConsensusContext{
		peers:            peers.Copy(),
		myPubKey:         strings.ToUpper(myPubKey),
		configuredFaulty: maxFaulty,
	}
	cc.peers.Replace(OrderPeers(cc.peers.List()))
	if err := cc.derive(); err != nil {
		return nil, err
	}
	return cc, nil
}

// caller holds mtx for writing
func (cc *ConsensusContext) derive() error {
	n := cc.peers.Len()
	if n == 0 {
		return errors.Wrap(types.ErrTopology, "empty peer table")
	}
	f := cc.configuredFaulty
	if f <= 0 {
		f = cstypes.DefaultMaxFaulty(n)
	}
	if cstypes.Quorum(f) > n {
		return errors.Wrapf(types.ErrTopology, "%d peers can not tolerate %d faulty", n, f)
	}
	idx, _ := cc.peers.GetByPubKey(cc.myPubKey)
	if idx < 0 {
		return errors.Wrapf(types.ErrTopology, "%v is not in the peer table", cc.myPubKey)
	}
	cc.maxFaulty = f
	cc.proxyTailIndex = cstypes.ProxyTailIndex(f, n)
	cc.myIndex = idx
	cc.isLeader = idx == 0
	return nil
}

func (cc *ConsensusContext) IsLeader() bool {
	cc.mtx.RLock()
	defer cc.mtx.RUnlock()
	return cc.isLeader
}

func (cc *ConsensusContext) Role() cstypes.Role {
	if cc.IsLeader() {
		return cstypes.RoleLeader
	}
	return cstypes.RoleValidator
}

func (cc *ConsensusContext) MaxFaulty() int {
	cc.mtx.RLock()
	defer cc.mtx.RUnlock()
	return cc.maxFaulty
}

// Quorum is 2f+1.
func (cc *ConsensusContext) Quorum() int {
	return cstypes.Quorum(cc.MaxFaulty())
}

func (cc *ConsensusContext) ProxyTailIndex() int {
	cc.mtx.RLock()
	defer cc.mtx.RUnlock()
	return cc.proxyTailIndex
}

func (cc *ConsensusContext) NumPeers() int {
	cc.mtx.RLock()
	defer cc.mtx.RUnlock()
	return cc.peers.Len()
}

func (cc *ConsensusContext) MyPubKey() string {
	return cc.myPubKey
}

func (cc *ConsensusContext) MyIndex() int {
	cc.mtx.RLock()
	defer cc.mtx.RUnlock()
	return cc.myIndex
}

func (cc *ConsensusContext) Leader() *types.Peer {
	return cc.PeerAt(0)
}

// PeerAt returns a copy of the peer at chain position idx, or nil.
func (cc *ConsensusContext) PeerAt(idx int) *types.Peer {
	cc.mtx.RLock()
	defer cc.mtx.RUnlock()
	return cc.peers.GetByIndex(idx)
}

// IndexOf returns the chain position of pubKey or -1.
func (cc *ConsensusContext) IndexOf(pubKey string) int {
	cc.mtx.RLock()
	defer cc.mtx.RUnlock()
	idx, _ := cc.peers.GetByPubKey(pubKey)
	return idx
}

func (cc *ConsensusContext) IsMember(pubKey string) bool {
	return cc.IndexOf(pubKey) >= 0
}

// Peers returns a copy of the roster in chain order.
func (cc *ConsensusContext) Peers() []*types.Peer {
	cc.mtx.RLock()
	defer cc.mtx.RUnlock()
	return cc.peers.List()
}

// ActivePeers returns the active peers other than this node.
func (cc *ConsensusContext) ActivePeers() []*types.Peer {
	peers := cc.Peers()
	active := make([]*types.Peer, 0, len(peers))
	for _, p := range peers {
		if p.Active && p.PubKey != cc.myPubKey {
			active = append(active, p)
		}
	}
	return active
}

func (cc *ConsensusContext) PanicCount() int32 {
	return atomic.LoadInt32(&cc.panicCount)
}

// IncPanicCount bumps the panic counter of the round and returns the new value.
func (cc *ConsensusContext) IncPanicCount() int32 {
	return atomic.AddInt32(&cc.panicCount, 1)
}

func (cc *ConsensusContext) CommittedCount() int64 {
	return atomic.LoadInt64(&cc.committedCount)
}

func (cc *ConsensusContext) IncCommitted() int64 {
	return atomic.AddInt64(&cc.committedCount, 1)
}

// SetCommitted restores the counter from the commit log at startup.
func (cc *ConsensusContext) SetCommitted(n int64) {
	atomic.StoreInt64(&cc.committedCount, n)
}

// NextOrder hands out the sequence number of the next proposal.
func (cc *ConsensusContext) NextOrder() uint64 {
	return atomic.AddUint64(&cc.order, 1)
}

func (cc *ConsensusContext) SetOrder(order uint64) {
	atomic.StoreUint64(&cc.order, order)
}

func (cc *ConsensusContext) Round() int64 {
	cc.mtx.RLock()
	defer cc.mtx.RUnlock()
	return cc.round
}

// Reorder re-sorts the roster without rotating, e.g. after trust changes.
func (cc *ConsensusContext) Reorder() error {
	return cc.newView(ReorderPeers)
}

// Rotate moves leadership on to the next peer and starts a new round.
func (cc *ConsensusContext) Rotate() error {
	return cc.newView(RotatePeers)
}

func (cc *ConsensusContext) newView(order func([]*types.Peer) []*types.Peer) error {
	cc.mtx.Lock()
	defer cc.mtx.Unlock()
	old := cc.peers.List()
	cc.peers.Replace(order(old))
	if err := cc.derive(); err != nil {
		cc.peers.Replace(old)
		return err
	}
	cc.round++
	atomic.StoreInt32(&cc.panicCount, 0)
	return nil
}

// ApplyPeerCommand applies a committed governance command to the roster and
// re-derives the topology. A command that would leave an unusable roster is
// refused and the roster is left untouched.
func (cc *ConsensusContext) ApplyPeerCommand(cmd types.PeerCommand) error {
	cc.mtx.Lock()
	defer cc.mtx.Unlock()

	next := cc.peers.Copy()
	var err error
	switch c := cmd.(type) {
	case *types.PeerAdd:
		err = next.Add(&c.Peer)
	case types.PeerAdd:
		err = next.Add(&c.Peer)
	case *types.PeerRemove:
		err = next.Remove(c.PubKey)
	case types.PeerRemove:
		err = next.Remove(c.PubKey)
	case *types.PeerSetActive:
		err = next.SetActive(c.PubKey, c.Active)
	case types.PeerSetActive:
		err = next.SetActive(c.PubKey, c.Active)
	case *types.PeerSetTrust:
		err = next.SetTrust(c.PubKey, c.Trust)
	case types.PeerSetTrust:
		err = next.SetTrust(c.PubKey, c.Trust)
	case *types.PeerChangeTrust:
		err = next.ChangeTrust(c.PubKey, c.Delta)
	case types.PeerChangeTrust:
		err = next.ChangeTrust(c.PubKey, c.Delta)
	default:
		err = errors.Wrapf(types.ErrUnknownCommand, "%T", cmd)
	}
	if err != nil {
		return err
	}

	old := cc.peers
	next.Replace(ReorderPeers(next.List()))
	cc.peers = next
	if err := cc.derive(); err != nil {
		cc.peers = old
		_ = cc.derive()
		return err
	}
	cc.round++
	atomic.StoreInt32(&cc.panicCount, 0)
	return nil
}

// RosterSnapshot captures the chain order and round. height is the last
// committed height whose peer command is reflected in it.
func (cc *ConsensusContext) RosterSnapshot(height int64) *types.RosterSnapshot {
	cc.mtx.RLock()
	defer cc.mtx.RUnlock()
	peers := cc.peers.List()
	snap := &types.RosterSnapshot{
		Height: height,
		Round:  cc.round,
		Peers:  make([]types.Peer, len(peers)),
	}
	for i, p := range peers {
		snap.Peers[i] = *p
	}
	return snap
}

// Restore replaces the roster with the chain order of snap as is and
// resumes its round.
func (cc *ConsensusContext) Restore(snap *types.RosterSnapshot) error {
	peers := make([]*types.Peer, len(snap.Peers))
	for i := range snap.Peers {
		peers[i] = &snap.Peers[i]
	}
	table, err := types.NewPeerTable(peers)
	if err != nil {
		return errors.Wrap(types.ErrTopology, err.Error())
	}

	cc.mtx.Lock()
	defer cc.mtx.Unlock()
	old := cc.peers
	cc.peers = table
	if err := cc.derive(); err != nil {
		cc.peers = old
		_ = cc.derive()
		return err
	}
	cc.round = snap.Round
	atomic.StoreInt32(&cc.panicCount, 0)
	return nil
}

// GetRoundState returns a snapshot for logs and the rpc.
func (cc *ConsensusContext) GetRoundState() cstypes.RoundState {
	cc.mtx.RLock()
	defer cc.mtx.RUnlock()
	role := cstypes.RoleValidator
	if cc.isLeader {
		role = cstypes.RoleLeader
	}
	leader := ""
	if p := cc.peers.GetByIndex(0); p != nil {
		leader = p.PubKey
	}
	return cstypes.RoundState{
		Round:          cc.round,
		Role:           role,
		MyPubKey:       cc.myPubKey,
		NumPeers:       cc.peers.Len(),
		MaxFaulty:      cc.maxFaulty,
		Quorum:         cstypes.Quorum(cc.maxFaulty),
		ProxyTailIndex: cc.proxyTailIndex,
		PanicCount:     cc.PanicCount(),
		CommittedCount: cc.CommittedCount(),
		LeaderPubKey:   leader,
	}
}
