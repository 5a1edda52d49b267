package consensus

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"

	cfg "sumeragi/config"
	cstypes "sumeragi/consensus/types"
	"sumeragi/libs/metric"
	"sumeragi/mempool"
	"sumeragi/types"
)

// ------ Event ------
// events fired on the processor's event switch
const (
	EventCommitted     = "Committed"
	EventPanic         = "Panic"
	EventLivenessFault = "LivenessFault"
	EventNewRound      = "NewRound"
)

// EventProcessor drives the chain protocol: the leader proposes client
// transactions, every hop verifies and adds its signature and forwards the
// event along the chain, the first node that sees 2f+1 signatures commits
// and broadcasts the result.
//
// All work runs on the TaskDispatcher; the transport only submits.
type EventProcessor struct {
	service.BaseService

	config *cfg.ConsensusConfig

	ctx   *ConsensusContext
	dedup *DedupCache
	pool  mempool.Mempool

	dispatcher *TaskDispatcher
	scheduler  *Scheduler
	panics     *PanicController

	transport Transport
	signer    Signer
	verifier  Verifier
	commitLog CommitLog
	executor  TxExecutor

	// guards topology changes and the roster they persist
	rosterMtx    sync.Mutex
	rosterStore  RosterStore
	rosterHeight int64

	eventSwitch events.EventSwitch
	metric      *consensusMetric

	// hash -> time the event was first seen, for commit latency
	startTimes sync.Map
}

type ProcessorOption func(*EventProcessor)

func WithDedupCache(dedup *DedupCache) ProcessorOption {
	return func(p *EventProcessor) { p.dedup = dedup }
}

func WithMempool(pool mempool.Mempool) ProcessorOption {
	return func(p *EventProcessor) { p.pool = pool }
}

func WithCommitLog(log CommitLog) ProcessorOption {
	return func(p *EventProcessor) { p.commitLog = log }
}

func WithExecutor(exec TxExecutor) ProcessorOption {
	return func(p *EventProcessor) { p.executor = exec }
}

// WithRosterStore persists the chain order after every topology change.
// height is the last committed height the current roster reflects.
func WithRosterStore(rs RosterStore, height int64) ProcessorOption {
	return func(p *EventProcessor) {
		p.rosterStore = rs
		p.rosterHeight = height
	}
}

func WithTransport(t Transport) ProcessorOption {
	return func(p *EventProcessor) { p.transport = t }
}

func NewEventProcessor(
	config *cfg.ConsensusConfig,
	ctx *ConsensusContext,
	signer Signer,
	verifier Verifier,
	options ...ProcessorOption,
) *EventProcessor {
	p := &EventProcessor{
		config:      config,
		ctx:         ctx,
		dispatcher:  NewTaskDispatcher(config.Concurrency, config.WorkerQueueSize),
		scheduler:   NewScheduler(),
		signer:      signer,
		verifier:    verifier,
		commitLog:   nopCommitLog{},
		executor:    nopExecutor{},
		eventSwitch: events.NewEventSwitch(),
		metric:      newConsensusMetric(),
	}
	p.panics = newPanicController(p, config.PanicTimeout)
	p.BaseService = *service.NewBaseService(nil, "CONSENSUS", p)

	for _, opt := range options {
		opt(p)
	}
	if p.dedup == nil {
		p.dedup = NewDedupCache(nil)
	}
	if p.pool == nil {
		p.pool = mempool.NewListMempool(cfg.DefaultMempoolConfig())
	}
	return p
}

func (p *EventProcessor) SetLogger(logger log.Logger) {
	p.Logger = logger
	p.dispatcher.SetLogger(logger.With("module", "dispatcher"))
	p.scheduler.SetLogger(logger.With("module", "scheduler"))
	p.eventSwitch.SetLogger(logger)
}

// SetTransport wires the outbound transport. The p2p reactor needs the
// processor to be built first, so it is set after construction.
func (p *EventProcessor) SetTransport(t Transport) {
	p.transport = t
}

func (p *EventProcessor) OnStart() error {
	if p.transport == nil {
		return errors.New("no transport set")
	}
	if err := p.eventSwitch.Start(); err != nil {
		return err
	}
	if err := p.dispatcher.Start(); err != nil {
		return err
	}
	if err := p.scheduler.Start(); err != nil {
		return err
	}

	rs := p.ctx.GetRoundState()
	p.metric.MarkRoundState(rs)
	p.Logger.Info("consensus started",
		"numValidatingPeers", rs.NumPeers,
		"maxFaulty", rs.MaxFaulty,
		"proxyTailIndex", rs.ProxyTailIndex,
		"panicCount", rs.PanicCount,
		"myPubKey", rs.MyPubKey,
		"isLeader", rs.IsLeader(),
	)
	return nil
}

func (p *EventProcessor) OnStop() {
	if err := p.scheduler.Stop(); err != nil {
		p.Logger.Error("failed trying to stop scheduler", "error", err)
	}
	if err := p.dispatcher.Stop(); err != nil {
		p.Logger.Error("failed trying to stop dispatcher", "error", err)
	}
	if err := p.eventSwitch.Stop(); err != nil {
		p.Logger.Error("failed trying to stop eventSwitch", "error", err)
	}
	p.Logger.Info("consensus stopped")
}

//-----------------------------------------------------------------------------
// Exposed to the transport and the rpc

// SubmitTransaction checks tx and queues it for processing. It never blocks.
func (p *EventProcessor) SubmitTransaction(tx *types.Transaction) error {
	if err := tx.ValidateBasic(); err != nil {
		return err
	}
	if status, ok := p.dedup.Lookup(tx.Hash); ok {
		return errors.Wrapf(types.ErrDuplicate, "%v already %v", tx.Key(), status)
	}
	return p.dispatcher.Submit(func() {
		if err := p.OnTransaction(tx); err != nil && !types.IsDuplicate(err) {
			p.logFailure("transaction failed", tx.Key(), err)
		}
	})
}

// SubmitEvent queues an event received from the peer with node id from.
func (p *EventProcessor) SubmitEvent(ev *types.ConsensusEvent, from string) error {
	return p.dispatcher.Submit(func() {
		err := p.OnEvent(ev, from)
		switch {
		case err == nil:
		case types.IsDuplicate(err):
			p.Logger.Debug("duplicate event", "hash", ev.Key(), "from", from)
		default:
			key := ""
			if ev != nil && ev.Transaction != nil {
				key = ev.Key()
			}
			p.logFailure("event rejected", key, errors.Wrapf(err, "from %v", from))
		}
	})
}

func (p *EventProcessor) CommitCount() int64 {
	return p.ctx.CommittedCount()
}

func (p *EventProcessor) IsLeader() bool {
	return p.ctx.IsLeader()
}

// CommitStatus returns the terminal status recorded for hash, if any.
func (p *EventProcessor) CommitStatus(hash []byte) (TxStatus, bool) {
	return p.dedup.Lookup(hash)
}

func (p *EventProcessor) Context() *ConsensusContext {
	return p.ctx
}

func (p *EventProcessor) Mempool() mempool.Mempool {
	return p.pool
}

func (p *EventProcessor) EventSwitch() events.EventSwitch {
	return p.eventSwitch
}

func (p *EventProcessor) Metric() metric.MetricItem {
	p.metric.MarkRoundState(p.ctx.GetRoundState())
	return p.metric
}

// Rotate hands leadership on to the next peer and re-kicks stalled events.
// It is a view change: every peer has to rotate to keep the same chain.
func (p *EventProcessor) Rotate() error {
	return p.changeView(p.ctx.Rotate)
}

// Reorder re-sorts the chain by trust and re-kicks stalled events.
func (p *EventProcessor) Reorder() error {
	return p.changeView(p.ctx.Reorder)
}

func (p *EventProcessor) changeView(change func() error) error {
	p.rosterMtx.Lock()
	err := change()
	if err == nil {
		p.saveRoster()
	}
	p.rosterMtx.Unlock()
	if err != nil {
		return err
	}
	p.newRound()
	return nil
}

//-----------------------------------------------------------------------------
// Protocol

// OnTransaction handles a client transaction. The leader proposes it, any
// other node hands it to the leader.
func (p *EventProcessor) OnTransaction(tx *types.Transaction) error {
	if err := tx.ValidateBasic(); err != nil {
		if tx.HashMatches() {
			if _, rerr := p.dedup.Record(tx.Hash, TxRejected); rerr != nil {
				p.Logger.Error("failed to record rejected tx", "hash", tx.Key(), "err", rerr)
			}
		}
		p.metric.MarkRejected()
		return err
	}
	key := tx.Key()
	if status, ok := p.dedup.Lookup(tx.Hash); ok {
		p.metric.MarkDuplicate()
		return errors.Wrapf(types.ErrDuplicate, "%v already %v", key, status)
	}

	if !p.ctx.IsLeader() {
		leader := p.ctx.Leader()
		p.Logger.Debug("forward tx to leader", "hash", key, "leader", leader)
		if err := p.transport.SendTransaction(leader.Address, tx); err != nil {
			p.metric.MarkTransportError()
			return errors.Wrapf(types.ErrTransport, "send tx to leader %v: %v", leader.Address, err)
		}
		return nil
	}

	ev := types.NewConsensusEvent(tx)
	ev.Order = p.ctx.NextOrder()
	local, loaded, err := p.pool.LoadOrStore(ev)
	if err != nil {
		return err
	}
	if loaded {
		p.metric.MarkDuplicate()
		return errors.Wrapf(types.ErrDuplicate, "%v already in flight", key)
	}
	p.startTimes.Store(key, time.Now())
	p.Logger.Info("propose", "hash", key, "order", local.Order, "command", types.CommandName(tx.Command))

	grew, err := p.sign(local)
	if err != nil {
		return err
	}
	_ = local.Advance(types.StatusForwarding)
	p.progress(local, grew)
	return nil
}

// OnEvent handles a partially signed event from the peer with node id from.
// Every carried signature must come from a member and verify, otherwise the
// whole event is dropped. Valid signatures are merged into the local
// canonical event, which this node then signs.
func (p *EventProcessor) OnEvent(in *types.ConsensusEvent, from string) error {
	if err := in.ValidateBasic(); err != nil {
		p.metric.MarkRejected()
		return err
	}
	key := in.Key()
	hash := in.Hash()
	if status, ok := p.dedup.Lookup(hash); ok {
		p.metric.MarkDuplicate()
		return errors.Wrapf(types.ErrDuplicate, "%v already %v", key, status)
	}

	sigs := in.GetSignatures()
	for _, sig := range sigs {
		if !p.ctx.IsMember(sig.PubKey) {
			p.metric.MarkRejected()
			return errors.Wrapf(types.ErrValidation, "signer %v is not a peer", sig.PubKey)
		}
		if !p.verifier.Verify(hash, sig.Signature, sig.PubKey) {
			p.metric.MarkRejected()
			return errors.Wrapf(types.ErrValidation, "bad signature from %v", sig.PubKey)
		}
	}

	fresh := types.NewConsensusEvent(in.Transaction)
	fresh.Order = in.Order
	local, loaded, err := p.pool.LoadOrStore(fresh)
	if err != nil {
		return err
	}
	if !loaded {
		p.startTimes.Store(key, time.Now())
	}

	grew := false
	for _, sig := range sigs {
		if err := local.AddSignature(sig); err == nil {
			grew = true
		}
	}
	if local.IsCommitted() {
		return nil
	}

	if in.GetStatus() == types.StatusCommitted {
		// a commit from another node: converge without broadcasting again
		if local.NumSignatures() < p.ctx.Quorum() {
			p.metric.MarkRejected()
			return errors.Wrapf(types.ErrValidation, "%v committed with %d signatures, quorum is %d",
				key, local.NumSignatures(), p.ctx.Quorum())
		}
		p.commit(local, false)
		return nil
	}

	signed, err := p.sign(local)
	if err != nil {
		return err
	}
	_ = local.Advance(types.StatusForwarding)
	p.progress(local, grew || signed)
	return nil
}

// progress commits ev on quorum, otherwise forwards it along the chain and
// arms its panic timer. Nothing is sent unless the signature set grew.
func (p *EventProcessor) progress(ev *types.ConsensusEvent, grew bool) {
	n := ev.NumSignatures()
	quorum := p.ctx.Quorum()
	p.Logger.Debug("judge", "hash", ev.Key(), "role", p.ctx.Role(),
		"valid_signatures", n, "quorum", quorum, "peers", p.ctx.NumPeers())

	if n >= quorum {
		p.commit(ev, true)
		return
	}
	if !grew {
		return
	}
	p.forward(ev)
	p.panics.Arm(ev)
}

// forward delivers ev to the next chain position. The proxy tail waits for
// its panic timer, nodes beyond it broadcast to every active peer.
func (p *EventProcessor) forward(ev *types.ConsensusEvent) {
	idx, tail := p.ctx.MyIndex(), p.ctx.ProxyTailIndex()
	cp := ev.Copy()
	switch {
	case idx < tail:
		next := p.ctx.PeerAt(idx + 1)
		if next == nil || !next.Active {
			return
		}
		p.send(next, cp)
	case idx > tail:
		p.broadcast(cp)
	}
}

// commit finalizes ev. The status CAS and the dedup record together make
// sure a transaction executes and is announced at most once.
//
// The commit log is written before the dedup record, so a crash between the
// two leaves a logged commit the node repairs the dedup cache from at
// startup, never a hash marked committed without a record.
func (p *EventProcessor) commit(ev *types.ConsensusEvent, announce bool) {
	if !ev.Commit() {
		return
	}
	key := ev.Key()
	hash := ev.Hash()
	tx := ev.Transaction
	p.panics.Disarm(hash)

	cp := ev.Copy()
	height, err := p.commitLog.AppendCommit(tx, cp)
	switch {
	case err == nil:
	case types.IsDuplicate(err):
		// already logged, the dedup record decides who applies it
		p.Logger.Debug("commit already logged", "hash", key)
	default:
		p.logFailure("failed to append commit", key, err)
	}

	recorded, err := p.dedup.Record(hash, TxCommitted)
	p.pool.Remove(hash)
	if err != nil {
		p.logFailure("failed to record commit", key, err)
		return
	}
	if !recorded {
		p.startTimes.Delete(key)
		return
	}

	count := p.ctx.IncCommitted()
	p.apply(tx, height)

	var since time.Time
	if v, ok := p.startTimes.LoadAndDelete(key); ok {
		since = v.(time.Time)
	}
	p.metric.MarkCommit(since)
	p.Logger.Info("committed", "hash", key, "order", cp.Order, "signatures", len(cp.Signatures),
		"committed", count, "role", p.ctx.Role())
	p.eventSwitch.FireEvent(EventCommitted, cp)

	if announce {
		p.broadcast(cp)
	}
}

// apply executes the command of a committed transaction at height.
// Governance commands reconfigure the chain and re-kick pending events.
func (p *EventProcessor) apply(tx *types.Transaction, height int64) {
	if cmd, ok := tx.Command.(types.PeerCommand); ok {
		p.rosterMtx.Lock()
		err := p.ctx.ApplyPeerCommand(cmd)
		if err == nil {
			if height > p.rosterHeight {
				p.rosterHeight = height
			}
			p.saveRoster()
		}
		p.rosterMtx.Unlock()
		if err != nil {
			p.logFailure("failed to apply peer command", tx.Key(), err)
			return
		}
		p.newRound()
		return
	}
	if err := p.executor.ExecuteTx(tx); err != nil {
		p.logFailure("failed to execute tx", tx.Key(), err)
	}
}

// newRound logs the new topology and resumes events stalled in the old one.
func (p *EventProcessor) newRound() {
	rs := p.ctx.GetRoundState()
	p.metric.MarkRoundState(rs)
	p.Logger.Info("new round", "round", rs.Round, "numValidatingPeers", rs.NumPeers,
		"maxFaulty", rs.MaxFaulty, "proxyTailIndex", rs.ProxyTailIndex, "isLeader", rs.IsLeader())
	p.eventSwitch.FireEvent(EventNewRound, rs)

	p.panics.Reset()
	for _, ev := range p.pool.Pending(-1) {
		ev := ev
		if ev.GetStatus().IsTerminal() {
			continue
		}
		if err := p.dispatcher.Submit(func() { p.progress(ev, true) }); err != nil {
			p.Logger.Error("failed to re-kick event", "hash", ev.Key(), "err", err)
		}
	}
}

// caller holds rosterMtx
func (p *EventProcessor) saveRoster() {
	if p.rosterStore == nil {
		return
	}
	snap := p.ctx.RosterSnapshot(p.rosterHeight)
	if err := p.rosterStore.SaveRoster(snap); err != nil {
		p.Logger.Error("failed to save roster", "round", snap.Round, "height", snap.Height, "err", err)
	}
}

func (p *EventProcessor) sign(ev *types.ConsensusEvent) (bool, error) {
	me := p.ctx.MyPubKey()
	if ev.HasSignature(me) {
		return false, nil
	}
	sig, err := p.signer.SignDigest(ev.Hash())
	if err != nil {
		return false, errors.Wrap(err, "sign event")
	}
	if err := ev.AddSignature(types.Signature{PubKey: me, Signature: sig}); err != nil {
		return false, nil
	}
	return true, nil
}

func (p *EventProcessor) send(peer *types.Peer, ev *types.ConsensusEvent) {
	if err := p.transport.Send(peer.Address, ev); err != nil {
		p.metric.MarkTransportError()
		p.logFailure("send failed", ev.Key(), errors.Wrapf(types.ErrTransport, "to %v: %v", peer, err))
		return
	}
	p.metric.MarkForwarded()
}

func (p *EventProcessor) broadcast(ev *types.ConsensusEvent) {
	if err := p.transport.Broadcast(ev); err != nil {
		p.metric.MarkTransportError()
		p.logFailure("broadcast failed", ev.Key(), errors.Wrap(types.ErrTransport, err.Error()))
	}
}

func (p *EventProcessor) logFailure(msg, hash string, err error) {
	p.Logger.Error(msg, "hash", hash, "role", p.ctx.Role(), "err", err)
}

// GetRoundState is a snapshot of the consensus context.
func (p *EventProcessor) GetRoundState() cstypes.RoundState {
	return p.ctx.GetRoundState()
}
