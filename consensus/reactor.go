package consensus

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/cmap"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/p2p"

	"sumeragi/types"
)

const (
	EventChannel       = byte(0x30)
	TransactionChannel = byte(0x31)

	maxMsgSize = 1048576 // 1MB
)

// ------- Reactor ------

// Reactor is the p2p transport of the chain protocol: signed events travel
// on EventChannel, raw client transactions handed to the leader on
// TransactionChannel. Inbound messages are decoded and submitted to the
// processor without blocking the receive routine.
type Reactor struct {
	p2p.BaseReactor

	// p2p.ID -> p2p.Peer
	peers *cmap.CMap

	processor *EventProcessor
}

type ReactorOption func(*Reactor)

func NewReactor(processor *EventProcessor, options ...ReactorOption) *Reactor {
	conR := &Reactor{
		peers:     cmap.NewCMap(),
		processor: processor,
	}
	conR.BaseReactor = *p2p.NewBaseReactor("Consensus", conR)

	for _, option := range options {
		option(conR)
	}
	if processor != nil {
		processor.SetTransport(conR)
	}
	return conR
}

// SetProcessor attaches the processor once the roster is known, e.g. after
// the switches of a test network are connected.
func (conR *Reactor) SetProcessor(processor *EventProcessor) {
	conR.processor = processor
	processor.SetTransport(conR)
}

func (conR *Reactor) OnStart() error {
	conR.Logger.Info("Consensus Reactor started.")
	return nil
}

func (conR *Reactor) GetChannels() []*p2p.ChannelDescriptor {
	return []*p2p.ChannelDescriptor{
		{
			ID:                  EventChannel,
			Priority:            10,
			SendQueueCapacity:   100,
			RecvMessageCapacity: maxMsgSize,
		},
		{
			ID:                  TransactionChannel,
			Priority:            5,
			SendQueueCapacity:   100,
			RecvMessageCapacity: maxMsgSize,
		},
	}
}

func (conR *Reactor) AddPeer(peer p2p.Peer) {
	conR.Logger.Debug("add peer", "peer", peer.ID())
	conR.peers.Set(string(peer.ID()), peer)
}

func (conR *Reactor) RemovePeer(peer p2p.Peer, reason interface{}) {
	conR.Logger.Debug("remove peer", "peer", peer.ID(), "reason", reason)
	conR.peers.Delete(string(peer.ID()))
}

func (conR *Reactor) Receive(chID byte, src p2p.Peer, msgBytes []byte) {
	if conR.processor == nil || !conR.processor.IsRunning() {
		conR.Logger.Debug("Receive before processor is running", "src", src, "chID", chID)
		return
	}

	switch chID {
	case EventChannel:
		var ev types.ConsensusEvent
		if err := tmjson.Unmarshal(msgBytes, &ev); err != nil {
			conR.Logger.Error("try to unmarshal event failed", "err", err, "src", src.ID())
			return
		}
		if err := conR.processor.SubmitEvent(&ev, string(src.ID())); err != nil {
			conR.Logger.Error("submit event failed", "err", err, "hash", hashOf(&ev), "src", src.ID())
		}

	case TransactionChannel:
		var tx types.Transaction
		if err := tmjson.Unmarshal(msgBytes, &tx); err != nil {
			conR.Logger.Error("try to unmarshal tx failed", "err", err, "src", src.ID())
			return
		}
		if err := conR.processor.SubmitTransaction(&tx); err != nil && !types.IsDuplicate(err) {
			conR.Logger.Error("submit tx failed", "err", err, "hash", tx.Key(), "src", src.ID())
		}

	default:
		conR.Logger.Error(fmt.Sprintf("Unknown chID %X", chID))
	}
}

//-----------------------------------------------------------------------------
// Transport

var _ Transport = (*Reactor)(nil)

func (conR *Reactor) Send(address string, ev *types.ConsensusEvent) error {
	bz, err := tmjson.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	return conR.send(address, EventChannel, bz)
}

// Broadcast sends ev to every active peer of the roster except this node.
// It fails only if no peer could be reached.
func (conR *Reactor) Broadcast(ev *types.ConsensusEvent) error {
	bz, err := tmjson.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	targets := conR.processor.Context().ActivePeers()
	var lastErr error
	failed := 0
	for _, peer := range targets {
		if err := conR.send(peer.Address, EventChannel, bz); err != nil {
			lastErr = err
			failed++
		}
	}
	if len(targets) > 0 && failed == len(targets) {
		return errors.Wrapf(lastErr, "broadcast reached none of %d peers", len(targets))
	}
	return nil
}

func (conR *Reactor) SendTransaction(address string, tx *types.Transaction) error {
	bz, err := tmjson.Marshal(tx)
	if err != nil {
		return errors.Wrap(err, "marshal tx")
	}
	return conR.send(address, TransactionChannel, bz)
}

// send queues bz on the connection of the peer behind address. If the send
// queue is full the message is handed to a goroutine instead of blocking
// the caller.
func (conR *Reactor) send(address string, chID byte, bz []byte) error {
	id := nodeIDOf(address)
	v := conR.peers.Get(id)
	if v == nil {
		return fmt.Errorf("peer %v not connected", id)
	}
	peer := v.(p2p.Peer)
	if !peer.TrySend(chID, bz) {
		go func() {
			if !peer.Send(chID, bz) {
				conR.Logger.Error("send timed out", "peer", id, "chID", chID)
			}
		}()
	}
	return nil
}

// nodeIDOf returns the p2p id of an address of the form id@host:port.
func nodeIDOf(address string) string {
	if i := strings.Index(address, "@"); i >= 0 {
		return address[:i]
	}
	return address
}

func hashOf(ev *types.ConsensusEvent) string {
	if ev == nil || ev.Transaction == nil {
		return ""
	}
	return ev.Key()
}
