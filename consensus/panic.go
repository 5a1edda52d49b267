package consensus

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	cstypes "sumeragi/consensus/types"
	"sumeragi/types"
)

// PanicController widens the set of peers asked to sign an event whose chain
// segment did not produce quorum in time.
//
// The window of an event grows with its own expansion count; the panic
// counter of the round only tracks how many panics happened in total.
type PanicController struct {
	p       *EventProcessor
	timeout time.Duration

	mtx        sync.Mutex
	expansions map[string]int32 // hash -> panics of that event in this round
}

func newPanicController(p *EventProcessor, timeout time.Duration) *PanicController {
	return &PanicController{
		p:          p,
		timeout:    timeout,
		expansions: make(map[string]int32),
	}
}

// Expansions returns how often the window of the event of hash was widened
// in the current round.
func (pc *PanicController) Expansions(hash []byte) int32 {
	pc.mtx.Lock()
	defer pc.mtx.Unlock()
	return pc.expansions[types.HashKey(hash)]
}

func (pc *PanicController) expand(key string) int32 {
	pc.mtx.Lock()
	defer pc.mtx.Unlock()
	pc.expansions[key]++
	return pc.expansions[key]
}

func (pc *PanicController) forget(key string) {
	pc.mtx.Lock()
	defer pc.mtx.Unlock()
	delete(pc.expansions, key)
}

// Reset starts every event over at the chain positions of a new round.
func (pc *PanicController) Reset() {
	pc.mtx.Lock()
	defer pc.mtx.Unlock()
	pc.expansions = make(map[string]int32)
}

// Arm (re)starts the panic timer of ev. When it fires the timeout is handed
// to the worker pool; if the pool is saturated the timer is armed again.
func (pc *PanicController) Arm(ev *types.ConsensusEvent) {
	key := ev.Key()
	hash := ev.Hash()
	var fire func()
	fire = func() {
		err := pc.p.dispatcher.Submit(func() { pc.OnTimeout(hash) })
		if err == ErrQueueFull {
			pc.p.Logger.Debug("panic timeout deferred, queue full", "hash", key)
			pc.p.scheduler.Schedule(key, pc.timeout, fire)
		}
	}
	pc.p.scheduler.Schedule(key, pc.timeout, fire)
}

func (pc *PanicController) Disarm(hash []byte) {
	key := types.HashKey(hash)
	pc.p.scheduler.Cancel(key)
	pc.forget(key)
}

// OnTimeout runs the window expansion for the event of hash. It is a no-op
// when the event already reached a terminal status.
func (pc *PanicController) OnTimeout(hash []byte) {
	p := pc.p
	ev := p.pool.Get(hash)
	if ev == nil || ev.GetStatus().IsTerminal() {
		return
	}
	key := ev.Key()

	n, f := p.ctx.NumPeers(), p.ctx.MaxFaulty()
	panicCount := p.ctx.IncPanicCount()
	count := pc.expand(key)
	p.metric.MarkPanic()

	if count > 1 && cstypes.ComputePanicWindow(f, count-1, n).Saturated {
		err := errors.Wrapf(types.ErrLivenessFault, "%v stalled with %d/%d signatures after %d panics",
			key, ev.NumSignatures(), p.ctx.Quorum(), count)
		p.logFailure("liveness fault", key, err)
		p.metric.MarkLivenessFault()
		p.startTimes.Delete(key)
		p.eventSwitch.FireEvent(EventLivenessFault, ev.Copy())
		return
	}

	w := cstypes.ComputePanicWindow(f, count, n)
	if err := ev.Advance(types.StatusPanicked); err != nil {
		// committed in the meantime
		return
	}
	p.Logger.Info("panic", "hash", key, "role", p.ctx.Role(), "panic_count", panicCount, "expansion", count,
		"window", w, "signatures", ev.NumSignatures(), "quorum", p.ctx.Quorum())
	p.eventSwitch.FireEvent(EventPanic, ev.Copy())

	cp := ev.Copy()
	myIndex := p.ctx.MyIndex()
	for idx := w.Start; idx <= w.End; idx++ {
		if idx == myIndex {
			continue
		}
		peer := p.ctx.PeerAt(idx)
		if peer == nil || !peer.Active {
			continue
		}
		p.send(peer, cp)
	}

	pc.Arm(ev)
}
