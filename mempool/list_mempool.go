package mempool

import (
	"sync"
	"sync/atomic"

	"github.com/tendermint/tendermint/libs/clist"
	"github.com/tendermint/tendermint/libs/log"

	cfg "sumeragi/config"
	"sumeragi/libs/metric"
	"sumeragi/types"
)

// ListMempool keeps in-flight events in a concurrent linked list for arrival
// order and in a sync.Map for lookup by hash.
type ListMempool struct {
	// Atomic integers
	added   int64 // events ever stored
	removed int64 // events dropped after reaching a terminal status

	config *cfg.MempoolConfig

	// serialises inserts and removals so one hash maps to one element
	updateMtx sync.Mutex

	events    *clist.CList
	eventsMap sync.Map

	metric *memMetric
	logger log.Logger
}

type ListMempoolOption func(mem *ListMempool)

func NewListMempool(config *cfg.MempoolConfig, options ...ListMempoolOption) *ListMempool {
	mem := &ListMempool{
		config: config,
		events: clist.New(),
		metric: newMemMetric(),
		logger: log.NewNopLogger(),
	}
	for _, option := range options {
		option(mem)
	}
	return mem
}

func (mem *ListMempool) SetLogger(logger log.Logger) {
	mem.logger = logger
}

var _ Mempool = (*ListMempool)(nil)

func (mem *ListMempool) LoadOrStore(ev *types.ConsensusEvent) (*types.ConsensusEvent, bool, error) {
	if ev == nil || ev.Transaction == nil {
		return nil, false, ErrNilEvent
	}
	key := ev.Key()
	if e, ok := mem.eventsMap.Load(key); ok {
		return e.(*clist.CElement).Value.(*types.ConsensusEvent), true, nil
	}

	mem.updateMtx.Lock()
	defer mem.updateMtx.Unlock()

	if e, ok := mem.eventsMap.Load(key); ok {
		return e.(*clist.CElement).Value.(*types.ConsensusEvent), true, nil
	}
	if mem.config != nil && mem.config.Size > 0 && mem.events.Len() >= mem.config.Size {
		return nil, false, ErrMempoolIsFull
	}

	e := mem.events.PushBack(ev)
	mem.eventsMap.Store(key, e)
	atomic.AddInt64(&mem.added, 1)
	mem.metric.MarkPending(mem.events.Len())
	mem.logger.Debug("added event", "hash", key, "order", ev.Order)
	return ev, false, nil
}

func (mem *ListMempool) Get(hash []byte) *types.ConsensusEvent {
	e, ok := mem.eventsMap.Load(eventKey(hash))
	if !ok {
		return nil
	}
	return e.(*clist.CElement).Value.(*types.ConsensusEvent)
}

func (mem *ListMempool) Remove(hash []byte) bool {
	key := eventKey(hash)

	mem.updateMtx.Lock()
	defer mem.updateMtx.Unlock()

	e, ok := mem.eventsMap.Load(key)
	if !ok {
		return false
	}
	elem := e.(*clist.CElement)
	mem.events.Remove(elem)
	elem.DetachPrev()
	mem.eventsMap.Delete(key)
	atomic.AddInt64(&mem.removed, 1)
	mem.metric.MarkPending(mem.events.Len())
	return true
}

func (mem *ListMempool) Pending(max int) []*types.ConsensusEvent {
	size := mem.events.Len()
	if max >= 0 && max < size {
		size = max
	}
	evs := make([]*types.ConsensusEvent, 0, size)
	for e := mem.events.Front(); e != nil && len(evs) < size; e = e.Next() {
		evs = append(evs, e.Value.(*types.ConsensusEvent))
	}
	return evs
}

func (mem *ListMempool) Flush() {
	mem.updateMtx.Lock()
	defer mem.updateMtx.Unlock()

	for e := mem.events.Front(); e != nil; e = e.Next() {
		mem.events.Remove(e)
		e.DetachPrev()
	}
	mem.eventsMap.Range(func(key, _ interface{}) bool {
		mem.eventsMap.Delete(key)
		return true
	})
	mem.metric.MarkPending(0)
}

func (mem *ListMempool) Size() int {
	return mem.events.Len()
}

// Added is the number of events ever stored.
func (mem *ListMempool) Added() int64 {
	return atomic.LoadInt64(&mem.added)
}

func (mem *ListMempool) Removed() int64 {
	return atomic.LoadInt64(&mem.removed)
}

func (mem *ListMempool) EventsWaitChan() <-chan struct{} {
	return mem.events.WaitChan()
}

func (mem *ListMempool) EventsFront() *clist.CElement {
	return mem.events.Front()
}

func (mem *ListMempool) Metric() metric.MetricItem {
	mem.metric.MarkTotals(mem.Added(), mem.Removed())
	return mem.metric
}

func eventKey(hash []byte) string {
	return types.HashKey(hash)
}
