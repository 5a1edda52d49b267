package mempool

import (
	"sync"

	jsoniter "github.com/json-iterator/go"
)

func newMemMetric() *memMetric {
	return &memMetric{}
}

type memMetric struct {
	mtx          sync.RWMutex
	PendingNum   int   `json:"pending_events_num"` // in-flight events
	TotalAdded   int64 `json:"total_added"`
	TotalRemoved int64 `json:"total_removed"`
}

func (mm *memMetric) JSONString() string {
	mm.mtx.RLock()
	defer mm.mtx.RUnlock()
	s, _ := jsoniter.MarshalToString(mm)
	return s
}

func (mm *memMetric) MarkPending(n int) {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.PendingNum = n
}

func (mm *memMetric) MarkTotals(added, removed int64) {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.TotalAdded = added
	mm.TotalRemoved = removed
}
