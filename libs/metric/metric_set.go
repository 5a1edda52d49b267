package metric

import (
	"errors"
	"sort"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var (
	ErrMetricLabelExist = errors.New("metric label already exist")
)

func NewMetricSet() *MetricSet {
	return &MetricSet{
		metrics: make(map[string]MetricItem),
	}
}

// MetricSet collects the MetricItem of every module of a node under a label.
type MetricSet struct {
	mtx     sync.RWMutex
	metrics map[string]MetricItem
}

// SetMetrics - 根据label设置对应的Metrics，如果有存在的label，则返回error
func (ms *MetricSet) SetMetrics(label string, item MetricItem) error {
	ms.mtx.Lock()
	defer ms.mtx.Unlock()

	if _, existed := ms.metrics[label]; existed {
		return ErrMetricLabelExist
	}
	ms.metrics[label] = item
	return nil
}

func (ms *MetricSet) HasMetrics(label string) bool {
	ms.mtx.RLock()
	_, existed := ms.metrics[label]
	ms.mtx.RUnlock()
	return existed
}

func (ms *MetricSet) GetMetrics(label string) MetricItem {
	ms.mtx.RLock()
	defer ms.mtx.RUnlock()
	return ms.metrics[label]
}

// GetAllLabels returns the labels in sorted order.
func (ms *MetricSet) GetAllLabels() []string {
	ms.mtx.RLock()
	defer ms.mtx.RUnlock()

	keys := make([]string, 0, len(ms.metrics))
	for k := range ms.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns label -> raw JSON of every item.
func (ms *MetricSet) Snapshot() map[string]jsoniter.RawMessage {
	ms.mtx.RLock()
	defer ms.mtx.RUnlock()

	snapshot := make(map[string]jsoniter.RawMessage, len(ms.metrics))
	for label, item := range ms.metrics {
		snapshot[label] = jsoniter.RawMessage(item.JSONString())
	}
	return snapshot
}

// JSONString makes a MetricSet a MetricItem itself.
func (ms *MetricSet) JSONString() string {
	s, _ := jsoniter.MarshalToString(ms.Snapshot())
	return s
}
