package consensus

import (
	"container/heap"
	"sync"
	"time"

	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
)

// Scheduler runs deferred tasks keyed by event hash on a single goroutine.
// Scheduling a key again replaces its deadline and callback. Callbacks run on
// the scheduler goroutine and must not block.
type Scheduler struct {
	service.BaseService

	mtx    sync.Mutex
	items  map[string]*timerItem
	queue  timerQueue
	wakeup chan struct{}
}

func NewScheduler() *Scheduler {
	s := &Scheduler{
		items:  make(map[string]*timerItem),
		wakeup: make(chan struct{}, 1),
	}
	s.BaseService = *service.NewBaseService(nil, "SCHEDULER", s)
	return s
}

func (s *Scheduler) SetLogger(logger log.Logger) {
	s.Logger = logger
}

func (s *Scheduler) OnStart() error {
	go s.timerRoutine()
	return nil
}

// Schedule arms fn to run after delay under key.
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func()) {
	deadline := time.Now().Add(delay)

	s.mtx.Lock()
	if item, ok := s.items[key]; ok {
		item.deadline = deadline
		item.fn = fn
		heap.Fix(&s.queue, item.index)
	} else {
		item = &timerItem{key: key, deadline: deadline, fn: fn}
		heap.Push(&s.queue, item)
		s.items[key] = item
	}
	s.mtx.Unlock()

	s.notify()
}

// Cancel removes the task under key. It returns false if nothing was armed.
func (s *Scheduler) Cancel(key string) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	item, ok := s.items[key]
	if !ok {
		return false
	}
	heap.Remove(&s.queue, item.index)
	delete(s.items, key)
	return true
}

func (s *Scheduler) IsScheduled(key string) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	_, ok := s.items[key]
	return ok
}

func (s *Scheduler) Len() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.items)
}

func (s *Scheduler) notify() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

func (s *Scheduler) timerRoutine() {
	for {
		var (
			timer  *time.Timer
			timerC <-chan time.Time
		)
		s.mtx.Lock()
		if len(s.queue) > 0 {
			timer = time.NewTimer(time.Until(s.queue[0].deadline))
			timerC = timer.C
		}
		s.mtx.Unlock()

		select {
		case <-s.Quit():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wakeup:
		case <-timerC:
			s.fireExpired()
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (s *Scheduler) fireExpired() {
	now := time.Now()
	var due []*timerItem

	s.mtx.Lock()
	for len(s.queue) > 0 && !s.queue[0].deadline.After(now) {
		item := heap.Pop(&s.queue).(*timerItem)
		delete(s.items, item.key)
		due = append(due, item)
	}
	s.mtx.Unlock()

	for _, item := range due {
		s.Logger.Debug("timer fired", "key", item.key)
		item.fn()
	}
}

//-----------------------------------------------------------------------------

type timerItem struct {
	key      string
	deadline time.Time
	fn       func()
	index    int
}

// timerQueue is a min-heap on deadline.
type timerQueue []*timerItem

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool { return q[i].deadline.Before(q[j].deadline) }

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x interface{}) {
	item := x.(*timerItem)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *timerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}
