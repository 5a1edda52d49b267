package consensus

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
)

var (
	ErrQueueFull         = errors.New("dispatcher queue is full")
	ErrDispatcherStopped = errors.New("dispatcher is not running")
)

const (
	defaultWorkerQueueSize = 1024
)

// Task is a unit of consensus work handed over by the transport.
type Task func()

// TaskDispatcher runs tasks on a fixed number of workers fed by a bounded
// queue. Submit never blocks: when the queue is full the task is refused.
type TaskDispatcher struct {
	service.BaseService

	workers int
	queue   chan Task

	processed int64 // atomic
	refused   int64 // atomic
}

// NewTaskDispatcher returns a dispatcher with the given number of workers and
// queue size. Non positive values fall back to NumCPU workers and a queue of
// 1024.
func NewTaskDispatcher(workers, queueSize int) *TaskDispatcher {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = defaultWorkerQueueSize
	}
	td := &TaskDispatcher{
		workers: workers,
		queue:   make(chan Task, queueSize),
	}
	td.BaseService = *service.NewBaseService(nil, "DISPATCHER", td)
	return td
}

func (td *TaskDispatcher) SetLogger(logger log.Logger) {
	td.Logger = logger
}

func (td *TaskDispatcher) OnStart() error {
	for i := 0; i < td.workers; i++ {
		go td.workerRoutine(i)
	}
	td.Logger.Info("dispatcher started", "workers", td.workers, "queue", cap(td.queue))
	return nil
}

// Submit enqueues task without blocking.
func (td *TaskDispatcher) Submit(task Task) error {
	if !td.IsRunning() {
		return ErrDispatcherStopped
	}
	select {
	case td.queue <- task:
		return nil
	default:
		atomic.AddInt64(&td.refused, 1)
		return ErrQueueFull
	}
}

// Pending is the number of queued tasks not yet picked up by a worker.
func (td *TaskDispatcher) Pending() int {
	return len(td.queue)
}

func (td *TaskDispatcher) Processed() int64 {
	return atomic.LoadInt64(&td.processed)
}

func (td *TaskDispatcher) Refused() int64 {
	return atomic.LoadInt64(&td.refused)
}

func (td *TaskDispatcher) workerRoutine(id int) {
	for {
		select {
		case <-td.Quit():
			td.Logger.Debug("worker quit", "worker", id)
			return
		case task := <-td.queue:
			td.run(id, task)
		}
	}
}

func (td *TaskDispatcher) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			td.Logger.Error("task panicked", "worker", id, "err", fmt.Sprintf("%v", r))
		}
		atomic.AddInt64(&td.processed, 1)
	}()
	task()
}
