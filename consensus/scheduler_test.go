package consensus

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
)

func newTestScheduler(t *testing.T) *Scheduler {
	s := NewScheduler()
	s.SetLogger(log.TestingLogger())
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestSchedulerFiresInOrder(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()
	s := newTestScheduler(t)

	fired := make(chan string, 3)
	s.Schedule("c", 60*time.Millisecond, func() { fired <- "c" })
	s.Schedule("a", 10*time.Millisecond, func() { fired <- "a" })
	s.Schedule("b", 30*time.Millisecond, func() { fired <- "b" })
	assert.Equal(t, 3, s.Len())

	for _, want := range []string{"a", "b", "c"} {
		select {
		case got := <-fired:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("timer %s did not fire", want)
		}
	}
	assert.Equal(t, 0, s.Len())
	require.NoError(t, s.Stop())
}

func TestSchedulerCancel(t *testing.T) {
	s := newTestScheduler(t)

	var fired int32
	s.Schedule("tx", 20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	assert.True(t, s.IsScheduled("tx"))
	assert.True(t, s.Cancel("tx"))
	assert.False(t, s.Cancel("tx"))
	assert.False(t, s.IsScheduled("tx"))

	time.Sleep(60 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&fired))
}

// 同一个key重新调度会替换之前的定时器
func TestSchedulerReschedule(t *testing.T) {
	s := newTestScheduler(t)

	fired := make(chan int, 2)
	s.Schedule("tx", 10*time.Millisecond, func() { fired <- 1 })
	s.Schedule("tx", 40*time.Millisecond, func() { fired <- 2 })
	assert.Equal(t, 1, s.Len())

	select {
	case got := <-fired:
		assert.Equal(t, 2, got)
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	select {
	case <-fired:
		t.Fatal("replaced timer fired")
	case <-time.After(50 * time.Millisecond):
	}
}
