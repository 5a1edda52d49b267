package mempool

import (
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	cfg "sumeragi/config"
	"sumeragi/types"
)

type cleanupFunc func()

// ----- utility func -----

func newMempool() (*ListMempool, cleanupFunc) {
	return newMempoolWithConfig(cfg.ResetTestRoot("mempool_test"))
}

func newMempoolWithConfig(config *cfg.Config) (*ListMempool, cleanupFunc) {
	mempool := NewListMempool(config.Mempool)
	mempool.SetLogger(log.TestingLogger())
	return mempool, func() { os.RemoveAll(config.RootDir) }
}

// 生成一些事件并放入mempool
func storeEvents(t *testing.T, mempool Mempool, count int) []*types.ConsensusEvent {
	evs := make([]*types.ConsensusEvent, count)
	for i := 0; i < count; i++ {
		tx := types.NewTransaction("alice", &types.AssetAdd{
			Account: "alice",
			Asset:   types.Asset{Name: fmt.Sprintf("coin%d", i), Amount: 1},
		})
		evs[i] = types.NewConsensusEvent(tx)
		actual, loaded, err := mempool.LoadOrStore(evs[i])
		if err != nil {
			t.Fatalf("LoadOrStore failed: %v while storing #%d event", err, i)
		}
		require.False(t, loaded)
		require.True(t, actual == evs[i])
	}
	return evs
}

// ----- tests -----

func TestLoadOrStoreKeepsFirstEvent(t *testing.T) {
	mem, cleanup := newMempool()
	defer cleanup()

	evs := storeEvents(t, mem, 1)
	second := evs[0].Copy()
	actual, loaded, err := mem.LoadOrStore(second)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.True(t, actual == evs[0], "the first stored event is canonical")
	assert.Equal(t, 1, mem.Size())

	assert.True(t, mem.Get(evs[0].Hash()) == evs[0])
	assert.Nil(t, mem.Get([]byte("unknown")))

	_, _, err = mem.LoadOrStore(nil)
	assert.Equal(t, ErrNilEvent, err)
}

func TestRemoveAndFlush(t *testing.T) {
	mem, cleanup := newMempool()
	defer cleanup()

	evs := storeEvents(t, mem, 5)
	assert.True(t, mem.Remove(evs[2].Hash()))
	assert.False(t, mem.Remove(evs[2].Hash()))
	assert.Equal(t, 4, mem.Size())
	assert.EqualValues(t, 5, mem.Added())
	assert.EqualValues(t, 1, mem.Removed())

	mem.Flush()
	assert.Equal(t, 0, mem.Size())
	assert.Nil(t, mem.Get(evs[0].Hash()))

	// flushed events can be stored again
	_, loaded, err := mem.LoadOrStore(evs[0])
	require.NoError(t, err)
	assert.False(t, loaded)
}

// Pending按到达顺序返回
func TestPendingInArrivalOrder(t *testing.T) {
	mem, cleanup := newMempool()
	defer cleanup()

	evs := storeEvents(t, mem, 5)
	mem.Remove(evs[1].Hash())

	pending := mem.Pending(-1)
	require.Len(t, pending, 4)
	for i, idx := range []int{0, 2, 3, 4} {
		assert.Equalf(t, evs[idx].Key(), pending[i].Key(), "#%d", i)
	}
	assert.Len(t, mem.Pending(2), 2)
	assert.Len(t, mem.Pending(0), 0)
}

func TestMempoolIsFull(t *testing.T) {
	config := cfg.ResetTestRoot("mempool_test")
	config.Mempool.Size = 3
	mem, cleanup := newMempoolWithConfig(config)
	defer cleanup()

	storeEvents(t, mem, 3)
	ev := types.NewConsensusEvent(types.NewTransaction("bob", &types.AssetAdd{
		Account: "bob",
		Asset:   types.Asset{Name: "coin", Amount: 1},
	}))
	_, _, err := mem.LoadOrStore(ev)
	assert.Equal(t, ErrMempoolIsFull, err)
}

// 并发存入同一个事件，只有一个成为canonical
func TestConcurrentLoadOrStore(t *testing.T) {
	mem, cleanup := newMempool()
	defer cleanup()

	tx := types.NewTransaction("alice", &types.AssetAdd{Account: "alice", Asset: types.Asset{Name: "coin", Amount: 1}})
	const n = 16
	results := make([]*types.ConsensusEvent, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actual, _, err := mem.LoadOrStore(types.NewConsensusEvent(tx))
			assert.NoError(t, err)
			results[i] = actual
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.True(t, results[0] == results[i], "#%d got another canonical event", i)
	}
	assert.Equal(t, 1, mem.Size())
	assert.Contains(t, mem.Metric().JSONString(), "pending_events_num")
}
