package consensus

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/tmhash"
	"github.com/tendermint/tm-db/memdb"
)

func TestDedupCacheRecord(t *testing.T) {
	dc := NewDedupCache(nil)
	hash := tmhash.Sum([]byte("tx"))

	assert.False(t, dc.Has(hash))
	ok, err := dc.Record(hash, TxCommitted)
	require.NoError(t, err)
	assert.True(t, ok)

	// first status wins
	ok, err = dc.Record(hash, TxRejected)
	require.NoError(t, err)
	assert.False(t, ok)

	status, found := dc.Lookup(hash)
	assert.True(t, found)
	assert.Equal(t, TxCommitted, status)
	assert.Equal(t, "Committed", status.String())
}

func TestDedupCacheSurvivesRestart(t *testing.T) {
	db := memdb.NewDB()
	hash := tmhash.Sum([]byte("persisted"))

	ok, err := NewDedupCache(db).Record(hash, TxRejected)
	require.NoError(t, err)
	require.True(t, ok)

	reopened := NewDedupCache(db)
	status, found := reopened.Lookup(hash)
	assert.True(t, found)
	assert.Equal(t, TxRejected, status)

	ok, err = reopened.Record(hash, TxCommitted)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDedupCacheConcurrentRecord(t *testing.T) {
	dc := NewDedupCache(nil)
	hash := tmhash.Sum([]byte("race"))

	var (
		wg  sync.WaitGroup
		won int32
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := dc.Record(hash, TxCommitted); ok {
				atomic.AddInt32(&won, 1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, won)
}
