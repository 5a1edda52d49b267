package consensus

import (
	"sync"

	dbm "github.com/tendermint/tm-db"
	"github.com/tendermint/tm-db/memdb"
)

//-----------------------------------------------------------------------------
// TxStatus enum type

// TxStatus is the terminal outcome remembered for a transaction hash.
type TxStatus byte

const (
	TxCommitted = TxStatus('C')
	TxRejected  = TxStatus('R')
)

func (s TxStatus) String() string {
	switch s {
	case TxCommitted:
		return "Committed"
	case TxRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

var dedupPrefix = []byte("dedup/")

// DedupCache remembers the terminal status of every transaction hash so a
// transaction is executed at most once. Entries are persisted in db, a hot
// copy is kept in memory.
type DedupCache struct {
	mtx   sync.Mutex
	db    dbm.DB
	cache map[string]TxStatus
}

// NewDedupCache returns a cache backed by db. A nil db keeps entries in
// memory only.
func NewDedupCache(db dbm.DB) *DedupCache {
	if db == nil {
		db = memdb.NewDB()
	}
	return &DedupCache{
		db:    db,
		cache: make(map[string]TxStatus),
	}
}

// Record stores status for hash unless the hash is already terminal.
// It returns false when another status was recorded first; the check and
// the insert are one atomic step.
func (dc *DedupCache) Record(hash []byte, status TxStatus) (bool, error) {
	dc.mtx.Lock()
	defer dc.mtx.Unlock()

	if _, ok, err := dc.lookup(hash); err != nil || ok {
		return false, err
	}
	if err := dc.db.Set(dedupKey(hash), []byte{byte(status)}); err != nil {
		return false, err
	}
	dc.cache[string(hash)] = status
	return true, nil
}

// Lookup returns the status recorded for hash.
func (dc *DedupCache) Lookup(hash []byte) (TxStatus, bool) {
	dc.mtx.Lock()
	defer dc.mtx.Unlock()
	status, ok, _ := dc.lookup(hash)
	return status, ok
}

func (dc *DedupCache) Has(hash []byte) bool {
	_, ok := dc.Lookup(hash)
	return ok
}

// caller holds mtx
func (dc *DedupCache) lookup(hash []byte) (TxStatus, bool, error) {
	if status, ok := dc.cache[string(hash)]; ok {
		return status, true, nil
	}
	bz, err := dc.db.Get(dedupKey(hash))
	if err != nil || len(bz) == 0 {
		return 0, false, err
	}
	status := TxStatus(bz[0])
	dc.cache[string(hash)] = status
	return status, true, nil
}

func dedupKey(hash []byte) []byte {
	key := make([]byte, 0, len(dedupPrefix)+len(hash))
	key = append(key, dedupPrefix...)
	return append(key, hash...)
}
