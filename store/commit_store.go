package store

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/crypto/merkle"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"

	"sumeragi/types"
)

var heightKey = []byte("commitStoreHeight")

// CommitRecord is one entry of the append-only commit log.
type CommitRecord struct {
	Height      int64              `json:"height"`
	Transaction *types.Transaction `json:"transaction"`
	Signatures  []types.Signature  `json:"signatures"`
	Order       uint64             `json:"order"`
	Time        time.Time          `json:"time"`
	// merkle root over the previous AppHash and this transaction hash
	AppHash tmbytes.HexBytes `json:"app_hash"`
}

// CommitStore appends committed transactions under increasing heights.
// Records are addressed by height (C:<height>) and by hash (H:<hash>).
type CommitStore struct {
	mtx sync.RWMutex
	db  tmdb.DB

	height  int64
	appHash []byte

	logger log.Logger
}

// NewCommitStore opens the commit log kept in db and restores its height.
func NewCommitStore(db tmdb.DB) (*CommitStore, error) {
	cs := &CommitStore{db: db, logger: log.NewNopLogger()}

	bz, err := db.Get(heightKey)
	if err != nil {
		return nil, err
	}
	if len(bz) == 8 {
		cs.height = int64(binary.BigEndian.Uint64(bz))
		last, err := cs.LoadCommit(cs.height)
		if err != nil {
			return nil, errors.Wrapf(err, "load commit at height %d", cs.height)
		}
		cs.appHash = last.AppHash
	}
	return cs, nil
}

func (cs *CommitStore) SetLogger(logger log.Logger) {
	cs.logger = logger
}

// AppendCommit writes tx and the signatures that committed it as the next
// height and returns that height. A hash that is already in the log is
// refused with ErrDuplicate.
func (cs *CommitStore) AppendCommit(tx *types.Transaction, ev *types.ConsensusEvent) (int64, error) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	has, err := cs.db.Has(calcHashKey(tx.Hash))
	if err != nil {
		return 0, err
	}
	if has {
		return 0, errors.Wrapf(types.ErrDuplicate, "tx %v already in commit log", tx.Key())
	}

	height := cs.height + 1
	record := &CommitRecord{
		Height:      height,
		Transaction: tx,
		Time:        time.Now().UTC(),
		AppHash:     merkle.HashFromByteSlices([][]byte{cs.appHash, tx.Hash}),
	}
	if ev != nil {
		record.Signatures = ev.GetSignatures()
		record.Order = ev.Order
	}
	bz, err := tmjson.Marshal(record)
	if err != nil {
		return 0, errors.Wrap(err, "marshal commit record")
	}

	batch := cs.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(calcCommitKey(height), bz); err != nil {
		return 0, err
	}
	if err := batch.Set(calcHashKey(tx.Hash), heightBytes(height)); err != nil {
		return 0, err
	}
	if err := batch.Set(heightKey, heightBytes(height)); err != nil {
		return 0, err
	}
	if err := batch.WriteSync(); err != nil {
		return 0, err
	}

	cs.height = height
	cs.appHash = record.AppHash
	cs.logger.Debug("commit appended", "height", height, "hash", tx.Key(), "appHash", record.AppHash)
	return height, nil
}

// Height is the height of the last appended commit, 0 when empty.
func (cs *CommitStore) Height() int64 {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()
	return cs.height
}

func (cs *CommitStore) AppHash() []byte {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()
	return cs.appHash
}

func (cs *CommitStore) LoadCommit(height int64) (*CommitRecord, error) {
	bz, err := cs.db.Get(calcCommitKey(height))
	if err != nil {
		return nil, err
	}
	if len(bz) == 0 {
		return nil, fmt.Errorf("no commit at height %d", height)
	}
	record := new(CommitRecord)
	if err := tmjson.Unmarshal(bz, record); err != nil {
		return nil, errors.Wrapf(err, "decode commit at height %d", height)
	}
	return record, nil
}

func (cs *CommitStore) LoadCommitByHash(hash []byte) (*CommitRecord, error) {
	bz, err := cs.db.Get(calcHashKey(hash))
	if err != nil {
		return nil, err
	}
	if len(bz) != 8 {
		return nil, fmt.Errorf("tx %v not committed", types.HashKey(hash))
	}
	return cs.LoadCommit(int64(binary.BigEndian.Uint64(bz)))
}

func calcCommitKey(height int64) []byte {
	return []byte(fmt.Sprintf("C:%v", height))
}

func calcHashKey(hash []byte) []byte {
	return []byte(fmt.Sprintf("H:%X", hash))
}

func heightBytes(height int64) []byte {
	bz := make([]byte, 8)
	binary.BigEndian.PutUint64(bz, uint64(height))
	return bz
}
