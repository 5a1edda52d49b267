package store

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"
	leveldb "github.com/tendermint/tm-db/goleveldb"
)

// table prefixes
// account table: key=account/{pubkey}; value=json(Account)
// asset table: key=asset/{name}; value=json(AssetDef)
// balance table: key=balance/{account}/{asset}; value=int64
const (
	tableAccount = "account/"
	tableAsset   = "asset/"
	tableBalance = "balance/"
)

var ErrNotFound = errors.New("not found")

// Account is a ledger account identified by its public key.
type Account struct {
	PubKey      string   `json:"pub_key"`
	Alias       string   `json:"alias"`
	Signatories []string `json:"signatories"`
}

// AssetDef describes an asset created with AssetCreate.
type AssetDef struct {
	Name    string `json:"name"`
	Domain  string `json:"domain"`
	Ledger  string `json:"ledger"`
	Creator string `json:"creator"`
}

// NewWorldState opens a goleveldb backed world state named name in dir.
func NewWorldState(name, dir string) (*WorldState, error) {
	levelDB, err := leveldb.NewDB(name, dir)
	if err != nil {
		return nil, err
	}
	return NewWorldStateWithDB(levelDB), nil
}

func NewWorldStateWithDB(db tmdb.DB) *WorldState {
	return &WorldState{db: db, logger: log.NewNopLogger()}
}

// WorldState holds the accounts, assets and balances changed by committed
// transactions. Changes go through Update, which applies them atomically.
type WorldState struct {
	mtx sync.Mutex
	db  tmdb.DB

	logger log.Logger
}

func (ws *WorldState) SetLogger(logger log.Logger) {
	ws.logger = logger
}

func (ws *WorldState) GetDB() tmdb.DB {
	return ws.db
}

// Update runs fn against a staged view of the state and writes the staged
// changes in one batch if fn succeeds. Updates are serialized.
func (ws *WorldState) Update(fn func(*StateTx) error) error {
	ws.mtx.Lock()
	defer ws.mtx.Unlock()

	stx := &StateTx{db: ws.db, writes: make(map[string][]byte)}
	if err := fn(stx); err != nil {
		return err
	}
	if len(stx.writes) == 0 {
		return nil
	}

	batch := ws.db.NewBatch()
	defer batch.Close()
	for k, v := range stx.writes {
		var err error
		if v == nil {
			err = batch.Delete([]byte(k))
		} else {
			err = batch.Set([]byte(k), v)
		}
		if err != nil {
			return err
		}
	}
	return batch.WriteSync()
}

// View runs fn against the committed state.
func (ws *WorldState) View(fn func(*StateTx) error) error {
	return fn(&StateTx{db: ws.db})
}

func (ws *WorldState) Account(pubKey string) (*Account, error) {
	var acc *Account
	err := ws.View(func(stx *StateTx) error {
		var err error
		acc, err = stx.Account(pubKey)
		return err
	})
	return acc, err
}

func (ws *WorldState) Balance(account, asset string) (int64, error) {
	var bal int64
	err := ws.View(func(stx *StateTx) error {
		var err error
		bal, err = stx.Balance(account, asset)
		return err
	})
	return bal, err
}

//-----------------------------------------------------------------------------

// StateTx reads through its own pending writes. A nil value marks a delete.
// Not safe for concurrent use.
type StateTx struct {
	db     tmdb.DB
	writes map[string][]byte
}

func (stx *StateTx) get(key []byte) ([]byte, error) {
	if v, ok := stx.writes[string(key)]; ok {
		return v, nil
	}
	return stx.db.Get(key)
}

func (stx *StateTx) set(key, value []byte) error {
	if stx.writes == nil {
		return errors.New("read only state view")
	}
	stx.writes[string(key)] = value
	return nil
}

func (stx *StateTx) Account(pubKey string) (*Account, error) {
	bz, err := stx.get(genKey(tableAccount, pubKey))
	if err != nil {
		return nil, err
	}
	if len(bz) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "account %v", pubKey)
	}
	acc := new(Account)
	if err := tmjson.Unmarshal(bz, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

func (stx *StateTx) SetAccount(acc *Account) error {
	bz, err := tmjson.Marshal(acc)
	if err != nil {
		return err
	}
	return stx.set(genKey(tableAccount, acc.PubKey), bz)
}

func (stx *StateTx) DeleteAccount(pubKey string) error {
	return stx.set(genKey(tableAccount, pubKey), nil)
}

func (stx *StateTx) Asset(name string) (*AssetDef, error) {
	bz, err := stx.get(genKey(tableAsset, name))
	if err != nil {
		return nil, err
	}
	if len(bz) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "asset %v", name)
	}
	def := new(AssetDef)
	if err := tmjson.Unmarshal(bz, def); err != nil {
		return nil, err
	}
	return def, nil
}

func (stx *StateTx) SetAsset(def *AssetDef) error {
	bz, err := tmjson.Marshal(def)
	if err != nil {
		return err
	}
	return stx.set(genKey(tableAsset, def.Name), bz)
}

// Balance returns 0 for an account that never held asset.
func (stx *StateTx) Balance(account, asset string) (int64, error) {
	bz, err := stx.get(genKey(tableBalance, account, asset))
	if err != nil {
		return 0, err
	}
	if len(bz) != 8 {
		return 0, nil
	}
	return int64(binary.BigEndian.Uint64(bz)), nil
}

func (stx *StateTx) SetBalance(account, asset string, amount int64) error {
	bz := make([]byte, 8)
	binary.BigEndian.PutUint64(bz, uint64(amount))
	return stx.set(genKey(tableBalance, account, asset), bz)
}

func genKey(table string, parts ...string) []byte {
	buffer := new(bytes.Buffer)
	buffer.WriteString(table)
	for i, p := range parts {
		if i > 0 {
			buffer.WriteByte('/')
		}
		buffer.WriteString(p)
	}
	return buffer.Bytes()
}
