package store

import (
	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmdb "github.com/tendermint/tm-db"

	"sumeragi/types"
)

var rosterKey = []byte("roster")

// RosterStore keeps the latest chain order of this node.
type RosterStore struct {
	db tmdb.DB
}

func NewRosterStore(db tmdb.DB) *RosterStore {
	return &RosterStore{db: db}
}

func (rs *RosterStore) SaveRoster(snap *types.RosterSnapshot) error {
	bz, err := tmjson.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "marshal roster")
	}
	return rs.db.SetSync(rosterKey, bz)
}

// LoadRoster returns the saved roster, or nil when none was saved yet.
func (rs *RosterStore) LoadRoster() (*types.RosterSnapshot, error) {
	bz, err := rs.db.Get(rosterKey)
	if err != nil {
		return nil, err
	}
	if len(bz) == 0 {
		return nil, nil
	}
	snap := new(types.RosterSnapshot)
	if err := tmjson.Unmarshal(bz, snap); err != nil {
		return nil, errors.Wrap(err, "decode roster")
	}
	return snap, nil
}
