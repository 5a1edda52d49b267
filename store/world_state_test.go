package store

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tm-db/memdb"
)

func TestWorldStateUpdate(t *testing.T) {
	ws := NewWorldStateWithDB(memdb.NewDB())

	err := ws.Update(func(stx *StateTx) error {
		if err := stx.SetAccount(&Account{PubKey: "alice", Signatories: []string{"alice"}}); err != nil {
			return err
		}
		if err := stx.SetBalance("alice", "coin", 100); err != nil {
			return err
		}
		// reads see the pending writes
		bal, err := stx.Balance("alice", "coin")
		if err != nil {
			return err
		}
		assert.EqualValues(t, 100, bal)
		return nil
	})
	require.NoError(t, err)

	acc, err := ws.Account("alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, acc.Signatories)

	bal, err := ws.Balance("alice", "coin")
	require.NoError(t, err)
	assert.EqualValues(t, 100, bal)

	bal, err = ws.Balance("alice", "gold")
	require.NoError(t, err)
	assert.EqualValues(t, 0, bal)
}

// fn失败时，暂存的修改不会写入
func TestWorldStateUpdateIsAtomic(t *testing.T) {
	ws := NewWorldStateWithDB(memdb.NewDB())
	boom := errors.New("boom")

	err := ws.Update(func(stx *StateTx) error {
		require.NoError(t, stx.SetBalance("alice", "coin", 5))
		return boom
	})
	assert.Equal(t, boom, err)

	bal, err := ws.Balance("alice", "coin")
	require.NoError(t, err)
	assert.EqualValues(t, 0, bal)
}

func TestWorldStateDeleteAndMissing(t *testing.T) {
	ws := NewWorldStateWithDB(memdb.NewDB())
	require.NoError(t, ws.Update(func(stx *StateTx) error {
		return stx.SetAccount(&Account{PubKey: "bob"})
	}))
	require.NoError(t, ws.Update(func(stx *StateTx) error {
		return stx.DeleteAccount("bob")
	}))

	_, err := ws.Account("bob")
	assert.Equal(t, ErrNotFound, pkgerrors.Cause(err))

	// views are read only
	err = ws.View(func(stx *StateTx) error {
		return stx.SetBalance("bob", "coin", 1)
	})
	assert.Error(t, err)
}

func TestGenKey(t *testing.T) {
	assert.Equal(t, "balance/alice/coin", string(genKey(tableBalance, "alice", "coin")))
	assert.Equal(t, "account/alice", string(genKey(tableAccount, "alice")))
}
