package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tm-db/memdb"

	"sumeragi/types"
)

func newTx(t *testing.T, account string, amount int64) *types.Transaction {
	tx := types.NewTransaction(account, &types.AssetAdd{
		Account: account,
		Asset:   types.Asset{Name: "coin", Amount: amount},
	})
	require.NoError(t, tx.ValidateBasic())
	return tx
}

func TestCommitStoreAppendAndLoad(t *testing.T) {
	db := memdb.NewDB()
	cs, err := NewCommitStore(db)
	require.NoError(t, err)
	assert.EqualValues(t, 0, cs.Height())

	txs := []*types.Transaction{newTx(t, "alice", 1), newTx(t, "bob", 2), newTx(t, "carol", 3)}
	var appHashes [][]byte
	for i, tx := range txs {
		ev := types.NewConsensusEvent(tx)
		require.NoError(t, ev.AddSignature(types.Signature{PubKey: "AA", Signature: []byte{1}}))
		height, err := cs.AppendCommit(tx, ev)
		require.NoError(t, err)
		assert.EqualValues(t, i+1, height)
		appHashes = append(appHashes, cs.AppHash())
	}
	assert.EqualValues(t, 3, cs.Height())
	assert.NotEqual(t, appHashes[0], appHashes[1], "app hash chains every commit")

	record, err := cs.LoadCommit(2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, record.Height)
	assert.Equal(t, txs[1].Hash, record.Transaction.Hash)
	assert.Len(t, record.Signatures, 1)
	assert.Equal(t, "AA", record.Signatures[0].PubKey)

	record, err = cs.LoadCommitByHash(txs[2].Hash)
	require.NoError(t, err)
	assert.EqualValues(t, 3, record.Height)
	// the command survives the interface round trip
	cmd, ok := record.Transaction.Command.(*types.AssetAdd)
	require.True(t, ok, "got %T", record.Transaction.Command)
	assert.EqualValues(t, 3, cmd.Asset.Amount)

	_, err = cs.LoadCommit(4)
	assert.Error(t, err)
	_, err = cs.LoadCommitByHash([]byte("unknown"))
	assert.Error(t, err)
}

func TestCommitStoreRefusesDuplicate(t *testing.T) {
	cs, err := NewCommitStore(memdb.NewDB())
	require.NoError(t, err)

	tx := newTx(t, "alice", 1)
	_, err = cs.AppendCommit(tx, nil)
	require.NoError(t, err)
	_, err = cs.AppendCommit(tx, nil)
	assert.True(t, types.IsDuplicate(err), "got %v", err)
	assert.EqualValues(t, 1, cs.Height())
}

func TestCommitStoreReopen(t *testing.T) {
	db := memdb.NewDB()
	cs, err := NewCommitStore(db)
	require.NoError(t, err)
	_, err = cs.AppendCommit(newTx(t, "alice", 1), nil)
	require.NoError(t, err)
	_, err = cs.AppendCommit(newTx(t, "bob", 1), nil)
	require.NoError(t, err)

	reopened, err := NewCommitStore(db)
	require.NoError(t, err)
	assert.EqualValues(t, 2, reopened.Height())
	assert.Equal(t, cs.AppHash(), reopened.AppHash())

	height, err := reopened.AppendCommit(newTx(t, "carol", 1), nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, height)
	assert.EqualValues(t, 3, reopened.Height())
}

func TestRosterStore(t *testing.T) {
	rs := NewRosterStore(memdb.NewDB())
	snap, err := rs.LoadRoster()
	require.NoError(t, err)
	assert.Nil(t, snap, "nothing saved yet")

	saved := &types.RosterSnapshot{
		Height: 7,
		Round:  3,
		Peers: []types.Peer{
			*types.NewPeer("BB", "node1", 1),
			*types.NewPeer("AA", "node0", 1),
		},
	}
	require.NoError(t, rs.SaveRoster(saved))

	loaded, err := rs.LoadRoster()
	require.NoError(t, err)
	assert.Equal(t, saved, loaded, "chain order is kept as saved")
}
