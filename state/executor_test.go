package state

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tm-db/memdb"

	"sumeragi/store"
	"sumeragi/types"
)

func newTestExecutor() *Executor {
	exec := NewExecutor(store.NewWorldStateWithDB(memdb.NewDB()))
	exec.SetLogger(log.TestingLogger())
	return exec
}

func execute(t *testing.T, exec *Executor, cmd types.Command) error {
	tx := types.NewTransaction("admin", cmd)
	require.NoError(t, tx.ValidateBasic())
	return exec.ExecuteTx(tx)
}

func balanceOf(t *testing.T, exec *Executor, account string) int64 {
	bal, err := exec.WorldState().Balance(account, "coin")
	require.NoError(t, err)
	return bal
}

func TestExecuteAssetCommands(t *testing.T) {
	exec := newTestExecutor()
	coin := func(n int64) types.Asset { return types.Asset{Name: "coin", Amount: n} }

	require.NoError(t, execute(t, exec, &types.AssetCreate{AssetName: "coin", DomainName: "test", LedgerName: "main"}))
	err := execute(t, exec, &types.AssetCreate{AssetName: "coin", DomainName: "test", LedgerName: "main"})
	assert.Equal(t, ErrAssetExists, errors.Cause(err))

	require.NoError(t, execute(t, exec, &types.AssetAdd{Account: "alice", Asset: coin(100)}))
	require.NoError(t, execute(t, exec, &types.AssetTransfer{Sender: "alice", Receiver: "bob", Asset: coin(30)}))
	assert.EqualValues(t, 70, balanceOf(t, exec, "alice"))
	assert.EqualValues(t, 30, balanceOf(t, exec, "bob"))

	require.NoError(t, execute(t, exec, types.AssetRemove{Account: "bob", Asset: coin(10)}))
	assert.EqualValues(t, 20, balanceOf(t, exec, "bob"))

	// 余额不足时转账失败，双方余额不变
	err = execute(t, exec, &types.AssetTransfer{Sender: "bob", Receiver: "alice", Asset: coin(21)})
	assert.Equal(t, ErrInsufficientFunds, errors.Cause(err))
	assert.EqualValues(t, 70, balanceOf(t, exec, "alice"))
	assert.EqualValues(t, 20, balanceOf(t, exec, "bob"))
}

func TestExecuteAccountCommands(t *testing.T) {
	exec := newTestExecutor()
	ws := exec.WorldState()

	require.NoError(t, execute(t, exec, &types.AccountAdd{PubKey: "AA", Alias: "alice"}))
	err := execute(t, exec, &types.AccountAdd{PubKey: "AA"})
	assert.Equal(t, ErrAccountExists, errors.Cause(err))

	acc, err := ws.Account("AA")
	require.NoError(t, err)
	assert.Equal(t, []string{"AA"}, acc.Signatories)

	require.NoError(t, execute(t, exec, &types.AccountAddSignatory{Account: "AA", Signatories: []string{"BB", "AA"}}))
	acc, err = ws.Account("AA")
	require.NoError(t, err)
	assert.Equal(t, []string{"AA", "BB"}, acc.Signatories)

	require.NoError(t, execute(t, exec, &types.AccountRemoveSignatory{Account: "AA", Signatory: "AA"}))
	assert.Error(t, execute(t, exec, &types.AccountRemoveSignatory{Account: "AA", Signatory: "BB"}), "last signatory stays")
	assert.Error(t, execute(t, exec, &types.AccountRemoveSignatory{Account: "AA", Signatory: "CC"}))

	require.NoError(t, execute(t, exec, &types.AccountRemove{PubKey: "AA"}))
	_, err = ws.Account("AA")
	assert.Equal(t, store.ErrNotFound, errors.Cause(err))
	assert.Error(t, execute(t, exec, &types.AccountRemove{PubKey: "AA"}))
}

func TestExecuteIgnoresPeerCommands(t *testing.T) {
	exec := newTestExecutor()
	assert.NoError(t, execute(t, exec, &types.PeerSetTrust{PubKey: "AA", Trust: 2}))
}
