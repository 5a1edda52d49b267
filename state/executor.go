package state

import (
	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"

	"sumeragi/store"
	"sumeragi/types"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountExists     = errors.New("account already exists")
	ErrAssetExists       = errors.New("asset already exists")
)

// Executor applies the ledger commands of committed transactions to the
// world state. Peer commands are applied by the consensus context and are
// ignored here.
type Executor struct {
	ws *store.WorldState

	logger log.Logger
}

func NewExecutor(ws *store.WorldState) *Executor {
	return &Executor{ws: ws, logger: log.NewNopLogger()}
}

// SetLogger sets the logger.
func (exec *Executor) SetLogger(logger log.Logger) {
	exec.logger = logger
}

func (exec *Executor) WorldState() *store.WorldState {
	return exec.ws
}

// ExecuteTx applies tx in one atomic update. A failing command leaves the
// world state unchanged.
func (exec *Executor) ExecuteTx(tx *types.Transaction) error {
	err := exec.ws.Update(func(stx *store.StateTx) error {
		return exec.apply(stx, tx)
	})
	if err != nil {
		exec.logger.Error("exec tx failed.", "hash", tx.Key(), "cmd", types.CommandName(tx.Command), "err", err)
		return err
	}
	exec.logger.Debug("exec tx", "hash", tx.Key(), "cmd", types.CommandName(tx.Command))
	return nil
}

func (exec *Executor) apply(stx *store.StateTx, tx *types.Transaction) error {
	switch cmd := tx.Command.(type) {
	case *types.AssetCreate:
		return createAsset(stx, tx.Creator, *cmd)
	case types.AssetCreate:
		return createAsset(stx, tx.Creator, cmd)
	case *types.AssetAdd:
		return addAsset(stx, cmd.Account, cmd.Asset)
	case types.AssetAdd:
		return addAsset(stx, cmd.Account, cmd.Asset)
	case *types.AssetRemove:
		return removeAsset(stx, cmd.Account, cmd.Asset)
	case types.AssetRemove:
		return removeAsset(stx, cmd.Account, cmd.Asset)
	case *types.AssetTransfer:
		return transferAsset(stx, *cmd)
	case types.AssetTransfer:
		return transferAsset(stx, cmd)
	case *types.AccountAdd:
		return addAccount(stx, *cmd)
	case types.AccountAdd:
		return addAccount(stx, cmd)
	case *types.AccountRemove:
		return removeAccount(stx, cmd.PubKey)
	case types.AccountRemove:
		return removeAccount(stx, cmd.PubKey)
	case *types.AccountAddSignatory:
		return addSignatories(stx, cmd.Account, cmd.Signatories)
	case types.AccountAddSignatory:
		return addSignatories(stx, cmd.Account, cmd.Signatories)
	case *types.AccountRemoveSignatory:
		return removeSignatory(stx, cmd.Account, cmd.Signatory)
	case types.AccountRemoveSignatory:
		return removeSignatory(stx, cmd.Account, cmd.Signatory)
	case types.PeerCommand:
		return nil
	default:
		return errors.Wrapf(types.ErrUnknownCommand, "%T", tx.Command)
	}
}

func createAsset(stx *store.StateTx, creator string, cmd types.AssetCreate) error {
	if _, err := stx.Asset(cmd.AssetName); err == nil {
		return errors.Wrapf(ErrAssetExists, "asset %v", cmd.AssetName)
	} else if errors.Cause(err) != store.ErrNotFound {
		return err
	}
	if cmd.Creator != "" {
		creator = cmd.Creator
	}
	return stx.SetAsset(&store.AssetDef{
		Name:    cmd.AssetName,
		Domain:  cmd.DomainName,
		Ledger:  cmd.LedgerName,
		Creator: creator,
	})
}

func addAsset(stx *store.StateTx, account string, asset types.Asset) error {
	bal, err := stx.Balance(account, asset.Name)
	if err != nil {
		return err
	}
	return stx.SetBalance(account, asset.Name, bal+asset.Amount)
}

func removeAsset(stx *store.StateTx, account string, asset types.Asset) error {
	bal, err := stx.Balance(account, asset.Name)
	if err != nil {
		return err
	}
	if bal < asset.Amount {
		return errors.Wrapf(ErrInsufficientFunds, "%v holds %d %v, needs %d", account, bal, asset.Name, asset.Amount)
	}
	return stx.SetBalance(account, asset.Name, bal-asset.Amount)
}

func transferAsset(stx *store.StateTx, cmd types.AssetTransfer) error {
	if err := removeAsset(stx, cmd.Sender, cmd.Asset); err != nil {
		return err
	}
	return addAsset(stx, cmd.Receiver, cmd.Asset)
}

func addAccount(stx *store.StateTx, cmd types.AccountAdd) error {
	if _, err := stx.Account(cmd.PubKey); err == nil {
		return errors.Wrapf(ErrAccountExists, "account %v", cmd.PubKey)
	} else if errors.Cause(err) != store.ErrNotFound {
		return err
	}
	signatories := cmd.Signatories
	if len(signatories) == 0 {
		signatories = []string{cmd.PubKey}
	}
	return stx.SetAccount(&store.Account{
		PubKey:      cmd.PubKey,
		Alias:       cmd.Alias,
		Signatories: signatories,
	})
}

func removeAccount(stx *store.StateTx, pubKey string) error {
	if _, err := stx.Account(pubKey); err != nil {
		return err
	}
	return stx.DeleteAccount(pubKey)
}

func addSignatories(stx *store.StateTx, account string, signatories []string) error {
	acc, err := stx.Account(account)
	if err != nil {
		return err
	}
	for _, s := range signatories {
		if !contains(acc.Signatories, s) {
			acc.Signatories = append(acc.Signatories, s)
		}
	}
	return stx.SetAccount(acc)
}

// An account keeps at least one signatory.
func removeSignatory(stx *store.StateTx, account, signatory string) error {
	acc, err := stx.Account(account)
	if err != nil {
		return err
	}
	kept := acc.Signatories[:0]
	for _, s := range acc.Signatories {
		if s != signatory {
			kept = append(kept, s)
		}
	}
	if len(kept) == len(acc.Signatories) {
		return errors.Wrapf(store.ErrNotFound, "signatory %v of %v", signatory, account)
	}
	if len(kept) == 0 {
		return errors.Errorf("can not remove the last signatory of %v", account)
	}
	acc.Signatories = kept
	return stx.SetAccount(acc)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
