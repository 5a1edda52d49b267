package types

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
)

// Command is the closed set of operations a transaction can carry.
// Only the types in this file implement it.
type Command interface {
	ValidateBasic() error
	command()
}

// PeerCommand is a governance command that mutates the peer roster.
// It is applied to the consensus context once the carrying transaction commits.
type PeerCommand interface {
	Command
	peerCommand()
}

func init() {
	tmjson.RegisterType(&AssetCreate{}, "sumeragi/AssetCreate")
	tmjson.RegisterType(&AssetAdd{}, "sumeragi/AssetAdd")
	tmjson.RegisterType(&AssetRemove{}, "sumeragi/AssetRemove")
	tmjson.RegisterType(&AssetTransfer{}, "sumeragi/AssetTransfer")
	tmjson.RegisterType(&PeerAdd{}, "sumeragi/PeerAdd")
	tmjson.RegisterType(&PeerRemove{}, "sumeragi/PeerRemove")
	tmjson.RegisterType(&PeerSetActive{}, "sumeragi/PeerSetActive")
	tmjson.RegisterType(&PeerSetTrust{}, "sumeragi/PeerSetTrust")
	tmjson.RegisterType(&PeerChangeTrust{}, "sumeragi/PeerChangeTrust")
	tmjson.RegisterType(&AccountAdd{}, "sumeragi/AccountAdd")
	tmjson.RegisterType(&AccountRemove{}, "sumeragi/AccountRemove")
	tmjson.RegisterType(&AccountAddSignatory{}, "sumeragi/AccountAddSignatory")
	tmjson.RegisterType(&AccountRemoveSignatory{}, "sumeragi/AccountRemoveSignatory")
}

// ------ asset ------

// Asset is an amount of a named asset held by an account.
type Asset struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

func (a Asset) validate() error {
	if a.Name == "" {
		return errors.New("empty asset name")
	}
	if a.Amount <= 0 {
		return fmt.Errorf("asset %v amount must be positive, got %d", a.Name, a.Amount)
	}
	return nil
}

type AssetCreate struct {
	AssetName  string `json:"asset_name"`
	DomainName string `json:"domain_name"`
	LedgerName string `json:"ledger_name"`
	Creator    string `json:"creator"`
}

type AssetAdd struct {
	Account string `json:"account"`
	Asset   Asset  `json:"asset"`
}

type AssetRemove struct {
	Account string `json:"account"`
	Asset   Asset  `json:"asset"`
}

type AssetTransfer struct {
	Asset    Asset  `json:"asset"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
}

func (c AssetCreate) ValidateBasic() error {
	if c.AssetName == "" || c.DomainName == "" || c.LedgerName == "" {
		return errors.New("asset create requires asset, domain and ledger names")
	}
	return nil
}

func (c AssetAdd) ValidateBasic() error {
	if c.Account == "" {
		return errors.New("empty account")
	}
	return c.Asset.validate()
}

func (c AssetRemove) ValidateBasic() error {
	if c.Account == "" {
		return errors.New("empty account")
	}
	return c.Asset.validate()
}

func (c AssetTransfer) ValidateBasic() error {
	if c.Sender == "" || c.Receiver == "" {
		return errors.New("transfer requires sender and receiver")
	}
	if c.Sender == c.Receiver {
		return errors.New("transfer to self")
	}
	return c.Asset.validate()
}

// ------ peer ------

type PeerAdd struct {
	Peer Peer `json:"peer"`
}

type PeerRemove struct {
	PubKey string `json:"pub_key"`
}

type PeerSetActive struct {
	PubKey string `json:"pub_key"`
	Active bool   `json:"active"`
}

type PeerSetTrust struct {
	PubKey string  `json:"pub_key"`
	Trust  float64 `json:"trust"`
}

// PeerChangeTrust adds Delta to the current trust score.
type PeerChangeTrust struct {
	PubKey string  `json:"pub_key"`
	Delta  float64 `json:"delta"`
}

func (c PeerAdd) ValidateBasic() error { return c.Peer.ValidateBasic() }

func (c PeerRemove) ValidateBasic() error { return requireKey(c.PubKey) }

func (c PeerSetActive) ValidateBasic() error { return requireKey(c.PubKey) }

func (c PeerSetTrust) ValidateBasic() error { return requireKey(c.PubKey) }

func (c PeerChangeTrust) ValidateBasic() error { return requireKey(c.PubKey) }

// ------ account ------

type AccountAdd struct {
	PubKey      string   `json:"pub_key"`
	Alias       string   `json:"alias"`
	Signatories []string `json:"signatories"`
}

type AccountRemove struct {
	PubKey string `json:"pub_key"`
}

type AccountAddSignatory struct {
	Account     string   `json:"account"`
	Signatories []string `json:"signatories"`
}

type AccountRemoveSignatory struct {
	Account   string `json:"account"`
	Signatory string `json:"signatory"`
}

func (c AccountAdd) ValidateBasic() error { return requireKey(c.PubKey) }

func (c AccountRemove) ValidateBasic() error { return requireKey(c.PubKey) }

func (c AccountAddSignatory) ValidateBasic() error {
	if err := requireKey(c.Account); err != nil {
		return err
	}
	if len(c.Signatories) == 0 {
		return errors.New("no signatories")
	}
	for _, s := range c.Signatories {
		if strings.TrimSpace(s) == "" {
			return errors.New("empty signatory")
		}
	}
	return nil
}

func (c AccountRemoveSignatory) ValidateBasic() error {
	if err := requireKey(c.Account); err != nil {
		return err
	}
	return requireKey(c.Signatory)
}

func requireKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("empty public key")
	}
	return nil
}

func (AssetCreate) command()            {}
func (AssetAdd) command()               {}
func (AssetRemove) command()            {}
func (AssetTransfer) command()          {}
func (PeerAdd) command()                {}
func (PeerRemove) command()             {}
func (PeerSetActive) command()          {}
func (PeerSetTrust) command()           {}
func (PeerChangeTrust) command()        {}
func (AccountAdd) command()             {}
func (AccountRemove) command()          {}
func (AccountAddSignatory) command()    {}
func (AccountRemoveSignatory) command() {}

func (PeerAdd) peerCommand()         {}
func (PeerRemove) peerCommand()      {}
func (PeerSetActive) peerCommand()   {}
func (PeerSetTrust) peerCommand()    {}
func (PeerChangeTrust) peerCommand() {}

// CommandName returns a short name used in logs and metrics.
func CommandName(cmd Command) string {
	switch cmd.(type) {
	case *AssetCreate, AssetCreate:
		return "asset_create"
	case *AssetAdd, AssetAdd:
		return "asset_add"
	case *AssetRemove, AssetRemove:
		return "asset_remove"
	case *AssetTransfer, AssetTransfer:
		return "asset_transfer"
	case *PeerAdd, PeerAdd:
		return "peer_add"
	case *PeerRemove, PeerRemove:
		return "peer_remove"
	case *PeerSetActive, PeerSetActive:
		return "peer_set_active"
	case *PeerSetTrust, PeerSetTrust:
		return "peer_set_trust"
	case *PeerChangeTrust, PeerChangeTrust:
		return "peer_change_trust"
	case *AccountAdd, AccountAdd:
		return "account_add"
	case *AccountRemove, AccountRemove:
		return "account_remove"
	case *AccountAddSignatory, AccountAddSignatory:
		return "account_add_signatory"
	case *AccountRemoveSignatory, AccountRemoveSignatory:
		return "account_remove_signatory"
	default:
		return "unknown"
	}
}
