package types

import (
	"bytes"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/crypto/tmhash"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	tmjson "github.com/tendermint/tendermint/libs/json"
)

// Transaction is a client request. Hash is computed by the client and
// must match ComputeHash for the transaction to be accepted.
type Transaction struct {
	Creator   string           `json:"creator"`
	Command   Command          `json:"command"`
	Timestamp time.Time        `json:"timestamp"`
	Hash      tmbytes.HexBytes `json:"hash"`
}

// canonical form that gets hashed
type canonicalTx struct {
	Creator   string    `json:"creator"`
	Command   Command   `json:"command"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTransaction builds a transaction and fills in its hash.
func NewTransaction(creator string, cmd Command) *Transaction {
	tx := &Transaction{
		Creator:   creator,
		Command:   cmd,
		Timestamp: time.Now().UTC(),
	}
	tx.Hash = tx.ComputeHash()
	return tx
}

func (tx *Transaction) ComputeHash() []byte {
	bz, err := tmjson.Marshal(canonicalTx{
		Creator:   tx.Creator,
		Command:   tx.Command,
		Timestamp: tx.Timestamp,
	})
	if err != nil {
		return nil
	}
	return tmhash.Sum(bz)
}

// ValidateBasic checks the transaction is well formed. Errors are wrapped
// with ErrValidation.
func (tx *Transaction) ValidateBasic() error {
	if tx == nil {
		return errors.Wrap(ErrValidation, "nil transaction")
	}
	if len(tx.Hash) != tmhash.Size {
		return errors.Wrapf(ErrValidation, "wrong hash size %d", len(tx.Hash))
	}
	if tx.Command == nil {
		return errors.Wrap(ErrValidation, "transaction without command")
	}
	if !bytes.Equal(tx.ComputeHash(), tx.Hash) {
		return errors.Wrapf(ErrValidation, "hash mismatch for %v", tx.Hash)
	}
	if err := tx.Command.ValidateBasic(); err != nil {
		return errors.Wrapf(ErrValidation, "invalid %v command: %v", CommandName(tx.Command), err)
	}
	return nil
}

// HashMatches reports whether the carried hash is the canonical one. A
// transaction with a matching hash but a bad command can be remembered as
// rejected, one with a mismatching hash can not.
func (tx *Transaction) HashMatches() bool {
	return tx != nil && tx.Command != nil && len(tx.Hash) == tmhash.Size &&
		bytes.Equal(tx.ComputeHash(), tx.Hash)
}

// Key is the map key of the transaction.
func (tx *Transaction) Key() string {
	return HashKey(tx.Hash)
}

// HashKey is the upper-case hex form of hash used as map and log key.
func HashKey(hash []byte) string {
	return tmbytes.HexBytes(hash).String()
}

func (tx *Transaction) String() string {
	if tx == nil {
		return "nil-Tx"
	}
	return fmt.Sprintf("Tx{%X %v by %v}", []byte(tx.Hash), CommandName(tx.Command), shortKey(tx.Creator))
}
