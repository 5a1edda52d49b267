package consensus

import (
	"github.com/tendermint/tendermint/crypto"

	"sumeragi/types"
)

// Transport delivers events and raw transactions to other peers. Calls are
// best effort; a failure is compensated by chain forwarding and panic
// broadcast, never retried per send.
type Transport interface {
	// Send delivers ev to the peer listening on address.
	Send(address string, ev *types.ConsensusEvent) error

	// Broadcast delivers ev to every active peer except this node.
	Broadcast(ev *types.ConsensusEvent) error

	// SendTransaction hands a client transaction to the peer on address,
	// normally the leader.
	SendTransaction(address string, tx *types.Transaction) error
}

// Signer signs transaction digests with this node's key.
type Signer interface {
	GetPubKey() (crypto.PubKey, error)
	SignDigest(digest []byte) ([]byte, error)
}

// Verifier checks a signature against a hex encoded public key.
type Verifier interface {
	Verify(digest, sig []byte, pubKey string) bool
}

// CommitLog is the durable ledger of committed transactions. AppendCommit
// returns the height tx was written at and ErrDuplicate for a hash that is
// already logged.
type CommitLog interface {
	AppendCommit(tx *types.Transaction, ev *types.ConsensusEvent) (int64, error)
}

// RosterStore persists the chain order after every topology change.
type RosterStore interface {
	SaveRoster(snap *types.RosterSnapshot) error
}

// TxExecutor applies the command of a committed transaction to the
// application state.
type TxExecutor interface {
	ExecuteTx(tx *types.Transaction) error
}

//-----------------------------------------------------------------------------

// nopCommitLog and nopExecutor stand in when the processor runs without
// persistence, e.g. in tests.
type nopCommitLog struct{}

func (nopCommitLog) AppendCommit(*types.Transaction, *types.ConsensusEvent) (int64, error) {
	return 0, nil
}

type nopExecutor struct{}

func (nopExecutor) ExecuteTx(*types.Transaction) error { return nil }
