package rpc

import (
	"errors"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"sumeragi/store"
	"sumeragi/types"
)

const maxPendingLimit = 100

type ResultSubmitTx struct {
	Hash tmbytes.HexBytes `json:"hash"`
	Code string           `json:"code"`
	Log  string           `json:"log,omitempty"`
}

type ResultCommitStatus struct {
	Hash      tmbytes.HexBytes `json:"hash"`
	Known     bool             `json:"known"`
	Status    string           `json:"status,omitempty"`
	Height    int64            `json:"height,omitempty"`
	Pending   bool             `json:"pending"`
	NumSigned int              `json:"num_signed,omitempty"`
}

type ResultCommitCount struct {
	Count  int64 `json:"count"`
	Height int64 `json:"height"`
}

type ResultIsLeader struct {
	IsLeader bool   `json:"is_leader"`
	Leader   string `json:"leader"`
	Round    int64  `json:"round"`
}

type ResultViewChange struct {
	Round    int64  `json:"round"`
	Leader   string `json:"leader"`
	IsLeader bool   `json:"is_leader"`
}

type ResultPeers struct {
	MaxFaulty      int          `json:"max_faulty"`
	ProxyTailIndex int          `json:"proxy_tail_index"`
	MyIndex        int          `json:"my_index"`
	Peers          []types.Peer `json:"peers"`
}

type ResultPendingEvent struct {
	Hash      tmbytes.HexBytes `json:"hash"`
	Status    string           `json:"status"`
	NumSigned int              `json:"num_signed"`
	Order     uint64           `json:"order"`
}

type ResultPending struct {
	Total  int                  `json:"total"`
	Events []ResultPendingEvent `json:"events"`
}

// SubmitTransaction queues tx. The response code follows the error: a
// duplicate is OK, a full queue is ERRCONN, anything else INVALID_SIG.
func SubmitTransaction(ctx *rpctypes.Context, tx *types.Transaction) (*ResultSubmitTx, error) {
	if tx == nil {
		return nil, errors.New("missing tx")
	}
	res := &ResultSubmitTx{Hash: tx.Hash}
	err := env.Processor.SubmitTransaction(tx)
	res.Code = types.ResponseCodeOf(err).String()
	if err != nil {
		res.Log = err.Error()
		env.Logger.Debug("submit_transaction", "hash", tx.Key(), "code", res.Code, "err", err)
	}
	return res, nil
}

// CommitStatus reports the terminal status of hash, or whether it is still
// in flight.
func CommitStatus(ctx *rpctypes.Context, hash []byte) (*ResultCommitStatus, error) {
	res := &ResultCommitStatus{Hash: hash}
	if status, ok := env.Processor.CommitStatus(hash); ok {
		res.Known = true
		res.Status = status.String()
		if record, err := env.CommitStore.LoadCommitByHash(hash); err == nil {
			res.Height = record.Height
			res.NumSigned = len(record.Signatures)
		}
		return res, nil
	}
	if ev := env.Mempool.Get(hash); ev != nil {
		res.Known = true
		res.Pending = true
		res.Status = ev.GetStatus().String()
		res.NumSigned = ev.NumSignatures()
	}
	return res, nil
}

func Commit(ctx *rpctypes.Context, height int64) (*store.CommitRecord, error) {
	return env.CommitStore.LoadCommit(height)
}

func CommitCount(ctx *rpctypes.Context) (*ResultCommitCount, error) {
	return &ResultCommitCount{
		Count:  env.Processor.CommitCount(),
		Height: env.CommitStore.Height(),
	}, nil
}

func IsLeader(ctx *rpctypes.Context) (*ResultIsLeader, error) {
	cc := env.Processor.Context()
	res := &ResultIsLeader{
		IsLeader: cc.IsLeader(),
		Round:    cc.Round(),
	}
	if leader := cc.Leader(); leader != nil {
		res.Leader = leader.PubKey
	}
	return res, nil
}

func Peers(ctx *rpctypes.Context) (*ResultPeers, error) {
	cc := env.Processor.Context()
	peers := cc.Peers()
	res := &ResultPeers{
		MaxFaulty:      cc.MaxFaulty(),
		ProxyTailIndex: cc.ProxyTailIndex(),
		MyIndex:        cc.MyIndex(),
		Peers:          make([]types.Peer, len(peers)),
	}
	for i, p := range peers {
		res.Peers[i] = *p
	}
	return res, nil
}

// Pending lists at most limit in-flight events in arrival order.
func Pending(ctx *rpctypes.Context, limit int) (*ResultPending, error) {
	if limit <= 0 || limit > maxPendingLimit {
		limit = maxPendingLimit
	}
	evs := env.Mempool.Pending(limit)
	res := &ResultPending{
		Total:  env.Mempool.Size(),
		Events: make([]ResultPendingEvent, len(evs)),
	}
	for i, ev := range evs {
		res.Events[i] = ResultPendingEvent{
			Hash:      ev.Hash(),
			Status:    ev.GetStatus().String(),
			NumSigned: ev.NumSignatures(),
			Order:     ev.Order,
		}
	}
	return res, nil
}

// Rotate moves leadership on to the next peer.
func Rotate(ctx *rpctypes.Context) (*ResultViewChange, error) {
	if err := env.Processor.Rotate(); err != nil {
		return nil, err
	}
	return viewChangeResult(), nil
}

// Reorder re-sorts the chain by trust.
func Reorder(ctx *rpctypes.Context) (*ResultViewChange, error) {
	if err := env.Processor.Reorder(); err != nil {
		return nil, err
	}
	return viewChangeResult(), nil
}

func viewChangeResult() *ResultViewChange {
	cc := env.Processor.Context()
	res := &ResultViewChange{
		Round:    cc.Round(),
		IsLeader: cc.IsLeader(),
	}
	if leader := cc.Leader(); leader != nil {
		res.Leader = leader.PubKey
	}
	env.Logger.Info("view changed", "round", res.Round, "leader", res.Leader)
	return res
}
