package rpc

import rpc "github.com/tendermint/tendermint/rpc/jsonrpc/server"

var Routes = map[string]*rpc.RPCFunc{
	// client
	"submit_transaction": rpc.NewRPCFunc(SubmitTransaction, "tx"),
	"commit_status":      rpc.NewRPCFunc(CommitStatus, "hash"),
	"commit":             rpc.NewRPCFunc(Commit, "height"),

	// operator views
	"commit_count": rpc.NewRPCFunc(CommitCount, ""),
	"is_leader":    rpc.NewRPCFunc(IsLeader, ""),
	"peers":        rpc.NewRPCFunc(Peers, ""),
	"pending":      rpc.NewRPCFunc(Pending, "limit"),
	"metrics":      rpc.NewRPCFunc(JSONMetrics, "label"),

	// view change, has to be issued to every peer
	"rotate":  rpc.NewRPCFunc(Rotate, ""),
	"reorder": rpc.NewRPCFunc(Reorder, ""),
}
