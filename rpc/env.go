package rpc

import (
	"github.com/tendermint/tendermint/libs/log"

	"sumeragi/consensus"
	"sumeragi/libs/metric"
	"sumeragi/mempool"
	"sumeragi/store"
)

var env *Environment

func SetEnvironment(e *Environment) {
	env = e
}

// Environment holds the node components the routes read from.
type Environment struct {
	Processor   *consensus.EventProcessor
	Mempool     mempool.Mempool
	CommitStore *store.CommitStore

	MetricSet *metric.MetricSet

	Logger log.Logger
}
