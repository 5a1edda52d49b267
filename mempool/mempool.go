package mempool

import (
	"sumeragi/types"
)

// Mempool holds the consensus events that are in flight: proposed or being
// forwarded but not yet committed. There is exactly one canonical event per
// transaction hash.
type Mempool interface {
	// LoadOrStore returns the canonical event for ev's hash. If none exists
	// ev becomes canonical and loaded is false.
	LoadOrStore(ev *types.ConsensusEvent) (actual *types.ConsensusEvent, loaded bool, err error)

	// Get returns the canonical event for hash, or nil.
	Get(hash []byte) *types.ConsensusEvent

	// Remove drops the event of hash once it reached a terminal status.
	Remove(hash []byte) bool

	// Pending returns up to max in-flight events in arrival order.
	// A negative max returns all of them.
	Pending(max int) []*types.ConsensusEvent

	// Flush drops every pending event.
	Flush()

	// Size is the number of in-flight events.
	Size() int
}
