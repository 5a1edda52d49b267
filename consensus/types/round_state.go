package types

import (
	"fmt"
)

//-----------------------------------------------------------------------------
// Role enum type

type Role uint8

const (
	RoleValidator = Role(0x01)
	RoleLeader    = Role(0x02)
)

func (r Role) String() string {
	if r == RoleLeader {
		return "leader"
	}
	return "validator"
}

// RoundState is a read only snapshot of the consensus context, used for
// logging, metrics and the rpc.
type RoundState struct {
	Round          int64  `json:"round"`
	Role           Role   `json:"role"`
	MyPubKey       string `json:"my_pub_key"`
	NumPeers       int    `json:"num_peers"`
	MaxFaulty      int    `json:"max_faulty"`
	Quorum         int    `json:"quorum"`
	ProxyTailIndex int    `json:"proxy_tail_index"`
	PanicCount     int32  `json:"panic_count"`
	CommittedCount int64  `json:"committed_count"`
	LeaderPubKey   string `json:"leader_pub_key"`
}

func (rs RoundState) IsLeader() bool {
	return rs.Role == RoleLeader
}

func (rs RoundState) String() string {
	return fmt.Sprintf("RoundState{round:%d %v peers:%d f:%d tail:%d panic:%d committed:%d}",
		rs.Round, rs.Role, rs.NumPeers, rs.MaxFaulty, rs.ProxyTailIndex, rs.PanicCount, rs.CommittedCount)
}

// DefaultMaxFaulty is the largest f such that the roster tolerates f
// byzantine peers, floor(N/3).
func DefaultMaxFaulty(numPeers int) int {
	return numPeers / 3
}

// Quorum is the number of distinct signatures that commits an event.
func Quorum(maxFaulty int) int {
	return 2*maxFaulty + 1
}

// ProxyTailIndex is min(2f+1, N-1).
func ProxyTailIndex(maxFaulty, numPeers int) int {
	return clamp(2*maxFaulty+1, numPeers)
}

func clamp(idx, numPeers int) int {
	if idx > numPeers-1 {
		idx = numPeers - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}
