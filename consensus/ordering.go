package consensus

import (
	"sort"

	"sumeragi/types"
)

// OrderPeers returns the chain topology for peers: active peers first, then
// by trust descending, ties broken by public key ascending. The order is
// total, so every node derives the same chain from the same roster.
// The input is not modified.
func OrderPeers(peers []*types.Peer) []*types.Peer {
	ordered := copyPeers(peers)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Active != b.Active {
			return a.Active
		}
		if a.Trust != b.Trust {
			return a.Trust > b.Trust
		}
		return a.PubKey < b.PubKey
	})
	return ordered
}

// RotatePeers demotes the current head to the tail and re-sorts by
// activity and trust only. Peers of equal trust keep their rotated
// relative order, so leadership moves on among equals.
func RotatePeers(peers []*types.Peer) []*types.Peer {
	rotated := copyPeers(peers)
	if len(rotated) > 1 {
		rotated = append(rotated[1:], rotated[0])
	}
	sortByTrust(rotated)
	return rotated
}

// ReorderPeers re-sorts the current chain after a trust or activity change.
// Equals keep their current relative order, so earlier rotations survive.
func ReorderPeers(peers []*types.Peer) []*types.Peer {
	ordered := copyPeers(peers)
	sortByTrust(ordered)
	return ordered
}

func sortByTrust(peers []*types.Peer) {
	sort.SliceStable(peers, func(i, j int) bool {
		a, b := peers[i], peers[j]
		if a.Active != b.Active {
			return a.Active
		}
		return a.Trust > b.Trust
	})
}

func copyPeers(peers []*types.Peer) []*types.Peer {
	cp := make([]*types.Peer, len(peers))
	for i, p := range peers {
		cp[i] = p.Copy()
	}
	return cp
}
