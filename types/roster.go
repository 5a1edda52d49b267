package types

// RosterSnapshot is the chain order of a node at some point in time. It is
// persisted so a restarted node resumes the topology its peers still use.
type RosterSnapshot struct {
	// Height of the last committed transaction reflected in Peers
	Height int64  `json:"height"`
	Round  int64  `json:"round"`
	Peers  []Peer `json:"peers"`
}
