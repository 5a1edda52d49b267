package types

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// PeerTable is the ordered roster of validating peers. The order is the
// chain topology: index 0 is the leader of the current round.
//
// All getters return copies, so a Peer is never aliased outside the table.
type PeerTable struct {
	mtx   sync.RWMutex
	peers []*Peer
}

// NewPeerTable initializes a PeerTable by copying over the given peers.
// Public keys must be unique.
func NewPeerTable(peers []*Peer) (*PeerTable, error) {
	pt := &PeerTable{peers: make([]*Peer, 0, len(peers))}
	for _, p := range peers {
		if err := pt.Add(p); err != nil {
			return nil, err
		}
	}
	return pt, nil
}

func (pt *PeerTable) ValidateBasic() error {
	pt.mtx.RLock()
	defer pt.mtx.RUnlock()

	if len(pt.peers) == 0 {
		return errors.New("peer table is empty")
	}
	for idx, p := range pt.peers {
		if err := p.ValidateBasic(); err != nil {
			return fmt.Errorf("invalid peer #%d: %w", idx, err)
		}
	}
	return nil
}

func (pt *PeerTable) Len() int {
	pt.mtx.RLock()
	defer pt.mtx.RUnlock()
	return len(pt.peers)
}

// GetByIndex returns a copy of the peer at chain position index, or nil.
func (pt *PeerTable) GetByIndex(index int) *Peer {
	pt.mtx.RLock()
	defer pt.mtx.RUnlock()
	if index < 0 || index >= len(pt.peers) {
		return nil
	}
	return pt.peers[index].Copy()
}

// GetByPubKey returns the chain position of the peer and a copy of it.
// Otherwise -1 and nil are returned.
func (pt *PeerTable) GetByPubKey(pubKey string) (int, *Peer) {
	pt.mtx.RLock()
	defer pt.mtx.RUnlock()
	idx := pt.indexOf(pubKey)
	if idx < 0 {
		return -1, nil
	}
	return idx, pt.peers[idx].Copy()
}

func (pt *PeerTable) HasPubKey(pubKey string) bool {
	idx, _ := pt.GetByPubKey(pubKey)
	return idx >= 0
}

// Add appends a peer at the tail of the chain.
func (pt *PeerTable) Add(p *Peer) error {
	if err := p.ValidateBasic(); err != nil {
		return err
	}
	pt.mtx.Lock()
	defer pt.mtx.Unlock()
	np := p.Copy()
	np.PubKey = strings.ToUpper(np.PubKey)
	if pt.indexOf(np.PubKey) >= 0 {
		return fmt.Errorf("duplicate peer %v", np.PubKey)
	}
	pt.peers = append(pt.peers, np)
	return nil
}

func (pt *PeerTable) Remove(pubKey string) error {
	pt.mtx.Lock()
	defer pt.mtx.Unlock()
	idx := pt.indexOf(pubKey)
	if idx < 0 {
		return fmt.Errorf("unknown peer %v", pubKey)
	}
	pt.peers = append(pt.peers[:idx], pt.peers[idx+1:]...)
	return nil
}

func (pt *PeerTable) SetTrust(pubKey string, trust float64) error {
	return pt.update(pubKey, func(p *Peer) { p.Trust = trust })
}

func (pt *PeerTable) ChangeTrust(pubKey string, delta float64) error {
	return pt.update(pubKey, func(p *Peer) { p.Trust += delta })
}

func (pt *PeerTable) SetActive(pubKey string, active bool) error {
	return pt.update(pubKey, func(p *Peer) { p.Active = active })
}

// List returns a copy of the roster in chain order.
func (pt *PeerTable) List() []*Peer {
	pt.mtx.RLock()
	defer pt.mtx.RUnlock()
	return peerListCopy(pt.peers)
}

// Replace swaps the whole roster, typically with a re-ordered List().
func (pt *PeerTable) Replace(peers []*Peer) {
	pt.mtx.Lock()
	pt.peers = peerListCopy(peers)
	pt.mtx.Unlock()
}

// Copy each peer into a new PeerTable.
func (pt *PeerTable) Copy() *PeerTable {
	return &PeerTable{peers: pt.List()}
}

func (pt *PeerTable) String() string {
	peers := pt.List()
	strs := make([]string, len(peers))
	for i, p := range peers {
		strs[i] = p.String()
	}
	return fmt.Sprintf("PeerTable{%v}", strings.Join(strs, " "))
}

func (pt *PeerTable) update(pubKey string, fn func(*Peer)) error {
	pt.mtx.Lock()
	defer pt.mtx.Unlock()
	idx := pt.indexOf(pubKey)
	if idx < 0 {
		return fmt.Errorf("unknown peer %v", pubKey)
	}
	fn(pt.peers[idx])
	return nil
}

// caller holds mtx
func (pt *PeerTable) indexOf(pubKey string) int {
	pubKey = strings.ToUpper(pubKey)
	for idx, p := range pt.peers {
		if p.PubKey == pubKey {
			return idx
		}
	}
	return -1
}

func peerListCopy(peers []*Peer) []*Peer {
	if peers == nil {
		return nil
	}
	cp := make([]*Peer, len(peers))
	for i, p := range peers {
		cp[i] = p.Copy()
	}
	return cp
}
