package types

import (
	"errors"
	"fmt"
	"strings"
)

// Peer is one validating node of the chain topology.
// Peers are owned by a PeerTable and referenced elsewhere by PubKey.
type Peer struct {
	PubKey  string  `json:"pub_key"`
	Address string  `json:"address"`
	Trust   float64 `json:"trust"`
	Active  bool    `json:"active"`
}

func NewPeer(pubKey, address string, trust float64) *Peer {
	return &Peer{
		PubKey:  strings.ToUpper(pubKey),
		Address: address,
		Trust:   trust,
		Active:  true,
	}
}

// ValidateBasic performs basic validation.
func (p *Peer) ValidateBasic() error {
	if p == nil {
		return errors.New("nil peer")
	}
	if p.PubKey == "" {
		return errors.New("peer does not have a public key")
	}
	if p.Address == "" {
		return fmt.Errorf("peer %v does not have an address", p.PubKey)
	}
	return nil
}

// Copy returns a new copy of the peer so callers can mutate it freely.
// Panics if the peer is nil.
func (p *Peer) Copy() *Peer {
	pCopy := *p
	return &pCopy
}

func (p *Peer) String() string {
	if p == nil {
		return "nil-Peer"
	}
	return fmt.Sprintf("Peer{%v %v trust:%v active:%v}",
		shortKey(p.PubKey),
		p.Address,
		p.Trust,
		p.Active)
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
