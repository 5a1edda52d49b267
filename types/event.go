package types

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

//-----------------------------------------------------------------------------
// EventStatus enum type

// EventStatus is the lifecycle of a ConsensusEvent.
//
//	Proposed -> Forwarding -> Committed
//	                ^   |
//	                |   v
//	              Panicked
type EventStatus uint8

const (
	StatusProposed   = EventStatus(0x01)
	StatusForwarding = EventStatus(0x02)
	StatusPanicked   = EventStatus(0x03)
	StatusCommitted  = EventStatus(0x04)
)

func (s EventStatus) String() string {
	switch s {
	case StatusProposed:
		return "Proposed"
	case StatusForwarding:
		return "Forwarding"
	case StatusPanicked:
		return "Panicked"
	case StatusCommitted:
		return "Committed"
	default:
		return fmt.Sprintf("EventStatus(%d)", uint8(s))
	}
}

func (s EventStatus) IsTerminal() bool {
	return s == StatusCommitted
}

// canAdvance encodes the allowed transitions. Panicked may return to
// Forwarding once the window has been expanded.
func (s EventStatus) canAdvance(next EventStatus) bool {
	switch s {
	case StatusProposed:
		return next == StatusForwarding || next == StatusCommitted
	case StatusForwarding:
		return next == StatusPanicked || next == StatusCommitted
	case StatusPanicked:
		return next == StatusForwarding || next == StatusCommitted
	default:
		return false
	}
}

//-----------------------------------------------------------------------------

// Signature is one peer's vote on a transaction hash.
type Signature struct {
	PubKey    string           `json:"pub_key"`
	Signature tmbytes.HexBytes `json:"signature"`
}

// ConsensusEvent is a transaction plus the signatures collected along the
// chain. Safe for concurrent use.
type ConsensusEvent struct {
	mtx sync.Mutex

	Transaction *Transaction `json:"transaction"`
	Signatures  []Signature  `json:"signatures"`
	Status      EventStatus  `json:"status"`
	Order       uint64       `json:"order"`
}

func NewConsensusEvent(tx *Transaction) *ConsensusEvent {
	return &ConsensusEvent{
		Transaction: tx,
		Signatures:  []Signature{},
		Status:      StatusProposed,
	}
}

// ValidateBasic validates the carried transaction and the signature set shape.
func (ev *ConsensusEvent) ValidateBasic() error {
	if ev == nil {
		return errors.Wrap(ErrValidation, "nil event")
	}
	if err := ev.Transaction.ValidateBasic(); err != nil {
		return err
	}
	ev.mtx.Lock()
	defer ev.mtx.Unlock()
	seen := make(map[string]struct{}, len(ev.Signatures))
	for _, sig := range ev.Signatures {
		key := strings.ToUpper(sig.PubKey)
		if _, ok := seen[key]; ok {
			return errors.Wrapf(ErrValidation, "signer %v appears twice", shortKey(key))
		}
		if len(sig.Signature) == 0 {
			return errors.Wrapf(ErrValidation, "empty signature from %v", shortKey(key))
		}
		seen[key] = struct{}{}
	}
	return nil
}

func (ev *ConsensusEvent) Hash() tmbytes.HexBytes {
	return ev.Transaction.Hash
}

// Key is the map key of the event, the hex hash of its transaction.
func (ev *ConsensusEvent) Key() string {
	return ev.Transaction.Key()
}

// AddSignature appends sig unless its signer already signed.
func (ev *ConsensusEvent) AddSignature(sig Signature) error {
	ev.mtx.Lock()
	defer ev.mtx.Unlock()
	sig.PubKey = strings.ToUpper(sig.PubKey)
	if ev.hasSignature(sig.PubKey) {
		return ErrDuplicateSignature
	}
	ev.Signatures = append(ev.Signatures, sig)
	return nil
}

func (ev *ConsensusEvent) HasSignature(pubKey string) bool {
	ev.mtx.Lock()
	defer ev.mtx.Unlock()
	return ev.hasSignature(strings.ToUpper(pubKey))
}

func (ev *ConsensusEvent) NumSignatures() int {
	ev.mtx.Lock()
	defer ev.mtx.Unlock()
	return len(ev.Signatures)
}

// GetSignatures returns a copy of the signature set in arrival order.
func (ev *ConsensusEvent) GetSignatures() []Signature {
	ev.mtx.Lock()
	defer ev.mtx.Unlock()
	sigs := make([]Signature, len(ev.Signatures))
	copy(sigs, ev.Signatures)
	return sigs
}

func (ev *ConsensusEvent) GetStatus() EventStatus {
	ev.mtx.Lock()
	defer ev.mtx.Unlock()
	return ev.Status
}

func (ev *ConsensusEvent) IsCommitted() bool {
	return ev.GetStatus() == StatusCommitted
}

// Advance moves the event to next. Moving to the current status is a no-op.
func (ev *ConsensusEvent) Advance(next EventStatus) error {
	ev.mtx.Lock()
	defer ev.mtx.Unlock()
	if ev.Status == next {
		return nil
	}
	if !ev.Status.canAdvance(next) {
		return errors.Wrapf(ErrStatusRegression, "%v -> %v", ev.Status, next)
	}
	ev.Status = next
	return nil
}

// Commit atomically moves a non terminal event to Committed. Only the
// first caller gets true.
func (ev *ConsensusEvent) Commit() bool {
	ev.mtx.Lock()
	defer ev.mtx.Unlock()
	if ev.Status == StatusCommitted {
		return false
	}
	ev.Status = StatusCommitted
	return true
}

// Copy returns a snapshot that can be handed to the transport.
func (ev *ConsensusEvent) Copy() *ConsensusEvent {
	ev.mtx.Lock()
	defer ev.mtx.Unlock()
	sigs := make([]Signature, len(ev.Signatures))
	copy(sigs, ev.Signatures)
	return &ConsensusEvent{
		Transaction: ev.Transaction,
		Signatures:  sigs,
		Status:      ev.Status,
		Order:       ev.Order,
	}
}

func (ev *ConsensusEvent) String() string {
	ev.mtx.Lock()
	defer ev.mtx.Unlock()
	return fmt.Sprintf("Event{%v order:%d sigs:%d %v}", ev.Transaction, ev.Order, len(ev.Signatures), ev.Status)
}

// caller holds mtx
func (ev *ConsensusEvent) hasSignature(pubKey string) bool {
	for _, s := range ev.Signatures {
		if s.PubKey == pubKey {
			return true
		}
	}
	return false
}
