package types

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/tempfile"
)

const MaxChainIDLen = 50

// PeersDoc is the initial validator roster shared by every node of a chain.
type PeersDoc struct {
	ChainID     string    `json:"chain_id"`
	GenesisTime time.Time `json:"genesis_time"`
	MaxFaulty   int       `json:"max_faulty"` // 0 derives f from the roster size
	Peers       []Peer    `json:"peers"`
}

// SaveAs is a utility method for saving PeersDoc as a JSON file.
func (doc *PeersDoc) SaveAs(file string) error {
	bz, err := tmjson.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return tempfile.WriteFileAtomic(file, bz, 0644)
}

// ValidateAndComplete checks the document and fills defaults.
func (doc *PeersDoc) ValidateAndComplete() error {
	if doc.ChainID == "" {
		return errors.New("peers doc must include non-empty chain_id")
	}
	if len(doc.ChainID) > MaxChainIDLen {
		return fmt.Errorf("chain_id in peers doc is too long (max: %d)", MaxChainIDLen)
	}
	if len(doc.Peers) == 0 {
		return errors.Wrap(ErrTopology, "peers doc has no peers")
	}
	for i := range doc.Peers {
		if err := doc.Peers[i].ValidateBasic(); err != nil {
			return errors.Wrapf(ErrTopology, "peer #%d: %v", i, err)
		}
	}
	if doc.GenesisTime.IsZero() {
		doc.GenesisTime = time.Now().UTC()
	}
	return nil
}

// PeerTable builds the roster in document order.
func (doc *PeersDoc) PeerTable() (*PeerTable, error) {
	peers := make([]*Peer, len(doc.Peers))
	for i := range doc.Peers {
		peers[i] = &doc.Peers[i]
	}
	pt, err := NewPeerTable(peers)
	if err != nil {
		return nil, errors.Wrap(ErrTopology, err.Error())
	}
	return pt, nil
}

// PeersDocFromJSON unmarshalls JSON data into a PeersDoc.
func PeersDocFromJSON(jsonBlob []byte) (*PeersDoc, error) {
	doc := PeersDoc{}
	if err := tmjson.Unmarshal(jsonBlob, &doc); err != nil {
		return nil, err
	}
	if err := doc.ValidateAndComplete(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// PeersDocFromFile reads JSON data from a file and unmarshalls it into a PeersDoc.
func PeersDocFromFile(docFile string) (*PeersDoc, error) {
	jsonBlob, err := ioutil.ReadFile(docFile)
	if err != nil {
		return nil, fmt.Errorf("couldn't read peers doc file: %w", err)
	}
	doc, err := PeersDocFromJSON(jsonBlob)
	if err != nil {
		return nil, fmt.Errorf("error reading peers doc at %s: %w", docFile, err)
	}
	return doc, nil
}
