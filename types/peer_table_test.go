package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPeerTable(t *testing.T, keys ...string) *PeerTable {
	peers := make([]*Peer, len(keys))
	for i, k := range keys {
		peers[i] = NewPeer(k, "addr-"+k, 1)
	}
	pt, err := NewPeerTable(peers)
	require.NoError(t, err)
	return pt
}

func TestPeerTableBasic(t *testing.T) {
	pt := newTestPeerTable(t, "aa", "bb", "cc")
	require.NoError(t, pt.ValidateBasic())
	assert.Equal(t, 3, pt.Len())

	idx, p := pt.GetByPubKey("BB")
	assert.Equal(t, 1, idx)
	assert.Equal(t, "addr-bb", p.Address)

	// copies never alias the table
	p.Trust = 100
	_, again := pt.GetByPubKey("bb")
	assert.EqualValues(t, 1, again.Trust)

	assert.Error(t, pt.Add(NewPeer("AA", "x", 1)), "duplicate key")
	assert.NoError(t, pt.SetTrust("cc", 5))
	assert.NoError(t, pt.ChangeTrust("cc", -2))
	assert.EqualValues(t, 3, pt.GetByIndex(2).Trust)
	assert.NoError(t, pt.SetActive("aa", false))
	assert.False(t, pt.GetByIndex(0).Active)

	assert.NoError(t, pt.Remove("bb"))
	assert.False(t, pt.HasPubKey("bb"))
	assert.Error(t, pt.Remove("bb"))
	assert.Nil(t, pt.GetByIndex(5))
}

func TestEmptyPeerTableInvalid(t *testing.T) {
	pt, err := NewPeerTable(nil)
	require.NoError(t, err)
	assert.Error(t, pt.ValidateBasic())
}

func TestPeersDocRequiresPeers(t *testing.T) {
	doc := &PeersDoc{ChainID: "test"}
	err := doc.ValidateAndComplete()
	assert.True(t, IsTopology(err), "got %v", err)

	doc.Peers = []Peer{*NewPeer("aa", "addr", 1)}
	assert.NoError(t, doc.ValidateAndComplete())
	pt, err := doc.PeerTable()
	require.NoError(t, err)
	assert.Equal(t, 1, pt.Len())
}
