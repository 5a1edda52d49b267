package privval

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/tmhash"

	cfg "sumeragi/config"
)

func TestGenSaveAndLoadFilePV(t *testing.T) {
	for _, keyType := range []string{cfg.KeyTypeEd25519, cfg.KeyTypeBLS} {
		keyType := keyType
		t.Run(keyType, func(t *testing.T) {
			keyFile := filepath.Join(t.TempDir(), "priv_validator_key.json")

			pv, err := GenFilePV(keyFile, keyType)
			require.NoError(t, err)
			pv.Save()

			loaded := LoadFilePV(keyFile)
			assert.Equal(t, pv.GetAddress(), loaded.GetAddress())
			assert.Equal(t, pv.PubKeyHex(), loaded.PubKeyHex())
			assert.Equal(t, keyType, loaded.KeyType())

			again, err := LoadOrGenFilePV(keyFile, keyType)
			require.NoError(t, err)
			assert.Equal(t, pv.PubKeyHex(), again.PubKeyHex(), "existing key must be reused")
		})
	}
}

func TestKeyVerifier(t *testing.T) {
	testCases := []struct {
		keyType string
	}{
		{cfg.KeyTypeEd25519},
		{cfg.KeyTypeBLS},
	}
	digest := tmhash.Sum([]byte("tx"))

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.keyType, func(t *testing.T) {
			pv, err := GenFilePV("", tc.keyType)
			require.NoError(t, err)
			other, err := GenFilePV("", tc.keyType)
			require.NoError(t, err)

			sig, err := pv.SignDigest(digest)
			require.NoError(t, err)

			kv := NewKeyVerifier(tc.keyType)
			assert.True(t, kv.Verify(digest, sig, pv.PubKeyHex()))
			// second call hits the cache
			assert.True(t, kv.Verify(digest, sig, pv.PubKeyHex()))
			assert.False(t, kv.Verify(digest, sig, other.PubKeyHex()), "wrong signer")
			assert.False(t, kv.Verify(tmhash.Sum([]byte("other")), sig, pv.PubKeyHex()), "wrong digest")
			assert.False(t, kv.Verify(digest, sig, "not-hex"))
		})
	}
}

func TestSignEmptyDigest(t *testing.T) {
	pv, err := GenFilePV("", cfg.KeyTypeEd25519)
	require.NoError(t, err)
	_, err = pv.SignDigest(nil)
	assert.Error(t, err)

	_, err = GenFilePV("", "rsa")
	assert.Error(t, err)
}
