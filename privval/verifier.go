package privval

import (
	"encoding/hex"
	"sync"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/crypto"
	"github.com/tendermint/tendermint/crypto/ed25519"

	cfg "sumeragi/config"
	"sumeragi/crypto/bls"
)

// KeyVerifier checks signatures against hex encoded roster keys of one
// signature scheme. Decoded keys are cached.
type KeyVerifier struct {
	keyType string
	keys    sync.Map // hex -> crypto.PubKey
}

func NewKeyVerifier(keyType string) *KeyVerifier {
	if keyType == "" {
		keyType = cfg.KeyTypeEd25519
	}
	return &KeyVerifier{keyType: keyType}
}

func (kv *KeyVerifier) Verify(digest, sig []byte, pubKey string) bool {
	var pk crypto.PubKey
	if v, ok := kv.keys.Load(pubKey); ok {
		pk = v.(crypto.PubKey)
	} else {
		decoded, err := PubKeyFromHex(kv.keyType, pubKey)
		if err != nil {
			return false
		}
		kv.keys.Store(pubKey, decoded)
		pk = decoded
	}
	return pk.VerifySignature(digest, sig)
}

// PubKeyFromHex decodes a roster key of keyType.
func PubKeyFromHex(keyType, pubKey string) (crypto.PubKey, error) {
	bz, err := hex.DecodeString(pubKey)
	if err != nil {
		return nil, errors.Wrap(err, "decode public key")
	}
	switch keyType {
	case cfg.KeyTypeEd25519:
		if len(bz) != ed25519.PubKeySize {
			return nil, errors.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PubKeySize, len(bz))
		}
		return ed25519.PubKey(bz), nil
	case cfg.KeyTypeBLS:
		return bls.PubKey(bz), nil
	default:
		return nil, errors.Errorf("unsupported key type %q", keyType)
	}
}
