package bls

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tendermint/tendermint/crypto"
	"github.com/tendermint/tendermint/crypto/tmhash"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"go.dedis.ch/kyber/v3/sign/bls"
	"go.dedis.ch/kyber/v3/util/random"
)

const (
	PrivKeyName = "sumeragi/PrivKeyBLS"
	PubKeyName  = "sumeragi/PubKeyBLS"

	KeyType = "bls"
)

var suite = bn256.NewSuite()

func init() {
	tmjson.RegisterType(PubKey{}, PubKeyName)
	tmjson.RegisterType(PrivKey{}, PrivKeyName)
}

//-------------------------------------

var _ crypto.PrivKey = PrivKey{}

// PrivKey is a marshalled bn256 scalar.
type PrivKey []byte

// GenPrivKey generates a new key from the system randomness.
func GenPrivKey() PrivKey {
	x, _ := bls.NewKeyPair(suite, random.New())
	return privKeyFromScalar(x)
}

// GenPrivKeyWithSeed derives a key deterministically from seed. Only for
// tests and local testnets.
func GenPrivKeyWithSeed(seed int64) PrivKey {
	bz := make([]byte, 8)
	binary.BigEndian.PutUint64(bz, uint64(seed))
	x, _ := bls.NewKeyPair(suite, suite.XOF(bz))
	return privKeyFromScalar(x)
}

func privKeyFromScalar(x kyber.Scalar) PrivKey {
	bz, err := x.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return PrivKey(bz)
}

func (privKey PrivKey) scalar() (kyber.Scalar, error) {
	x := suite.G2().Scalar()
	if err := x.UnmarshalBinary(privKey); err != nil {
		return nil, err
	}
	return x, nil
}

func (privKey PrivKey) Bytes() []byte {
	return []byte(privKey)
}

// Sign produces a bls signature on G1 over msg.
func (privKey PrivKey) Sign(msg []byte) ([]byte, error) {
	x, err := privKey.scalar()
	if err != nil {
		return nil, err
	}
	return bls.Sign(suite, x, msg)
}

func (privKey PrivKey) PubKey() crypto.PubKey {
	x, err := privKey.scalar()
	if err != nil {
		panic(err)
	}
	bz, err := suite.G2().Point().Mul(x, nil).MarshalBinary()
	if err != nil {
		panic(err)
	}
	return PubKey(bz)
}

func (privKey PrivKey) Equals(other crypto.PrivKey) bool {
	if otherBLS, ok := other.(PrivKey); ok {
		return bytes.Equal(privKey, otherBLS)
	}
	return false
}

func (privKey PrivKey) Type() string {
	return KeyType
}

//-------------------------------------

var _ crypto.PubKey = PubKey{}

// PubKey is a marshalled bn256 G2 point.
type PubKey []byte

func (pubKey PubKey) Address() crypto.Address {
	return crypto.Address(tmhash.SumTruncated(pubKey))
}

func (pubKey PubKey) Bytes() []byte {
	return []byte(pubKey)
}

func (pubKey PubKey) VerifySignature(msg []byte, sig []byte) bool {
	X := suite.G2().Point()
	if err := X.UnmarshalBinary(pubKey); err != nil {
		return false
	}
	return bls.Verify(suite, X, msg, sig) == nil
}

func (pubKey PubKey) String() string {
	return fmt.Sprintf("PubKeyBLS{%X}", []byte(pubKey))
}

func (pubKey PubKey) Equals(other crypto.PubKey) bool {
	if otherBLS, ok := other.(PubKey); ok {
		return bytes.Equal(pubKey, otherBLS)
	}
	return false
}

func (pubKey PubKey) Type() string {
	return KeyType
}
