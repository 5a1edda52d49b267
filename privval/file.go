package privval

import (
	"fmt"
	"io/ioutil"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/crypto"
	"github.com/tendermint/tendermint/crypto/ed25519"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/libs/tempfile"

	cfg "sumeragi/config"
	"sumeragi/crypto/bls"
)

//-------------------------------------------------------------------------------

// FilePVKey stores the key pair of a validating peer.
type FilePVKey struct {
	Address crypto.Address `json:"address"`
	PubKey  crypto.PubKey  `json:"pub_key"`
	PrivKey crypto.PrivKey `json:"priv_key"`

	filePath string
}

// Save persists the FilePVKey to its filePath.
func (pvKey FilePVKey) Save() {
	outFile := pvKey.filePath
	if outFile == "" {
		panic("cannot save PrivValidator key: filePath not set")
	}

	jsonBytes, err := tmjson.MarshalIndent(pvKey, "", "  ")
	if err != nil {
		panic(err)
	}
	err = tempfile.WriteFileAtomic(outFile, jsonBytes, 0600)
	if err != nil {
		panic(err)
	}
}

//-------------------------------------------------------------------------------

// FilePV signs transaction digests with a key persisted to disk.
type FilePV struct {
	Key FilePVKey
}

// NewFilePV generates a new validator from the given key and path.
func NewFilePV(privKey crypto.PrivKey, keyFilePath string) *FilePV {
	return &FilePV{
		Key: FilePVKey{
			Address:  privKey.PubKey().Address(),
			PubKey:   privKey.PubKey(),
			PrivKey:  privKey,
			filePath: keyFilePath,
		},
	}
}

// GenFilePV generates a new validator with a random key of keyType and sets
// the filePath, but does not call Save().
func GenFilePV(keyFilePath, keyType string) (*FilePV, error) {
	priv, err := GenPrivKey(keyType)
	if err != nil {
		return nil, err
	}
	return NewFilePV(priv, keyFilePath), nil
}

func GenPrivKey(keyType string) (crypto.PrivKey, error) {
	switch keyType {
	case cfg.KeyTypeEd25519, "":
		return ed25519.GenPrivKey(), nil
	case cfg.KeyTypeBLS:
		return bls.GenPrivKey(), nil
	default:
		return nil, errors.Errorf("unsupported key type %q", keyType)
	}
}

// LoadFilePV loads a FilePV from keyFilePath. The program exits if the file
// is missing or malformed.
func LoadFilePV(keyFilePath string) *FilePV {
	pv, err := loadFilePV(keyFilePath)
	if err != nil {
		tmos.Exit(err.Error())
	}
	return pv
}

func loadFilePV(keyFilePath string) (*FilePV, error) {
	keyJSONBytes, err := ioutil.ReadFile(keyFilePath)
	if err != nil {
		return nil, err
	}
	pvKey := FilePVKey{}
	err = tmjson.Unmarshal(keyJSONBytes, &pvKey)
	if err != nil {
		return nil, fmt.Errorf("error reading PrivValidator key from %v: %v", keyFilePath, err)
	}

	// overwrite pubkey and address for convenience
	pvKey.PubKey = pvKey.PrivKey.PubKey()
	pvKey.Address = pvKey.PubKey.Address()
	pvKey.filePath = keyFilePath

	return &FilePV{
		Key: pvKey,
	}, nil
}

// LoadOrGenFilePV loads a FilePV from keyFilePath or else generates a new
// one of keyType and saves it.
func LoadOrGenFilePV(keyFilePath, keyType string) (*FilePV, error) {
	if tmos.FileExists(keyFilePath) {
		return loadFilePV(keyFilePath)
	}
	pv, err := GenFilePV(keyFilePath, keyType)
	if err != nil {
		return nil, err
	}
	pv.Save()
	return pv, nil
}

func (pv *FilePV) GetAddress() crypto.Address {
	return pv.Key.Address
}

func (pv *FilePV) GetPubKey() (crypto.PubKey, error) {
	return pv.Key.PubKey, nil
}

// PubKeyHex is the roster identity of this validator.
func (pv *FilePV) PubKeyHex() string {
	return PubKeyHex(pv.Key.PubKey)
}

// SignDigest signs a transaction hash.
func (pv *FilePV) SignDigest(digest []byte) ([]byte, error) {
	if len(digest) == 0 {
		return nil, errors.New("empty digest")
	}
	return pv.Key.PrivKey.Sign(digest)
}

func (pv *FilePV) KeyType() string {
	return pv.Key.PubKey.Type()
}

// Save persists the FilePV to disk.
func (pv *FilePV) Save() {
	pv.Key.Save()
}

func (pv *FilePV) String() string {
	return fmt.Sprintf("PrivValidator{%v %v}", pv.KeyType(), pv.GetAddress())
}

// PubKeyHex encodes pubKey the way the roster stores it.
func PubKeyHex(pubKey crypto.PubKey) string {
	return tmbytes.HexBytes(pubKey.Bytes()).String()
}
