package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/pkg/errors"
	tmcfg "github.com/tendermint/tendermint/config"
)

const (
	KeyTypeEd25519 = "ed25519"
	KeyTypeBLS     = "bls"

	DBBackendGoLevelDB = "goleveldb"
	DBBackendMemDB     = "memdb"

	defaultConfigDir = "config"
	defaultDataDir   = "data"

	defaultConfigFileName = "config.toml"
	defaultPeersJSONName  = "peers.json"

	defaultPrivValKeyName = "priv_validator_key.json"
	defaultNodeKeyName    = "node_key.json"

	// DefaultLogLevel applies to modules the log_level list does not name
	DefaultLogLevel = "error"
)

var (
	DefaultHomeDir = ".sumeragi"

	defaultConfigFilePath = filepath.Join(defaultConfigDir, defaultConfigFileName)
	defaultPeersJSONPath  = filepath.Join(defaultConfigDir, defaultPeersJSONName)
	defaultPrivValKeyPath = filepath.Join(defaultConfigDir, defaultPrivValKeyName)
	defaultNodeKeyPath    = filepath.Join(defaultConfigDir, defaultNodeKeyName)
)

// Config is the top level configuration of a node. The p2p and rpc sections
// reuse tendermint's.
type Config struct {
	BaseConfig `mapstructure:",squash"`

	RPC       *tmcfg.RPCConfig `mapstructure:"rpc"`
	P2P       *tmcfg.P2PConfig `mapstructure:"p2p"`
	Mempool   *MempoolConfig   `mapstructure:"mempool"`
	Consensus *ConsensusConfig `mapstructure:"consensus"`
}

func DefaultConfig() *Config {
	return &Config{
		BaseConfig: DefaultBaseConfig(),
		RPC:        tmcfg.DefaultRPCConfig(),
		P2P:        tmcfg.DefaultP2PConfig(),
		Mempool:    DefaultMempoolConfig(),
		Consensus:  DefaultConsensusConfig(),
	}
}

func TestConfig() *Config {
	return &Config{
		BaseConfig: TestBaseConfig(),
		RPC:        tmcfg.TestRPCConfig(),
		P2P:        tmcfg.TestP2PConfig(),
		Mempool:    DefaultMempoolConfig(),
		Consensus:  TestConsensusConfig(),
	}
}

// SetRoot sets the RootDir for all Config structs.
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	cfg.RPC.RootDir = root
	cfg.P2P.RootDir = root
	return cfg
}

func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.RPC.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [rpc] section")
	}
	if err := cfg.P2P.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [p2p] section")
	}
	if err := cfg.Mempool.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [mempool] section")
	}
	if err := cfg.Consensus.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [consensus] section")
	}
	return nil
}

//-----------------------------------------------------------------------------
// BaseConfig

type BaseConfig struct {
	// The root directory for all data.
	RootDir string `mapstructure:"home"`

	// A custom human readable name for this node
	Moniker string `mapstructure:"moniker"`

	// Database backend: goleveldb | memdb
	DBBackend string `mapstructure:"db_backend"`

	// Database directory
	DBPath string `mapstructure:"db_dir"`

	// Output level for logging
	LogLevel string `mapstructure:"log_level"`

	// Path to the JSON file containing the peer roster
	Peers string `mapstructure:"peers_file"`

	// Path to the JSON file containing the private key used to sign events
	PrivValidatorKey string `mapstructure:"priv_validator_key_file"`

	// A JSON file containing the private key to use for p2p authenticated encryption
	NodeKey string `mapstructure:"node_key_file"`
}

func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		Moniker:          defaultMoniker(),
		DBBackend:        DBBackendGoLevelDB,
		DBPath:           defaultDataDir,
		LogLevel:         "main:info,consensus:info,*:error",
		Peers:            defaultPeersJSONPath,
		PrivValidatorKey: defaultPrivValKeyPath,
		NodeKey:          defaultNodeKeyPath,
	}
}

func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.Moniker = "test-node"
	cfg.DBBackend = DBBackendMemDB
	return cfg
}

func (cfg BaseConfig) PeersFile() string {
	return rootify(cfg.Peers, cfg.RootDir)
}

func (cfg BaseConfig) PrivValidatorKeyFile() string {
	return rootify(cfg.PrivValidatorKey, cfg.RootDir)
}

func (cfg BaseConfig) NodeKeyFile() string {
	return rootify(cfg.NodeKey, cfg.RootDir)
}

func (cfg BaseConfig) DBDir() string {
	return rootify(cfg.DBPath, cfg.RootDir)
}

func (cfg BaseConfig) ConfigFile() string {
	return rootify(defaultConfigFilePath, cfg.RootDir)
}

func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.DBBackend {
	case DBBackendGoLevelDB, DBBackendMemDB:
	default:
		return fmt.Errorf("unknown db_backend %q", cfg.DBBackend)
	}
	return nil
}

//-----------------------------------------------------------------------------
// MempoolConfig

// MempoolConfig bounds the pool of in-flight consensus events.
type MempoolConfig struct {
	// Maximum number of events in flight, 0 is unbounded
	Size int `mapstructure:"size"`
}

func DefaultMempoolConfig() *MempoolConfig {
	return &MempoolConfig{
		Size: 10000,
	}
}

func (cfg *MempoolConfig) ValidateBasic() error {
	if cfg.Size < 0 {
		return errors.New("size can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// ConsensusConfig

type ConsensusConfig struct {
	// Number of byzantine peers tolerated, 0 derives floor(N/3)
	MaxFaulty int `mapstructure:"max_faulty"`

	// How long a chain segment may take to produce quorum before the
	// signing window is widened
	PanicTimeout time.Duration `mapstructure:"panic_timeout"`

	// Worker pool processing transactions and events
	Concurrency     int `mapstructure:"concurrency"`
	WorkerQueueSize int `mapstructure:"worker_queue_size"`

	// Signature scheme of the validator key: ed25519 | bls
	KeyType string `mapstructure:"key_type"`
}

func DefaultConsensusConfig() *ConsensusConfig {
	return &ConsensusConfig{
		MaxFaulty:       0,
		PanicTimeout:    3000 * time.Millisecond,
		Concurrency:     runtime.NumCPU(),
		WorkerQueueSize: 1024,
		KeyType:         KeyTypeEd25519,
	}
}

func TestConsensusConfig() *ConsensusConfig {
	cfg := DefaultConsensusConfig()
	cfg.PanicTimeout = 200 * time.Millisecond
	cfg.Concurrency = 4
	cfg.WorkerQueueSize = 256
	return cfg
}

func (cfg *ConsensusConfig) ValidateBasic() error {
	if cfg.MaxFaulty < 0 {
		return errors.New("max_faulty can't be negative")
	}
	if cfg.PanicTimeout <= 0 {
		return errors.New("panic_timeout must be positive")
	}
	if cfg.Concurrency < 0 {
		return errors.New("concurrency can't be negative")
	}
	if cfg.WorkerQueueSize < 0 {
		return errors.New("worker_queue_size can't be negative")
	}
	switch cfg.KeyType {
	case KeyTypeEd25519, KeyTypeBLS:
	default:
		return fmt.Errorf("unknown key_type %q", cfg.KeyType)
	}
	return nil
}

//-----------------------------------------------------------------------------
// Utils

func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func defaultMoniker() string {
	moniker, err := os.Hostname()
	if err != nil {
		moniker = "anonymous"
	}
	return moniker
}
