package config

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"text/template"

	tmos "github.com/tendermint/tendermint/libs/os"
)

// DefaultDirPerm is the default permissions used when creating directories.
const DefaultDirPerm = 0700

var configTemplate *template.Template

func init() {
	var err error
	tmpl := template.New("configFileTemplate")
	if configTemplate, err = tmpl.Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

// EnsureRoot creates the root, config, and data directories if they don't
// exist, and writes the default config file if it doesn't exist.
func EnsureRoot(rootDir string) {
	if err := tmos.EnsureDir(rootDir, DefaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), DefaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultDataDir), DefaultDirPerm); err != nil {
		panic(err.Error())
	}

	configFilePath := filepath.Join(rootDir, defaultConfigFilePath)
	if !tmos.FileExists(configFilePath) {
		writeDefaultConfigFile(configFilePath)
	}
}

func writeDefaultConfigFile(configFilePath string) {
	WriteConfigFile(configFilePath, DefaultConfig())
}

// WriteConfigFile renders config using the template and writes it to
// configFilePath.
func WriteConfigFile(configFilePath string, config *Config) {
	var buffer bytes.Buffer

	if err := configTemplate.Execute(&buffer, config); err != nil {
		panic(err)
	}

	tmos.MustWriteFile(configFilePath, buffer.Bytes(), 0644)
}

// ResetTestRoot creates a fresh test root under the temp dir and returns a
// config pointing at it.
func ResetTestRoot(testName string) *Config {
	rootDir, err := ioutil.TempDir("", testName)
	if err != nil {
		panic(err)
	}
	EnsureRoot(rootDir)
	return TestConfig().SetRoot(rootDir)
}

const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

#######################################################################
###                   Main Base Config Options                      ###
#######################################################################

# A custom human readable name for this node
moniker = "{{ .BaseConfig.Moniker }}"

# Database backend: goleveldb | memdb
db_backend = "{{ .BaseConfig.DBBackend }}"

# Database directory
db_dir = "{{ js .BaseConfig.DBPath }}"

# Output level for logging
log_level = "{{ .BaseConfig.LogLevel }}"

# Path to the JSON file containing the peer roster
peers_file = "{{ js .BaseConfig.Peers }}"

# Path to the JSON file containing the private key used to sign events
priv_validator_key_file = "{{ js .BaseConfig.PrivValidatorKey }}"

# Path to the JSON file containing the private key to use for node authentication in the p2p protocol
node_key_file = "{{ js .BaseConfig.NodeKey }}"

#######################################################################
###                 Advanced Configuration Options                  ###
#######################################################################

#######################################################
###       RPC Server Configuration Options          ###
#######################################################
[rpc]

# TCP or UNIX socket address for the RPC server to listen on
laddr = "{{ .RPC.ListenAddress }}"

# Maximum number of simultaneous connections.
max_open_connections = {{ .RPC.MaxOpenConnections }}

#######################################################
###           P2P Configuration Options             ###
#######################################################
[p2p]

# Address to listen for incoming connections
laddr = "{{ .P2P.ListenAddress }}"

# Address to advertise to peers for them to dial
external_address = "{{ .P2P.ExternalAddress }}"

# Comma separated list of nodes to keep persistent connections to
persistent_peers = "{{ .P2P.PersistentPeers }}"

# Toggle to disable guard against peers connecting from the same ip.
allow_duplicate_ip = {{ .P2P.AllowDuplicateIP }}

#######################################################
###          Mempool Configuration Options          ###
#######################################################
[mempool]

# Maximum number of consensus events in flight, 0 is unbounded
size = {{ .Mempool.Size }}

#######################################################
###         Consensus Configuration Options         ###
#######################################################
[consensus]

# Number of byzantine peers tolerated, 0 derives floor(N/3)
max_faulty = {{ .Consensus.MaxFaulty }}

# How long a chain segment may take to produce quorum before the signing window is widened
panic_timeout = "{{ .Consensus.PanicTimeout }}"

# Worker pool processing transactions and events
concurrency = {{ .Consensus.Concurrency }}
worker_queue_size = {{ .Consensus.WorkerQueueSize }}

# Signature scheme of the validator key: ed25519 | bls
key_type = "{{ .Consensus.KeyType }}"
`
