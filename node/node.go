package node

import (
	"fmt"
	"net"
	"net/http"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	"github.com/tendermint/tendermint/p2p"
	"github.com/tendermint/tendermint/p2p/conn"
	rpcserver "github.com/tendermint/tendermint/rpc/jsonrpc/server"
	"github.com/tendermint/tendermint/version"
	tmdb "github.com/tendermint/tm-db"
	leveldb "github.com/tendermint/tm-db/goleveldb"
	"github.com/tendermint/tm-db/memdb"

	cfg "sumeragi/config"
	"sumeragi/consensus"
	"sumeragi/libs/metric"
	"sumeragi/mempool"
	"sumeragi/privval"
	"sumeragi/rpc"
	"sumeragi/state"
	"sumeragi/store"
	"sumeragi/types"
)

// DBContext specifies config information for loading a new DB.
type DBContext struct {
	ID     string
	Config *cfg.Config
}

// DBProvider takes a DBContext and returns an instantiated DB.
type DBProvider func(*DBContext) (tmdb.DB, error)

// DefaultDBProvider returns a database using the DBBackend and DBDir
// specified in the ctx.Config.
func DefaultDBProvider(ctx *DBContext) (tmdb.DB, error) {
	switch ctx.Config.DBBackend {
	case cfg.DBBackendGoLevelDB:
		return leveldb.NewDB(ctx.ID, ctx.Config.DBDir())
	case cfg.DBBackendMemDB:
		return memdb.NewDB(), nil
	default:
		return nil, fmt.Errorf("unknown db_backend %q", ctx.Config.DBBackend)
	}
}

type Provider func(*cfg.Config, log.Logger) (*Node, error)

// DefaultNewNode loads the keys and the peer roster from the files named in
// config. Missing keys are generated.
func DefaultNewNode(config *cfg.Config, logger log.Logger) (*Node, error) {
	nodeKey, err := p2p.LoadOrGenNodeKey(config.NodeKeyFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load or gen node key %s: %w", config.NodeKeyFile(), err)
	}
	pv, err := privval.LoadOrGenFilePV(config.PrivValidatorKeyFile(), config.Consensus.KeyType)
	if err != nil {
		return nil, err
	}
	peersDoc, err := types.PeersDocFromFile(config.PeersFile())
	if err != nil {
		return nil, err
	}
	return NewNode(config, pv, nodeKey, peersDoc, DefaultDBProvider, logger)
}

// Node is a validating peer: the consensus processor, its p2p transport,
// the stores committed transactions go to and the rpc server.
type Node struct {
	service.BaseService

	// config
	config        *cfg.Config
	peersDoc      *types.PeersDoc
	privValidator *privval.FilePV

	// network
	transport *p2p.MultiplexTransport
	sw        *p2p.Switch // p2p connections
	nodeInfo  p2p.NodeInfo
	nodeKey   *p2p.NodeKey // our node privkey

	// services
	commitDB         tmdb.DB
	stateDB          tmdb.DB
	commitStore      *store.CommitStore
	worldState       *store.WorldState
	mempool          *mempool.ListMempool
	processor        *consensus.EventProcessor
	consensusReactor *consensus.Reactor
	metricSet        *metric.MetricSet
	rpcListeners     []net.Listener
}

type Option func(*Node)

func NewNode(
	config *cfg.Config,
	pv *privval.FilePV,
	nodeKey *p2p.NodeKey,
	peersDoc *types.PeersDoc,
	dbProvider DBProvider,
	logger log.Logger,
	options ...Option,
) (*Node, error) {
	if err := config.ValidateBasic(); err != nil {
		return nil, err
	}
	if pv.KeyType() != config.Consensus.KeyType {
		return nil, fmt.Errorf("validator key is %s, config wants %s", pv.KeyType(), config.Consensus.KeyType)
	}

	table, err := peersDoc.PeerTable()
	if err != nil {
		return nil, err
	}
	maxFaulty := config.Consensus.MaxFaulty
	if maxFaulty == 0 {
		maxFaulty = peersDoc.MaxFaulty
	}
	ctx, err := consensus.NewConsensusContext(table, pv.PubKeyHex(), maxFaulty)
	if err != nil {
		return nil, err
	}

	commitDB, err := dbProvider(&DBContext{"commits", config})
	if err != nil {
		return nil, err
	}
	stateDB, err := dbProvider(&DBContext{"state", config})
	if err != nil {
		return nil, err
	}

	commitStore, err := store.NewCommitStore(commitDB)
	if err != nil {
		return nil, err
	}
	commitStore.SetLogger(logger.With("module", "store"))
	ctx.SetCommitted(commitStore.Height())

	consensusLogger := logger.With("module", "consensus")
	rosterStore := store.NewRosterStore(stateDB)
	rosterHeight, err := restoreRoster(ctx, rosterStore, commitStore, consensusLogger)
	if err != nil {
		return nil, err
	}

	worldState := store.NewWorldStateWithDB(stateDB)
	worldState.SetLogger(logger.With("module", "store"))
	executor := state.NewExecutor(worldState)
	executor.SetLogger(logger.With("module", "state"))

	dedup := consensus.NewDedupCache(stateDB)
	window := config.Consensus.Concurrency
	if window <= 0 {
		window = runtime.NumCPU()
	}
	if _, err := repairDedup(dedup, commitStore, executor, window, consensusLogger); err != nil {
		return nil, errors.Wrap(err, "repair dedup cache")
	}

	pool := mempool.NewListMempool(config.Mempool)
	pool.SetLogger(logger.With("module", "mempool"))

	processor := consensus.NewEventProcessor(
		config.Consensus,
		ctx,
		pv,
		privval.NewKeyVerifier(config.Consensus.KeyType),
		consensus.WithDedupCache(dedup),
		consensus.WithMempool(pool),
		consensus.WithCommitLog(commitStore),
		consensus.WithExecutor(executor),
		consensus.WithRosterStore(rosterStore, rosterHeight),
	)
	processor.SetLogger(consensusLogger)

	consensusReactor := consensus.NewReactor(processor)
	consensusReactor.SetLogger(consensusLogger)

	p2pLogger := logger.With("module", "p2p")

	// setup node identity
	nodeInfo, err := makeNodeInfo(config, nodeKey, peersDoc)
	if err != nil {
		return nil, err
	}

	// Setup Transport.
	transport := createTransport(nodeInfo, nodeKey)

	// Setup Switch.
	sw := createSwitch(
		config, transport, consensusReactor, nodeInfo, nodeKey, p2pLogger,
	)

	metricSet := metric.NewMetricSet()
	_ = metricSet.SetMetrics("consensus", metric.JSONFunc(func() string {
		return processor.Metric().JSONString()
	}))
	_ = metricSet.SetMetrics("mempool", metric.JSONFunc(func() string {
		return pool.Metric().JSONString()
	}))

	node := &Node{
		config:        config,
		peersDoc:      peersDoc,
		privValidator: pv,

		transport: transport,
		sw:        sw,
		nodeInfo:  nodeInfo,
		nodeKey:   nodeKey,

		commitDB:         commitDB,
		stateDB:          stateDB,
		commitStore:      commitStore,
		worldState:       worldState,
		mempool:          pool,
		processor:        processor,
		consensusReactor: consensusReactor,
		metricSet:        metricSet,
	}
	node.BaseService = *service.NewBaseService(logger, "Node", node)
	for _, option := range options {
		option(node)
	}

	return node, nil
}

func createTransport(
	nodeInfo p2p.NodeInfo,
	nodeKey *p2p.NodeKey,
) *p2p.MultiplexTransport {
	var (
		mConnConfig = conn.DefaultMConnConfig()
		transport   = p2p.NewMultiplexTransport(nodeInfo, *nodeKey, mConnConfig)
	)
	return transport
}

func createSwitch(config *cfg.Config,
	transport p2p.Transport,
	consensusReactor *consensus.Reactor,
	nodeInfo p2p.NodeInfo,
	nodeKey *p2p.NodeKey,
	p2pLogger log.Logger) *p2p.Switch {

	sw := p2p.NewSwitch(
		config.P2P,
		transport,
	)
	sw.SetLogger(p2pLogger)
	sw.AddReactor("CONSENSUS", consensusReactor)

	sw.SetNodeInfo(nodeInfo)
	sw.SetNodeKey(nodeKey)

	p2pLogger.Info("P2P Node ID", "ID", nodeKey.ID(), "file", config.NodeKeyFile())
	return sw
}

func makeNodeInfo(
	config *cfg.Config,
	nodeKey *p2p.NodeKey,
	peersDoc *types.PeersDoc,
) (p2p.NodeInfo, error) {
	nodeInfo := p2p.DefaultNodeInfo{
		ProtocolVersion: p2p.NewProtocolVersion(
			8, // global
			11,
			0,
		),
		DefaultNodeID: nodeKey.ID(),
		Network:       peersDoc.ChainID,
		Version:       version.TMCoreSemVer,
		Channels: []byte{
			consensus.EventChannel,
			consensus.TransactionChannel,
		},
		Moniker: config.Moniker,
		Other: p2p.DefaultNodeInfoOther{
			TxIndex:    "off",
			RPCAddress: config.RPC.ListenAddress,
		},
	}

	lAddr := config.P2P.ExternalAddress

	if lAddr == "" {
		lAddr = config.P2P.ListenAddress
	}

	nodeInfo.ListenAddr = lAddr

	err := nodeInfo.Validate()
	return nodeInfo, err
}

// OnStart starts the rpc server, the consensus processor and then the p2p
// switch, and dials every other peer of the roster.
func (n *Node) OnStart() error {
	if n.config.RPC.ListenAddress != "" {
		listeners, err := n.startRPC()
		if err != nil {
			return err
		}
		n.rpcListeners = listeners
	}

	// start the transport
	addr, err := p2p.NewNetAddressString(p2p.IDAddressString(n.nodeKey.ID(), n.config.P2P.ListenAddress))
	if err != nil {
		return err
	}
	if err := n.transport.Listen(*addr); err != nil {
		return err
	}

	if err := n.processor.Start(); err != nil {
		return err
	}

	// start the Switch
	if err := n.sw.Start(); err != nil {
		return err
	}

	peers := n.rosterAddresses()
	n.Logger.Info("dialing roster", "peers", peers)
	if err := n.sw.AddPersistentPeers(peers); err != nil {
		return fmt.Errorf("could not add roster peers: %w", err)
	}
	if err := n.sw.DialPeersAsync(peers); err != nil {
		return fmt.Errorf("could not dial roster peers: %w", err)
	}

	return nil
}

func (n *Node) OnStop() {
	n.Logger.Info("Stopping Node")

	if err := n.sw.Stop(); err != nil {
		n.Logger.Error("Error closing switch", "err", err)
	}
	if err := n.processor.Stop(); err != nil {
		n.Logger.Error("Error stopping consensus", "err", err)
	}
	if err := n.transport.Close(); err != nil {
		n.Logger.Error("Error closing transport", "err", err)
	}
	for _, l := range n.rpcListeners {
		n.Logger.Info("Closing rpc listener", "listener", l)
		if err := l.Close(); err != nil {
			n.Logger.Error("Error closing listener", "listener", l, "err", err)
		}
	}
	if err := n.commitDB.Close(); err != nil {
		n.Logger.Error("Error closing commit db", "err", err)
	}
	if err := n.stateDB.Close(); err != nil {
		n.Logger.Error("Error closing state db", "err", err)
	}
}

func (n *Node) startRPC() ([]net.Listener, error) {
	rpc.SetEnvironment(&rpc.Environment{
		Processor:   n.processor,
		Mempool:     n.mempool,
		CommitStore: n.commitStore,
		MetricSet:   n.metricSet,
		Logger:      n.Logger.With("module", "rpc"),
	})

	listenAddrs := splitAndTrimEmpty(n.config.RPC.ListenAddress, ",", " ")
	config := rpcserver.DefaultConfig()
	config.MaxBodyBytes = n.config.RPC.MaxBodyBytes
	config.MaxHeaderBytes = n.config.RPC.MaxHeaderBytes
	config.MaxOpenConnections = n.config.RPC.MaxOpenConnections

	listeners := make([]net.Listener, 0, len(listenAddrs))
	for _, listenAddr := range listenAddrs {
		mux := http.NewServeMux()
		rpcLogger := n.Logger.With("module", "rpc-server")
		wmLogger := rpcLogger.With("protocol", "websocket")
		wm := rpcserver.NewWebsocketManager(rpc.Routes, rpcserver.ReadLimit(config.MaxBodyBytes))
		wm.SetLogger(wmLogger)
		mux.HandleFunc("/websocket", wm.WebsocketHandler)
		rpcserver.RegisterRPCFuncs(mux, rpc.Routes, rpcLogger)

		listener, err := rpcserver.Listen(listenAddr, config)
		if err != nil {
			return nil, errors.Wrapf(err, "listen rpc on %v", listenAddr)
		}
		go func() {
			if err := rpcserver.Serve(listener, mux, rpcLogger, config); err != nil {
				n.Logger.Error("Error serving server", "err", err)
			}
		}()
		listeners = append(listeners, listener)
	}
	return listeners, nil
}

// rosterAddresses are the p2p addresses of every other roster peer.
func (n *Node) rosterAddresses() []string {
	me := n.processor.Context().MyPubKey()
	addrs := make([]string, 0, len(n.peersDoc.Peers))
	for _, peer := range n.processor.Context().Peers() {
		if peer.PubKey == me || !strings.Contains(peer.Address, "@") {
			continue
		}
		addrs = append(addrs, peer.Address)
	}
	return addrs
}

func (n *Node) Switch() *p2p.Switch {
	return n.sw
}

func (n *Node) NodeInfo() p2p.NodeInfo {
	return n.nodeInfo
}

func (n *Node) Processor() *consensus.EventProcessor {
	return n.processor
}

func (n *Node) CommitStore() *store.CommitStore {
	return n.commitStore
}

func (n *Node) WorldState() *store.WorldState {
	return n.worldState
}

func (n *Node) MetricSet() *metric.MetricSet {
	return n.metricSet
}

// splitAndTrimEmpty slices s into all subslices separated by sep and returns a
// slice of the string s with all leading and trailing Unicode code points
// contained in cutset removed. If sep is empty, SplitAndTrim splits after each
// UTF-8 sequence. First part is equivalent to strings.SplitN with a count of
// -1.  also filter out empty strings, only return non-empty strings.
func splitAndTrimEmpty(s, sep, cutset string) []string {
	if s == "" {
		return []string{}
	}

	spl := strings.Split(s, sep)
	nonEmptyStrings := make([]string, 0, len(spl))
	for i := 0; i < len(spl); i++ {
		element := strings.Trim(spl[i], cutset)
		if element != "" {
			nonEmptyStrings = append(nonEmptyStrings, element)
		}
	}
	return nonEmptyStrings
}
