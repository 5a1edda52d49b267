package main

import (
	"encoding/json"
	"fmt"

	// it is ok to use math/rand here: we do not need a cryptographically secure random
	// number generator here and we can run the tests a bit faster
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	jsonrpc "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"sumeragi/types"
)

const (
	sendTimeout = 10 * time.Second
	// see https://github.com/tendermint/tendermint/blob/master/rpc/lib/server/handlers.go
	pingPeriod = (30 * 9 / 10) * time.Second

	submitMethod = "submit_transaction"
)

type transacter struct {
	Target      string
	Rate        int
	Connections int
	Accounts    int
	conns       []*websocket.Conn
	connsBroken []bool
	startingWg  sync.WaitGroup
	endingWg    sync.WaitGroup
	stopped     bool

	// request id -> send time, drained by the receive loops
	inflightMtx sync.Mutex
	inflight    map[int]time.Time
	nextID      int
	latencies   []time.Duration
	refused     int

	logger log.Logger
}

func newTransacter(target string, connections, rate int, accounts int) *transacter {
	return &transacter{
		Target:      target,
		Rate:        rate,
		Accounts:    accounts,
		Connections: connections,
		conns:       make([]*websocket.Conn, connections),
		connsBroken: make([]bool, connections),
		inflight:    make(map[int]time.Time),
		logger:      log.NewNopLogger(),
	}
}

// SetLogger lets you set your own logger
func (t *transacter) SetLogger(l log.Logger) {
	t.logger = l
}

// Start opens N = `t.Connections` connections to the target and creates read
// and write goroutines for each connection.
func (t *transacter) Start() error {
	t.stopped = false

	rand.Seed(time.Now().Unix())

	for i := 0; i < t.Connections; i++ {
		c, _, err := connect(t.Target)
		if err != nil {
			return err
		}
		t.conns[i] = c
	}

	t.startingWg.Add(t.Connections)
	t.endingWg.Add(2 * t.Connections)
	for i := 0; i < t.Connections; i++ {
		go t.sendLoop(i)
		go t.receiveLoop(i)
	}

	t.startingWg.Wait()

	return nil
}

// Stop closes the connections.
func (t *transacter) Stop() {
	t.stopped = true
	t.endingWg.Wait()
	for _, c := range t.conns {
		c.Close()
	}
}

// Latencies returns the submit round trips observed so far and the number
// of submissions the node refused.
func (t *transacter) Latencies() ([]time.Duration, int) {
	t.inflightMtx.Lock()
	defer t.inflightMtx.Unlock()
	out := make([]time.Duration, len(t.latencies))
	copy(out, t.latencies)
	return out, t.refused
}

func (t *transacter) track() int {
	t.inflightMtx.Lock()
	defer t.inflightMtx.Unlock()
	t.nextID++
	t.inflight[t.nextID] = time.Now()
	return t.nextID
}

func (t *transacter) done(resp *jsonrpc.RPCResponse) {
	id, ok := resp.ID.(jsonrpc.JSONRPCIntID)
	if !ok {
		return
	}
	t.inflightMtx.Lock()
	defer t.inflightMtx.Unlock()
	sent, ok := t.inflight[int(id)]
	if !ok {
		return
	}
	delete(t.inflight, int(id))
	t.latencies = append(t.latencies, time.Since(sent))

	var result struct {
		Code string `json:"code"`
	}
	if resp.Error != nil || json.Unmarshal(resp.Result, &result) != nil || result.Code != "OK" {
		t.refused++
	}
}

// receiveLoop reads submit responses from the connection.
func (t *transacter) receiveLoop(connIndex int) {
	c := t.conns[connIndex]
	defer t.endingWg.Done()
	for {
		_, bz, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.logger.Error(
					fmt.Sprintf("failed to read response on conn %d", connIndex),
					"err",
					err,
				)
			}
			return
		}
		var resp jsonrpc.RPCResponse
		if err := json.Unmarshal(bz, &resp); err == nil {
			t.done(&resp)
		}
		if t.stopped || t.connsBroken[connIndex] {
			return
		}
	}
}

// sendLoop generates transactions at a given rate.
func (t *transacter) sendLoop(connIndex int) {
	started := false
	// Close the starting waitgroup, in the event that this fails to start
	defer func() {
		if !started {
			t.startingWg.Done()
		}
	}()
	c := t.conns[connIndex]

	c.SetPingHandler(func(message string) error {
		err := c.WriteControl(websocket.PongMessage, []byte(message), time.Now().Add(sendTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		} else if e, ok := err.(net.Error); ok && e.Temporary() {
			return nil
		}
		return err
	})

	logger := t.logger.With("addr", c.RemoteAddr())

	pingsTicker := time.NewTicker(pingPeriod)
	txsTicker := time.NewTicker(1 * time.Second)
	defer func() {
		pingsTicker.Stop()
		txsTicker.Stop()
		t.endingWg.Done()
	}()

	for {
		select {
		case <-txsTicker.C:
			startTime := time.Now()
			endTime := startTime.Add(time.Second)
			numTxSent := t.Rate
			if !started {
				t.startingWg.Done()
				started = true
			}

			now := time.Now()
			for i := 0; i < t.Rate; i++ {
				params, err := submitParams(generateTx(t.Accounts))
				if err != nil {
					logger.Error("failed to encode params", "err", err)
					t.connsBroken[connIndex] = true
					return
				}

				c.SetWriteDeadline(now.Add(sendTimeout))
				err = c.WriteJSON(jsonrpc.RPCRequest{
					JSONRPC: "2.0",
					ID:      jsonrpc.JSONRPCIntID(t.track()),
					Method:  submitMethod,
					Params:  params,
				})
				if err != nil {
					err = errors.Wrap(err,
						fmt.Sprintf("txs send failed on connection #%d", connIndex))
					t.connsBroken[connIndex] = true
					logger.Error(err.Error())
					return
				}

				// cache the time.Now() reads to save time.
				if i%5 == 0 {
					now = time.Now()
					if now.After(endTime) {
						// Plus one accounts for sending this tx
						numTxSent = i + 1
						break
					}
				}
			}

			timeToSend := time.Since(startTime)
			logger.Info(fmt.Sprintf("sent %d transactions", numTxSent), "took", timeToSend)
			if timeToSend < 1*time.Second {
				sleepTime := time.Second - timeToSend
				logger.Debug(fmt.Sprintf("connection #%d is sleeping for %f seconds", connIndex, sleepTime.Seconds()))
				time.Sleep(sleepTime)
			}

		case <-pingsTicker.C:
			// go-rpc server closes the connection in the absence of pings
			c.SetWriteDeadline(time.Now().Add(sendTimeout))
			if err := c.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				err = errors.Wrap(err,
					fmt.Sprintf("failed to write ping message on conn #%d", connIndex))
				logger.Error(err.Error())
				t.connsBroken[connIndex] = true
			}
		}

		if t.stopped {
			// To cleanly close a connection, a client should send a close
			// frame and wait for the server to close the connection.
			c.SetWriteDeadline(time.Now().Add(sendTimeout))
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				err = errors.Wrap(err,
					fmt.Sprintf("failed to write close message on conn #%d", connIndex))
				logger.Error(err.Error())
				t.connsBroken[connIndex] = true
			}

			return
		}
	}
}

func connect(host string) (*websocket.Conn, *http.Response, error) {
	u := url.URL{Scheme: "ws", Host: host, Path: "/websocket"}
	return websocket.DefaultDialer.Dial(u.String(), nil)
}

// submitParams encodes the tx with tmjson so the command keeps its type tag.
func submitParams(tx *types.Transaction) (json.RawMessage, error) {
	bz, err := tmjson.Marshal(tx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]json.RawMessage{"tx": bz})
}

func randomAccount(accounts int) string {
	return fmt.Sprintf("user%v@bench", rand.Intn(accounts)+1)
}

func generateTx(accounts int) *types.Transaction {
	asset := types.Asset{Name: "coin#bench", Amount: int64(rand.Intn(200) + 1)}
	account := randomAccount(accounts)

	var cmd types.Command
	switch rand.Intn(3) {
	case 0:
		cmd = &types.AssetAdd{Account: account, Asset: asset}
	case 1:
		receiver := randomAccount(accounts)
		for accounts > 1 && receiver == account {
			receiver = randomAccount(accounts)
		}
		cmd = &types.AssetTransfer{Asset: asset, Sender: account, Receiver: receiver}
	case 2:
		cmd = &types.AssetRemove{Account: account, Asset: asset}
	}
	return types.NewTransaction(account, cmd)
}
