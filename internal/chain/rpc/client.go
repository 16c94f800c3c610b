// Package rpc is the JSON-RPC adapter to the blockchain node.
//
// By default every call dials a fresh connection and closes it afterwards.
// Config.ReuseConnection switches to a single lazily dialed client that is
// dropped and redialed after a transport failure.
package rpc

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	logx "chainjobs/pkg/logx"
)

const (
	DefaultURL         = "http://localhost:8545"
	DefaultCallTimeout = 30 * time.Second
)

// Client is what the rest of chainjobs needs from a node.
type Client interface {
	// ClientVersion issues web3_clientVersion. Failures are *ConnectivityError.
	ClientVersion(ctx context.Context) (string, error)
	// CallReadOnly issues eth_call against the latest block. Failures are *CallError.
	CallReadOnly(ctx context.Context, caller, contract common.Address, payload []byte) ([]byte, error)
}

type Config struct {
	URL string
	// CallTimeout bounds each call. 0 leaves calls bounded only by ctx.
	CallTimeout     time.Duration
	ReuseConnection bool
}

type Node struct {
	cfg Config
	log logx.Logger

	mu     sync.Mutex
	shared *gethrpc.Client
}

var _ Client = (*Node)(nil)

func New(cfg Config, log logx.Logger) *Node {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = DefaultURL
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Node{cfg: cfg, log: log}
}

func (n *Node) URL() string { return n.cfg.URL }

func (n *Node) ClientVersion(ctx context.Context) (string, error) {
	ctx, cancel := n.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	c, release, err := n.acquire(ctx)
	if err != nil {
		return "", &ConnectivityError{URL: n.cfg.URL, Err: err}
	}
	var version string
	err = c.CallContext(ctx, &version, "web3_clientVersion")
	release(err)
	if err != nil {
		return "", &ConnectivityError{URL: n.cfg.URL, Err: err}
	}
	if strings.TrimSpace(version) == "" {
		return "", &ConnectivityError{URL: n.cfg.URL, Err: errors.New("empty client version")}
	}
	n.log.Debug("client version", logx.String("version", version), logx.Duration("took", time.Since(start)))
	return version, nil
}

func (n *Node) CallReadOnly(ctx context.Context, caller, contract common.Address, payload []byte) ([]byte, error) {
	ctx, cancel := n.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	c, release, err := n.acquire(ctx)
	if err != nil {
		return nil, &CallError{Method: "eth_call", Err: err}
	}
	msg := ethereum.CallMsg{From: caller, To: &contract, Data: payload}
	// nil block number selects "latest".
	out, err := ethclient.NewClient(c).CallContract(ctx, msg, nil)
	release(err)
	if err != nil {
		return nil, &CallError{Method: "eth_call", Err: err}
	}
	n.log.Debug("eth_call done",
		logx.String("to", contract.Hex()),
		logx.Hex("data", payload),
		logx.Int("result_len", len(out)),
		logx.Duration("took", time.Since(start)),
	)
	return out, nil
}

// Close drops the shared connection, if any.
func (n *Node) Close() {
	n.mu.Lock()
	c := n.shared
	n.shared = nil
	n.mu.Unlock()
	if c != nil {
		c.Close()
	}
}

func (n *Node) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if n.cfg.CallTimeout > 0 {
		return context.WithTimeout(ctx, n.cfg.CallTimeout)
	}
	return context.WithCancel(ctx)
}

// acquire returns a connection and a release func that must be called with
// the call's error.
func (n *Node) acquire(ctx context.Context) (*gethrpc.Client, func(error), error) {
	if !n.cfg.ReuseConnection {
		c, err := gethrpc.DialContext(ctx, n.cfg.URL)
		if err != nil {
			return nil, nil, err
		}
		return c, func(error) { c.Close() }, nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.shared == nil {
		c, err := gethrpc.DialContext(ctx, n.cfg.URL)
		if err != nil {
			return nil, nil, err
		}
		n.shared = c
	}
	c := n.shared
	return c, func(err error) {
		if err == nil || nodeAnswered(err) {
			return
		}
		n.mu.Lock()
		if n.shared == c {
			n.shared = nil
		}
		n.mu.Unlock()
		c.Close()
		n.log.Debug("shared connection dropped", logx.Err(err))
	}, nil
}
