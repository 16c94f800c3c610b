package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type callParams struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Input string `json:"input"`
	Data  string `json:"data"`
}

// fakeNode answers web3_clientVersion and eth_call. handler may override a
// method by returning a non-nil response body.
type fakeNode struct {
	version string
	result  string
	rpcErr  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}

	calls    atomic.Int32
	lastCall atomic.Pointer[callParams]
	lastTag  atomic.Pointer[string]
}

func (f *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	switch req.Method {
	case "web3_clientVersion":
		resp["result"] = f.version
	case "eth_call":
		f.calls.Add(1)
		var p callParams
		if len(req.Params) > 0 {
			_ = json.Unmarshal(req.Params[0], &p)
		}
		f.lastCall.Store(&p)
		if len(req.Params) > 1 {
			var tag string
			_ = json.Unmarshal(req.Params[1], &tag)
			f.lastTag.Store(&tag)
		}
		if f.rpcErr != nil {
			resp["error"] = f.rpcErr
		} else {
			resp["result"] = f.result
		}
	default:
		resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func TestClientVersion(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(&fakeNode{version: "Geth/v1.10.0"})
	defer srv.Close()

	n := New(Config{URL: srv.URL, CallTimeout: 5 * time.Second}, nopLogger())
	v, err := n.ClientVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Geth/v1.10.0", v)
}

func TestClientVersionUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	n := New(Config{URL: url, CallTimeout: 2 * time.Second}, nopLogger())
	_, err := n.ClientVersion(context.Background())
	require.Error(t, err)

	var ce *ConnectivityError
	require.True(t, errors.As(err, &ce), "got %T", err)
	assert.Equal(t, url, ce.URL)
}

func TestClientVersionEmptyIsMalformed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(&fakeNode{version: ""})
	defer srv.Close()

	_, err := New(Config{URL: srv.URL}, nopLogger()).ClientVersion(context.Background())
	var ce *ConnectivityError
	require.ErrorAs(t, err, &ce)
}

func TestCallReadOnlyLatest(t *testing.T) {
	t.Parallel()

	fake := &fakeNode{result: "0x"}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	contract := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	payload := []byte{0x18, 0x16, 0x0d, 0xdd}

	n := New(Config{URL: srv.URL, CallTimeout: 5 * time.Second}, nopLogger())
	out, err := n.CallReadOnly(context.Background(), owner, contract, payload)
	require.NoError(t, err)
	assert.Empty(t, out)

	require.EqualValues(t, 1, fake.calls.Load())
	p := fake.lastCall.Load()
	require.NotNil(t, p)
	assert.Equal(t, owner, common.HexToAddress(p.From))
	assert.Equal(t, contract, common.HexToAddress(p.To))
	in := p.Input
	if in == "" {
		in = p.Data
	}
	assert.Equal(t, "0x18160ddd", in)
	require.NotNil(t, fake.lastTag.Load())
	assert.Equal(t, "latest", *fake.lastTag.Load())
}

func TestCallReadOnlyNodeError(t *testing.T) {
	t.Parallel()

	fake := &fakeNode{}
	fake.rpcErr = &struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}{Code: 3, Message: "execution reverted"}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	n := New(Config{URL: srv.URL, ReuseConnection: true}, nopLogger())
	defer n.Close()

	_, err := n.CallReadOnly(context.Background(), common.Address{}, common.Address{1}, []byte{1, 2, 3, 4})
	var ce *CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "eth_call", ce.Method)
	assert.Contains(t, err.Error(), "execution reverted")

	// a node-side error keeps the shared connection
	n.mu.Lock()
	shared := n.shared
	n.mu.Unlock()
	assert.NotNil(t, shared)
}

func TestCallReadOnlyTimeout(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	n := New(Config{URL: srv.URL, CallTimeout: 50 * time.Millisecond}, nopLogger())
	start := time.Now()
	_, err := n.CallReadOnly(context.Background(), common.Address{}, common.Address{1}, []byte{1, 2, 3, 4})
	require.Error(t, err)
	var ce *CallError
	require.ErrorAs(t, err, &ce)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNewDefaultsURL(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultURL, New(Config{}, nopLogger()).URL())
}
