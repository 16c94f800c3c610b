package job

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainjobs/internal/chain/rpc"
	"chainjobs/internal/eventbus"
	logx "chainjobs/pkg/logx"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type call struct {
	caller, contract common.Address
	payload          []byte
}

type fakeClient struct {
	mu    sync.Mutex
	calls []call
	err   error
	panic bool
}

func (f *fakeClient) ClientVersion(context.Context) (string, error) { return "fake/v1", nil }

func (f *fakeClient) CallReadOnly(_ context.Context, caller, contract common.Address, payload []byte) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{caller, contract, append([]byte(nil), payload...)})
	f.mu.Unlock()
	if f.panic {
		panic("adapter exploded")
	}
	return nil, f.err
}

func (f *fakeClient) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

var testEndpoint = Endpoint{
	Owner:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
	Contract: common.HexToAddress("0x2222222222222222222222222222222222222222"),
}

func newTestExecutor(t *testing.T, client rpc.Client, bus eventbus.Bus) (*Executor, *syncBuffer) {
	t.Helper()
	buf := &syncBuffer{}
	ex, err := New(Options{
		Client:      client,
		Logger:      logx.FromZerolog(zerolog.New(buf)),
		Bus:         bus,
		HistorySize: 3,
	})
	require.NoError(t, err)
	return ex, buf
}

func TestExecuteSuccess(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	ex, logs := newTestExecutor(t, fc, nil)
	ex.Execute(context.Background(), "closing_deposits", "closeDeposit", testEndpoint)

	calls := fc.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, testEndpoint.Owner, calls[0].caller)
	assert.Equal(t, testEndpoint.Contract, calls[0].contract)
	assert.Len(t, calls[0].payload, 4)

	out := logs.String()
	assert.Contains(t, out, "function call succeeded")
	assert.Contains(t, out, `"function":"closeDeposit"`)
	assert.NotContains(t, out, "failed")

	h := ex.History()
	require.Len(t, h, 1)
	assert.True(t, h[0].OK())
	assert.NotEmpty(t, h[0].RunID)
}

func TestExecuteFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{err: &rpc.CallError{Method: "eth_call", Err: errors.New("execution reverted")}}
	ex, logs := newTestExecutor(t, fc, nil)

	require.NotPanics(t, func() {
		ex.Execute(context.Background(), "check_credits", "checkCredits", testEndpoint)
	})
	assert.Len(t, fc.Calls(), 1, "no retry")

	out := logs.String()
	assert.Contains(t, out, "function call failed")
	assert.Contains(t, out, "execution reverted")

	h := ex.History()
	require.Len(t, h, 1)
	var ce *rpc.CallError
	assert.True(t, errors.As(h[0].Err, &ce))
}

func TestExecutePanicIsRecovered(t *testing.T) {
	t.Parallel()

	ex, logs := newTestExecutor(t, &fakeClient{panic: true}, nil)
	require.NotPanics(t, func() {
		ex.Execute(context.Background(), "t", "closeDeposit", testEndpoint)
	})
	assert.Contains(t, logs.String(), "function call failed")
	assert.Contains(t, logs.String(), "adapter exploded")
}

func TestExecuteInvalidNameNeverCallsNode(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	ex, logs := newTestExecutor(t, fc, nil)
	ex.Execute(context.Background(), "t", "not a name", testEndpoint)

	assert.Empty(t, fc.Calls())
	assert.Contains(t, logs.String(), "function call failed")
}

func TestExecuteCancelledContext(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	ex, logs := newTestExecutor(t, fc, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ex.Execute(ctx, "t", "closeDeposit", testEndpoint)

	assert.Empty(t, fc.Calls())
	assert.Contains(t, logs.String(), "context canceled")
}

func TestHistoryRingNewestFirst(t *testing.T) {
	t.Parallel()

	ex, _ := newTestExecutor(t, &fakeClient{}, nil)
	for _, fn := range []string{"a", "b", "c", "d", "e"} {
		ex.Execute(context.Background(), "t", fn, testEndpoint)
	}
	h := ex.History()
	require.Len(t, h, 3)
	var names []string
	for _, r := range h {
		names = append(names, r.Function)
	}
	assert.Equal(t, "e,d,c", strings.Join(names, ","))
}

func TestExecutePublishesResult(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	ex, _ := newTestExecutor(t, &fakeClient{err: errors.New("dial tcp: refused")}, bus)
	ex.Execute(context.Background(), "closing_deposits", "closeDeposit", testEndpoint)

	select {
	case ev := <-ch:
		assert.Equal(t, eventbus.TypeJobResult, ev.Type)
		jr, ok := ev.Data.(eventbus.JobResult)
		require.True(t, ok)
		assert.Equal(t, "closeDeposit", jr.Function)
		assert.Equal(t, "closing_deposits", jr.Task)
		assert.Contains(t, jr.Error, "refused")
	case <-time.After(time.Second):
		t.Fatal("no job.result event")
	}
}

func TestNewRequiresClient(t *testing.T) {
	t.Parallel()
	_, err := New(Options{})
	require.Error(t, err)
}
