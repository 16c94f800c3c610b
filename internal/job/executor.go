// Package job runs one contract function call per invocation and never lets
// a failure escape to the caller.
package job

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"

	"chainjobs/internal/chain/encoder"
	"chainjobs/internal/chain/rpc"
	"chainjobs/internal/eventbus"
	"chainjobs/internal/metrics"
	logx "chainjobs/pkg/logx"
)

const DefaultHistorySize = 100

// Endpoint is the caller/contract pair every call is made with.
type Endpoint struct {
	Owner    common.Address
	Contract common.Address
}

// Result describes one finished call.
type Result struct {
	RunID    string
	Task     string
	Function string
	Started  time.Time
	Duration time.Duration
	Output   []byte
	Err      error
}

func (r Result) OK() bool { return r.Err == nil }

type Options struct {
	Client      rpc.Client
	Logger      logx.Logger
	Bus         eventbus.Bus
	Metrics     *metrics.Metrics
	HistorySize int
	Now         func() time.Time
}

type Executor struct {
	client rpc.Client
	log    logx.Logger
	bus    eventbus.Bus
	m      *metrics.Metrics
	now    func() time.Time

	mu      sync.Mutex
	history []Result
	next    int
	filled  bool
}

func New(opts Options) (*Executor, error) {
	if opts.Client == nil {
		return nil, errors.New("job: nil rpc client")
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Executor{
		client:  opts.Client,
		log:     log.With(logx.String("comp", "executor")),
		bus:     opts.Bus,
		m:       opts.Metrics,
		now:     opts.Now,
		history: make([]Result, opts.HistorySize),
	}, nil
}

// Execute encodes functionName and submits it as a read-only call from
// ep.Owner to ep.Contract. Every outcome is logged and recorded; nothing is
// returned and nothing is retried.
func (e *Executor) Execute(ctx context.Context, task, functionName string, ep Endpoint) {
	res := Result{
		RunID:    uuid.NewString(),
		Task:     task,
		Function: functionName,
		Started:  e.now(),
	}
	start := time.Now()
	res.Output, res.Err = e.call(ctx, functionName, ep)
	res.Duration = time.Since(start)

	fields := []logx.Field{
		logx.String("function", functionName),
		logx.String("task", task),
		logx.String("run_id", res.RunID),
		logx.Duration("took", res.Duration),
	}
	if res.Err != nil {
		e.log.Error("function call failed", append(fields, logx.Err(res.Err))...)
	} else {
		e.log.Info("function call succeeded", fields...)
	}

	e.m.ObserveCall(functionName, res.Err, res.Duration)
	e.record(res)
	e.publish(res)
}

func (e *Executor) call(ctx context.Context, functionName string, ep Endpoint) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic in function call", logx.String("function", functionName), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	payload, err := encoder.Encode(functionName)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.client.CallReadOnly(ctx, ep.Owner, ep.Contract, payload)
}

func (e *Executor) record(res Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history[e.next] = res
	e.next++
	if e.next == len(e.history) {
		e.next = 0
		e.filled = true
	}
}

// History returns recorded results, newest first.
func (e *Executor) History() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.next
	if e.filled {
		n = len(e.history)
	}
	out := make([]Result, 0, n)
	for i := 1; i <= n; i++ {
		idx := (e.next - i + len(e.history)) % len(e.history)
		out = append(out, e.history[idx])
	}
	return out
}

func (e *Executor) publish(res Result) {
	if e.bus == nil {
		return
	}
	ev := eventbus.JobResult{
		RunID:    res.RunID,
		Task:     res.Task,
		Function: res.Function,
		Started:  res.Started,
		Duration: res.Duration,
	}
	if len(res.Output) > 0 {
		ev.Output = hexutil.Encode(res.Output)
	}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}
	e.bus.Publish(eventbus.Event{Type: eventbus.TypeJobResult, Time: res.Started, Data: ev})
}
