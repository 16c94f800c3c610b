package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainjobs/internal/job"
	"chainjobs/internal/metrics"
	logx "chainjobs/pkg/logx"
)

type execCall struct {
	task, function string
	ep             job.Endpoint
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []execCall
	// block, when set, is called inside Execute before returning.
	block func(ctx context.Context)
}

func (r *fakeRunner) Execute(ctx context.Context, task, fn string, ep job.Endpoint) {
	r.mu.Lock()
	r.calls = append(r.calls, execCall{task, fn, ep})
	block := r.block
	r.mu.Unlock()
	if block != nil {
		block(ctx)
	}
}

func (r *fakeRunner) Calls() []execCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]execCall(nil), r.calls...)
}

var testEP = job.Endpoint{
	Owner:    common.HexToAddress("0x00000000000000000000000000000000000000a1"),
	Contract: common.HexToAddress("0x00000000000000000000000000000000000000c1"),
}

func newTestService(r Runner) *Service {
	return New(Config{StopTimeout: 2 * time.Second}, r, testEP, logx.Nop(), metrics.New())
}

func mustAdd(t *testing.T, s *Service, spec TaskSpec) *Task {
	t.Helper()
	task, err := s.Add(spec)
	require.NoError(t, err)
	return task
}

func TestFixedRateNext(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := fixedRate{start: start, period: 3 * time.Second}

	cases := []struct {
		at   time.Time
		want time.Time
	}{
		{start.Add(-time.Hour), start.Add(3 * time.Second)},
		{start, start.Add(3 * time.Second)},
		{start.Add(3 * time.Second), start.Add(6 * time.Second)},
		{start.Add(3500 * time.Millisecond), start.Add(6 * time.Second)},
		{start.Add(10 * time.Second), start.Add(12 * time.Second)},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, f.Next(tc.at), "at %s", tc.at.Sub(start))
	}
	assert.True(t, fixedRate{start: start}.Next(start).IsZero())
}

func TestFixedRateSubSecond(t *testing.T) {
	t.Parallel()

	start := time.Unix(0, 0)
	f := fixedRate{start: start, period: 250 * time.Millisecond}
	assert.Equal(t, start.Add(500*time.Millisecond), f.Next(start.Add(260*time.Millisecond)))
}

func TestTickDisabledDoesNotCall(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{}
	s := newTestService(r)
	task := mustAdd(t, s, TaskSpec{Name: "check_credits", Function: "checkCredits", Period: time.Minute})

	for i := 0; i < 5; i++ {
		s.tick(task)
	}
	assert.Empty(t, r.Calls())
	assert.EqualValues(t, 5, task.info().Disabled)
}

func TestTickEnabledCallsOncePerTick(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{}
	s := newTestService(r)
	task := mustAdd(t, s, TaskSpec{Name: "closing_deposits", Function: "closeDeposit", Period: time.Minute, Enabled: true})

	for i := 0; i < 3; i++ {
		s.tick(task)
	}
	calls := r.Calls()
	require.Len(t, calls, 3)
	for _, c := range calls {
		assert.Equal(t, "closing_deposits", c.task)
		assert.Equal(t, "closeDeposit", c.function)
		assert.Equal(t, testEP, c.ep)
	}
}

func TestToggleLastWriteWins(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{}
	s := newTestService(r)
	task := mustAdd(t, s, TaskSpec{Name: "t", Function: "closeDeposit", Period: time.Minute})

	task.SetEnabled(true)
	task.SetEnabled(false)
	task.SetEnabled(true)
	s.tick(task)
	assert.Len(t, r.Calls(), 1)

	task.SetEnabled(false)
	task.SetEnabled(false)
	s.tick(task)
	assert.Len(t, r.Calls(), 1)
}

func TestEnableTwoTicksThenDisable(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{}
	s := newTestService(r)
	task := mustAdd(t, s, TaskSpec{Name: "closing_deposits", Function: "closeDeposit", Period: time.Minute})

	task.SetEnabled(true)
	s.tick(task)
	s.tick(task)
	task.SetEnabled(false)
	s.tick(task)

	calls := r.Calls()
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.Equal(t, "closeDeposit", c.function)
	}
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	r := &fakeRunner{block: func(context.Context) {
		entered <- struct{}{}
		<-release
	}}
	s := newTestService(r)
	task := mustAdd(t, s, TaskSpec{Name: "t", Function: "closeDeposit", Period: time.Minute, Enabled: true})

	done := make(chan struct{})
	go func() {
		s.tick(task)
		close(done)
	}()
	<-entered
	assert.True(t, task.Running())

	s.tick(task)
	close(release)
	<-done

	assert.Len(t, r.Calls(), 1)
	assert.EqualValues(t, 1, task.info().Overlapped)
	assert.False(t, task.Running())
}

func TestConcurrentToggleAndTick(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{}
	s := newTestService(r)
	task := mustAdd(t, s, TaskSpec{Name: "t", Function: "closeDeposit", Period: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(on bool) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				task.SetEnabled(on)
			}
		}(i%2 == 0)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.tick(task)
			}
		}()
	}
	wg.Wait()

	info := task.info()
	assert.Equal(t, uint64(len(r.Calls())), info.Fired)
	assert.EqualValues(t, 800, info.Fired+info.Disabled+info.Overlapped)
}

func TestAddValidation(t *testing.T) {
	t.Parallel()

	s := newTestService(&fakeRunner{})
	mustAdd(t, s, TaskSpec{Name: "a", Function: "closeDeposit", Period: time.Second})

	_, err := s.Add(TaskSpec{Name: "a", Function: "closeDeposit", Period: time.Second})
	assert.True(t, errors.Is(err, ErrDuplicateTask))

	_, err = s.Add(TaskSpec{Name: "b", Function: "close deposit", Period: time.Second})
	assert.Error(t, err)

	_, err = s.Add(TaskSpec{Name: "c", Function: "closeDeposit"})
	assert.Error(t, err)

	_, err = s.Add(TaskSpec{Function: "closeDeposit", Period: time.Second})
	assert.Error(t, err)
}

func TestRunningServiceTicksAtFixedRate(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{}
	s := newTestService(r)
	on := mustAdd(t, s, TaskSpec{Name: "on", Function: "closeDeposit", Period: 20 * time.Millisecond, Enabled: true})
	mustAdd(t, s, TaskSpec{Name: "off", Function: "checkCredits", Period: 20 * time.Millisecond})

	require.NoError(t, s.Start(context.Background()))
	require.ErrorIs(t, s.Start(context.Background()), ErrStarted)

	require.Eventually(t, func() bool { return len(r.Calls()) >= 3 }, 2*time.Second, 5*time.Millisecond)

	snap := s.Snapshot()
	assert.True(t, snap.Started)
	require.Len(t, snap.Tasks, 2)
	assert.False(t, snap.Tasks[0].NextTick.IsZero())

	s.Stop(context.Background())
	n := len(r.Calls())
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, n, len(r.Calls()), "no ticks after stop")

	for _, c := range r.Calls() {
		assert.Equal(t, "on", c.task)
	}
	assert.Positive(t, on.info().Fired)
	assert.False(t, s.Snapshot().Started)
}

func TestStopCancelsInFlightCall(t *testing.T) {
	t.Parallel()

	cancelled := make(chan error, 1)
	entered := make(chan struct{}, 1)
	r := &fakeRunner{block: func(ctx context.Context) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-ctx.Done()
		select {
		case cancelled <- ctx.Err():
		default:
		}
	}}
	s := newTestService(r)
	mustAdd(t, s, TaskSpec{Name: "t", Function: "closeDeposit", Period: 10 * time.Millisecond, Enabled: true})

	require.NoError(t, s.Start(context.Background()))
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
	s.Stop(context.Background())

	select {
	case err := <-cancelled:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight call not cancelled")
	}
}

func TestTaskLookup(t *testing.T) {
	t.Parallel()

	s := newTestService(&fakeRunner{})
	mustAdd(t, s, TaskSpec{Name: "b", Function: "f", Period: time.Second})
	mustAdd(t, s, TaskSpec{Name: "a", Function: "g", Period: time.Second, Enabled: true})

	got, ok := s.Task("a")
	require.True(t, ok)
	assert.True(t, got.Enabled())
	_, ok = s.Task("zzz")
	assert.False(t, ok)

	tasks := s.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "b", tasks[0].Name())

	info, ok := s.Info("a")
	require.True(t, ok)
	assert.Equal(t, "g", info.Function)
	assert.False(t, s.Snapshot().Started)
}
