package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"chainjobs/internal/chain/encoder"
	"chainjobs/internal/job"
	"chainjobs/internal/metrics"
	logx "chainjobs/pkg/logx"
)

var (
	ErrDuplicateTask = errors.New("scheduler: duplicate task name")
	ErrStarted       = errors.New("scheduler: already started")
)

func New(cfg Config, runner Runner, ep job.Endpoint, log logx.Logger, m *metrics.Metrics) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	return &Service{
		cfg:    cfg,
		log:    log,
		runner: runner,
		ep:     ep,
		m:      m,
		byName: map[string]*Task{},
	}
}

// Add registers a task. Tasks added after Start begin ticking one period
// after registration.
func (s *Service) Add(spec TaskSpec) (*Task, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, errors.New("scheduler: task name required")
	}
	if spec.Period <= 0 {
		return nil, fmt.Errorf("scheduler: task %q: period must be positive", name)
	}
	if err := encoder.Validate(spec.Function); err != nil {
		return nil, fmt.Errorf("scheduler: task %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTask, name)
	}
	t := &Task{name: name, function: spec.Function, period: spec.Period}
	t.enabled.Store(spec.Enabled)
	s.tasks = append(s.tasks, t)
	s.byName[name] = t
	s.m.SetTaskEnabled(name, spec.Enabled)

	if s.c != nil {
		s.registerLocked(t, time.Now())
	}
	s.log.Debug("task registered",
		logx.String("task", name),
		logx.String("function", spec.Function),
		logx.Duration("period", spec.Period),
		logx.Bool("enabled", spec.Enabled),
	)
	return t, nil
}

func (s *Service) Task(name string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byName[strings.TrimSpace(name)]
	return t, ok
}

// Tasks returns registered tasks in registration order.
func (s *Service) Tasks() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Task(nil), s.tasks...)
}

// Start begins ticking. ctx is the parent of every call context; Stop
// cancels it.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return ErrStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.loc = s.loadLocationLocked()

	cl := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	now := time.Now()
	for _, t := range s.tasks {
		s.registerLocked(t, now)
	}
	s.c.Start()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("tasks", len(s.tasks)))
	return nil
}

// Stop halts ticking, cancels in-flight calls and waits for running ticks
// until ctx or the configured stop timeout expires.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.cancel = nil
	for _, t := range s.tasks {
		t.entryID = 0
	}
	s.mu.Unlock()
	if c == nil {
		return
	}
	s.log.Info("stop requested")

	done := c.Stop().Done()
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	timer := time.NewTimer(s.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("stop deadline reached with ticks still running")
	case <-timer.C:
		s.log.Warn("stop timeout reached with ticks still running", logx.Duration("timeout", s.cfg.StopTimeout))
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) registerLocked(t *Task, now time.Time) {
	t.entryID = s.c.Schedule(fixedRate{start: now, period: t.period}, cron.FuncJob(func() { s.tick(t) }))
}

// tick is the body of every firing.
func (s *Service) tick(t *Task) {
	t.lastTick.Store(time.Now().UnixNano())

	if !t.enabled.Load() {
		t.disabled.Add(1)
		s.m.ObserveTick(t.name, metrics.TickDisabled)
		return
	}
	if !t.running.CompareAndSwap(false, true) {
		t.overlapped.Add(1)
		s.m.ObserveTick(t.name, metrics.TickOverlap)
		s.log.Warn("tick skipped, previous run still in progress", logx.String("task", t.name))
		return
	}
	defer t.running.Store(false)

	t.fired.Add(1)
	s.m.ObserveTick(t.name, metrics.TickFired)
	s.runner.Execute(s.runContext(), t.name, t.function, s.ep)
}

func (s *Service) runContext() context.Context {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// cronLogger routes robfig/cron's own messages into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	// cron logs every wake/run at info; that is debug noise here.
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
