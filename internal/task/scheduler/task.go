package scheduler

import (
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Task is one registered scheduled task. Its enabled flag is the only
// mutable piece and is safe for concurrent use.
type Task struct {
	name     string
	function string
	period   time.Duration

	enabled atomic.Bool
	running atomic.Bool

	fired      atomic.Uint64
	disabled   atomic.Uint64
	overlapped atomic.Uint64
	lastTick   atomic.Int64

	entryID cron.EntryID // guarded by Service.mu
}

func (t *Task) Name() string          { return t.name }
func (t *Task) Function() string      { return t.function }
func (t *Task) Period() time.Duration { return t.period }
func (t *Task) Enabled() bool         { return t.enabled.Load() }
func (t *Task) Running() bool         { return t.running.Load() }

// SetEnabled stores the flag and returns the previous value. The write is
// visible to the next tick.
func (t *Task) SetEnabled(on bool) (prev bool) {
	return t.enabled.Swap(on)
}

func (t *Task) info() TaskInfo {
	ti := TaskInfo{
		Name:       t.name,
		Function:   t.function,
		Period:     t.period,
		Enabled:    t.enabled.Load(),
		Running:    t.running.Load(),
		Fired:      t.fired.Load(),
		Disabled:   t.disabled.Load(),
		Overlapped: t.overlapped.Load(),
	}
	if ns := t.lastTick.Load(); ns != 0 {
		ti.LastTick = time.Unix(0, ns)
	}
	return ti
}
