package storage

import (
	"context"
	"time"

	"chainjobs/internal/eventbus"
	logx "chainjobs/pkg/logx"
)

const writeTimeout = 2 * time.Second

// Recorder appends bus events to a Store. It subscribes on construction so
// no event published after NewRecorder returns is missed.
type Recorder struct {
	store Store
	log   logx.Logger

	ch    <-chan eventbus.Event
	unsub func()
}

func NewRecorder(store Store, bus eventbus.Bus, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Recorder{store: store, log: log.With(logx.String("comp", "recorder"))}
	if store != nil && bus != nil {
		r.ch, r.unsub = bus.Subscribe(eventbus.DefaultBuffer)
	}
	return r
}

// Run consumes events until ctx ends, then writes whatever is already
// buffered. Write failures are logged and the event is dropped.
func (r *Recorder) Run(ctx context.Context) error {
	if r.ch == nil {
		<-ctx.Done()
		return nil
	}
	defer r.unsub()
	for {
		select {
		case <-ctx.Done():
			r.drain(ctx)
			return nil
		case ev, ok := <-r.ch:
			if !ok {
				return nil
			}
			r.handle(ctx, ev)
		}
	}
}

func (r *Recorder) drain(ctx context.Context) {
	for {
		select {
		case ev, ok := <-r.ch:
			if !ok {
				return
			}
			r.handle(ctx, ev)
		default:
			return
		}
	}
}

func (r *Recorder) handle(ctx context.Context, ev eventbus.Event) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	var err error
	switch d := ev.Data.(type) {
	case eventbus.TaskToggled:
		action := "task.disable"
		if d.Enabled {
			action = "task.enable"
		}
		err = r.store.AppendAudit(wctx, AuditEntry{At: ev.Time, Actor: d.Actor, Action: action, Target: d.Task})
	case eventbus.JobResult:
		err = r.store.AppendRun(wctx, RunEntry{
			At:       d.Started,
			RunID:    d.RunID,
			Task:     d.Task,
			Function: d.Function,
			OK:       d.Error == "",
			TookMS:   d.Duration.Milliseconds(),
			Output:   d.Output,
			Error:    d.Error,
		})
	default:
		return
	}
	if err != nil {
		r.log.Warn("record failed", logx.String("type", ev.Type), logx.Err(err))
	}
}
