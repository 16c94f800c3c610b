// Package toggle is the control surface over scheduled tasks: enable or
// disable a task's flag and check node connectivity.
package toggle

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"chainjobs/internal/chain/rpc"
	"chainjobs/internal/eventbus"
	"chainjobs/internal/metrics"
	"chainjobs/internal/task/scheduler"
	logx "chainjobs/pkg/logx"
)

var ErrUnknownTask = errors.New("unknown task")

// connectivityTimeout bounds the shared ClientVersion round trip independently of
// any caller, so node.call_timeout of 0 cannot leave it hanging.
const connectivityTimeout = rpc.DefaultCallTimeout

// Registry is the task lookup the toggle service needs.
// scheduler.Service satisfies it.
type Registry interface {
	Task(name string) (*scheduler.Task, bool)
	Snapshot() scheduler.Snapshot
}

type Service struct {
	tasks  Registry
	client rpc.Client
	bus    eventbus.Bus
	m      *metrics.Metrics
	log    logx.Logger

	inflight singleflight.Group
}

func New(tasks Registry, client rpc.Client, bus eventbus.Bus, m *metrics.Metrics, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		tasks:  tasks,
		client: client,
		bus:    bus,
		m:      m,
		log:    log.With(logx.String("comp", "toggle")),
	}
}

// Enable sets the task's flag. Repeating it is harmless.
func (s *Service) Enable(ctx context.Context, name string) error {
	return s.set(ctx, name, true)
}

// Disable clears the task's flag. A tick already running is not interrupted.
func (s *Service) Disable(ctx context.Context, name string) error {
	return s.set(ctx, name, false)
}

func (s *Service) set(ctx context.Context, name string, on bool) error {
	t, ok := s.tasks.Task(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	prev := t.SetEnabled(on)
	actor := ActorFromContext(ctx)

	s.m.ObserveToggle(t.Name(), on)
	s.log.Info("task toggled",
		logx.String("task", t.Name()),
		logx.Bool("enabled", on),
		logx.Bool("changed", prev != on),
		logx.String("actor", actor),
	)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.TypeTaskToggled,
			Data: eventbus.TaskToggled{Task: t.Name(), Enabled: on, Actor: actor},
		})
	}
	return nil
}

// CheckConnectivity returns the node's client version. Concurrent checks
// share one round trip, which is detached from every caller's
// cancellation. Failures are *rpc.ConnectivityError.
func (s *Service) CheckConnectivity(ctx context.Context) (string, error) {
	ch := s.inflight.DoChan("client_version", func() (any, error) {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), connectivityTimeout)
		defer cancel()
		return s.client.ClientVersion(pctx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			s.log.Warn("connectivity check failed", logx.Err(res.Err))
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Tasks lists the current state of every task.
func (s *Service) Tasks() []scheduler.TaskInfo {
	return s.tasks.Snapshot().Tasks
}

type actorKey struct{}

// WithActor tags ctx with who requested a toggle (used in the audit log).
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	a, _ := ctx.Value(actorKey{}).(string)
	return a
}
