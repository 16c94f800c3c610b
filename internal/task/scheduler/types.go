package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"chainjobs/internal/job"
	"chainjobs/internal/metrics"
	logx "chainjobs/pkg/logx"
)

const DefaultStopTimeout = 5 * time.Second

type Config struct {
	Timezone    string // IANA TZ used for reported times, e.g. "Europe/Berlin"
	StopTimeout time.Duration
}

// Runner executes one contract function call. job.Executor satisfies it.
type Runner interface {
	Execute(ctx context.Context, task, functionName string, ep job.Endpoint)
}

// TaskSpec describes a task to register.
type TaskSpec struct {
	Name     string
	Function string
	Period   time.Duration
	Enabled  bool
}

type Service struct {
	mu sync.Mutex

	cfg    Config
	log    logx.Logger
	runner Runner
	ep     job.Endpoint
	m      *metrics.Metrics

	loc    *time.Location
	c      *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	tasks  []*Task
	byName map[string]*Task
}

type TaskInfo struct {
	Name       string        `json:"name"`
	Function   string        `json:"function"`
	Period     time.Duration `json:"period"`
	Enabled    bool          `json:"enabled"`
	Running    bool          `json:"running"`
	LastTick   time.Time     `json:"last_tick,omitzero"`
	NextTick   time.Time     `json:"next_tick,omitzero"`
	Fired      uint64        `json:"fired"`
	Disabled   uint64        `json:"disabled"`
	Overlapped uint64        `json:"overlapped"`
}

type Snapshot struct {
	Started  bool       `json:"started"`
	Timezone string     `json:"timezone"`
	Tasks    []TaskInfo `json:"tasks"`
}
