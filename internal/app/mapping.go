package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"chainjobs/internal/chain/rpc"
	"chainjobs/internal/config"
	"chainjobs/internal/job"
	"chainjobs/internal/storage"
	"chainjobs/internal/task/scheduler"
	"chainjobs/internal/transport/httpapi"
	logx "chainjobs/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapNode(cfg *config.Config) (rpc.Config, error) {
	timeout, err := config.ParseDurationOmitted("node.call_timeout", cfg.Node.CallTimeout, rpc.DefaultCallTimeout)
	if err != nil {
		return rpc.Config{}, err
	}
	return rpc.Config{
		URL:             strings.TrimSpace(cfg.Node.URL),
		CallTimeout:     timeout,
		ReuseConnection: cfg.Node.ReuseConnection,
	}, nil
}

func mapEndpoint(cfg *config.Config) job.Endpoint {
	return job.Endpoint{
		Owner:    common.HexToAddress(strings.TrimSpace(cfg.Contract.OwnerAccount)),
		Contract: common.HexToAddress(strings.TrimSpace(cfg.Contract.Address)),
	}
}

func mapScheduler(cfg *config.Config) (scheduler.Config, error) {
	stop, err := config.ParseDurationOrDefault("scheduler.stop_timeout", cfg.Scheduler.StopTimeout, scheduler.DefaultStopTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Timezone:    strings.TrimSpace(cfg.Scheduler.Timezone),
		StopTimeout: stop,
	}, nil
}

// mapTasks returns one spec per configured job, sorted by name.
func mapTasks(cfg *config.Config) []scheduler.TaskSpec {
	names := cfg.JobNames()
	out := make([]scheduler.TaskSpec, 0, len(names))
	for _, name := range names {
		j := cfg.Jobs[name]
		out = append(out, scheduler.TaskSpec{
			Name:     name,
			Function: strings.TrimSpace(j.Function),
			Period:   j.Period.Duration(),
			Enabled:  j.Enabled,
		})
	}
	return out
}

// legacyJobs are the job names existing deployments address through
// /start_<name> and /stop_<name>.
var legacyJobs = []string{"closing_deposits", "check_credits"}

// missingLegacyJobs lists the legacy job names absent from cfg.Jobs.
func missingLegacyJobs(cfg *config.Config) []string {
	var out []string
	for _, name := range legacyJobs {
		if _, ok := cfg.Jobs[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

func mapHTTP(cfg *config.Config) (httpapi.Config, error) {
	h := cfg.HTTP
	read, err := config.ParseDurationOrDefault("http.read_timeout", h.ReadTimeout, 10*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("http.write_timeout", h.WriteTimeout, 30*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("http.idle_timeout", h.IdleTimeout, 60*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	return httpapi.Config{
		Addr:          strings.TrimSpace(h.Addr),
		Token:         strings.TrimSpace(h.Token),
		AllowInsecure: h.AllowInsecure,
		Pprof:         h.Pprof,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}

// mapStorage reports enabled=false when storage is omitted or "none".
func mapStorage(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "none":
		return storage.Config{}, false, nil
	case "file":
		if path == "" {
			path = "./data/chainjobs"
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}
