package eventbus

import "time"

const (
	TypeTaskToggled    = "task.toggled"
	TypeJobResult      = "job.result"
	TypeConfigReloaded = "config.reloaded"
)

type TaskToggled struct {
	Task    string `json:"task"`
	Enabled bool   `json:"enabled"`
	Actor   string `json:"actor,omitempty"`
}

type JobResult struct {
	RunID    string        `json:"run_id"`
	Task     string        `json:"task"`
	Function string        `json:"function"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Output   string        `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type ConfigReloaded struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}
