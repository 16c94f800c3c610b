package storage

import (
	"errors"
	"time"
)

// ErrClosed is returned by appends after Close.
var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines files next to Path
//   - "sqlite": SQLite database file (build tag sqlite)
//
// An empty Driver or "none" disables storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records an operator action such as enabling a task.
type AuditEntry struct {
	At     time.Time `json:"at"`
	Actor  string    `json:"actor,omitempty"`
	Action string    `json:"action"`
	Target string    `json:"target"`
	Error  string    `json:"error,omitempty"`
}

// RunEntry records one finished contract call.
type RunEntry struct {
	At       time.Time `json:"at"`
	RunID    string    `json:"run_id"`
	Task     string    `json:"task"`
	Function string    `json:"function"`
	OK       bool      `json:"ok"`
	TookMS   int64     `json:"took_ms"`
	Output   string    `json:"output,omitempty"`
	Error    string    `json:"error,omitempty"`
}
