package config

// Config is the on-disk configuration. JSON or YAML; unknown keys are
// rejected.
type Config struct {
	Logging   LoggingConfig        `json:"logging"`
	Telegram  TelegramConfig       `json:"telegram"`
	Node      NodeConfig           `json:"node"`
	Contract  ContractConfig       `json:"contract"`
	Scheduler SchedulerConfig      `json:"scheduler"`
	Jobs      map[string]JobConfig `json:"jobs"`
	Executor  ExecutorConfig       `json:"executor"`
	HTTP      HTTPConfig           `json:"http"`
	Storage   *StorageConfig       `json:"storage,omitempty"`
	Systemd   SystemdConfig        `json:"systemd"`
}

// NodeConfig selects the blockchain node.
//
// CallTimeout is a Go duration string. Omitted means 30s; "0s" leaves calls
// unbounded.
type NodeConfig struct {
	URL             string `json:"url"`
	CallTimeout     string `json:"call_timeout,omitempty"`
	ReuseConnection bool   `json:"reuse_connection,omitempty"`
}

// ContractConfig holds the caller account and the target contract, both as
// 0x-prefixed hex addresses.
type ContractConfig struct {
	OwnerAccount string `json:"owner_account"`
	Address      string `json:"address"`
}

type SchedulerConfig struct {
	Timezone    string `json:"timezone,omitempty"`
	StopTimeout string `json:"stop_timeout,omitempty"`
}

// JobConfig is one scheduled task. Period accepts a duration string ("1m")
// or a bare integer number of milliseconds.
type JobConfig struct {
	Enabled  bool   `json:"enabled"`
	Function string `json:"function"`
	Period   Period `json:"period"`
}

type ExecutorConfig struct {
	HistorySize int `json:"history_size,omitempty"`
}

// HTTPConfig controls the control API.
//
// Prefer a loopback Addr. When Token is set every route except /healthz
// requires it.
type HTTPConfig struct {
	Addr          string `json:"addr"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Metrics       *bool  `json:"metrics,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	WriteTimeout  string `json:"write_timeout,omitempty"`
	IdleTimeout   string `json:"idle_timeout,omitempty"`
}

// StorageConfig controls the audit/run log.
//
//	"storage": { "driver": "file", "path": "./data/chainjobs" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type SystemdConfig struct {
	Notify *bool `json:"notify,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token"`
	GroupLog string `json:"group_log"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// MetricsEnabled defaults to true.
func (h HTTPConfig) MetricsEnabled() bool { return h.Metrics == nil || *h.Metrics }

// NotifyEnabled defaults to true.
func (s SystemdConfig) NotifyEnabled() bool { return s.Notify == nil || *s.Notify }
