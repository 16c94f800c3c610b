package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-multierror"

	"chainjobs/internal/chain/encoder"
	logx "chainjobs/pkg/logx"
)

var reJobName = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Validate reports every problem in cfg at once.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	var errs *multierror.Error
	add := func(err error) {
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	addf := func(format string, args ...any) {
		errs = multierror.Append(errs, fmt.Errorf(format, args...))
	}

	// logging
	if lv := strings.TrimSpace(c.Logging.Level); lv != "" && !logx.ValidLevel(lv) {
		addf("logging.level: unknown level %q", lv)
	}
	if lv := strings.TrimSpace(c.Logging.Telegram.MinLevel); lv != "" && !logx.ValidLevel(lv) {
		addf("logging.telegram.min_level: unknown level %q", lv)
	}
	if c.Logging.Telegram.Enabled && strings.TrimSpace(c.Telegram.Token) == "" {
		addf("logging.telegram.enabled requires telegram.token")
	}

	// node
	add(validateNodeURL(c.Node.URL))
	_, err := ParseDurationOmitted("node.call_timeout", c.Node.CallTimeout, 0)
	add(err)

	// contract
	if !common.IsHexAddress(strings.TrimSpace(c.Contract.OwnerAccount)) {
		addf("contract.owner_account: %q is not a hex address", c.Contract.OwnerAccount)
	}
	if !common.IsHexAddress(strings.TrimSpace(c.Contract.Address)) {
		addf("contract.address: %q is not a hex address", c.Contract.Address)
	}

	// scheduler
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			addf("scheduler.timezone: %v", err)
		}
	}
	_, err = ParseDurationField("scheduler.stop_timeout", c.Scheduler.StopTimeout)
	add(err)

	// jobs
	if len(c.Jobs) == 0 {
		addf("jobs: at least one job is required")
	}
	for _, name := range c.JobNames() {
		j := c.Jobs[name]
		if !reJobName.MatchString(name) {
			addf("jobs.%s: name may only contain letters, digits, '_', '.', '-'", name)
		}
		if err := encoder.Validate(j.Function); err != nil {
			addf("jobs.%s.function: %v", name, err)
		}
		if j.Period.Duration() <= 0 {
			addf("jobs.%s.period: must be positive", name)
		}
	}

	if c.Executor.HistorySize < 0 {
		addf("executor.history_size: must be >= 0")
	}

	// http
	for _, f := range []struct{ path, raw string }{
		{"http.read_timeout", c.HTTP.ReadTimeout},
		{"http.write_timeout", c.HTTP.WriteTimeout},
		{"http.idle_timeout", c.HTTP.IdleTimeout},
	} {
		_, err := ParseDurationField(f.path, f.raw)
		add(err)
	}

	// storage
	if c.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "none", "file":
		case "sqlite", "sqlite3":
			if strings.TrimSpace(c.Storage.Path) == "" {
				addf("storage.path is required when storage.driver=sqlite")
			}
			_, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
			add(err)
		default:
			addf("storage.driver: unknown driver %q", c.Storage.Driver)
		}
	}

	return errs.ErrorOrNil()
}

// JobNames returns job names in sorted order.
func (c *Config) JobNames() []string {
	names := make([]string, 0, len(c.Jobs))
	for n := range c.Jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func validateNodeURL(raw string) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return fmt.Errorf("node.url is required")
	}
	if strings.HasSuffix(s, ".ipc") || filepath.IsAbs(s) {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("node.url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("node.url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("node.url: host is required")
	}
	return nil
}
