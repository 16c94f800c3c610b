package config

import (
	"reflect"
	"strings"

	logx "chainjobs/pkg/logx"
)

// SummarizeChange lists the sections that differ between two configs and
// safe fields for logging them (tokens are never included). Only logging
// applies live; restart reports whether anything else changed.
func SummarizeChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field, restart bool) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}
	if strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) ||
		oldCfg.Telegram.Token != newCfg.Telegram.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs, logx.Bool("telegram.token_set", newCfg.Telegram.Token != ""))
		restart = true
	}
	if oldCfg.Node != newCfg.Node {
		changed = append(changed, "node")
		attrs = append(attrs, logx.String("node.url", newCfg.Node.URL))
		restart = true
	}
	if oldCfg.Contract != newCfg.Contract {
		changed = append(changed, "contract")
		restart = true
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		restart = true
	}
	if !reflect.DeepEqual(oldCfg.Jobs, newCfg.Jobs) {
		changed = append(changed, "jobs")
		attrs = append(attrs, logx.Int("jobs.count", len(newCfg.Jobs)))
		restart = true
	}
	if oldCfg.Executor != newCfg.Executor {
		changed = append(changed, "executor")
		restart = true
	}
	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		changed = append(changed, "http")
		attrs = append(attrs, logx.String("http.addr", newCfg.HTTP.Addr), logx.Bool("http.token_set", newCfg.HTTP.Token != ""))
		restart = true
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		restart = true
	}
	if !reflect.DeepEqual(oldCfg.Systemd, newCfg.Systemd) {
		changed = append(changed, "systemd")
		restart = true
	}
	return changed, attrs, restart
}
