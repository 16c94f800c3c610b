// Package app wires chainjobs together. Components are built in a fixed
// order by New and torn down in reverse by Stop.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chainjobs/internal/chain/rpc"
	"chainjobs/internal/config"
	"chainjobs/internal/eventbus"
	"chainjobs/internal/job"
	"chainjobs/internal/metrics"
	"chainjobs/internal/runtime/sdnotify"
	"chainjobs/internal/runtime/supervisor"
	"chainjobs/internal/storage"
	"chainjobs/internal/task/scheduler"
	"chainjobs/internal/toggle"
	kit "chainjobs/internal/transport"
	"chainjobs/internal/transport/httpapi"
	"chainjobs/internal/transport/telegram"
	logx "chainjobs/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	rec     *storage.Recorder
	metrics *metrics.Metrics

	node    *rpc.Node
	exec    *job.Executor
	sched   *scheduler.Service
	toggles *toggle.Service
	http    *httpapi.Server
	sd      *sdnotify.Notifier
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// logging: bootstrap with the Telegram sink off, set the target, then
	// apply the final config so Apply never sees an enabled sink without a chat.
	var sender kit.Sender
	if tok := strings.TrimSpace(cfg.Telegram.Token); tok != "" {
		s, err := telegram.New(tok)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		sender = s
	}
	logCfg := mapLogging(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, root := logx.New(bootCfg, sender)
	setLogTarget(logSvc, cfg, root)
	logSvc.Apply(logCfg)
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root.With(logx.String("comp", "config")))

	bus := eventbus.New()

	var store storage.Store
	sc, enabled, err := mapStorage(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	if enabled {
		store, err = storage.Open(sc, root.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}
	rec := storage.NewRecorder(store, bus, root)

	m := metrics.New()

	nodeCfg, err := mapNode(cfg)
	if err != nil {
		closeQuiet(store, logSvc)
		return nil, err
	}
	node := rpc.New(nodeCfg, root.With(logx.String("comp", "rpc")))

	exec, err := job.New(job.Options{
		Client:      node,
		Logger:      root,
		Bus:         bus,
		Metrics:     m,
		HistorySize: cfg.Executor.HistorySize,
	})
	if err != nil {
		closeQuiet(store, logSvc)
		return nil, err
	}

	schedCfg, err := mapScheduler(cfg)
	if err != nil {
		closeQuiet(store, logSvc)
		return nil, err
	}
	sched := scheduler.New(schedCfg, exec, mapEndpoint(cfg), root.With(logx.String("comp", "scheduler")), m)
	for _, spec := range mapTasks(cfg) {
		if _, err := sched.Add(spec); err != nil {
			closeQuiet(store, logSvc)
			return nil, err
		}
	}
	for _, name := range missingLegacyJobs(cfg) {
		log.Warn("job not configured; legacy toggle routes unavailable",
			logx.String("job", name),
			logx.String("routes", "/start_"+name+", /stop_"+name))
	}

	toggles := toggle.New(sched, node, bus, m, root)

	httpCfg, err := mapHTTP(cfg)
	if err != nil {
		closeQuiet(store, logSvc)
		return nil, err
	}
	metricsHandler := m.Handler()
	if !cfg.HTTP.MetricsEnabled() {
		metricsHandler = nil
	}
	srv := httpapi.New(httpCfg, toggles, exec, metricsHandler, root)

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		rec:     rec,
		metrics: m,
		node:    node,
		exec:    exec,
		sched:   sched,
		toggles: toggles,
		http:    srv,
		sd:      sdnotify.New(cfg.Systemd.NotifyEnabled(), root.With(logx.String("comp", "systemd"))),
	}, nil
}

func setLogTarget(logs *logx.Service, cfg *config.Config, log logx.Logger) {
	raw := strings.TrimSpace(cfg.Telegram.GroupLog)
	if raw == "" {
		logs.SetTelegramTarget(0, 0)
		return
	}
	chatID, err := telegram.ParseChatID(raw)
	if err != nil {
		log.Warn("telegram.group_log ignored", logx.Err(err))
		return
	}
	logs.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
}

func closeQuiet(store storage.Store, logs *logx.Service) {
	if store != nil {
		_ = store.Close()
	}
	if logs != nil {
		_ = logs.Close()
	}
}

// Toggles exposes the toggle service, mainly for tests and embedding.
func (a *App) Toggles() *toggle.Service { return a.toggles }

// HTTPAddr is the bound control API address once Start has run.
func (a *App) HTTPAddr() string { return a.http.Addr() }

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	c := a.sup.Context()

	a.sup.Go("recorder", a.rec.Run)
	a.sup.Go("http", a.http.Serve)

	sub := a.cfgm.Subscribe(4)
	a.sup.Go("config.reload", func(ctx context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(ctx, sub)
		return nil
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch, time.Second, 30*time.Second)
	a.sup.Go("systemd.watchdog", func(ctx context.Context) error {
		if err := a.sd.Watchdog(ctx); err != nil {
			a.log.Warn("systemd watchdog disabled", logx.Err(err))
		}
		return nil
	})

	if err := a.sched.Start(c); err != nil {
		a.sup.Cancel()
		return err
	}

	a.sd.Ready()
	a.sd.Status(fmt.Sprintf("%d tasks scheduled", len(a.sched.Tasks())))
	a.log.Info("app started", logx.String("node", a.node.URL()), logx.Int("tasks", len(a.sched.Tasks())))
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			a.sd.Reloading()
			a.applyConfig(last, newCfg)
			last = newCfg
			a.sd.Ready()
		}
	}
}

// applyConfig applies the live part of newCfg (logging) and reports the
// rest as requiring a restart.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs, restart := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	setLogTarget(a.logs, newCfg, a.log)
	a.logs.Apply(mapLogging(newCfg))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	if restart {
		a.log.Warn("config changed outside logging; restart required for changes to take effect")
	}
	if a.bus != nil {
		a.bus.Publish(eventbus.Event{
			Type: eventbus.TypeConfigReloaded,
			Time: time.Now(),
			Data: eventbus.ConfigReloaded{Path: a.cfgm.Path(), Hash: fmt.Sprintf("%x", a.cfgm.Hash())},
		})
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		closeQuiet(a.store, a.logs)
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	// scheduler first so in-flight calls see their context canceled
	a.step(ctx, "scheduler", 0, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.sup.Cancel()
	a.step(ctx, "supervisor", 3*time.Second, a.sup.Wait)
	a.step(ctx, "rpc", time.Second, func(context.Context) error { a.node.Close(); return nil })
	a.step(ctx, "storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	err := a.sup.Err()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if n := a.bus.Dropped(); n > 0 {
		a.log.Warn("event bus dropped events", logx.Int("count", int(n)))
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
	return err
}

// step runs one shutdown step bounded by max and the caller's deadline.
// A step that overruns is logged and left behind.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx := ctx
	if max > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, max)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}
