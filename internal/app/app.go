package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"opsnotify/internal/config"
	"opsnotify/internal/eventbus"
	"opsnotify/internal/ingest"
	"opsnotify/internal/metrics"
	"opsnotify/internal/notify"
	"opsnotify/internal/notify/channels"
	"opsnotify/internal/runtime/supervisor"
	"opsnotify/internal/schedule"
	"opsnotify/internal/server"
	"opsnotify/internal/storage"
	logx "opsnotify/pkg/logx"
	"opsnotify/pkg/systemd"
)

const openTimeout = 15 * time.Second

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store    storage.Store
	metrics  *metrics.Metrics
	disp     *notify.Dispatcher
	sched    *schedule.Service
	srv      *server.Server
	consumer *ingest.Consumer

	// seeded holds the channel ids last upserted from the config file, so
	// seeds dropped from the file are removed from the store on reload.
	seedMu sync.Mutex
	seeded map[string]struct{}
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	a := &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     eventbus.New(),
		metrics: metrics.New(),
		seeded:  map[string]struct{}{},
	}
	if err := a.build(cfg, log); err != nil {
		if a.store != nil {
			_ = a.store.Close()
		}
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, log logx.Logger) error {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()
	st, err := storage.Open(ctx, sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.store = st
	a.log.Info("storage ready", logx.String("driver", sc.Driver))

	tr, err := mapTransports(cfg)
	if err != nil {
		return err
	}
	reg := notify.NewRegistry()
	channels.Register(reg, tr)

	dcfg, err := mapDispatcherConfig(cfg)
	if err != nil {
		return err
	}
	composer, err := mapComposer(cfg)
	if err != nil {
		return err
	}
	a.disp = notify.NewDispatcher(dcfg, st, reg,
		notify.WithLogger(log.With(logx.String("comp", "dispatcher"))),
		notify.WithBus(a.bus),
		notify.WithObserver(a.metrics),
		notify.WithComposer(composer),
	)
	kinds := make([]string, 0, 4)
	for _, k := range reg.Kinds() {
		kinds = append(kinds, string(k))
	}
	a.log.Info("channels registered", logx.Strings("kinds", kinds))

	a.sched = schedule.New(a.disp, log.With(logx.String("comp", "schedule")))
	if err := a.sched.Apply(cfg.Instance.Timezone, mapSchedules(cfg)); err != nil {
		return err
	}

	if scfg, ok := mapServerConfig(cfg); ok {
		a.srv = server.New(scfg, server.Deps{
			Notifier: a.disp,
			Store:    st,
			Metrics:  a.metrics.Handler(),
			Health:   a.health,
			Ingested: a.metrics.Ingested,
			Log:      log.With(logx.String("comp", "server")),
		})
	}
	if kcfg, ok := mapKafkaConfig(cfg); ok {
		c, err := ingest.NewConsumer(kcfg, a.disp,
			ingest.WithLogger(log.With(logx.String("comp", "ingest"))),
			ingest.WithIngested(a.metrics.Ingested),
		)
		if err != nil {
			return err
		}
		a.consumer = c
	}
	return nil
}

// Notifier is the dispatch entry point used by every ingress.
func (a *App) Notifier() *notify.Dispatcher { return a.disp }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validate(cfg) })

	cfg := a.cfgm.Get()
	if err := a.applySeeds(a.sup.Context(), cfg); err != nil {
		return err
	}

	failures, unsub := a.bus.Subscribe(128, notify.EventTypeFailed)
	a.sup.Go0("notify.failures", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-failures:
				if !ok {
					return
				}
				if oe, ok := e.Data.(notify.OutcomeEvent); ok && oe.Outcome.Error != nil {
					a.log.Warn("channel delivery failed",
						logx.String("event_id", oe.EventID),
						logx.String("event", string(oe.EventKind)),
						logx.String("channel_id", oe.Outcome.ChannelID),
						logx.String("kind", string(oe.Outcome.Error.Kind)),
						logx.Int("status", oe.Outcome.Error.Status),
						logx.String("err", oe.Outcome.Error.Message),
					)
				}
			}
		}
	})

	a.sched.Start(a.sup.Context())

	if a.srv != nil {
		a.sup.GoRestart("http.server", a.srv.Serve, supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	}
	if a.consumer != nil {
		a.sup.GoRestart("kafka.ingest", a.consumer.Run,
			supervisor.WithRestartBackoff(time.Second, 30*time.Second),
		)
	}

	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		if err := systemd.Watchdog(c); err != nil {
			a.log.Warn("systemd watchdog stopped", logx.Err(err))
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.reload(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if cfg.NotifyOnStart {
		a.sup.Go0("notify.on_start", func(c context.Context) {
			ev := notify.NewEvent(notify.EventServerRestarted, time.Now(), nil)
			if _, err := a.disp.Notify(c, ev); err != nil {
				a.log.Warn("start notification not sent", logx.Err(err))
			}
		})
	}

	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd notified ready")
	}
	a.log.Info("app started")
	return nil
}

func (a *App) reload(c context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLogConfig(newCfg))

	if dcfg, err := mapDispatcherConfig(newCfg); err != nil {
		a.log.Warn("invalid dispatcher config; keeping previous", logx.Err(err))
	} else {
		a.disp.Apply(dcfg)
	}
	if composer, err := mapComposer(newCfg); err != nil {
		a.log.Warn("invalid instance config; keeping previous", logx.Err(err))
	} else {
		a.disp.SetComposer(composer)
	}

	if slices.Contains(sections, "channels") {
		if err := a.applySeeds(c, newCfg); err != nil {
			a.log.Warn("channel seeds not applied", logx.Err(err))
		}
	}
	if slices.Contains(sections, "schedules") || slices.Contains(sections, "instance") {
		if err := a.sched.Apply(newCfg.Instance.Timezone, mapSchedules(newCfg)); err != nil {
			a.log.Warn("invalid schedules; keeping previous", logx.Err(err))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// applySeeds upserts the configured channels and deletes the ones a previous
// version of the file seeded but the current one no longer lists.
func (a *App) applySeeds(ctx context.Context, cfg *config.Config) error {
	seeds, err := mapChannels(cfg)
	if err != nil {
		return err
	}
	a.seedMu.Lock()
	defer a.seedMu.Unlock()

	if err := storage.Seed(ctx, a.store, seeds); err != nil {
		return fmt.Errorf("seed channels: %w", err)
	}
	next := make(map[string]struct{}, len(seeds))
	for _, s := range seeds {
		next[s.ID] = struct{}{}
	}
	for id := range a.seeded {
		if _, ok := next[id]; ok {
			continue
		}
		if err := a.store.DeleteChannel(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("remove seeded channel %s: %w", id, err)
		}
		a.log.Info("seeded channel removed", logx.String("channel_id", id))
	}
	a.seeded = next
	if len(seeds) > 0 {
		a.log.Info("channels seeded", logx.Int("count", len(seeds)))
	}
	return nil
}

func (a *App) health() (bool, any) {
	detail := map[string]any{
		"schedules":   a.sched.Snapshot(),
		"bus_dropped": a.bus.Dropped(),
	}
	if a.sup == nil {
		return true, detail
	}
	snap := a.sup.Snapshot()
	detail["tasks"] = snap.Tasks
	if snap.FirstError != "" {
		detail["first_error"] = snap.FirstError
	}
	return a.sup.Err() == nil, detail
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Stopping()

	// Cancel first so the server, consumer and reload loops start unwinding.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		// respect the caller's deadline; never extend it
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
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
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("schedule", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	// server shutdown, ingest loop, config watch and reload all exit on cancel
	step("supervisor", 6*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("ingest", time.Second, func(context.Context) error {
		if a.consumer != nil {
			return a.consumer.Close()
		}
		return nil
	})
	step("storage", 2*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
