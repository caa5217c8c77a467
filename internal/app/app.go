// Package app wires configuration, storage, the dedup cache, the provider
// client, the broadcaster, the tick pipeline and the scheduler into one
// process with hot config reload and ordered shutdown.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marketcast/internal/broadcast"
	"marketcast/internal/cache"
	"marketcast/internal/config"
	"marketcast/internal/content"
	"marketcast/internal/eventbus"
	"marketcast/internal/fetch"
	"marketcast/internal/llm"
	"marketcast/internal/pipeline"
	"marketcast/internal/platform"
	"marketcast/internal/platform/telegram"
	"marketcast/internal/platform/twitter"
	"marketcast/internal/runtime/supervisor"
	"marketcast/internal/scheduler"
	"marketcast/internal/storage"
	logx "marketcast/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	cache *cache.Cache

	fetcher *fetch.Fetcher
	bcast   *broadcast.Service
	runner  *pipeline.Runner
	sched   *scheduler.Service
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	dedup, err := cache.New(context.Background(), store, sc.Retention, log.With(logx.String("comp", "cache")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	llmCfg, llmTimeout, err := mapLLMConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	client, err := llm.NewClient(llmCfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	fetcher := fetch.New(client, llmTimeout, log.With(logx.String("comp", "fetch")))

	posters, err := buildPosters(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	opts, err := mapBroadcastOptions(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	bcast := broadcast.New(posters, opts, log.With(logx.String("comp", "broadcast")))

	tickTimeout, err := config.DurationOrDefault("pipeline.tick_timeout", cfg.Pipeline.TickTimeout, 5*time.Minute)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	runner := pipeline.NewRunner(fetcher, dedup, bcast, store, bus, tickTimeout, log.With(logx.String("comp", "pipeline")))

	sched := scheduler.New(scheduler.Config{
		Enabled:  cfg.Scheduler.Enabled,
		Timezone: cfg.Scheduler.Timezone,
	}, log.With(logx.String("comp", "scheduler")))

	jobs, err := buildJobs(cfg, runner, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	sched.ReplaceJobs(jobs)

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		cache:   dedup,
		fetcher: fetcher,
		bcast:   bcast,
		runner:  runner,
		sched:   sched,
	}, nil
}

// buildPosters returns the posting targets in broadcast order. Twitter is
// mandatory and always first; Telegram is optional.
func buildPosters(cfg *config.Config) ([]platform.Poster, error) {
	tc, err := mapTwitterConfig(cfg)
	if err != nil {
		return nil, err
	}
	tw, err := twitter.New(tc)
	if err != nil {
		return nil, err
	}
	posters := []platform.Poster{tw}

	tg, err := mapTelegramConfig(cfg)
	if err != nil {
		return nil, err
	}
	if tg != nil {
		tgc, err := telegram.New(*tg)
		if err != nil {
			return nil, err
		}
		posters = append(posters, tgc)
	}
	return posters, nil
}

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// RunOnce executes one tick for every sector and returns the first error.
// Used by the -once flag; the scheduler is bypassed entirely.
func (a *App) RunOnce(ctx context.Context) error {
	cfg := a.cfgm.Get()
	var firstErr error
	for _, sc := range cfg.Sectors {
		sector := content.Sector{Name: sc.Name, Question: sc.Prompt}
		if _, err := a.runner.Run(ctx, sector); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close releases resources held since New without requiring a prior Start.
// Used by the -once path; the journal and post log are flushed on store close.
func (a *App) Close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapBroadcastOptions(cfg); err != nil {
			return err
		}
		for _, sc := range cfg.Sectors {
			raw := strings.TrimSpace(sc.Schedule)
			if raw == "" {
				continue
			}
			if _, err := scheduler.NormalizeSpec(raw); err != nil {
				return fmt.Errorf("sector %s: %w", sc.Name, err)
			}
		}
		if def := strings.TrimSpace(cfg.Scheduler.DefaultSchedule); def != "" {
			if _, err := scheduler.NormalizeSpec(def); err != nil {
				return fmt.Errorf("scheduler.default_schedule: %w", err)
			}
		}
		return nil
	})

	if a.sched.Enabled() {
		a.sched.Start(a.sup.Context())
	} else {
		a.log.Warn("scheduler disabled; no ticks will run until enabled via config")
	}

	// Debug-level event mirror; components subscribe themselves when they
	// need more than visibility.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// Hot reload fanout.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts; only the latest config matters.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, newCfg)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		watchdogLoop(c, a.log)
	})

	notifyReady(a.log)
	a.log.Info("app started", logx.Int("sectors", len(a.cfgm.Get().Sectors)))
	return nil
}

// applyConfig applies a validated hot-reloaded config. Provider, platform and
// storage settings need a restart; everything the scheduler and logger own is
// applied live.
func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	a.logs.Apply(mapLoggingConfig(cfg))

	prevEnabled := a.sched.Enabled()
	a.sched.Apply(scheduler.Config{
		Enabled:  cfg.Scheduler.Enabled,
		Timezone: cfg.Scheduler.Timezone,
	})

	jobs, err := buildJobs(cfg, a.runner, a.log)
	if err != nil {
		a.log.Warn("invalid sector schedules; keeping previous jobs", logx.Err(err))
	} else {
		a.sched.ReplaceJobs(jobs)
	}

	switch {
	case prevEnabled && !cfg.Scheduler.Enabled:
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	case !prevEnabled && cfg.Scheduler.Enabled:
		a.log.Info("scheduler enabled via config")
		a.sched.Start(ctx)
	}

	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	notifyStopping(a.log)
	a.log.Info("stopping")

	a.sup.Cancel()

	// Bounded shutdown steps so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
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
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name))
		}
	}

	step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("storage", 2*time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
