package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"winova/internal/api"
	"winova/internal/config"
	"winova/internal/dispatch"
	"winova/internal/eventbus"
	"winova/internal/notifier"
	"winova/internal/planner"
	rtsup "winova/internal/runtime/supervisor"
	"winova/internal/storage"
	"winova/internal/task/engine"
	"winova/internal/task/scheduler"
	logx "winova/pkg/logx"
)

// forwardSubject is the subject line of forwarded log lines.
const forwardSubject = "winova log"

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Gateway
	redis *redis.Client

	engine  *engine.Service
	sched   *scheduler.Service
	router  *notifier.Router
	notif   *notifier.Service
	disp    *dispatch.Dispatcher
	planner *planner.Planner
	server  *api.Server
	fwd     *eventbus.RedisForwarder
}

// New loads the config and wires every component. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	appLog := log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	appLog.Info("storage ready", logx.String("driver", sc.Driver))

	router := notifier.NewRouter()
	if err := configureSenders(router, cfg, log.With(logx.String("comp", "notifier"))); err != nil {
		_ = store.Close()
		return nil, err
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	notif := notifier.New(ncfg, router, log.With(logx.String("comp", "notifier")), bus)
	if addr := strings.TrimSpace(cfg.Logging.Forward.Address); addr != "" {
		logSvc.SetForward(notif.Forwarder(addr, forwardSubject))
	}

	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	eng := engine.New(engCfg, log.With(logx.String("comp", "taskengine")), bus)

	disp := dispatch.New(store, notif, log.With(logx.String("comp", "dispatch")), bus)

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	disp.SetSendTimeout(schedCfg.DispatchTimeout)
	sched := scheduler.New(schedCfg, eng, disp.Handle, log.With(logx.String("comp", "scheduler")), bus)

	pl := planner.New(sched, disp, store, log.With(logx.String("comp", "planner")))

	var rdb *redis.Client
	var fwd *eventbus.RedisForwarder
	if ev := cfg.Events; ev != nil && ev.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     ev.Redis.Addr,
			Password: ev.Redis.Password,
			DB:       ev.Redis.DB,
		})
		fwd = eventbus.NewRedisForwarder(bus, rdb, ev.Redis.Channel, ev.Redis.Prefixes, log.With(logx.String("comp", "events")))
	}

	srvCfg, err := mapServerConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	handler := api.NewRouter(api.RouterConfig{
		Planner:        pl,
		Jobs:           sched,
		Store:          store,
		Redis:          rdb,
		Log:            log.With(logx.String("comp", "http")),
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Profiler:       cfg.HTTP.Pprof,
		ProfilerToken:  strings.TrimSpace(cfg.HTTP.PprofToken),
	})
	if cfg.HTTP.Pprof && strings.TrimSpace(cfg.HTTP.PprofToken) == "" {
		appLog.Warn("pprof mounted without token", logx.String("addr", srvCfg.Addr))
	}
	srv := api.NewServer(srvCfg, handler, log.With(logx.String("comp", "http")))

	return &App{
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		redis:   rdb,
		engine:  eng,
		sched:   sched,
		router:  router,
		notif:   notif,
		disp:    disp,
		planner: pl,
		server:  srv,
		fwd:     fwd,
	}, nil
}

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

// Start restores persisted schedules and starts the workers, the registry
// and the HTTP listener, in that order.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapTaskEngineConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		_, err := mapSchedulerConfig(cfg)
		return err
	})

	if a.notif.Enabled() {
		a.notif.Start(runCtx)
	}
	if a.engine.Enabled() {
		a.engine.Start(runCtx)
	}

	stats, err := a.planner.Restore(runCtx)
	if err != nil {
		return fmt.Errorf("restore schedules: %w", err)
	}
	a.log.Info("schedules restored",
		logx.Int("alerts", stats.Alerts),
		logx.Int("reports", stats.Reports),
		logx.Int("skipped", stats.Skipped),
	)

	if a.sched.Enabled() {
		a.sched.Start(runCtx)
	}

	if err := a.server.Start(runCtx); err != nil {
		return fmt.Errorf("http: %w", err)
	}

	if a.fwd != nil {
		a.sup.GoRestart("events.redis", a.fwd.Run, rtsup.WithRestartBackoff(time.Second, 30*time.Second))
	}

	if a.bus != nil {
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
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch, rtsup.WithRestartBackoff(250*time.Millisecond, 5*time.Second))

	a.log.Info("app started")
	return nil
}

// Stop shuts components down in reverse start order, bounding each step.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// cancel the run context first so background loops start unwinding
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			if max <= 0 {
				a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
				return
			}
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
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("http", 5*time.Second, func(c context.Context) error { return a.server.Stop(c) })
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 5*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("redis", time.Second, func(context.Context) error {
		if a.redis != nil {
			return a.redis.Close()
		}
		return nil
	})
	step("storage", 2*time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.SetForward(nil)
		_ = a.logs.Close()
	}
	return nil
}
