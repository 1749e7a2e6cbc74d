package app

import (
	"context"
	"strings"
	"time"

	"winova/internal/config"
	logx "winova/pkg/logx"
)

func (a *App) reloadLoop(c context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// coalesce bursts: keep only the latest config
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(c, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(c context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLogConfig(newCfg))
	if addr := strings.TrimSpace(newCfg.Logging.Forward.Address); addr != "" {
		a.logs.SetForward(a.notif.Forwarder(addr, forwardSubject))
	} else {
		a.logs.SetForward(nil)
	}

	// engine first on startup, scheduler first on shutdown
	prevSched := a.sched.Enabled()
	prevEng := a.engine.Enabled()

	engCfg, err := mapTaskEngineConfig(newCfg)
	if err != nil {
		a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
		engCfg.Enabled = prevEng
	} else {
		a.engine.Apply(c, engCfg)
	}
	schedCfg, err := mapSchedulerConfig(newCfg)
	if err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
		schedCfg.Enabled = prevSched
	} else {
		a.sched.Apply(schedCfg)
	}

	if prevSched && !schedCfg.Enabled {
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	}
	if prevEng && !engCfg.Enabled {
		a.log.Info("task engine disabled via config")
		stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
		a.engine.Stop(stopCtx)
		cancel()
	}
	if !prevEng && engCfg.Enabled {
		a.log.Info("task engine enabled via config")
		a.engine.Start(c)
	}
	if !prevSched && schedCfg.Enabled {
		a.log.Info("scheduler enabled via config")
		a.sched.Start(c)
	}

	prevNotif := a.notif.Enabled()
	ncfg, err := mapNotifierConfig(newCfg)
	if err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		if err := configureSenders(a.router, newCfg, a.log); err != nil {
			a.log.Warn("notifier senders not updated", logx.Err(err))
		}
		a.notif.Apply(ncfg)
		if prevNotif && !ncfg.Enabled {
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		} else if !prevNotif && ncfg.Enabled {
			a.log.Info("notifier enabled via config")
			a.notif.Start(c)
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
