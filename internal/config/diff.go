package config

import (
	"reflect"
	"sort"
	"strings"

	logx "winova/pkg/logx"
)

// SummarizeConfigChange returns a sorted list of changed sections and safe
// structured attrs for logging. Secrets (SMTP password, tokens, Mongo URI,
// Redis password) are only reported as set/unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 24)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.forward_enabled", newCfg.Logging.Forward.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", strings.TrimSpace(newCfg.HTTP.Addr)),
			logx.Int("http.origin_count", len(newCfg.HTTP.AllowedOrigins)),
			logx.Bool("http.pprof", newCfg.HTTP.Pprof),
			logx.Bool("http.pprof_token_set", newCfg.HTTP.PprofToken != ""),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.dispatch_timeout", strings.TrimSpace(newCfg.Scheduler.DispatchTimeout)),
		)
	}

	oTE := derefTaskEngine(oldCfg.TaskEngine)
	nTE := derefTaskEngine(newCfg.TaskEngine)
	if (oldCfg.TaskEngine != nil) != (newCfg.TaskEngine != nil) || !reflect.DeepEqual(oTE, nTE) {
		changed = append(changed, "task_engine")
		enabled := newCfg.Scheduler.Enabled
		if nTE.Enabled != nil {
			enabled = *nTE.Enabled
		}
		attrs = append(attrs,
			logx.Bool("task_engine.enabled", enabled),
			logx.Int("task_engine.workers", nTE.Workers),
			logx.Int("task_engine.queue_size", nTE.QueueSize),
			logx.String("task_engine.default_timeout", strings.TrimSpace(nTE.DefaultTimeout)),
		)
	}

	// nil notifier means defaults
	def := DefaultNotifier()
	oldN, newN := oldCfg.Notifier, newCfg.Notifier
	if oldN == nil {
		oldN = &def
	}
	if newN == nil {
		newN = &def
	}
	if !reflect.DeepEqual(*oldN, *newN) {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", newN.Enabled),
			logx.Int("notifier.workers", newN.Workers),
			logx.Int("notifier.rate_per_sec", newN.RatePerSec),
			logx.Int("notifier.retry_max", newN.RetryMax),
			logx.String("notifier.smtp_host", strings.TrimSpace(newN.SMTP.Host)),
			logx.Bool("notifier.smtp_auth_set", newN.SMTP.Password != ""),
			logx.Bool("notifier.telegram_set", strings.TrimSpace(newN.Telegram.Token) != ""),
		)
	}

	oldS, newS := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if oldS != newS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newS.Path) != ""),
			logx.Bool("storage.uri_set", strings.TrimSpace(newS.URI) != ""),
		)
	}

	oldE, newE := derefEvents(oldCfg.Events), derefEvents(newCfg.Events)
	if !reflect.DeepEqual(oldE, newE) {
		changed = append(changed, "events")
		attrs = append(attrs,
			logx.Bool("events.redis_enabled", newE.Redis.Enabled),
			logx.String("events.redis_channel", newE.Redis.Channel),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired reports sections whose changes only take effect after a
// restart (listeners, storage and sender credentials are bound at startup).
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "http", "storage", "events":
			out = append(out, s)
		}
	}
	return out
}

func derefTaskEngine(te *TaskEngineConfig) TaskEngineConfig {
	if te == nil {
		return TaskEngineConfig{}
	}
	return *te
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}

func derefEvents(e *EventsConfig) EventsConfig {
	if e == nil {
		return EventsConfig{}
	}
	return *e
}
