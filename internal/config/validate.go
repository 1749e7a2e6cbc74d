package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks values that would otherwise only fail when a component
// starts. It is used both at load time and as the Watch validator.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	check := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if cfg.Logging.Forward.Enabled && strings.TrimSpace(cfg.Logging.Forward.Address) == "" {
		errs = append(errs, errors.New("logging.forward.address is required when forwarding is enabled"))
	}

	check("http.read_timeout", cfg.HTTP.ReadTimeout)
	check("http.write_timeout", cfg.HTTP.WriteTimeout)
	check("http.shutdown_timeout", cfg.HTTP.ShutdownTimeout)

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	check("scheduler.requeue_delay", cfg.Scheduler.RequeueDelay)
	check("scheduler.dispatch_timeout", cfg.Scheduler.DispatchTimeout)

	if te := cfg.TaskEngine; te != nil {
		if te.Workers < 0 || te.QueueSize < 0 || te.HistorySize < 0 {
			errs = append(errs, errors.New("task_engine: sizes must be >= 0"))
		}
		check("task_engine.default_timeout", te.DefaultTimeout)
		check("task_engine.max_queue_delay", te.MaxQueueDelay)
	}

	if n := cfg.Notifier; n != nil {
		if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 {
			errs = append(errs, errors.New("notifier: counts must be >= 0"))
		}
		check("notifier.retry_base", n.RetryBase)
		check("notifier.retry_max_delay", n.RetryMaxDelay)
		check("notifier.send_timeout", n.SendTimeout)
		check("notifier.dedup_window", n.DedupWindow)
		check("notifier.telegram.timeout", n.Telegram.Timeout)
		if n.SMTP.Port < 0 || n.SMTP.Port > 65535 {
			errs = append(errs, fmt.Errorf("notifier.smtp.port: out of range: %d", n.SMTP.Port))
		}
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "memory":
		case "file":
			if strings.TrimSpace(s.Path) == "" {
				errs = append(errs, errors.New("storage.path is required when storage.driver=file"))
			}
		case "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				errs = append(errs, errors.New("storage.path is required when storage.driver=sqlite"))
			}
			check("storage.busy_timeout", s.BusyTimeout)
		case "mongo", "mongodb":
			if strings.TrimSpace(s.URI) == "" {
				errs = append(errs, errors.New("storage.uri (or MONGODB_URL) is required when storage.driver=mongo"))
			}
			check("storage.timeout", s.Timeout)
		default:
			errs = append(errs, fmt.Errorf("unknown storage.driver: %s", s.Driver))
		}
	}

	if e := cfg.Events; e != nil && e.Redis.Enabled && strings.TrimSpace(e.Redis.Addr) == "" {
		errs = append(errs, errors.New("events.redis.addr is required when redis forwarding is enabled"))
	}

	return errors.Join(errs...)
}

// ParseDurationField parses an optional Go duration at a config path. Empty
// means 0; negative values are rejected.
func ParseDurationField(path, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %w", path, err)
	case d < 0:
		return 0, fmt.Errorf("%s: negative duration %s", path, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for an empty or zero value.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err == nil && d == 0 {
		d = def
	}
	return d, err
}
