package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"winova/internal/api"
	"winova/internal/config"
	"winova/internal/notifier"
	"winova/internal/storage"
	"winova/internal/task/engine"
	"winova/internal/task/scheduler"
	logx "winova/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Forward: logx.ForwardConfig{
			Enabled:    cfg.Logging.Forward.Enabled && strings.TrimSpace(cfg.Logging.Forward.Address) != "",
			MinLevel:   cfg.Logging.Forward.MinLevel,
			RatePerSec: cfg.Logging.Forward.RatePerSec,
		},
	}
}

func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	enabled := cfg.Scheduler.Enabled
	workers, queueSize, historySize := 2, 256, 200
	var defTimeoutStr, maxQueueDelayStr string

	if te := cfg.TaskEngine; te != nil {
		if te.Enabled != nil {
			enabled = *te.Enabled
		}
		if te.Workers > 0 {
			workers = te.Workers
		}
		if te.QueueSize > 0 {
			queueSize = te.QueueSize
		}
		if te.HistorySize > 0 {
			historySize = te.HistorySize
		}
		defTimeoutStr = te.DefaultTimeout
		maxQueueDelayStr = te.MaxQueueDelay

		// due jobs would requeue forever
		if cfg.Scheduler.Enabled && te.Enabled != nil && !*te.Enabled {
			return engine.Config{}, errors.New("task_engine.enabled cannot be false while scheduler.enabled is true")
		}
	}

	defTimeout, err := config.ParseDurationField("task_engine.default_timeout", defTimeoutStr)
	if err != nil {
		return engine.Config{}, err
	}
	maxQueueDelay, err := config.ParseDurationField("task_engine.max_queue_delay", maxQueueDelayStr)
	if err != nil {
		return engine.Config{}, err
	}

	return engine.Config{
		Enabled:        enabled,
		Workers:        workers,
		QueueSize:      queueSize,
		DefaultTimeout: defTimeout,
		MaxQueueDelay:  maxQueueDelay,
		HistorySize:    historySize,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	requeue, err := config.ParseDurationOrDefault("scheduler.requeue_delay", cfg.Scheduler.RequeueDelay, time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	dispatch, err := config.ParseDurationField("scheduler.dispatch_timeout", cfg.Scheduler.DispatchTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:         cfg.Scheduler.Enabled,
		Timezone:        strings.TrimSpace(cfg.Scheduler.Timezone),
		RequeueDelay:    requeue,
		DispatchTimeout: dispatch,
	}, nil
}

func notifierSection(cfg *config.Config) config.NotifierConfig {
	if cfg.Notifier == nil {
		return config.DefaultNotifier()
	}
	return *cfg.Notifier
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := notifierSection(cfg)
	out := notifier.Config{
		Enabled:         n.Enabled,
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		DedupMaxEntries: n.DedupMaxEntries,
	}
	var err error
	if out.RetryBase, err = config.ParseDurationField("notifier.retry_base", n.RetryBase); err != nil {
		return notifier.Config{}, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay); err != nil {
		return notifier.Config{}, err
	}
	if out.SendTimeout, err = config.ParseDurationField("notifier.send_timeout", n.SendTimeout); err != nil {
		return notifier.Config{}, err
	}
	if out.DedupWindow, err = config.ParseDurationField("notifier.dedup_window", n.DedupWindow); err != nil {
		return notifier.Config{}, err
	}
	return out, nil
}

// defaultSMTPHost is used when only SMTP credentials are given.
const defaultSMTPHost = "smtp.gmail.com"

// configureSenders (re)binds the email and Telegram routes. A scheme whose
// credentials are missing is unrouted, so sends to it fail with ErrNoSender.
func configureSenders(r *notifier.Router, cfg *config.Config, log logx.Logger) error {
	n := notifierSection(cfg)

	host := strings.TrimSpace(n.SMTP.Host)
	if host == "" && strings.TrimSpace(n.SMTP.Username) != "" {
		host = defaultSMTPHost
	}
	if host == "" {
		r.Handle(notifier.SchemeEmail, nil)
		log.Info("smtp not configured; email notifications disabled")
	} else {
		s, err := notifier.NewSMTPSender(notifier.SMTPConfig{
			Host:     host,
			Port:     n.SMTP.Port,
			Username: n.SMTP.Username,
			Password: n.SMTP.Password,
			From:     n.SMTP.From,
		})
		if err != nil {
			return fmt.Errorf("notifier.smtp: %w", err)
		}
		r.Handle(notifier.SchemeEmail, s)
	}

	if strings.TrimSpace(n.Telegram.Token) == "" {
		r.Handle(notifier.SchemeTelegram, nil)
		return nil
	}
	timeout, err := config.ParseDurationOrDefault("notifier.telegram.timeout", n.Telegram.Timeout, 10*time.Second)
	if err != nil {
		return err
	}
	tg, err := notifier.NewTelegramSender(n.Telegram.Token, timeout)
	if err != nil {
		return fmt.Errorf("notifier.telegram: %w", err)
	}
	r.Handle(notifier.SchemeTelegram, tg)
	return nil
}

// mapStorageConfig returns the memory driver when the section is omitted.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	if sc == nil {
		return storage.Config{Driver: "memory"}, nil
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "none", "memory":
		return storage.Config{Driver: "memory"}, nil
	case "file":
		if path == "" {
			return storage.Config{}, errors.New("storage.path is required when storage.driver=file")
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, errors.New("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
	case "mongo", "mongodb":
		timeout, err := config.ParseDurationOrDefault("storage.timeout", sc.Timeout, 10*time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{
			Driver:   "mongo",
			URI:      strings.TrimSpace(sc.URI),
			Database: strings.TrimSpace(sc.Database),
			Timeout:  timeout,
		}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapServerConfig(cfg *config.Config) (api.ServerConfig, error) {
	h := cfg.HTTP
	out := api.ServerConfig{Enabled: h.Enabled, Addr: strings.TrimSpace(h.Addr)}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("http.read_timeout", h.ReadTimeout, 15*time.Second); err != nil {
		return api.ServerConfig{}, err
	}
	if out.WriteTimeout, err = config.ParseDurationOrDefault("http.write_timeout", h.WriteTimeout, 30*time.Second); err != nil {
		return api.ServerConfig{}, err
	}
	if out.ShutdownTimeout, err = config.ParseDurationOrDefault("http.shutdown_timeout", h.ShutdownTimeout, 10*time.Second); err != nil {
		return api.ServerConfig{}, err
	}
	return out, nil
}
