package config

import (
	"strconv"
	"strings"
)

// Environment variables that override file values. Secrets normally live
// only in the environment (or a .env file loaded at startup).
const (
	EnvSMTPHost      = "SMTP_HOST"
	EnvSMTPPort      = "SMTP_PORT"
	EnvSMTPUser      = "SMTP_USER"
	EnvSMTPPass      = "SMTP_PASS"
	EnvMongoURL      = "MONGODB_URL"
	EnvDatabaseName  = "DATABASE_NAME"
	EnvTelegramToken = "TELEGRAM_TOKEN"
	EnvRedisPassword = "REDIS_PASSWORD"
)

// ApplyEnv copies non-empty environment values into cfg. Sections that an
// override needs are created on demand, except storage and events: a
// MONGODB_URL alone does not switch the storage driver.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if cfg == nil || getenv == nil {
		return
	}
	get := func(k string) string { return strings.TrimSpace(getenv(k)) }

	smtpHost, smtpPort := get(EnvSMTPHost), get(EnvSMTPPort)
	smtpUser, smtpPass := get(EnvSMTPUser), get(EnvSMTPPass)
	tgToken := get(EnvTelegramToken)
	if smtpHost != "" || smtpPort != "" || smtpUser != "" || smtpPass != "" || tgToken != "" {
		if cfg.Notifier == nil {
			n := DefaultNotifier()
			cfg.Notifier = &n
		}
		if smtpHost != "" {
			cfg.Notifier.SMTP.Host = smtpHost
		}
		if p, err := strconv.Atoi(smtpPort); err == nil && p > 0 {
			cfg.Notifier.SMTP.Port = p
		}
		if smtpUser != "" {
			cfg.Notifier.SMTP.Username = smtpUser
		}
		if smtpPass != "" {
			cfg.Notifier.SMTP.Password = smtpPass
		}
		if tgToken != "" {
			cfg.Notifier.Telegram.Token = tgToken
		}
	}

	if cfg.Storage != nil {
		if v := get(EnvMongoURL); v != "" {
			cfg.Storage.URI = v
		}
		if v := get(EnvDatabaseName); v != "" {
			cfg.Storage.Database = v
		}
	}

	if cfg.Events != nil {
		if v := get(EnvRedisPassword); v != "" {
			cfg.Events.Redis.Password = v
		}
	}
}

// DefaultNotifier is what an omitted notifier section means.
func DefaultNotifier() NotifierConfig {
	return NotifierConfig{
		Enabled:         true,
		Workers:         2,
		QueueSize:       512,
		RatePerSec:      3,
		RetryMax:        3,
		RetryBase:       "500ms",
		RetryMaxDelay:   "10s",
		SendTimeout:     "15s",
		DedupWindow:     "1m",
		DedupMaxEntries: 2000,
	}
}
