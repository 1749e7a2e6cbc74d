package config

type Config struct {
	Logging LoggingConfig `json:"logging"`
	HTTP    HTTPConfig    `json:"http"`

	// Scheduler controls the job registry (trigger timing, timezone).
	Scheduler SchedulerConfig `json:"scheduler"`

	// TaskEngine controls the worker pool dispatches run on.
	// If omitted, it follows scheduler.enabled with built-in defaults.
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
	Events   *EventsConfig   `json:"events,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Forward LoggingForward `json:"forward"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingForward mirrors warnings and errors to an operator address through
// the notifier ("ops@example.com" or "telegram:<chat_id>").
type LoggingForward struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// HTTPConfig controls the REST API listener.
//
// Durations are Go duration strings. Defaults: addr ":8000",
// read_timeout "15s", write_timeout "30s", shutdown_timeout "10s".
type HTTPConfig struct {
	Enabled         bool     `json:"enabled"`
	Addr            string   `json:"addr,omitempty"`
	ReadTimeout     string   `json:"read_timeout,omitempty"`
	WriteTimeout    string   `json:"write_timeout,omitempty"`
	ShutdownTimeout string   `json:"shutdown_timeout,omitempty"`
	AllowedOrigins  []string `json:"allowed_origins,omitempty"`

	// Pprof mounts the runtime profiler under /debug/pprof on the same
	// listener. Set pprof_token unless the listener is loopback-only.
	Pprof      bool   `json:"pprof,omitempty"`
	PprofToken string `json:"pprof_token,omitempty"` // do not log
}

// SchedulerConfig controls the job registry.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// Timezone report cron expressions are evaluated in. Empty means UTC.
	Timezone string `json:"timezone,omitempty"`

	// RequeueDelay is how long a due job waits when the engine queue is full.
	RequeueDelay string `json:"requeue_delay,omitempty"`

	// DispatchTimeout bounds one alert or report dispatch.
	DispatchTimeout string `json:"dispatch_timeout,omitempty"`
}

// TaskEngineConfig controls the task execution engine.
//
// Enabled is a pointer so we can distinguish "omitted" (default to scheduler.enabled)
// from an explicit false.
//
// Defaults (when fields are omitted/zero):
//   - enabled: scheduler.enabled
//   - workers: 2
//   - queue_size: 256
//   - default_timeout: "0s" (disabled)
//   - max_queue_delay: "0s" (disabled)
//   - history_size: 200
type TaskEngineConfig struct {
	Enabled *bool `json:"enabled,omitempty"`
	Workers int   `json:"workers,omitempty"`

	QueueSize int `json:"queue_size,omitempty"`

	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`

	HistorySize int `json:"history_size,omitempty"`
}

// NotifierConfig controls outbound email and Telegram delivery.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// If the whole section is omitted, the notifier is enabled with defaults and
// senders configured from the environment.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`

	SMTP     SMTPConfig     `json:"smtp"`
	Telegram TelegramConfig `json:"telegram"`
}

// SMTPConfig: username and password are usually left empty here and taken
// from SMTP_USER / SMTP_PASS.
type SMTPConfig struct {
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	From     string `json:"from,omitempty"`
}

type TelegramConfig struct {
	Token   string `json:"token,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

// StorageConfig selects the document store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./winova.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite

	URI      string `json:"uri,omitempty"` // mongo; MONGODB_URL overrides
	Database string `json:"database,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

type EventsConfig struct {
	Redis RedisConfig `json:"redis"`
}

// RedisConfig enables forwarding bus events to a Redis pub/sub channel.
type RedisConfig struct {
	Enabled  bool     `json:"enabled"`
	Addr     string   `json:"addr,omitempty"`
	Password string   `json:"password,omitempty"`
	DB       int      `json:"db,omitempty"`
	Channel  string   `json:"channel,omitempty"`
	Prefixes []string `json:"prefixes,omitempty"`
}
