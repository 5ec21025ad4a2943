package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram   TelegramConfig             `json:"telegram"`
	Logging    LoggingConfig              `json:"logging"`
	Storage    StorageConfig              `json:"storage"`
	Bot        BotConfig                  `json:"bot,omitempty"`
	Monitor    MonitorConfig              `json:"monitor"`
	Notifier   NotifierConfig             `json:"notifier,omitempty"`
	RateLimits map[string]RateLimitConfig `json:"rate_limits,omitempty"`
	HTTP       HTTPConfig                 `json:"http,omitempty"`
}

type TelegramConfig struct {
	Token         string `json:"token"`
	AdminID       int64  `json:"admin_id"`
	AdminUsername string `json:"admin_username,omitempty"`
	// PollTimeout defaults to 10s.
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig points at the SQLite database file.
//
//	"storage": { "path": "./data/admin_panel.db", "busy_timeout": "5s" }
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// BotConfig controls the command dispatcher.
//
// Defaults: workers 4, queue_size 64, command_timeout "30s".
type BotConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	CommandTimeout string `json:"command_timeout,omitempty"`
}

type MonitorConfig struct {
	Enabled          bool          `json:"enabled"`
	Schedule         string        `json:"schedule,omitempty"`
	AlertType        string        `json:"alert_type,omitempty"`
	Severity         string        `json:"severity,omitempty"`
	SkipIfUnresolved bool          `json:"skip_if_unresolved,omitempty"`
	Timeout          string        `json:"timeout,omitempty"`
	Sampler          SamplerConfig `json:"sampler"`
}

// SamplerConfig selects where resource usage comes from.
//
// Drivers:
//   - "host": the local machine via gopsutil (default)
//   - "prometheus": a node_exporter text endpoint
//   - "static": fixed values, for dry runs
type SamplerConfig struct {
	Driver   string       `json:"driver,omitempty"`
	Endpoint string       `json:"endpoint,omitempty"`
	DiskPath string       `json:"disk_path,omitempty"`
	Timeout  string       `json:"timeout,omitempty"`
	Static   *StaticUsage `json:"static,omitempty"`
}

type StaticUsage struct {
	CPU    float64 `json:"cpu"`
	Memory float64 `json:"memory"`
	Disk   float64 `json:"disk"`
}

type NotifierConfig struct {
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// RateLimitConfig is a sliding window rule for one command ("start", "status", ...)
// or for the monitor ("monitor").
type RateLimitConfig struct {
	MaxCalls int    `json:"max_calls"`
	Window   string `json:"window"`
}

// HTTPConfig controls the read-only status API. It only binds loopback.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Pprof   bool   `json:"pprof,omitempty"`
}

const (
	SamplerHost       = "host"
	SamplerPrometheus = "prometheus"
	SamplerStatic     = "static"
)
