package app

import (
	"fmt"
	"strings"
	"time"

	"adminpanel/internal/bot"
	"adminpanel/internal/config"
	"adminpanel/internal/httpapi"
	"adminpanel/internal/monitor"
	"adminpanel/internal/notifier"
	"adminpanel/internal/ratelimit"
	"adminpanel/internal/storage"
	logx "adminpanel/pkg/logx"
	"adminpanel/pkg/sysstat"
)

const (
	// monitorRule names the rate limit rule that paces watcher ticks.
	monitorRule = "monitor"

	defaultDBPath      = "./data/admin_panel.db"
	defaultPollTimeout = 10 * time.Second
)

// defaultRules apply unless the config overrides the same name.
var defaultRules = map[string]ratelimit.Rule{
	"start": {MaxCalls: 5, Window: 60 * time.Second},
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	path := strings.TrimSpace(cfg.Storage.Path)
	if path == "" {
		path = defaultDBPath
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Path: path, BusyTimeout: busy}, nil
}

func mapAdmin(cfg *config.Config) storage.Admin {
	name := strings.TrimPrefix(strings.TrimSpace(cfg.Telegram.AdminUsername), "@")
	if name == "" {
		name = "admin"
	}
	return storage.Admin{UserID: cfg.Telegram.AdminID, Username: name, FirstName: "Admin"}
}

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapPollTimeout(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, defaultPollTimeout)
}

func mapNotifier(cfg *config.Config) (notifier.Config, error) {
	timeout, err := config.ParseDurationField("notifier.timeout", cfg.Notifier.Timeout)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		ChatID:     cfg.Telegram.AdminID,
		Timeout:    timeout,
		RatePerSec: cfg.Notifier.RatePerSec,
	}, nil
}

func mapRules(cfg *config.Config) (map[string]ratelimit.Rule, error) {
	rules := make(map[string]ratelimit.Rule, len(defaultRules)+len(cfg.RateLimits))
	for k, v := range defaultRules {
		rules[k] = v
	}
	for name, r := range cfg.RateLimits {
		w, err := config.ParseDurationField("rate_limits."+name+".window", r.Window)
		if err != nil {
			return nil, err
		}
		rules[strings.ToLower(strings.TrimSpace(name))] = ratelimit.Rule{MaxCalls: r.MaxCalls, Window: w}
	}
	return rules, nil
}

func mapWatcher(cfg *config.Config) (monitor.WatcherConfig, error) {
	m := cfg.Monitor
	wc := monitor.WatcherConfig{
		Schedule:         m.Schedule,
		AlertType:        m.AlertType,
		SkipIfUnresolved: m.SkipIfUnresolved,
	}
	if strings.TrimSpace(m.Severity) != "" {
		sev, err := storage.ParseSeverity(m.Severity)
		if err != nil {
			return monitor.WatcherConfig{}, fmt.Errorf("monitor.severity: %w", err)
		}
		wc.Severity = sev
	}
	timeout, err := config.ParseDurationField("monitor.timeout", m.Timeout)
	if err != nil {
		return monitor.WatcherConfig{}, err
	}
	wc.Timeout = timeout
	if s := strings.TrimSpace(wc.Schedule); s != "" {
		if err := monitor.ValidateSchedule(s); err != nil {
			return monitor.WatcherConfig{}, fmt.Errorf("monitor.schedule %q: %w", s, err)
		}
	}
	return wc, nil
}

// NewSampler builds the resource sampler selected by the config.
func NewSampler(sc config.SamplerConfig) (sysstat.Sampler, error) {
	timeout, err := config.ParseDurationOrDefault("monitor.sampler.timeout", sc.Timeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	disk := strings.TrimSpace(sc.DiskPath)
	if disk == "" {
		disk = "/"
	}
	switch strings.ToLower(strings.TrimSpace(sc.Driver)) {
	case "", config.SamplerHost:
		return sysstat.NewHost(disk), nil
	case config.SamplerPrometheus:
		return sysstat.NewNodeExporter(sc.Endpoint, disk, timeout)
	case config.SamplerStatic:
		if sc.Static == nil {
			return nil, fmt.Errorf("monitor.sampler.static is required")
		}
		return sysstat.Static(sysstat.Usage{CPU: sc.Static.CPU, Memory: sc.Static.Memory, Disk: sc.Static.Disk}), nil
	}
	return nil, fmt.Errorf("unknown monitor.sampler.driver %q", sc.Driver)
}

func mapBot(cfg *config.Config) (bot.Config, error) {
	timeout, err := config.ParseDurationField("bot.command_timeout", cfg.Bot.CommandTimeout)
	if err != nil {
		return bot.Config{}, err
	}
	return bot.Config{
		AdminID:        cfg.Telegram.AdminID,
		Workers:        cfg.Bot.Workers,
		QueueSize:      cfg.Bot.QueueSize,
		CommandTimeout: timeout,
	}, nil
}

func mapHTTP(cfg *config.Config) httpapi.Config {
	return httpapi.Config{Addr: cfg.HTTP.Addr, Pprof: cfg.HTTP.Pprof}
}

// validate runs component-level checks before a reloaded config is published.
func validate(cfg *config.Config) error {
	if _, err := mapRules(cfg); err != nil {
		return err
	}
	if _, err := mapWatcher(cfg); err != nil {
		return err
	}
	if _, err := mapNotifier(cfg); err != nil {
		return err
	}
	if cfg.HTTP.Enabled {
		addr := strings.TrimSpace(cfg.HTTP.Addr)
		if addr == "" {
			addr = httpapi.DefaultAddr
		}
		if err := httpapi.ValidateLoopback(addr); err != nil {
			return err
		}
	}
	return nil
}
