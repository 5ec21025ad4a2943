package config

import (
	"errors"
	"fmt"
	"strings"

	logx "adminpanel/pkg/logx"
)

var ErrInvalid = errors.New("invalid configuration")

// ValidationError lists every problem found in one pass.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

// Validate checks the structural rules a component cannot recover from.
func Validate(cfg *Config) error {
	if cfg == nil {
		return &ValidationError{Problems: []string{"config is nil"}}
	}
	var p []string
	add := func(format string, args ...any) { p = append(p, fmt.Sprintf(format, args...)) }
	dur := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			p = append(p, err.Error())
		}
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		add("telegram.token is required")
	}
	if cfg.Telegram.AdminID <= 0 {
		add("telegram.admin_id must be a positive user id")
	}
	dur("telegram.poll_timeout", cfg.Telegram.PollTimeout)

	if lv := strings.TrimSpace(cfg.Logging.Level); lv != "" && !logx.ValidLevel(lv) {
		add("logging.level %q is unknown", lv)
	}
	if lv := strings.TrimSpace(cfg.Logging.Telegram.MinLevel); lv != "" && !logx.ValidLevel(lv) {
		add("logging.telegram.min_level %q is unknown", lv)
	}
	if cfg.Logging.Telegram.RatePerSec < 0 {
		add("logging.telegram.rate_per_sec must be >= 0")
	}

	dur("storage.busy_timeout", cfg.Storage.BusyTimeout)

	if cfg.Bot.Workers < 0 || cfg.Bot.QueueSize < 0 {
		add("bot.workers and bot.queue_size must be >= 0")
	}
	dur("bot.command_timeout", cfg.Bot.CommandTimeout)

	switch strings.ToLower(strings.TrimSpace(cfg.Monitor.Severity)) {
	case "", "low", "medium", "high":
	default:
		add("monitor.severity %q must be low, medium or high", cfg.Monitor.Severity)
	}
	dur("monitor.timeout", cfg.Monitor.Timeout)
	s := cfg.Monitor.Sampler
	switch strings.ToLower(strings.TrimSpace(s.Driver)) {
	case "", SamplerHost:
	case SamplerPrometheus:
		if strings.TrimSpace(s.Endpoint) == "" {
			add("monitor.sampler.endpoint is required for the prometheus driver")
		}
	case SamplerStatic:
		if s.Static == nil {
			add("monitor.sampler.static is required for the static driver")
		}
	default:
		add("monitor.sampler.driver %q is unknown", s.Driver)
	}
	dur("monitor.sampler.timeout", s.Timeout)

	dur("notifier.timeout", cfg.Notifier.Timeout)
	if cfg.Notifier.RatePerSec < 0 {
		add("notifier.rate_per_sec must be >= 0")
	}

	for name, r := range cfg.RateLimits {
		if strings.TrimSpace(name) == "" {
			add("rate_limits: empty rule name")
			continue
		}
		if r.MaxCalls <= 0 {
			add("rate_limits.%s.max_calls must be > 0", name)
		}
		w, err := ParseDurationField("rate_limits."+name+".window", r.Window)
		switch {
		case err != nil:
			p = append(p, err.Error())
		case w <= 0:
			add("rate_limits.%s.window must be > 0", name)
		}
	}

	if len(p) > 0 {
		return &ValidationError{Problems: p}
	}
	return nil
}
