package config

import (
	"reflect"

	logx "adminpanel/pkg/logx"
)

// Sections a running process can apply without restart.
const (
	SectionLogging    = "logging"
	SectionRateLimits = "rate_limits"
	SectionMonitor    = "monitor"
	SectionNotifier   = "notifier"
)

// Diff reports changed sections split into those applied live and those that
// need a restart, plus safe log fields (never the token).
func Diff(oldCfg, newCfg *Config) (live, restart []string, fields []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		live = append(live, SectionLogging)
		fields = append(fields, logx.String("logging.level", newCfg.Logging.Level))
	}
	if !reflect.DeepEqual(oldCfg.RateLimits, newCfg.RateLimits) {
		live = append(live, SectionRateLimits)
		fields = append(fields, logx.Int("rate_limits.rules", len(newCfg.RateLimits)))
	}
	if !reflect.DeepEqual(oldCfg.Monitor, newCfg.Monitor) {
		live = append(live, SectionMonitor)
		fields = append(fields, logx.String("monitor.schedule", newCfg.Monitor.Schedule), logx.Bool("monitor.enabled", newCfg.Monitor.Enabled))
	}
	if oldCfg.Notifier != newCfg.Notifier {
		live = append(live, SectionNotifier)
	}

	if oldCfg.Telegram != newCfg.Telegram {
		restart = append(restart, "telegram")
		fields = append(fields, logx.Int64("telegram.admin_id", newCfg.Telegram.AdminID))
	}
	if oldCfg.Storage != newCfg.Storage {
		restart = append(restart, "storage")
	}
	if oldCfg.Bot != newCfg.Bot {
		restart = append(restart, "bot")
	}
	if oldCfg.HTTP != newCfg.HTTP {
		restart = append(restart, "http")
	}
	return live, restart, fields
}
