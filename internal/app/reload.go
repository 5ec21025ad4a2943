package app

import (
	"context"
	"strings"
	"time"

	"adminpanel/internal/config"
	rtsup "adminpanel/internal/runtime/supervisor"
	logx "adminpanel/pkg/logx"
)

func (a *App) startConfigReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch,
		rtsup.WithRestartBackoff(250*time.Millisecond, 5*time.Second))
}

// applyConfig pushes live-reloadable sections into running components.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	live, restart, fields := config.Diff(prev, next)
	if len(live) == 0 && len(restart) == 0 {
		a.log.Debug("config reload received, no effective changes")
		return
	}
	if len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}

	for _, section := range live {
		switch section {
		case config.SectionLogging:
			a.logs.Apply(mapLogging(next))
		case config.SectionRateLimits:
			rules, err := mapRules(next)
			if err == nil {
				err = a.limits.Replace(rules)
			}
			if err != nil {
				a.log.Warn("invalid rate_limits; keeping previous", logx.Err(err))
				continue
			}
			a.applyWatcher(ctx, next)
		case config.SectionMonitor:
			if prev != nil && !sameSampler(prev.Monitor.Sampler, next.Monitor.Sampler) {
				a.log.Warn("monitor.sampler changed; restart required")
			}
			a.applyWatcher(ctx, next)
		case config.SectionNotifier:
			ncfg, err := mapNotifier(next)
			if err != nil {
				a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
				continue
			}
			a.notif.Apply(ncfg)
		}
	}

	fields = append([]logx.Field{logx.String("changed", strings.Join(live, ","))}, fields...)
	a.log.Info("config applied", fields...)
}

func (a *App) applyWatcher(ctx context.Context, cfg *config.Config) {
	wcfg, err := mapWatcher(cfg)
	if err != nil {
		a.log.Warn("invalid monitor config; keeping previous", logx.Err(err))
		return
	}
	if err := a.watcher.Apply(wcfg, a.limits.Get(monitorRule)); err != nil {
		a.log.Warn("monitor reschedule failed", logx.Err(err))
		return
	}
	switch {
	case cfg.Monitor.Enabled && !a.monitorOn:
		if err := a.watcher.Start(ctx); err != nil {
			a.log.Warn("monitor start failed", logx.Err(err))
			return
		}
		a.monitorOn = true
	case !cfg.Monitor.Enabled && a.monitorOn:
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.watcher.Stop(stopCtx)
		cancel()
		a.monitorOn = false
	}
}

func sameSampler(a, b config.SamplerConfig) bool {
	if a.Driver != b.Driver || a.Endpoint != b.Endpoint || a.DiskPath != b.DiskPath || a.Timeout != b.Timeout {
		return false
	}
	if a.Static == nil || b.Static == nil {
		return a.Static == b.Static
	}
	return *a.Static == *b.Static
}
