// Package app wires the admin panel components and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"adminpanel/internal/bot"
	"adminpanel/internal/config"
	"adminpanel/internal/eventbus"
	"adminpanel/internal/httpapi"
	"adminpanel/internal/monitor"
	"adminpanel/internal/notifier"
	"adminpanel/internal/ratelimit"
	rtsup "adminpanel/internal/runtime/supervisor"
	"adminpanel/internal/storage"
	kit "adminpanel/internal/transport"
	telegram "adminpanel/internal/transport/telegram/adapter"
	logx "adminpanel/pkg/logx"
	"adminpanel/pkg/sysstat"
)

const msgBotError = "❌ Bot Error: %v"

type Option func(*options)

type options struct {
	adapter kit.Adapter
	sampler sysstat.Sampler
}

// WithAdapter replaces the Telegram transport.
func WithAdapter(a kit.Adapter) Option { return func(o *options) { o.adapter = a } }

// WithSampler replaces the sampler selected by monitor.sampler.
func WithSampler(s sysstat.Sampler) Option { return func(o *options) { o.sampler = s } }

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   *storage.Store
	adapter kit.Adapter
	notif   *notifier.Service
	limits  *ratelimit.Set
	mon     *monitor.Monitor
	watcher *monitor.Watcher
	bot     *bot.Bot
	api     *httpapi.Server

	pollTimeout time.Duration
	monitorOn   bool
	errReports  *ratelimit.Limiter

	updates chan kit.Update
}

// New loads nothing itself: cfgm must already hold a config (Load).
// The store is opened and initialized here so schema or admin problems abort startup.
func New(ctx context.Context, cfgm *config.Manager, opts ...Option) (*App, error) {
	cfg := cfgm.Get()
	if cfg == nil {
		return nil, errors.New("app: config not loaded")
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	a := &App{cfgm: cfgm, updates: make(chan kit.Update, 256)}
	errReports, err := ratelimit.New(1, time.Minute)
	if err != nil {
		return nil, err
	}
	a.errReports = errReports

	a.pollTimeout, err = mapPollTimeout(cfg)
	if err != nil {
		return nil, err
	}

	ad := o.adapter
	if ad == nil {
		tg, err := telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: a.pollTimeout,
			OnError:     a.reportBotError,
		}, logx.NewConsole("info").With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, err
		}
		ad = tg
	}
	a.adapter = ad

	// Telegram logging stays off until the admin chat is known.
	logCfg := mapLogging(cfg)
	tgEnabled := logCfg.Telegram.Enabled
	logCfg.Telegram.Enabled = false
	logSvc, log := logx.New(logCfg, ad)
	logSvc.SetTelegramTarget(kit.ChatTarget{ChatID: cfg.Telegram.AdminID})
	logCfg.Telegram.Enabled = tgEnabled
	logSvc.Apply(logCfg)
	a.logs = logSvc
	a.log = log.With(logx.String("comp", "app"))
	a.bus = eventbus.New()

	fail := func(err error) (*App, error) {
		if a.store != nil {
			_ = a.store.Close()
		}
		_ = logSvc.Close()
		return nil, err
	}

	sc, err := mapStorage(cfg)
	if err != nil {
		return fail(err)
	}
	a.store, err = storage.Open(ctx, sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return fail(err)
	}
	if err := a.store.Initialize(ctx, mapAdmin(cfg)); err != nil {
		return fail(err)
	}

	rules, err := mapRules(cfg)
	if err != nil {
		return fail(err)
	}
	a.limits, err = ratelimit.NewSet(rules)
	if err != nil {
		return fail(err)
	}

	sampler := o.sampler
	if sampler == nil {
		sampler, err = NewSampler(cfg.Monitor.Sampler)
		if err != nil {
			return fail(err)
		}
	}
	a.mon, err = monitor.New(sampler)
	if err != nil {
		return fail(err)
	}

	ncfg, err := mapNotifier(cfg)
	if err != nil {
		return fail(err)
	}
	a.notif = notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")), a.bus)

	wcfg, err := mapWatcher(cfg)
	if err != nil {
		return fail(err)
	}
	a.watcher, err = monitor.NewWatcher(wcfg, a.mon, a.store, a.notif, a.bus, a.limits.Get(monitorRule), log.With(logx.String("comp", "monitor")))
	if err != nil {
		return fail(err)
	}

	bcfg, err := mapBot(cfg)
	if err != nil {
		return fail(err)
	}
	a.bot = bot.New(bcfg, ad, bot.Deps{
		Store:    a.store,
		Monitor:  a.mon,
		Notifier: a.notif,
		Limits:   a.limits,
		Bus:      a.bus,
	}, log.With(logx.String("comp", "bot")))

	if cfg.HTTP.Enabled {
		a.api, err = httpapi.New(mapHTTP(cfg), a.store, a.mon, log.With(logx.String("comp", "http")),
			httpapi.WithNotifications(a.notif),
			httpapi.WithRuntime(a.runtimeCounters),
		)
		if err != nil {
			return fail(err)
		}
	}
	return a, nil
}

func (a *App) Store() *storage.Store { return a.store }

func (a *App) Notifier() *notifier.Service { return a.notif }

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validate(cfg) })

	details := "service started"
	if _, err := a.store.LogActivity(ctx, 0, "system", &details, nil); err != nil {
		return err
	}

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return err
	}
	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.bot.DispatchLoop(c, a.updates)
	})

	if a.cfgm.Get().Monitor.Enabled {
		if err := a.watcher.Start(runCtx); err != nil {
			return err
		}
		a.monitorOn = true
	}
	if a.api != nil {
		a.sup.Go("http.api", a.api.Run)
	}

	a.startEventLog()
	a.startConfigReload()

	if err := a.notif.SendStatus(ctx, fmt.Sprintf("Bot started, polling timeout %ds", int(a.pollTimeout.Seconds()))); err != nil {
		a.log.Warn("startup notification failed", logx.Err(err))
	}
	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started", logx.Bool("monitor", a.monitorOn), logx.Bool("http", a.api != nil))
	return nil
}

func (a *App) startEventLog() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})
}

// reportBotError forwards transport errors to the admin, at most once a minute.
func (a *App) reportBotError(err error) {
	if a.notif == nil || !a.errReports.TryAdmit() {
		return
	}
	send := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		_ = a.notif.SendStatus(ctx, fmt.Sprintf(msgBotError, err))
	}
	if a.sup == nil {
		go send(context.Background())
		return
	}
	if a.sup.Context().Err() != nil {
		return
	}
	a.sup.Go0("bot.error_report", send)
}

// runtimeCounters reports supervisor goroutines; zero before Start.
func (a *App) runtimeCounters() rtsup.Counters { return a.sup.Counters() }

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeStore()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, daemon.SdNotifyStopping)
	a.sup.Cancel()

	a.step(ctx, "monitor", 2*time.Second, func(c context.Context) error { a.watcher.Stop(c); return nil })
	a.step(ctx, "adapter", 2*time.Second, a.adapter.Stop)
	a.step(ctx, "supervisor", 5*time.Second, a.sup.Wait)
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}

func (a *App) closeStore() {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

// step runs one shutdown step bounded by max and by the caller's deadline.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped (deadline)", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}
