package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"adminpanel/internal/eventbus"
	"adminpanel/internal/ratelimit"
	"adminpanel/internal/storage"
	logx "adminpanel/pkg/logx"

	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule  = "@every 1m"
	DefaultAlertType = "RESOURCE"
	defaultTimeout   = 30 * time.Second
)

// AlertStore is the subset of the storage used by the watcher.
type AlertStore interface {
	CreateAlert(ctx context.Context, alertType, message string, severity storage.Severity) (int64, error)
	HasUnresolvedAlert(ctx context.Context, alertType string) (bool, error)
}

type AlertSender interface {
	SendAlert(ctx context.Context, msg string) error
}

type WatcherConfig struct {
	Schedule         string
	AlertType        string
	Severity         storage.Severity
	SkipIfUnresolved bool
	Timeout          time.Duration
}

func (c WatcherConfig) withDefaults() WatcherConfig {
	if strings.TrimSpace(c.Schedule) == "" {
		c.Schedule = DefaultSchedule
	}
	if strings.TrimSpace(c.AlertType) == "" {
		c.AlertType = DefaultAlertType
	}
	if c.Severity == "" {
		c.Severity = storage.SeverityHigh
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}

// AlertEvent is published on the bus when the watcher records an alert.
type AlertEvent struct {
	AlertID   int64
	AlertType string
	Message   string
}

// Outcome describes one watcher tick.
type Outcome int

const (
	OutcomeHealthy Outcome = iota
	OutcomeAlerted
	OutcomeSkipped     // breach with an unresolved alert already open
	OutcomeRateLimited // tick rejected by the limiter
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAlerted:
		return "alerted"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeRateLimited:
		return "rate_limited"
	}
	return "healthy"
}

// Watcher runs ResourceAlert on a cron schedule, records breaches and
// forwards them to the administrator.
type Watcher struct {
	mon    *Monitor
	store  AlertStore
	sender AlertSender
	bus    eventbus.Bus
	log    logx.Logger

	mu      sync.Mutex
	cfg     WatcherConfig
	limiter *ratelimit.Limiter
	parser  cron.Parser
	c       *cron.Cron
	baseCtx context.Context
	stopped bool
}

func NewWatcher(cfg WatcherConfig, mon *Monitor, st AlertStore, sender AlertSender, bus eventbus.Bus, limiter *ratelimit.Limiter, log logx.Logger) (*Watcher, error) {
	if mon == nil || st == nil || sender == nil {
		return nil, errors.New("monitor: watcher requires monitor, store and sender")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	w := &Watcher{
		mon:     mon,
		store:   st,
		sender:  sender,
		bus:     bus,
		log:     log,
		cfg:     cfg.withDefaults(),
		limiter: limiter,
		parser:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
	if _, err := w.parser.Parse(w.cfg.Schedule); err != nil {
		return nil, fmt.Errorf("monitor: schedule %q: %w", w.cfg.Schedule, err)
	}
	return w, nil
}

// ValidateSchedule reports whether spec is an accepted cron expression.
func ValidateSchedule(spec string) error {
	p := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	_, err := p.Parse(spec)
	return err
}

// Start schedules ticks until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.c != nil {
		return nil
	}
	w.baseCtx = ctx
	w.stopped = false
	if err := w.startLocked(); err != nil {
		return err
	}
	w.log.Info("resource watcher started", logx.String("schedule", w.cfg.Schedule))
	return nil
}

func (w *Watcher) startLocked() error {
	c := cron.New(cron.WithParser(w.parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(w.cfg.Schedule, w.tick); err != nil {
		return fmt.Errorf("monitor: schedule %q: %w", w.cfg.Schedule, err)
	}
	c.Start()
	w.c = c
	return nil
}

func (w *Watcher) Stop(ctx context.Context) {
	w.mu.Lock()
	c := w.c
	w.c = nil
	w.stopped = true
	w.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	w.log.Info("resource watcher stopped")
}

// Apply swaps the configuration and limiter, rescheduling if running.
func (w *Watcher) Apply(cfg WatcherConfig, limiter *ratelimit.Limiter) error {
	cfg = cfg.withDefaults()
	if _, err := w.parser.Parse(cfg.Schedule); err != nil {
		return fmt.Errorf("monitor: schedule %q: %w", cfg.Schedule, err)
	}

	w.mu.Lock()
	old := w.c
	reschedule := old != nil && cfg.Schedule != w.cfg.Schedule
	w.cfg = cfg
	w.limiter = limiter
	if reschedule {
		w.c = nil
	}
	w.mu.Unlock()
	if !reschedule {
		return nil
	}

	// A running tick takes w.mu, so wait for it outside the lock.
	<-old.Stop().Done()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || w.c != nil {
		return nil
	}
	if err := w.startLocked(); err != nil {
		return err
	}
	w.log.Info("resource watcher rescheduled", logx.String("schedule", cfg.Schedule))
	return nil
}

func (w *Watcher) tick() {
	w.mu.Lock()
	ctx, timeout := w.baseCtx, w.cfg.Timeout
	w.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := w.RunOnce(ctx)
	if err != nil {
		w.log.Error("resource check failed", logx.Err(err))
		return
	}
	w.log.Debug("resource check", logx.String("outcome", out.String()))
}

// RunOnce performs a single check: sample, evaluate, optionally skip when an
// alert of the same type is still open, persist, then notify.
// A delivery failure is returned after the alert has been stored.
func (w *Watcher) RunOnce(ctx context.Context) (Outcome, error) {
	w.mu.Lock()
	cfg, limiter := w.cfg, w.limiter
	w.mu.Unlock()

	if limiter != nil && !limiter.TryAdmit() {
		eventbus.Publish(w.bus, eventbus.RateLimited, "monitor")
		return OutcomeRateLimited, nil
	}

	msg, err := w.mon.ResourceAlert(ctx)
	if err != nil {
		return OutcomeHealthy, err
	}
	if msg == "" {
		return OutcomeHealthy, nil
	}

	if cfg.SkipIfUnresolved {
		open, err := w.store.HasUnresolvedAlert(ctx, cfg.AlertType)
		if err != nil {
			return OutcomeHealthy, err
		}
		if open {
			return OutcomeSkipped, nil
		}
	}

	id, err := w.store.CreateAlert(ctx, cfg.AlertType, msg, cfg.Severity)
	if err != nil {
		return OutcomeHealthy, err
	}
	w.log.Warn("resource alert raised", logx.Int64("alert_id", id), logx.String("message", msg))
	eventbus.Publish(w.bus, eventbus.AlertCreated, AlertEvent{AlertID: id, AlertType: cfg.AlertType, Message: msg})

	if err := w.sender.SendAlert(ctx, msg); err != nil {
		return OutcomeAlerted, fmt.Errorf("alert %d stored, delivery failed: %w", id, err)
	}
	return OutcomeAlerted, nil
}
